package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"

	gan "github.com/LdDl/image-gan"
)

var (
	configFile = flag.String("config", "", "Path to JSON configuration file. Defaults are used when empty")
	modelPath  = flag.String("model", "", "Path to generator checkpoint (overrides configuration)")
	outDir     = flag.String("out", "generated", "Directory for generated images")
	num        = flag.Int("n", 1, "Number of images to generate")
	seed       = flag.Int64("seed", -1, "Seed for latent vectors. Image i uses seed+i. Negative value means random latent vectors")
	device     = flag.String("device", "", "Compute device: cpu or cuda (overrides configuration)")
)

func main() {
	flag.Parse()
	logger := log.New(os.Stdout, "[gan-generate] ", log.LstdFlags)

	cfg := gan.DefaultConfig()
	if *configFile != "" {
		var err error
		cfg, err = gan.LoadConfig(*configFile)
		if err != nil {
			logger.Fatalln(err)
		}
	}
	if *modelPath != "" {
		cfg.ModelsDir, cfg.ModelName = filepath.Split(*modelPath)
	}
	if *device != "" {
		cfg.Device = *device
	}
	if *num < 1 {
		logger.Fatalf("Number of images must be positive, but got %d", *num)
	}

	service, err := gan.NewService(cfg)
	if err != nil {
		logger.Fatalln(err)
	}
	defer service.Close()
	if err := service.LoadModel(); err != nil {
		logger.Fatalln(err)
	}
	if err := os.MkdirAll(*outDir, 0755); err != nil {
		logger.Fatalln(err)
	}

	for i := 0; i < *num; i++ {
		var imgSeed *int64
		if *seed >= 0 {
			s := *seed + int64(i)
			imgSeed = &s
		}
		img, err := service.Generate(imgSeed, nil)
		if err != nil {
			logger.Fatalln(err)
		}
		fname := filepath.Join(*outDir, fmt.Sprintf("generated_%d.png", i))
		if err := gan.SaveImage(img, fname); err != nil {
			logger.Fatalln(err)
		}
		logger.Printf("Saved %s", fname)
	}
}
