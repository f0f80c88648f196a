package main

import (
	"flag"
	"log"
	"os"

	gan "github.com/LdDl/image-gan"
)

var (
	configFile = flag.String("config", "", "Path to JSON configuration file. Defaults are used when empty")
	datasetDir = flag.String("dataset", "", "Directory with training images (overrides configuration)")
	epochs     = flag.Int("epochs", 0, "Number of epochs (overrides configuration)")
	device     = flag.String("device", "", "Compute device: cpu or cuda (overrides configuration)")
	lossName   = flag.String("loss", "", "Adversarial loss: bce, lsgan or wasserstein (overrides configuration)")
)

func main() {
	flag.Parse()
	logger := log.New(os.Stdout, "[gan-train] ", log.LstdFlags)

	cfg := gan.DefaultConfig()
	if *configFile != "" {
		var err error
		cfg, err = gan.LoadConfig(*configFile)
		if err != nil {
			logger.Fatalln(err)
		}
	}
	if *datasetDir != "" {
		cfg.DatasetDir = *datasetDir
	}
	if *epochs > 0 {
		cfg.Epochs = *epochs
	}
	if *device != "" {
		cfg.Device = *device
	}
	if *lossName != "" {
		cfg.Loss = *lossName
	}

	ds, err := gan.NewImageDataset(cfg.DatasetDir, cfg.ImageSize)
	if err != nil {
		logger.Fatalln(err)
	}
	logger.Printf("dataset: %d images in %d classes", ds.Len(), len(ds.Classes()))

	service, err := gan.NewService(cfg, gan.WithTrainerOptions(gan.WithLogger(log.New(os.Stdout, "[trainer] ", log.LstdFlags))))
	if err != nil {
		logger.Fatalln(err)
	}
	defer service.Close()

	history, err := service.Train(ds)
	if err != nil {
		logger.Fatalln(err)
	}
	last := len(history.GeneratorLoss) - 1
	logger.Printf("Done. Final losses: generator %f, discriminator %f", history.GeneratorLoss[last], history.DiscriminatorLoss[last])
	logger.Printf("Generator is saved to %s", cfg.ModelPath())
}
