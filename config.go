package imagegan

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

// NetworkSchedule Learning rate and its piecewise constant decay for one network
//
// LearningRate - initial learning rate
// Milestones - epochs (1-based count of finished epochs) at which learning rate is multiplied by Gamma
// Gamma - multiplicative decay factor
//
type NetworkSchedule struct {
	LearningRate float64 `json:"learning_rate"`
	Milestones   []int   `json:"milestones"`
	Gamma        float64 `json:"gamma"`
}

// Config Everything needed to build, train and run networks. It is passed explicitly to every component.
type Config struct {
	// Data
	ImageSize  int `json:"image_size"`
	LatentSize int `json:"latent_size"`

	// Architecture: channel widths of hidden layers
	GeneratorChannels     [2]int  `json:"generator_channels"`
	DiscriminatorChannels [2]int  `json:"discriminator_channels"`
	InitStdDev            float64 `json:"init_stddev"`

	// Training
	BatchSize     int             `json:"batch_size"`
	SampleNum     int             `json:"sample_num"`
	Epochs        int             `json:"epochs"`
	DSteps        int             `json:"d_steps"`
	GSteps        int             `json:"g_steps"`
	Discriminator NetworkSchedule `json:"discriminator"`
	Generator     NetworkSchedule `json:"generator"`
	Loss          string          `json:"loss"`
	ClipValue     float64         `json:"clip_value"`
	Shuffle       bool            `json:"shuffle"`
	Seed          int64           `json:"seed"`

	// KeepEpochCheckpoints Additionally keeps a copy of generator weights for every epoch
	KeepEpochCheckpoints bool `json:"keep_epoch_checkpoints"`

	Device string `json:"device"`

	// Paths
	DatasetDir string `json:"dataset_dir"`
	ModelsDir  string `json:"models_dir"`
	ModelName  string `json:"model_name"`
	OutputDir  string `json:"output_dir"`
}

const (
	DeviceCPU  = "cpu"
	DeviceCUDA = "cuda"
)

// DefaultConfig Returns configuration for 32x32 images
func DefaultConfig() *Config {
	return &Config{
		ImageSize:             32,
		LatentSize:            64,
		GeneratorChannels:     [2]int{64, 32},
		DiscriminatorChannels: [2]int{32, 64},
		InitStdDev:            0.02,
		BatchSize:             32,
		SampleNum:             16,
		Epochs:                50,
		DSteps:                1,
		GSteps:                1,
		Discriminator: NetworkSchedule{
			LearningRate: 0.0002,
			Milestones:   []int{30, 40},
			Gamma:        0.5,
		},
		Generator: NetworkSchedule{
			LearningRate: 0.0002,
			Milestones:   []int{30, 40},
			Gamma:        0.5,
		},
		Loss:       LossBCE,
		ClipValue:  0.01,
		Shuffle:    true,
		Seed:       1337,
		Device:     DeviceCPU,
		DatasetDir: "data/train",
		ModelsDir:  "models",
		ModelName:  "generator.gob",
		OutputDir:  "plots",
	}
}

// LoadConfig Reads JSON file over default configuration and validates the result
func LoadConfig(fname string) (*Config, error) {
	cfg := DefaultConfig()
	f, err := os.Open(fname)
	if err != nil {
		return nil, errors.Wrap(err, "Can't open configuration file")
	}
	defer f.Close()
	dec := json.NewDecoder(f)
	dec.DisallowUnknownFields()
	if err := dec.Decode(cfg); err != nil {
		return nil, errors.Wrap(err, fmt.Sprintf("Can't decode configuration file '%s'", fname))
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ModelPath Returns path to generator checkpoint
func (cfg *Config) ModelPath() string {
	return filepath.Join(cfg.ModelsDir, cfg.ModelName)
}

// Validate Checks configuration for consistency
func (cfg *Config) Validate() error {
	if cfg.ImageSize < 4 || cfg.ImageSize%4 != 0 {
		return fmt.Errorf("Image size must be positive and divisible by 4, but got %d", cfg.ImageSize)
	}
	if cfg.LatentSize < 1 {
		return fmt.Errorf("Latent vector size must be positive, but got %d", cfg.LatentSize)
	}
	for i, c := range cfg.GeneratorChannels {
		if c < 1 {
			return fmt.Errorf("Generator channels #%d must be positive, but got %d", i, c)
		}
	}
	for i, c := range cfg.DiscriminatorChannels {
		if c < 1 {
			return fmt.Errorf("Discriminator channels #%d must be positive, but got %d", i, c)
		}
	}
	if cfg.InitStdDev <= 0 {
		return fmt.Errorf("Initialization stddev must be positive, but got %f", cfg.InitStdDev)
	}
	if cfg.BatchSize < 1 {
		return fmt.Errorf("Batch size must be positive, but got %d", cfg.BatchSize)
	}
	if cfg.SampleNum < 1 {
		return fmt.Errorf("Number of samples must be positive, but got %d", cfg.SampleNum)
	}
	if cfg.Epochs < 1 {
		return fmt.Errorf("Number of epochs must be positive, but got %d", cfg.Epochs)
	}
	if cfg.DSteps < 1 || cfg.GSteps < 1 {
		return fmt.Errorf("Discriminator and generator steps must be positive, but got %d and %d", cfg.DSteps, cfg.GSteps)
	}
	if err := cfg.Discriminator.validate(); err != nil {
		return errors.Wrap(err, "Bad discriminator schedule")
	}
	if err := cfg.Generator.validate(); err != nil {
		return errors.Wrap(err, "Bad generator schedule")
	}
	if _, ok := objectives[cfg.Loss]; !ok {
		return fmt.Errorf("Loss '%s' is not supported", cfg.Loss)
	}
	if cfg.Loss == LossWasserstein && cfg.ClipValue <= 0 {
		return fmt.Errorf("Clip value must be positive for Wasserstein loss, but got %f", cfg.ClipValue)
	}
	if cfg.Device != DeviceCPU && cfg.Device != DeviceCUDA {
		return fmt.Errorf("Device '%s' is not supported", cfg.Device)
	}
	if cfg.ModelName == "" {
		return fmt.Errorf("Model name must not be empty")
	}
	return nil
}

func (s NetworkSchedule) validate() error {
	if s.LearningRate <= 0 {
		return fmt.Errorf("Learning rate must be positive, but got %f", s.LearningRate)
	}
	if s.Gamma <= 0 {
		return fmt.Errorf("Gamma must be positive, but got %f", s.Gamma)
	}
	for i := range s.Milestones {
		if s.Milestones[i] < 1 {
			return fmt.Errorf("Milestone #%d must be positive, but got %d", i, s.Milestones[i])
		}
		if i > 0 && s.Milestones[i] <= s.Milestones[i-1] {
			return fmt.Errorf("Milestones must be strictly increasing, but got %v", s.Milestones)
		}
	}
	return nil
}
