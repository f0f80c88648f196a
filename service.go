package imagegan

import (
	"fmt"
	"log"
	"math/rand"
	"os"
	"time"

	"github.com/pkg/errors"
	"gorgonia.org/tensor"
)

var (
	// ErrModelNotLoaded Generator weights were neither loaded nor trained
	ErrModelNotLoaded = errors.New("model is not loaded")
)

// Service Trains generator or loads trained one, and generates images from latent vectors.
// Inference is done on a graph without gradients, so generation never changes weights.
type Service struct {
	cfg    *Config
	logger *log.Logger
	device *Device
	runner *GeneratorRunner
	rng    *rand.Rand
	ready  bool

	trainerOpts []TrainerOption
}

// ServiceOption Optional service settings
type ServiceOption func(*Service)

// WithServiceLogger Sets logger for service messages
func WithServiceLogger(logger *log.Logger) ServiceOption {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithTrainerOptions Options passed to trainer on Train()
func WithTrainerOptions(opts ...TrainerOption) ServiceOption {
	return func(s *Service) {
		s.trainerOpts = append(s.trainerOpts, opts...)
	}
}

// WithRandSource Sets source used for latent vectors when neither seed nor latent vector is provided to Generate()
func WithRandSource(src rand.Source) ServiceOption {
	return func(s *Service) {
		s.rng = rand.New(src)
	}
}

// NewService Prepares inference graph for one image on configured device
func NewService(cfg *Config, opts ...ServiceOption) (*Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "Bad configuration")
	}
	s := &Service{
		cfg:    cfg,
		logger: log.New(os.Stderr, "[generator] ", log.LstdFlags),
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	for _, opt := range opts {
		opt(s)
	}
	var err error
	s.device, err = SelectDevice(cfg)
	if err != nil {
		return nil, errors.Wrap(err, "Can't select device")
	}
	s.runner, err = NewGeneratorRunner(cfg, 1, nil, rand.New(rand.NewSource(cfg.Seed)), s.device.vmOpts()...)
	if err != nil {
		return nil, errors.Wrap(err, "Can't prepare generator")
	}
	s.logger.Printf("model path: %s", cfg.ModelPath())
	return s, nil
}

// LoadModel Reads generator weights from configured checkpoint path
func (s *Service) LoadModel() error {
	ckpt, err := LoadCheckpoint(s.cfg.ModelPath())
	if err != nil {
		return errors.Wrap(err, "Can't load model")
	}
	if err := ckpt.Restore(s.runner.Learnables()); err != nil {
		return errors.Wrap(err, "Can't restore model")
	}
	s.ready = true
	s.logger.Printf("model was loaded successfully (run %s, epoch %d)", ckpt.RunID, ckpt.Epoch)
	return nil
}

// SaveModel Writes current generator weights to configured checkpoint path
func (s *Service) SaveModel() error {
	if !s.ready {
		return ErrModelNotLoaded
	}
	ckpt, err := NewCheckpoint("", 0, s.runner.Learnables())
	if err != nil {
		return errors.Wrap(err, "Can't capture model")
	}
	if err := SaveCheckpoint(ckpt, s.cfg.ModelPath()); err != nil {
		return errors.Wrap(err, "Can't save model")
	}
	s.logger.Printf("model was saved successfully")
	return nil
}

// Train Trains new generator on dataset and adopts its weights. Checkpoints and plots are written by trainer.
func (s *Service) Train(ds Dataset) (*History, error) {
	s.logger.Printf("started training new model")
	trainer, err := NewTrainer(s.cfg, ds, s.trainerOpts...)
	if err != nil {
		return nil, errors.Wrap(err, "Can't prepare trainer")
	}
	defer trainer.Close()
	history, err := trainer.Run()
	if err != nil {
		return nil, err
	}
	if err := s.runner.Sync(trainer.GeneratorLearnables()); err != nil {
		return nil, errors.Wrap(err, "Can't adopt trained generator")
	}
	s.ready = true
	return history, nil
}

// Generate Produces one image (size, size, 3) with values in [0;1]
//
// seed - if not nil, latent vector is sampled deterministically from this seed
// latent - if not nil, it is used as is (seed is ignored then); its length must equal latent size
//
func (s *Service) Generate(seed *int64, latent []float64) (*tensor.Dense, error) {
	if !s.ready {
		return nil, ErrModelNotLoaded
	}
	var z *tensor.Dense
	switch {
	case latent != nil:
		if len(latent) != s.cfg.LatentSize {
			return nil, fmt.Errorf("Latent vector must have %d values, but got %d", s.cfg.LatentSize, len(latent))
		}
		z = tensor.New(tensor.WithShape(1, s.cfg.LatentSize), tensor.WithBacking(append([]float64{}, latent...)))
	case seed != nil:
		z = NormRandDense(rand.New(rand.NewSource(*seed)), 1, s.cfg.LatentSize)
	default:
		z = NormRandDense(s.rng, 1, s.cfg.LatentSize)
	}
	out, err := s.runner.Run(z)
	if err != nil {
		return nil, errors.Wrap(err, "Can't generate image")
	}
	return toDisplayable(out)
}

// toDisplayable Converts generator output (1, 3, h, w) in [-1;1] into (h, w, 3) in [0;1]
func toDisplayable(out *tensor.Dense) (*tensor.Dense, error) {
	shp := out.Shape()
	if len(shp) != 4 || shp[0] != 1 || shp[1] != ImageChannels {
		return nil, fmt.Errorf("Generator output must have shape (1, 3, h, w), but got %v", shp)
	}
	h, w := shp[2], shp[3]
	src := out.Data().([]float64)
	plane := h * w
	data := make([]float64, plane*ImageChannels)
	for c := 0; c < ImageChannels; c++ {
		for i := 0; i < plane; i++ {
			data[i*ImageChannels+c] = Denormalize(src[c*plane+i])
		}
	}
	return tensor.New(tensor.WithShape(h, w, ImageChannels), tensor.WithBacking(data)), nil
}

// SaveImage Writes displayable image (size, size, 3) into PNG file
func SaveImage(img *tensor.Dense, fname string) error {
	rgba, err := ImageFromHWC(img)
	if err != nil {
		return err
	}
	return SavePNG(rgba, fname)
}

// Close Releases inference VM
func (s *Service) Close() error {
	return s.runner.Close()
}
