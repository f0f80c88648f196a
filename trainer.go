package imagegan

import (
	"fmt"
	"io"
	"log"
	"math/rand"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/stat"
	"gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// LossPlotName File name of loss curves chart inside output directory. It is overwritten every epoch.
const LossPlotName = "losses.png"

// SampleGridName Returns file name of sample grid for epoch (1-based)
func SampleGridName(epoch int) string {
	return fmt.Sprintf("E%d.png", epoch)
}

// History Per-epoch values: loss of the last batch and learning rate after the epoch's schedule step
type History struct {
	DiscriminatorLoss []float64
	GeneratorLoss     []float64
	DiscriminatorLR   []float64
	GeneratorLR       []float64
}

// EpochReport Summary of finished epoch passed to epoch hooks
//
// Epoch - 1-based epoch number
// DiscriminatorLoss, GeneratorLoss - losses of the last batch
// MeanDiscriminatorLoss, MeanGeneratorLoss - mean losses over all batches of the epoch
// SampleLatent - copy of fixed latent batch used for the sample grid
// Samples - generated preview images (sample_num, 3, size, size)
//
type EpochReport struct {
	Epoch                 int
	DiscriminatorLoss     float64
	GeneratorLoss         float64
	MeanDiscriminatorLoss float64
	MeanGeneratorLoss     float64
	DiscriminatorLR       float64
	GeneratorLR           float64
	SampleLatent          *tensor.Dense
	Samples               *tensor.Dense
	Took                  time.Duration
}

// TrainerOption Optional trainer settings
type TrainerOption func(*Trainer)

// WithLogger Sets logger for training progress
func WithLogger(logger *log.Logger) TrainerOption {
	return func(t *Trainer) {
		t.logger = logger
	}
}

// WithEpochHook Registers function which is called after every epoch (after artifacts are saved)
func WithEpochHook(hook func(EpochReport)) TrainerOption {
	return func(t *Trainer) {
		t.hooks = append(t.hooks, hook)
	}
}

// Trainer Adversarial training of Generator and Discriminator.
//
// Discriminator is trained on its own graph. Generator is trained on GAN graph through frozen copy of Discriminator.
// Fake images for Discriminator's step and preview images are produced by generator copies without gradients.
//
type Trainer struct {
	cfg       *Config
	objective Objective
	device    *Device
	runID     string
	logger    *log.Logger
	hooks     []func(EpochReport)
	rng       *rand.Rand
	loader    *Loader

	disNet     *DiscriminatorNet
	disInput   *gorgonia.Node
	disTarget  *gorgonia.Node
	disTargets *tensor.Dense
	disCostVal gorgonia.Value
	disVM      gorgonia.VM
	disSolver  gorgonia.Solver
	disSched   *MultiStepSchedule

	genNet     *GeneratorNet
	genInput   *gorgonia.Node
	gan        *GAN
	ganTarget  *gorgonia.Node
	ganTargets *tensor.Dense
	ganCostVal gorgonia.Value
	ganVM      gorgonia.VM
	genSolver  gorgonia.Solver
	genSched   *MultiStepSchedule

	sampler     *GeneratorRunner
	preview     *GeneratorRunner
	fixedLatent *tensor.Dense

	history History
}

// NewTrainer Prepares fresh networks, solvers and schedules for training on dataset
func NewTrainer(cfg *Config, ds Dataset, opts ...TrainerOption) (*Trainer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "Bad configuration")
	}
	if ds.ImageSize() != cfg.ImageSize {
		return nil, fmt.Errorf("Dataset produces %dx%d images, but configuration expects %dx%d", ds.ImageSize(), ds.ImageSize(), cfg.ImageSize, cfg.ImageSize)
	}
	objective, err := ObjectiveByName(cfg.Loss)
	if err != nil {
		return nil, err
	}
	device, err := SelectDevice(cfg)
	if err != nil {
		return nil, errors.Wrap(err, "Can't select device")
	}
	t := &Trainer{
		cfg:       cfg,
		objective: objective,
		device:    device,
		runID:     uuid.New().String(),
		logger:    log.New(os.Stderr, "[trainer] ", log.LstdFlags),
		rng:       rand.New(rand.NewSource(cfg.Seed)),
	}
	for _, opt := range opts {
		opt(t)
	}
	t.loader, err = NewLoader(ds, cfg.BatchSize, cfg.Shuffle, t.rng)
	if err != nil {
		return nil, errors.Wrap(err, "Can't prepare data loader")
	}
	if err := t.defineDiscriminator(); err != nil {
		return nil, err
	}
	if err := t.defineGAN(); err != nil {
		return nil, err
	}
	t.sampler, err = NewGeneratorRunner(cfg, cfg.BatchSize, t.genNet, nil, device.vmOpts()...)
	if err != nil {
		return nil, errors.Wrap(err, "Can't prepare generator for fake samples")
	}
	t.preview, err = NewGeneratorRunner(cfg, cfg.SampleNum, t.genNet, nil, device.vmOpts()...)
	if err != nil {
		return nil, errors.Wrap(err, "Can't prepare generator for preview samples")
	}
	// Same latent batch for every epoch, so sample grids are comparable
	t.fixedLatent = NormRandDense(t.rng, cfg.SampleNum, cfg.LatentSize)
	return t, nil
}

func (t *Trainer) defineDiscriminator() error {
	cfg := t.cfg
	outputActivation, ok := ActivationByName(t.objective.OutputActivation)
	if !ok {
		return fmt.Errorf("Activation '%s' is not supported", t.objective.OutputActivation)
	}
	g := gorgonia.NewGraph()
	t.disNet = DefineDiscriminator(g, cfg, outputActivation, t.rng)
	t.disInput = gorgonia.NewTensor(g, gorgonia.Float64, 4, gorgonia.WithShape(2*cfg.BatchSize, ImageChannels, cfg.ImageSize, cfg.ImageSize), gorgonia.WithName("discriminator_input"))
	if err := t.disNet.Fwd(t.disInput, 2*cfg.BatchSize); err != nil {
		return errors.Wrap(err, "Can't feedforward discriminator")
	}
	t.disTarget = gorgonia.NewMatrix(g, gorgonia.Float64, gorgonia.WithShape(2*cfg.BatchSize, 1), gorgonia.WithName("discriminator_target"))
	cost, err := t.objective.Loss(t.disNet.Out(), t.disTarget)
	if err != nil {
		return errors.Wrap(err, "Can't define discriminator loss")
	}
	gorgonia.WithName("discriminator_loss")(cost)
	if _, err = gorgonia.Grad(cost, t.disNet.Learnables()...); err != nil {
		return errors.Wrap(err, "Can't define discriminator gradients")
	}
	gorgonia.Read(cost, &t.disCostVal)
	t.disTargets = tensor.New(tensor.WithShape(2*cfg.BatchSize, 1), tensor.WithBacking(t.objective.DiscriminatorTargets(cfg.BatchSize, cfg.BatchSize)))
	t.disVM = gorgonia.NewTapeMachine(g, t.device.vmOpts(gorgonia.BindDualValues(t.disNet.Learnables()...))...)
	t.disSolver = gorgonia.NewRMSPropSolver()
	t.disSched = NewMultiStepSchedule(cfg.Discriminator, t.disSolver)
	return nil
}

func (t *Trainer) defineGAN() error {
	cfg := t.cfg
	g := gorgonia.NewGraph()
	t.genNet = DefineGenerator(g, cfg, t.rng)
	t.genInput = gorgonia.NewMatrix(g, gorgonia.Float64, gorgonia.WithShape(cfg.BatchSize, cfg.LatentSize), gorgonia.WithName("generator_input"))
	if err := t.genNet.Fwd(t.genInput, cfg.BatchSize); err != nil {
		return errors.Wrap(err, "Can't feedforward generator")
	}
	var err error
	t.gan, err = NewGAN(g, t.genNet, t.disNet)
	if err != nil {
		return errors.Wrap(err, "Can't define GAN")
	}
	if err := t.gan.Fwd(cfg.BatchSize); err != nil {
		return errors.Wrap(err, "Can't feedforward GAN")
	}
	t.ganTarget = gorgonia.NewMatrix(g, gorgonia.Float64, gorgonia.WithShape(cfg.BatchSize, 1), gorgonia.WithName("gan_target"))
	cost, err := t.objective.Loss(t.gan.Out(), t.ganTarget)
	if err != nil {
		return errors.Wrap(err, "Can't define generator loss")
	}
	gorgonia.WithName("gan_loss")(cost)
	// Gradients are defined for generator only: discriminator part stays frozen
	if _, err = gorgonia.Grad(cost, t.gan.GeneratorLearnables()...); err != nil {
		return errors.Wrap(err, "Can't define generator gradients")
	}
	gorgonia.Read(cost, &t.ganCostVal)
	t.ganTargets = tensor.New(tensor.WithShape(cfg.BatchSize, 1), tensor.WithBacking(t.objective.GeneratorTargets(cfg.BatchSize)))
	t.ganVM = gorgonia.NewTapeMachine(g, t.device.vmOpts(gorgonia.BindDualValues(t.gan.GeneratorLearnables()...))...)
	t.genSolver = gorgonia.NewRMSPropSolver()
	t.genSched = NewMultiStepSchedule(cfg.Generator, t.genSolver)
	return nil
}

// RunID Returns identifier of the training run
func (t *Trainer) RunID() string {
	return t.runID
}

// History Returns copy of per-epoch history
func (t *Trainer) History() *History {
	return &History{
		DiscriminatorLoss: append([]float64{}, t.history.DiscriminatorLoss...),
		GeneratorLoss:     append([]float64{}, t.history.GeneratorLoss...),
		DiscriminatorLR:   append([]float64{}, t.history.DiscriminatorLR...),
		GeneratorLR:       append([]float64{}, t.history.GeneratorLR...),
	}
}

// FixedLatent Returns copy of latent batch used for sample grids
func (t *Trainer) FixedLatent() *tensor.Dense {
	return t.fixedLatent.Clone().(*tensor.Dense)
}

// GeneratorLearnables Returns learnables of the trained generator
func (t *Trainer) GeneratorLearnables() gorgonia.Nodes {
	return t.genNet.Learnables()
}

// DiscriminatorLearnables Returns learnables of the trained discriminator
func (t *Trainer) DiscriminatorLearnables() gorgonia.Nodes {
	return t.disNet.Learnables()
}

// Run Trains networks for configured number of epochs. Any error aborts training; checkpoints of finished epochs stay on disk.
func (t *Trainer) Run() (*History, error) {
	if err := os.MkdirAll(t.cfg.OutputDir, 0755); err != nil {
		return nil, errors.Wrap(err, "Can't create output directory")
	}
	t.logger.Printf("started training run %s", t.runID)
	t.logger.Printf("using device: %s", t.device.Description)
	t.logger.Printf("loss: %s, batches per epoch: %d, d_steps: %d, g_steps: %d", t.objective.Name, t.loader.Len(), t.cfg.DSteps, t.cfg.GSteps)
	for epoch := 1; epoch <= t.cfg.Epochs; epoch++ {
		if err := t.runEpoch(epoch); err != nil {
			return nil, errors.Wrap(err, fmt.Sprintf("Epoch %d failed", epoch))
		}
	}
	t.logger.Printf("training run %s finished", t.runID)
	return t.History(), nil
}

func (t *Trainer) runEpoch(epoch int) error {
	st := time.Now()
	t.loader.Reset()
	dLosses := make([]float64, 0, t.loader.Len())
	gLosses := make([]float64, 0, t.loader.Len())
	for b := 0; ; b++ {
		batch, err := t.loader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return errors.Wrap(err, "Can't load batch")
		}
		dLoss, gLoss, err := t.trainBatch(batch)
		if err != nil {
			return errors.Wrap(err, fmt.Sprintf("Batch %d failed", b))
		}
		dLosses = append(dLosses, dLoss)
		gLosses = append(gLosses, gLoss)
	}

	t.disSched.Step()
	t.genSched.Step()

	report := EpochReport{
		Epoch:                 epoch,
		DiscriminatorLoss:     dLosses[len(dLosses)-1],
		GeneratorLoss:         gLosses[len(gLosses)-1],
		MeanDiscriminatorLoss: stat.Mean(dLosses, nil),
		MeanGeneratorLoss:     stat.Mean(gLosses, nil),
		DiscriminatorLR:       t.disSched.LR(),
		GeneratorLR:           t.genSched.LR(),
	}
	t.history.DiscriminatorLoss = append(t.history.DiscriminatorLoss, report.DiscriminatorLoss)
	t.history.GeneratorLoss = append(t.history.GeneratorLoss, report.GeneratorLoss)
	t.history.DiscriminatorLR = append(t.history.DiscriminatorLR, report.DiscriminatorLR)
	t.history.GeneratorLR = append(t.history.GeneratorLR, report.GeneratorLR)

	if err := PlotLosses(t.history.GeneratorLoss, t.history.DiscriminatorLoss, filepath.Join(t.cfg.OutputDir, LossPlotName)); err != nil {
		return errors.Wrap(err, "Can't save loss plot")
	}

	samples, err := t.previewSamples()
	if err != nil {
		return err
	}
	if err := SaveSampleGrid(samples, filepath.Join(t.cfg.OutputDir, SampleGridName(epoch))); err != nil {
		return errors.Wrap(err, "Can't save sample grid")
	}

	if err := t.saveCheckpoint(epoch); err != nil {
		return err
	}

	report.SampleLatent = t.FixedLatent()
	report.Samples = samples
	report.Took = time.Since(st)
	t.logger.Printf("Epoch %d/%d [%v]", epoch, t.cfg.Epochs, report.Took)
	t.logger.Printf("\tDiscriminator loss: %f (mean %f), learning rate: %g", report.DiscriminatorLoss, report.MeanDiscriminatorLoss, report.DiscriminatorLR)
	t.logger.Printf("\tGenerator loss: %f (mean %f), learning rate: %g", report.GeneratorLoss, report.MeanGeneratorLoss, report.GeneratorLR)
	for _, hook := range t.hooks {
		hook(report)
	}
	return nil
}

// trainBatch Does DSteps discriminator updates followed by GSteps generator updates. Returns losses of the last updates.
func (t *Trainer) trainBatch(batch *Batch) (float64, float64, error) {
	var dLoss, gLoss float64
	var err error
	if err = t.sampler.Sync(t.genNet.Learnables()); err != nil {
		return 0, 0, errors.Wrap(err, "Can't sync generator for fake samples")
	}
	for i := 0; i < t.cfg.DSteps; i++ {
		dLoss, err = t.discriminatorStep(batch.Images)
		if err != nil {
			return 0, 0, errors.Wrap(err, "Discriminator step failed")
		}
	}
	if err = t.gan.SyncDiscriminator(); err != nil {
		return 0, 0, err
	}
	for i := 0; i < t.cfg.GSteps; i++ {
		gLoss, err = t.generatorStep()
		if err != nil {
			return 0, 0, errors.Wrap(err, "Generator step failed")
		}
	}
	return dLoss, gLoss, nil
}

func (t *Trainer) discriminatorStep(real *tensor.Dense) (float64, error) {
	latent := NormRandDense(t.rng, t.cfg.BatchSize, t.cfg.LatentSize)
	fake, err := t.sampler.Run(latent)
	if err != nil {
		return 0, errors.Wrap(err, "Can't generate fake samples")
	}
	allSamples, err := tensor.Concat(0, real, fake)
	if err != nil {
		return 0, errors.Wrap(err, "Can't concat real and fake samples")
	}
	if err = gorgonia.Let(t.disInput, allSamples); err != nil {
		return 0, errors.Wrap(err, "Can't init discriminator input value")
	}
	if err = gorgonia.Let(t.disTarget, t.disTargets); err != nil {
		return 0, errors.Wrap(err, "Can't init discriminator target value")
	}
	defer t.disVM.Reset()
	if err = t.disVM.RunAll(); err != nil {
		return 0, errors.Wrap(err, "Can't run discriminator VM")
	}
	if err = t.disSolver.Step(gorgonia.NodesToValueGrads(t.disNet.Learnables())); err != nil {
		return 0, errors.Wrap(err, "Can't do discriminator solver step")
	}
	if t.objective.ClipWeights {
		if err = ClipValues(t.disNet.Learnables(), t.cfg.ClipValue); err != nil {
			return 0, errors.Wrap(err, "Can't clip discriminator weights")
		}
	}
	return scalarValue(t.disCostVal)
}

func (t *Trainer) generatorStep() (float64, error) {
	latent := NormRandDense(t.rng, t.cfg.BatchSize, t.cfg.LatentSize)
	if err := gorgonia.Let(t.genInput, latent); err != nil {
		return 0, errors.Wrap(err, "Can't init generator input value")
	}
	if err := gorgonia.Let(t.ganTarget, t.ganTargets); err != nil {
		return 0, errors.Wrap(err, "Can't init GAN target value")
	}
	defer t.ganVM.Reset()
	if err := t.ganVM.RunAll(); err != nil {
		return 0, errors.Wrap(err, "Can't run GAN VM")
	}
	if err := t.genSolver.Step(gorgonia.NodesToValueGrads(t.gan.GeneratorLearnables())); err != nil {
		return 0, errors.Wrap(err, "Can't do generator solver step")
	}
	return scalarValue(t.ganCostVal)
}

func (t *Trainer) previewSamples() (*tensor.Dense, error) {
	if err := t.preview.Sync(t.genNet.Learnables()); err != nil {
		return nil, errors.Wrap(err, "Can't sync generator for preview samples")
	}
	samples, err := t.preview.Run(t.fixedLatent)
	if err != nil {
		return nil, errors.Wrap(err, "Can't generate preview samples")
	}
	return samples, nil
}

func (t *Trainer) saveCheckpoint(epoch int) error {
	ckpt, err := NewCheckpoint(t.runID, epoch, t.genNet.Learnables())
	if err != nil {
		return errors.Wrap(err, "Can't capture generator checkpoint")
	}
	if err := SaveCheckpoint(ckpt, t.cfg.ModelPath()); err != nil {
		return errors.Wrap(err, "Can't save generator checkpoint")
	}
	if t.cfg.KeepEpochCheckpoints {
		if err := SaveCheckpoint(ckpt, fmt.Sprintf("%s.E%d", t.cfg.ModelPath(), epoch)); err != nil {
			return errors.Wrap(err, "Can't save epoch checkpoint")
		}
	}
	return nil
}

// Close Releases VMs resources
func (t *Trainer) Close() error {
	var firstErr error
	for _, vm := range []gorgonia.VM{t.disVM, t.ganVM, t.sampler.vm, t.preview.vm} {
		if err := vm.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func scalarValue(v gorgonia.Value) (float64, error) {
	if v == nil {
		return 0, fmt.Errorf("Value has not been computed")
	}
	switch d := v.Data().(type) {
	case float64:
		return d, nil
	case []float64:
		if len(d) == 1 {
			return d[0], nil
		}
		return 0, fmt.Errorf("Expected scalar, but got %d values", len(d))
	default:
		return 0, fmt.Errorf("Expected float64 scalar, but got %T", d)
	}
}
