package imagegan

import (
	"io"
	"log"
	"math"
	"path/filepath"
	"strings"
	"testing"

	"gorgonia.org/gorgonia"
)

func newTinyTrainer(t *testing.T, cfg *Config, opts ...TrainerOption) *Trainer {
	t.Helper()
	writeImages(t, cfg.DatasetDir, 5, 10, 10)
	ds, err := NewImageDataset(cfg.DatasetDir, cfg.ImageSize)
	if err != nil {
		t.Fatal(err)
	}
	opts = append([]TrainerOption{WithLogger(log.New(io.Discard, "", 0))}, opts...)
	trainer, err := NewTrainer(cfg, ds, opts...)
	if err != nil {
		t.Fatal(err)
	}
	return trainer
}

func TestTrainerRun(t *testing.T) {
	for _, loss := range []string{LossBCE, LossLeastSquare, LossWasserstein} {
		t.Run(loss, func(t *testing.T) {
			cfg := tinyConfig(t)
			cfg.Loss = loss
			cfg.KeepEpochCheckpoints = true

			var reports []EpochReport
			trainer := newTinyTrainer(t, cfg, WithEpochHook(func(r EpochReport) {
				reports = append(reports, r)
			}))
			defer trainer.Close()

			history, err := trainer.Run()
			if err != nil {
				t.Fatal(err)
			}
			if len(history.GeneratorLoss) != cfg.Epochs || len(history.DiscriminatorLoss) != cfg.Epochs {
				t.Fatalf("History has %d/%d entries, want %d", len(history.GeneratorLoss), len(history.DiscriminatorLoss), cfg.Epochs)
			}
			for i := 0; i < cfg.Epochs; i++ {
				if math.IsNaN(history.GeneratorLoss[i]) || math.IsNaN(history.DiscriminatorLoss[i]) {
					t.Errorf("Epoch %d loss is NaN", i+1)
				}
			}
			// Milestone at epoch 1 halves learning rate
			if history.GeneratorLR[0] != 0.0005 || history.DiscriminatorLR[1] != 0.0005 {
				t.Errorf("Learning rates = %v / %v, want 0.0005 after milestone", history.GeneratorLR, history.DiscriminatorLR)
			}

			fileExists(t, filepath.Join(cfg.OutputDir, LossPlotName))
			fileExists(t, filepath.Join(cfg.OutputDir, SampleGridName(1)))
			fileExists(t, filepath.Join(cfg.OutputDir, SampleGridName(2)))
			fileExists(t, cfg.ModelPath())
			fileExists(t, cfg.ModelPath()+".E1")

			ckpt, err := LoadCheckpoint(cfg.ModelPath())
			if err != nil {
				t.Fatal(err)
			}
			if ckpt.Epoch != cfg.Epochs || ckpt.RunID != trainer.RunID() {
				t.Errorf("Checkpoint metadata = (%s, %d), want (%s, %d)", ckpt.RunID, ckpt.Epoch, trainer.RunID(), cfg.Epochs)
			}

			if len(reports) != cfg.Epochs {
				t.Fatalf("Hook was called %d times, want %d", len(reports), cfg.Epochs)
			}
			first := reports[0].SampleLatent.Data().([]float64)
			second := reports[1].SampleLatent.Data().([]float64)
			for i := range first {
				if first[i] != second[i] {
					t.Fatalf("Fixed latent batch changed between epochs")
				}
			}
			if reports[1].Samples.Shape()[0] != cfg.SampleNum {
				t.Errorf("Got %d preview samples, want %d", reports[1].Samples.Shape()[0], cfg.SampleNum)
			}
		})
	}
}

func TestTrainerWassersteinClipsWeights(t *testing.T) {
	cfg := tinyConfig(t)
	cfg.Loss = LossWasserstein
	cfg.ClipValue = 0.005
	cfg.Epochs = 1
	trainer := newTinyTrainer(t, cfg)
	defer trainer.Close()
	if _, err := trainer.Run(); err != nil {
		t.Fatal(err)
	}
	for _, n := range trainer.DiscriminatorLearnables() {
		for _, v := range n.Value().Data().([]float64) {
			if math.Abs(v) > cfg.ClipValue {
				t.Fatalf("Weight %s has value %v outside of [-%v;%v]", n.Name(), v, cfg.ClipValue, cfg.ClipValue)
			}
		}
	}
}

func TestNewTrainerErrors(t *testing.T) {
	cfg := tinyConfig(t)
	writeImages(t, cfg.DatasetDir, 1, 8, 8)
	ds, err := NewImageDataset(cfg.DatasetDir, cfg.ImageSize)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := NewTrainer(cfg, ds); err == nil {
		t.Errorf("Dataset smaller than batch should fail")
	}
	other, err := NewImageDataset(cfg.DatasetDir, 16)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := NewTrainer(cfg, other); err == nil {
		t.Errorf("Image size mismatch should fail")
	}
}

func snapshotValues(nodes gorgonia.Nodes) [][]float64 {
	values := make([][]float64, len(nodes))
	for i, n := range nodes {
		values[i] = append([]float64{}, n.Value().Data().([]float64)...)
	}
	return values
}

func countChanged(before [][]float64, nodes gorgonia.Nodes) int {
	changed := 0
	for i, n := range nodes {
		for j, v := range n.Value().Data().([]float64) {
			if v != before[i][j] {
				changed++
			}
		}
	}
	return changed
}

func TestTrainerStepsUpdateOnlyOwnNetwork(t *testing.T) {
	for _, loss := range []string{LossBCE, LossWasserstein} {
		t.Run(loss, func(t *testing.T) {
			cfg := tinyConfig(t)
			cfg.Loss = loss
			trainer := newTinyTrainer(t, cfg)
			defer trainer.Close()

			batch, err := trainer.loader.Next()
			if err != nil {
				t.Fatal(err)
			}
			if err := trainer.sampler.Sync(trainer.GeneratorLearnables()); err != nil {
				t.Fatal(err)
			}
			genBefore := snapshotValues(trainer.GeneratorLearnables())
			disBefore := snapshotValues(trainer.DiscriminatorLearnables())
			if _, err := trainer.discriminatorStep(batch.Images); err != nil {
				t.Fatal(err)
			}
			if n := countChanged(genBefore, trainer.GeneratorLearnables()); n != 0 {
				t.Errorf("Discriminator step changed %d generator values", n)
			}
			if countChanged(disBefore, trainer.DiscriminatorLearnables()) == 0 {
				t.Errorf("Discriminator step did not change discriminator")
			}

			if err := trainer.gan.SyncDiscriminator(); err != nil {
				t.Fatal(err)
			}
			frozen := trainer.gan.modifiedDiscriminator.Learnables()
			for _, n := range frozen {
				if !strings.HasSuffix(n.Name(), "_gan") {
					t.Errorf("Frozen discriminator node '%s' should live on GAN graph", n.Name())
				}
			}
			genBefore = snapshotValues(trainer.GeneratorLearnables())
			disBefore = snapshotValues(trainer.DiscriminatorLearnables())
			frozenBefore := snapshotValues(frozen)
			if _, err := trainer.generatorStep(); err != nil {
				t.Fatal(err)
			}
			if n := countChanged(disBefore, trainer.DiscriminatorLearnables()); n != 0 {
				t.Errorf("Generator step changed %d discriminator values", n)
			}
			if n := countChanged(frozenBefore, frozen); n != 0 {
				t.Errorf("Generator step changed %d values of frozen discriminator copy", n)
			}
			if countChanged(genBefore, trainer.GeneratorLearnables()) == 0 {
				t.Errorf("Generator step did not change generator")
			}
		})
	}
}
