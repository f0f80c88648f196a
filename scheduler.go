package imagegan

import (
	"sort"

	"gorgonia.org/gorgonia"
)

// MultiStepSchedule Piecewise constant learning rate: it is multiplied by gamma once the number of finished epochs reaches each milestone.
type MultiStepSchedule struct {
	milestones []int
	gamma      float64
	epoch      int
	lr         float64
	solver     gorgonia.Solver
}

// NewMultiStepSchedule Creates schedule and applies initial learning rate to solver (if provided)
func NewMultiStepSchedule(s NetworkSchedule, solver gorgonia.Solver) *MultiStepSchedule {
	milestones := append([]int{}, s.Milestones...)
	sort.Ints(milestones)
	sched := &MultiStepSchedule{
		milestones: milestones,
		gamma:      s.Gamma,
		lr:         s.LearningRate,
		solver:     solver,
	}
	sched.apply()
	return sched
}

// Step Should be called once after every epoch
func (sched *MultiStepSchedule) Step() {
	sched.epoch++
	for _, m := range sched.milestones {
		if m == sched.epoch {
			sched.lr *= sched.gamma
		}
	}
	sched.apply()
}

// LR Returns current learning rate
func (sched *MultiStepSchedule) LR() float64 {
	return sched.lr
}

// Epoch Returns number of finished epochs
func (sched *MultiStepSchedule) Epoch() int {
	return sched.epoch
}

func (sched *MultiStepSchedule) apply() {
	if sched.solver == nil {
		return
	}
	gorgonia.WithLearnRate(sched.lr)(sched.solver)
}
