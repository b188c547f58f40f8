package lanesim

// epoch.go holds the controller that advances the simulation one tick
// at a time. A tick is a sequence of phases; in every phase each
// registered participant is called once. When all phases have run the
// controller swaps the indices of the 'now' and 'then' epochs, so that
// everything written into the 'then' slot of a LockStep value during the
// tick becomes visible as 'now'.

import (
	"errors"
	"sync"

	"golang.org/x/exp/slices"
)

// DefaultPhase is registered by every controller. Participants that do not
// distinguish phases still get ticked once per tick through it.
const DefaultPhase = 0

// Participant is anything the EpochCtrl ticks.
type Participant interface {
	Tick(phase int) error
}

// EpochCtrl owns the (now, then) epoch index pair, the ordered list of
// phases, and the participants that are ticked in each of them.
type EpochCtrl struct {
	now, then    int
	phases       []int
	participants []Participant

	// Workers > 1 lets the participants of one phase run concurrently.
	// Phases themselves always run one after the other.
	Workers int

	inTick bool
	ticks  int
}

// CreateEpochCtrl is a constructor
func CreateEpochCtrl() *EpochCtrl {
	ec := new(EpochCtrl)
	ec.now = 0
	ec.then = 1
	ec.phases = make([]int, 0)
	ec.participants = make([]Participant, 0)
	ec.Workers = 1
	ec.RegisterPhase(DefaultPhase)
	return ec
}

// Now returns the index of the epoch everyone reads from
func (ec *EpochCtrl) Now() int {
	return ec.now
}

// Then returns the index of the epoch everyone writes into
func (ec *EpochCtrl) Then() int {
	return ec.then
}

// Ticks reports the number of completed ticks
func (ec *EpochCtrl) Ticks() int {
	return ec.ticks
}

// InTick is true while Tick is executing phases
func (ec *EpochCtrl) InTick() bool {
	return ec.inTick
}

// RegisterPhase appends a phase id to the list run on every tick.
// Registering an id already present has no effect.
func (ec *EpochCtrl) RegisterPhase(phase int) {
	if slices.Contains(ec.phases, phase) {
		return
	}
	ec.phases = append(ec.phases, phase)
}

// UnregisterPhase removes a phase id from the tick sequence
func (ec *EpochCtrl) UnregisterPhase(phase int) {
	idx := slices.Index(ec.phases, phase)
	if idx < 0 {
		return
	}
	ec.phases = slices.Delete(ec.phases, idx, idx+1)
}

// Phases returns a copy of the registered phase ids, in run order
func (ec *EpochCtrl) Phases() []int {
	return slices.Clone(ec.phases)
}

// Register adds a participant. Participants are ticked in registration order.
func (ec *EpochCtrl) Register(p Participant) {
	if slices.Contains(ec.participants, p) {
		return
	}
	ec.participants = append(ec.participants, p)
}

// Unregister removes a participant
func (ec *EpochCtrl) Unregister(p Participant) {
	idx := slices.Index(ec.participants, p)
	if idx < 0 {
		return
	}
	ec.participants = slices.Delete(ec.participants, idx, idx+1)
}

// Tick runs every phase over every participant and then swaps the epochs.
// The first error raised by a participant aborts the tick; the epochs are
// not swapped in that case and the simulation state is undefined.
func (ec *EpochCtrl) Tick() error {
	ec.inTick = true
	defer func() { ec.inTick = false }()

	for _, phase := range ec.phases {
		var err error
		if ec.Workers > 1 && len(ec.participants) > 1 {
			err = ec.tickConcurrent(phase)
		} else {
			for _, p := range ec.participants {
				if err = p.Tick(phase); err != nil {
					break
				}
			}
		}
		if err != nil {
			return err
		}
	}

	ec.swap()
	ec.ticks += 1
	return nil
}

// tickConcurrent calls Tick(phase) on every participant using at most
// ec.Workers goroutines, and waits for all of them before returning
func (ec *EpochCtrl) tickConcurrent(phase int) error {
	var wg sync.WaitGroup
	sem := make(chan struct{}, ec.Workers)
	errs := make([]error, len(ec.participants))

	for idx, p := range ec.participants {
		wg.Add(1)
		sem <- struct{}{}
		go func(idx int, p Participant) {
			defer wg.Done()
			defer func() { <-sem }()
			errs[idx] = p.Tick(phase)
		}(idx, p)
	}
	wg.Wait()

	return errors.Join(errs...)
}

func (ec *EpochCtrl) swap() {
	ec.now, ec.then = ec.then, ec.now
}
