package lanesim

import (
	"errors"
	"reflect"
	"sync"
	"testing"
)

// recorder logs the phases it is ticked in and copies a LockStep value forward
type recorder struct {
	mu     sync.Mutex
	phases []int
	value  *LockStep[int]
	fail   error
}

func (r *recorder) Tick(phase int) error {
	r.mu.Lock()
	r.phases = append(r.phases, phase)
	r.mu.Unlock()
	if r.fail != nil {
		return r.fail
	}
	if phase == DefaultPhase {
		*r.value.Write() = r.value.Read() + 1
	}
	return nil
}

func TestEpochSwapsAfterTick(t *testing.T) {
	ec := CreateEpochCtrl()
	ec.RegisterPhase(5)
	ec.RegisterPhase(5)
	r := &recorder{value: CreateLockStep(ec, 10)}
	ec.Register(r)
	ec.Register(r)

	if ec.Now() == ec.Then() {
		t.Fatalf("now and then share index %d", ec.Now())
	}
	now := ec.Now()
	if err := ec.Tick(); err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if ec.Now() == now || ec.Ticks() != 1 {
		t.Fatalf("epochs not swapped: now %d ticks %d", ec.Now(), ec.Ticks())
	}
	if got := r.value.Read(); got != 11 {
		t.Fatalf("value = %d, want 11", got)
	}
	if !reflect.DeepEqual(r.phases, []int{DefaultPhase, 5}) {
		t.Fatalf("phases ticked = %v, want [0 5]", r.phases)
	}
	if ec.InTick() {
		t.Fatalf("still in tick after Tick returned")
	}
}

func TestLockStepHidesWritesUntilSwap(t *testing.T) {
	ec := CreateEpochCtrl()
	ls := CreateLockStep(ec, "old")
	*ls.Write() = "new"
	if got := ls.Read(); got != "old" {
		t.Fatalf("Read before swap = %q, want old", got)
	}
	ec.swap()
	if got := ls.Read(); got != "new" {
		t.Fatalf("Read after swap = %q, want new", got)
	}
	ls.Initialize("both")
	ec.swap()
	if got := ls.Read(); got != "both" {
		t.Fatalf("Read after Initialize = %q, want both", got)
	}
}

func TestEpochFailedTickDoesNotSwap(t *testing.T) {
	ec := CreateEpochCtrl()
	boom := errors.New("boom")
	r := &recorder{value: CreateLockStep(ec, 0), fail: boom}
	ec.Register(r)

	now := ec.Now()
	if err := ec.Tick(); !errors.Is(err, boom) {
		t.Fatalf("Tick error = %v, want boom", err)
	}
	if ec.Now() != now || ec.Ticks() != 0 {
		t.Fatalf("failed tick swapped epochs or counted")
	}
}

func TestEpochConcurrentParticipants(t *testing.T) {
	ec := CreateEpochCtrl()
	ec.Workers = 3
	participants := make([]*recorder, 8)
	for idx := range participants {
		participants[idx] = &recorder{value: CreateLockStep(ec, idx)}
		ec.Register(participants[idx])
	}
	for tick := 0; tick < 4; tick++ {
		if err := ec.Tick(); err != nil {
			t.Fatalf("Tick: %v", err)
		}
	}
	for idx, r := range participants {
		if got := r.value.Read(); got != idx+4 {
			t.Fatalf("participant %d value = %d, want %d", idx, got, idx+4)
		}
	}

	ec.Unregister(participants[0])
	ec.UnregisterPhase(DefaultPhase)
	if err := ec.Tick(); err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if len(participants[0].phases) != 4 || len(ec.Phases()) != 0 {
		t.Fatalf("unregistered participant ticked %d times, phases %v", len(participants[0].phases), ec.Phases())
	}
}
