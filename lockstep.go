package lanesim

// LockStep holds two copies of a value, one per epoch. Reads are served
// from the epoch the controller calls 'now', writes land in the one it
// calls 'then'. Nothing survives a tick boundary except through a LockStep.
type LockStep[T any] struct {
	vals [2]T
	ctrl *EpochCtrl
}

// CreateLockStep is a constructor, both slots start out equal to value
func CreateLockStep[T any](ctrl *EpochCtrl, value T) *LockStep[T] {
	ls := new(LockStep[T])
	ls.ctrl = ctrl
	ls.Initialize(value)
	return ls
}

// Initialize sets both slots to value. Only legal at construction or
// between ticks.
func (ls *LockStep[T]) Initialize(value T) {
	ls.vals[0] = value
	ls.vals[1] = value
}

// Read returns the value of the current epoch. Values holding slices or
// maps share storage with the slot and must not be modified by the caller.
func (ls *LockStep[T]) Read() T {
	return ls.vals[ls.ctrl.Now()]
}

// Write gives access to the slot of the next epoch
func (ls *LockStep[T]) Write() *T {
	return &ls.vals[ls.ctrl.Then()]
}
