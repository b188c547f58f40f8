package lanesim

// packet.go holds the moving entity of the simulation. A Packet's
// identity, preferred speed and color never change; everything else is
// held in a LockStep so that every segment reads the same snapshot while
// the next one is being computed.

import (
	"golang.org/x/exp/slices"
)

// NoPacket marks the absence of a packet id, e.g. in BlockedBy
const NoPacket = -1

// SpeedAction is the per-tick decision for a packet. The values are
// ordered from least to most permissive, so that combining the outcome of
// several searches is a matter of taking the minimum.
type SpeedAction int

const (
	Brake SpeedAction = iota
	Maintain
	Increase
)

var actionToStr = map[SpeedAction]string{Brake: "brake", Maintain: "maintain", Increase: "increase"}

func (sa SpeedAction) String() string {
	str, present := actionToStr[sa]
	if !present {
		return "unknown"
	}
	return str
}

// pcktState is the part of a packet that changes from tick to tick
type pcktState struct {
	Speed  int
	Offset int // distance from the start of Seg
	Seg    int // index of the segment the packet occupies

	Action    SpeedAction
	BlockedBy int  // packet waited for, or NoPacket
	Physical  bool // the wait is due to proximity on the same path
	Waited    int  // consecutive ticks spent in Action

	// packets this one has granted right of way to, to break a gridlock
	Yield []int

	// upcoming segments, the head is Seg once the route is refreshed
	Route []int
}

// clone returns a copy of the state whose slices can be modified freely
func (st pcktState) clone() pcktState {
	cp := st
	cp.Yield = slices.Clone(st.Yield)
	cp.Route = slices.Clone(st.Route)
	return cp
}

// yields is true if id is in the yield-override set
func (st pcktState) yields(id int) bool {
	return slices.Contains(st.Yield, id)
}

// Packet is a simulated vehicle. The Network owns every Packet; segments
// refer to them by ID only.
type Packet struct {
	ID        int
	PrefSpeed int
	Color     [3]float64

	state *LockStep[pcktState]
}

// createPacket is a constructor
func createPacket(ctrl *EpochCtrl, id, prefSpeed int, color [3]float64, st pcktState) *Packet {
	pckt := new(Packet)
	pckt.ID = id
	pckt.PrefSpeed = prefSpeed
	pckt.Color = color
	pckt.state = CreateLockStep(ctrl, st)
	return pckt
}

// now returns the state of the current epoch. The slices it holds are shared
// with the epoch slot and must not be modified.
func (pckt *Packet) now() pcktState {
	return pckt.state.Read()
}

// setNext records the state of the next epoch
func (pckt *Packet) setNext(st pcktState) {
	*pckt.state.Write() = st
}

// PacketSpec describes a packet to be placed on the network with Spawn
type PacketSpec struct {
	Segment   int // index of the segment to place the packet on
	Offset    int
	Speed     int
	PrefSpeed int
	Color     [3]float64

	// Route optionally fixes the first segments to be visited. It must start
	// with Segment; when it runs short it is extended by random choices.
	Route []int
}
