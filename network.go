package lanesim

// network.go has the registry that owns the segments and packets of one
// simulation, assigns packet ids, and puts new packets on the network

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/iti/evt/vrtime"
	"github.com/iti/lanesim/internal/logging"
	"github.com/iti/rngstream"
	"golang.org/x/exp/slices"
	"gonum.org/v1/gonum/graph/path"
	"gonum.org/v1/gonum/graph/simple"
)

// MetricsRecorder receives counts of what happens during ticks. Calls may come
// from several goroutines at once when segments are ticked concurrently.
type MetricsRecorder interface {
	ObserveAction(action string)
	ObserveGridlockGrant()
	ObserveTransfer()
	ObserveTick(packets int, elapsed time.Duration)
}

type noopRecorder struct{}

func (noopRecorder) ObserveAction(string)           {}
func (noopRecorder) ObserveGridlockGrant()          {}
func (noopRecorder) ObserveTransfer()               {}
func (noopRecorder) ObserveTick(int, time.Duration) {}

// Network is the registry of one simulation: segments are created once and
// never removed, packets are held by id.
type Network struct {
	Name   string
	Params SimParams

	ctrl        *EpochCtrl
	segments    []*Segment
	idxByNumber map[int]int
	packets     map[int]*Packet

	nextID  int
	created int

	// segments packets are injected into besides the ones holding packets
	entries []int

	// set when Validate has passed and nothing changed since
	checked bool

	// topology as a graph for reachability and routing, built on demand
	segGraph *simple.WeightedDirectedGraph
	cachedSP map[int]path.Shortest

	rng      *rngstream.RngStream
	logger   logging.Logger
	metrics  MetricsRecorder
	traceMgr *TraceManager
}

// CreateNetwork is a constructor
func CreateNetwork(name string, params SimParams) (*Network, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	net := new(Network)
	net.Name = name
	net.Params = params
	net.ctrl = CreateEpochCtrl()
	net.ctrl.RegisterPhase(SettlePhase)
	net.ctrl.Workers = params.Workers
	net.segments = make([]*Segment, 0)
	net.idxByNumber = make(map[int]int)
	net.packets = make(map[int]*Packet)
	net.entries = make([]int, 0)
	net.rng = rngstream.New(name)
	net.logger = logging.Noop()
	net.metrics = noopRecorder{}
	net.traceMgr = CreateTraceManager(name, false)
	return net, nil
}

// SetLogger replaces the logger, which by default drops everything
func (net *Network) SetLogger(logger logging.Logger) {
	if logger == nil {
		logger = logging.Noop()
	}
	net.logger = logger.With(logging.String("network", net.Name))
}

// SetMetrics replaces the metrics recorder
func (net *Network) SetMetrics(mr MetricsRecorder) {
	if mr == nil {
		mr = noopRecorder{}
	}
	net.metrics = mr
}

// SetTraceManager replaces the trace manager, which by default is inactive
func (net *Network) SetTraceManager(tm *TraceManager) {
	net.traceMgr = tm
	for _, pckt := range net.packets {
		tm.AddName(pckt.ID, fmt.Sprintf("packet-%d", pckt.ID), "packet")
	}
}

// TraceManager returns the trace manager in use
func (net *Network) TraceManager() *TraceManager {
	return net.traceMgr
}

// Epoch gives access to the controller driving the network, to register
// further participants
func (net *Network) Epoch() *EpochCtrl {
	return net.ctrl
}

// Ticks returns the number of completed ticks
func (net *Network) Ticks() int {
	return net.ctrl.Ticks()
}

// SegmentLength converts the distance between two points into a segment length
func (net *Network) SegmentLength(begin, end Coord) int {
	dist := math.Sqrt(math.Pow(end.X-begin.X, 2) + math.Pow(end.Y-begin.Y, 2) + math.Pow(end.Z-begin.Z, 2))
	return max(1, int(net.Params.LengthScale*dist))
}

// AddSegment creates a segment. A length that is not positive is computed
// from the endpoints.
func (net *Network) AddSegment(number int, begin, end Coord, length int) (*Segment, error) {
	if net.ctrl.InTick() {
		return nil, ErrInTick
	}
	if _, present := net.idxByNumber[number]; present {
		return nil, fmt.Errorf("segment number %d used twice", number)
	}
	if length <= 0 {
		length = net.SegmentLength(begin, end)
	}
	idx := len(net.segments)
	rng := rngstream.New(fmt.Sprintf("%s-segment-%d", net.Name, number))
	seg := createSegment(net, idx, number, begin, end, length, rng)
	net.segments = append(net.segments, seg)
	net.idxByNumber[number] = idx
	net.ctrl.Register(seg)
	net.topologyChanged()
	return seg, nil
}

// lookup maps a segment number onto the segment
func (net *Network) lookup(number int) (*Segment, error) {
	idx, present := net.idxByNumber[number]
	if !present {
		return nil, fmt.Errorf("segment number %d: %w", number, ErrUnknownSegment)
	}
	return net.segments[idx], nil
}

// link applies one of the link methods of Segment to a pair of segment numbers
func (net *Network) link(from, to int, how func(*Segment, *Segment)) error {
	if net.ctrl.InTick() {
		return ErrInTick
	}
	fromSeg, err := net.lookup(from)
	if err != nil {
		return err
	}
	toSeg, err := net.lookup(to)
	if err != nil {
		return err
	}
	how(fromSeg, toSeg)
	net.topologyChanged()
	return nil
}

// Connect makes the segment numbered to a successor of the one numbered from
func (net *Network) Connect(from, to int) error {
	return net.link(from, to, (*Segment).addSucc)
}

// AddMerge records that traffic of seg merges with that of other
func (net *Network) AddMerge(seg, other int) error {
	return net.link(seg, other, (*Segment).addCoop)
}

// AddYield records that traffic of seg yields to that of other
func (net *Network) AddYield(seg, other int) error {
	return net.link(seg, other, (*Segment).addIntf)
}

// AddEntry marks a segment packets will be injected into, so that
// validation covers everything reachable from it
func (net *Network) AddEntry(idx int) error {
	if idx < 0 || idx >= len(net.segments) {
		return fmt.Errorf("segment index %d: %w", idx, ErrUnknownSegment)
	}
	if !slices.Contains(net.entries, idx) {
		net.entries = append(net.entries, idx)
		net.checked = false
	}
	return nil
}

func (net *Network) topologyChanged() {
	net.checked = false
	net.segGraph = nil
	net.cachedSP = nil
}

// NumSegments returns the number of segments
func (net *Network) NumSegments() int {
	return len(net.segments)
}

// Segment returns the segment with index idx, or nil
func (net *Network) Segment(idx int) *Segment {
	if idx < 0 || idx >= len(net.segments) {
		return nil
	}
	return net.segments[idx]
}

// SegmentByNumber returns the segment with the description id number
func (net *Network) SegmentByNumber(number int) (*Segment, bool) {
	seg, err := net.lookup(number)
	return seg, err == nil
}

// allocID returns the next id not in use, wrapping at MaxPacketID
func (net *Network) allocID() (int, error) {
	if len(net.packets) >= net.Params.MaxPacketID {
		return 0, ErrNoIDs
	}
	for {
		id := net.nextID
		net.nextID = (net.nextID + 1) % net.Params.MaxPacketID
		if _, present := net.packets[id]; !present {
			return id, nil
		}
	}
}

// extendRoute appends randomly chosen successors until the route has the
// lookahead length, or ends at a segment without successors
func (net *Network) extendRoute(route []int, rng RandSource) []int {
	for len(route) < net.Params.RouteLookahead {
		succ := net.segments[route[len(route)-1]].Succ
		if len(succ) == 0 {
			break
		}
		route = append(route, succ[rng.RandInt(0, len(succ)-1)])
	}
	return route
}

// Spawn places a packet on the network and returns its id. Packets may only
// be placed between ticks, at least a vehicle length away from the packets
// already on the segment and beyond where the packets behind it, on the
// segment or coming from a predecessor, can brake to a halt.
func (net *Network) Spawn(ps PacketSpec) (int, error) {
	if net.ctrl.InTick() {
		return NoPacket, ErrInTick
	}
	seg := net.Segment(ps.Segment)
	if seg == nil {
		return NoPacket, fmt.Errorf("segment index %d: %w", ps.Segment, ErrUnknownSegment)
	}
	if ps.Offset < 0 || ps.Offset >= seg.Length {
		return NoPacket, fmt.Errorf("offset %d outside segment %d of length %d: %w",
			ps.Offset, seg.Number, seg.Length, ErrNoRoom)
	}
	if !seg.hasRoom(ps.Offset) {
		return NoPacket, fmt.Errorf("offset %d on segment %d: %w", ps.Offset, seg.Number, ErrNoRoom)
	}

	route := []int{seg.Index}
	if len(ps.Route) > 0 {
		if ps.Route[0] != seg.Index {
			return NoPacket, fmt.Errorf("route starts at %d, packet is placed on %d", ps.Route[0], seg.Index)
		}
		for step := 1; step < len(ps.Route); step++ {
			prev := net.Segment(ps.Route[step-1])
			if net.Segment(ps.Route[step]) == nil || !slices.Contains(prev.Succ, ps.Route[step]) {
				return NoPacket, fmt.Errorf("route step %d to %d: %w", step, ps.Route[step], ErrUnknownSegment)
			}
		}
		route = slices.Clone(ps.Route)
	}
	route = net.extendRoute(route, seg.rng)

	prefSpeed := ps.PrefSpeed
	if prefSpeed <= 0 {
		prefSpeed = net.Params.NominalSpeed
	}
	id, err := net.allocID()
	if err != nil {
		return NoPacket, err
	}

	st := pcktState{Speed: max(0, ps.Speed), Offset: ps.Offset, Seg: seg.Index, Action: Maintain,
		BlockedBy: NoPacket, Yield: []int{}, Route: route}
	pckt := createPacket(net.ctrl, id, prefSpeed, ps.Color, st)
	seg.insert(id, ps.Offset)
	net.packets[id] = pckt
	net.created += 1
	net.checked = false
	net.traceMgr.AddName(id, fmt.Sprintf("packet-%d", id), "packet")
	return id, nil
}

// Tick advances the simulation by one tick. The network is validated first
// if it has changed since the last tick. An error leaves the simulation in
// an undefined state.
func (net *Network) Tick() error {
	if !net.checked {
		if err := net.Validate(); err != nil {
			return err
		}
	}
	start := time.Now()
	if err := net.ctrl.Tick(); err != nil {
		return fmt.Errorf("tick %d: %w", net.ctrl.Ticks()+1, err)
	}
	net.metrics.ObserveTick(len(net.packets), time.Since(start))
	return nil
}

// Run executes ticks until count have completed or one fails
func (net *Network) Run(count int) error {
	for tick := 0; tick < count; tick++ {
		if err := net.Tick(); err != nil {
			net.logger.Error(context.Background(), "simulation stopped", logging.Any("error", err))
			return err
		}
	}
	return nil
}

// traceAction records the outcome of a packet's motion when tracing is on
func (net *Network) traceAction(pckt *Packet, nxt *pcktState) {
	if !net.traceMgr.Active() {
		return
	}
	tick := net.ctrl.Ticks() + 1
	vrt := vrtime.SecondsToTime(float64(tick) * net.Params.Period)
	at := &ActionTrace{Tick: tick, Time: vrt.Seconds(), PcktID: pckt.ID, Segment: net.segments[nxt.Seg].Number,
		Offset: nxt.Offset, Speed: nxt.Speed, Action: nxt.Action.String(),
		BlockedBy: nxt.BlockedBy, Physical: nxt.Physical, Waited: nxt.Waited}
	AddActionTrace(net.traceMgr, vrt, at)
}
