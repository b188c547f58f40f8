package lanesim

// segment.go contains the directed road segments packets travel on.
// A Segment takes part in both phases of every tick: in the motion phase
// it resolves a speed action for each resident packet, moves it, and hands
// packets that overflow its end to the next segment on their route; in the
// settle phase it collects the packets that stayed and the ones delivered
// into its inboxes into the resident list of the next epoch.

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/iti/lanesim/internal/logging"
	"golang.org/x/exp/slices"
)

// MotionPhase and SettlePhase are the phases of a tick, run in this order
const (
	MotionPhase = DefaultPhase
	SettlePhase = 1
)

// RandSource is what a segment needs from a random number stream to sample
// successors. *rngstream.RngStream satisfies it.
type RandSource interface {
	RandInt(lo, hi int) int
}

// Coord is a point in the plane (or space) of the network description
type Coord struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
	Z float64 `json:"z" yaml:"z"`
}

// arrival carries a packet across a segment boundary
type arrival struct {
	id     int
	offset int
}

// segInbox receives the packets one predecessor hands over during motion
type segInbox struct {
	mu    sync.Mutex
	items []arrival
}

func (ib *segInbox) push(a arrival) {
	ib.mu.Lock()
	ib.items = append(ib.items, a)
	ib.mu.Unlock()
}

// drain empties the inbox and returns what it held
func (ib *segInbox) drain() []arrival {
	ib.mu.Lock()
	defer ib.mu.Unlock()
	items := ib.items
	ib.items = nil
	return items
}

// Segment is a directed edge of fixed length. Segments are held by the Network
// in an arena and refer to each other by index.
type Segment struct {
	Index  int // position in the network's arena
	Number int // id given in the network description
	Begin  Coord
	End    Coord
	Length int

	Succ []int // segments entered from this one's end
	Pred []int // segments whose end leads into this one
	Coop []int // segments this one merges with
	Intf []int // segments this one yields to

	// resident packet ids, ordered by decreasing offset
	residents *LockStep[[]int]

	// one inbox per predecessor, keyed by the predecessor's index. The map is
	// filled in when links are made and never written during a tick.
	inbox map[int]*segInbox

	// packets that stay on the segment, gathered in motion for settle
	pending []arrival

	rng RandSource
	net *Network
}

// createSegment is a constructor
func createSegment(net *Network, idx, number int, begin, end Coord, length int, rng RandSource) *Segment {
	seg := new(Segment)
	seg.Index = idx
	seg.Number = number
	seg.Begin = begin
	seg.End = end
	seg.Length = length
	seg.Succ = make([]int, 0)
	seg.Pred = make([]int, 0)
	seg.Coop = make([]int, 0)
	seg.Intf = make([]int, 0)
	seg.residents = CreateLockStep(net.ctrl, []int{})
	seg.inbox = make(map[int]*segInbox)
	seg.pending = make([]arrival, 0)
	seg.rng = rng
	seg.net = net
	return seg
}

// addSucc makes other a successor of seg, and seg a predecessor of other
func (seg *Segment) addSucc(other *Segment) {
	if !slices.Contains(seg.Succ, other.Index) {
		seg.Succ = append(seg.Succ, other.Index)
	}
	other.addPred(seg)
}

// addPred makes other a predecessor of seg, and seg a successor of other
func (seg *Segment) addPred(other *Segment) {
	if slices.Contains(seg.Pred, other.Index) {
		return
	}
	seg.Pred = append(seg.Pred, other.Index)
	seg.inbox[other.Index] = new(segInbox)
	other.addSucc(seg)
}

// addCoop records other as a segment seg merges with. Not mirrored.
func (seg *Segment) addCoop(other *Segment) {
	if !slices.Contains(seg.Coop, other.Index) {
		seg.Coop = append(seg.Coop, other.Index)
	}
}

// addIntf records other as a segment seg yields to. Not mirrored.
func (seg *Segment) addIntf(other *Segment) {
	if !slices.Contains(seg.Intf, other.Index) {
		seg.Intf = append(seg.Intf, other.Index)
	}
}

// Residents returns the ids of the packets on the segment in the current epoch,
// front first
func (seg *Segment) Residents() []int {
	return slices.Clone(seg.residents.Read())
}

// tail returns the id of the trailing-most resident, or NoPacket
func (seg *Segment) tail() int {
	res := seg.residents.Read()
	if len(res) == 0 {
		return NoPacket
	}
	return res[len(res)-1]
}

// deliver is called by predecessor sender during motion
func (seg *Segment) deliver(sender int, a arrival) {
	seg.inbox[sender].push(a)
}

// Tick implements Participant
func (seg *Segment) Tick(phase int) error {
	switch phase {
	case MotionPhase:
		return seg.motion()
	case SettlePhase:
		seg.settle()
	}
	return nil
}

// motion resolves, moves, and (when needed) transfers every resident packet.
// Residents are handled front first so that each packet can be kept behind the
// position its leader has just been given.
func (seg *Segment) motion() error {
	net := seg.net
	sp := &net.Params
	seg.pending = seg.pending[:0]

	leaderNext := infDistance
	for idx, id := range seg.residents.Read() {
		pckt, present := net.packets[id]
		if !present {
			continue
		}
		cur := pckt.now()
		nxt := cur.clone()
		nxt.Seg = seg.Index
		nxt.Route = seg.refreshRoute(nxt.Route)

		res := net.resolve(pckt, cur, nxt.Route, seg, idx)

		newSpeed := cur.Speed
		switch res.action {
		case Brake:
			newSpeed = max(0, cur.Speed-sp.BrakeDecel)
		case Increase:
			newSpeed = min(pckt.PrefSpeed, cur.Speed+sp.SpeedupAccel)
			if newSpeed == cur.Speed {
				res = resolution{action: Maintain, blockedBy: NoPacket}
			}
		}
		if newSpeed > pckt.PrefSpeed {
			newSpeed = max(pckt.PrefSpeed, cur.Speed-sp.BrakeDecel)
			res = resolution{action: Brake, blockedBy: NoPacket}
		}
		newOffset := cur.Offset + newSpeed

		// never come closer than a vehicle length to the packet ahead
		if idx > 0 && newOffset > leaderNext-sp.VehicleLength {
			newOffset = max(cur.Offset, leaderNext-sp.VehicleLength)
			res = resolution{action: Brake, blockedBy: seg.residents.Read()[idx-1], physical: true}
		}

		// nor to the tail of the segment being entered
		if newOffset >= seg.Length && len(nxt.Route) > 1 {
			if limit, tailID, found := seg.entryLimit(nxt.Route[1], id); found && newOffset > limit {
				newOffset = max(cur.Offset, limit)
				res = resolution{action: Brake, blockedBy: tailID, physical: true}
			}
			// nor to a packet entering it from another side
			if limit, firstID, found := seg.mergeLimit(nxt.Route[1], id, seg.Length-cur.Offset); found && newOffset > limit {
				newOffset = max(cur.Offset, limit)
				res = resolution{action: Brake, blockedBy: firstID, physical: true}
			}
		}
		newSpeed = newOffset - cur.Offset
		leaderNext = newOffset

		nxt.Speed = newSpeed
		if res.action == cur.Action {
			nxt.Waited = cur.Waited + 1
		} else {
			nxt.Waited = 1
		}
		nxt.Action = res.action
		nxt.BlockedBy = res.blockedBy
		nxt.Physical = res.physical
		if res.action == Increase {
			nxt.Yield = nxt.Yield[:0]
		}

		net.detectGridlock(pckt, cur, &nxt)

		if newOffset >= seg.Length {
			if len(nxt.Route) < 2 {
				net.logger.Error(context.Background(), "packet cannot leave segment",
					logging.Int("packet", pckt.ID), logging.Int("segment", seg.Number))
				return fmt.Errorf("packet %d on segment %d: %w", pckt.ID, seg.Number, ErrRouteExhausted)
			}
			dest := net.segments[nxt.Route[1]]
			nxt.Offset = newOffset - seg.Length
			nxt.Seg = dest.Index
			nxt.Route = nxt.Route[1:]
			dest.deliver(seg.Index, arrival{id: id, offset: nxt.Offset})
			net.metrics.ObserveTransfer()
		} else {
			nxt.Offset = newOffset
			seg.pending = append(seg.pending, arrival{id: id, offset: newOffset})
		}

		pckt.setNext(nxt)
		net.metrics.ObserveAction(nxt.Action.String())
		net.traceAction(pckt, &nxt)
	}
	return nil
}

// entryLimit computes the furthest offset (in seg's coordinates) a packet
// self may reach without coming closer than a vehicle length to the position
// dest's trailing packet is sure to reach this tick
func (seg *Segment) entryLimit(destIdx, self int) (int, int, bool) {
	dest := seg.net.segments[destIdx]
	tailID := dest.tail()
	if tailID == NoPacket || tailID == self {
		return 0, NoPacket, false
	}
	tailPckt, present := seg.net.packets[tailID]
	if !present {
		return 0, NoPacket, false
	}
	st := tailPckt.now()
	tailNext := st.Offset + max(0, st.Speed-seg.net.Params.BrakeDecel)
	return seg.Length + tailNext - seg.net.Params.VehicleLength, tailID, true
}

// goesFirst decides which of two packets entering the same segment from
// predecessors seg and other, gap and otherGap away from their ends, goes
// first. A segment yielding to the other loses; otherwise the packet nearer
// the end wins, the lower id on ties.
func (seg *Segment) goesFirst(other *Segment, self, gap, otherID, otherGap int) bool {
	selfYields, otherYields := slices.Contains(seg.Intf, other.Index), slices.Contains(other.Intf, seg.Index)
	if selfYields != otherYields {
		return otherYields
	}
	if gap != otherGap {
		return gap < otherGap
	}
	return self < otherID
}

// mergeLimit keeps a packet self, gap away from the end of seg, behind the
// packets that go first (see goesFirst) among those that may enter dest from
// its other predecessors in the same tick. self stays a vehicle length behind
// the position such a packet is sure to reach. The furthest offset allowed in
// seg's coordinates is returned along with the packet that imposes it.
func (seg *Segment) mergeLimit(destIdx, self, gap int) (int, int, bool) {
	net := seg.net
	sp := &net.Params
	dest := net.segments[destIdx]

	limit, firstID, found := infDistance, NoPacket, false
	for _, predIdx := range dest.Pred {
		if predIdx == seg.Index {
			continue
		}
		pred := net.segments[predIdx]
		front := pred.residents.Read()
		if len(front) == 0 || front[0] == self {
			continue
		}
		other, present := net.packets[front[0]]
		if !present {
			continue
		}
		st := other.now()
		if seg.goesFirst(pred, self, gap, other.ID, pred.Length-st.Offset) {
			continue
		}
		if len(st.Route) > 1 && st.Route[0] == predIdx && st.Route[1] != destIdx {
			continue
		}
		if st.Offset+max(st.Speed, min(other.PrefSpeed, st.Speed+sp.SpeedupAccel)) < pred.Length {
			continue
		}
		sure := st.Offset + max(0, st.Speed-sp.BrakeDecel) - pred.Length
		if bound := seg.Length + sure - sp.VehicleLength; bound < limit {
			limit, firstID, found = bound, other.ID, true
		}
	}
	return limit, firstID, found
}

// settle builds the resident list of the next epoch from the packets that stayed
// and the packets delivered by predecessors. Inboxes are drained in order of
// sender index so the result does not depend on delivery order.
func (seg *Segment) settle() {
	arrivals := slices.Clone(seg.pending)

	senders := make([]int, 0, len(seg.inbox))
	for sender := range seg.inbox {
		senders = append(senders, sender)
	}
	sort.Ints(senders)
	for _, sender := range senders {
		arrivals = append(arrivals, seg.inbox[sender].drain()...)
	}

	sort.SliceStable(arrivals, func(i, j int) bool {
		if arrivals[i].offset != arrivals[j].offset {
			return arrivals[i].offset > arrivals[j].offset
		}
		return arrivals[i].id < arrivals[j].id
	})

	ids := make([]int, len(arrivals))
	for idx, a := range arrivals {
		ids[idx] = a.id
	}
	*seg.residents.Write() = ids
}

// refreshRoute makes sure the route starts with seg and holds as many
// segments as the lookahead asks for. A route that does not lead through
// seg is discarded.
func (seg *Segment) refreshRoute(route []int) []int {
	if len(route) == 0 || route[0] != seg.Index {
		at := slices.Index(route, seg.Index)
		if at < 0 {
			route = []int{seg.Index}
		} else {
			route = route[at:]
		}
	}
	return seg.net.extendRoute(route, seg.rng)
}

// insert places id among the residents of both epochs, keeping the order.
// Only called between ticks.
func (seg *Segment) insert(id, offset int) {
	res := slices.Clone(seg.residents.Read())
	at := sort.Search(len(res), func(i int) bool {
		return seg.net.packets[res[i]].now().Offset < offset
	})
	res = slices.Insert(res, at, id)
	seg.residents.Initialize(res)
}

// hasRoom reports whether a packet placed at offset keeps a vehicle length to
// every resident, and leaves every packet that may come up behind it, on seg
// or on a predecessor, room to brake to a halt a vehicle length short of it
func (seg *Segment) hasRoom(offset int) bool {
	net := seg.net
	vl := net.Params.VehicleLength
	for _, id := range seg.residents.Read() {
		st := net.packets[id].now()
		if abs(st.Offset-offset) < vl {
			return false
		}
		if st.Offset < offset && satAdd(net.brakePoint(st.Offset, st.Speed), vl) > offset {
			return false
		}
	}
	for _, predIdx := range seg.Pred {
		pred := net.segments[predIdx]
		for _, id := range pred.residents.Read() {
			st := net.packets[id].now()
			if len(st.Route) > 1 && st.Route[0] == predIdx && st.Route[1] != seg.Index {
				continue
			}
			if satAdd(net.brakePoint(st.Offset, st.Speed), vl)-pred.Length > offset {
				return false
			}
		}
	}
	return true
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
