package lanesim

// resolve.go decides, for one packet on one tick, whether it brakes,
// keeps its speed, or speeds up. The forward search follows the packet's
// route; where the route reaches the end of a segment it also looks
// upstream into the segments the packet has to merge with or yield to.
//
// All positions handed between searches are expressed in the coordinates
// of the segment being searched. Forward searches rebase by subtracting
// the length of the segment just left; backward searches place the
// requester as far before the end of the searched segment as it is before
// the end of its own, the two ends being the point of conflict.

import (
	"math"
)

// infDistance stands for a distance too large to matter. Sums saturate
// at it so that squaring large speeds never overflows.
const infDistance = math.MaxInt / 4

// speeds at or beyond this have an infinite braking distance
const maxFiniteSpeed = 1 << 30

// externalRequester is the resident index passed to a forward search when the
// requester is not on the segment searched
const externalRequester = -1

// resolution is the outcome of a search
type resolution struct {
	action    SpeedAction
	blockedBy int
	physical  bool
}

var freeToGo = resolution{action: Increase, blockedBy: NoPacket}

// leastPermissive combines two outcomes; on a tie the first one is kept
func leastPermissive(a, b resolution) resolution {
	if b.action < a.action {
		return b
	}
	return a
}

// satAdd adds two distances, clamping the sum to [-infDistance, infDistance]
func satAdd(a, b int) int {
	if a >= infDistance || b >= infDistance {
		return infDistance
	}
	sum := a + b
	if sum > infDistance {
		return infDistance
	}
	if sum < -infDistance {
		return -infDistance
	}
	return sum
}

// brakeDistance is the distance covered while braking to a halt from speed
func (net *Network) brakeDistance(speed int) int {
	if speed <= 0 {
		return 0
	}
	if speed >= maxFiniteSpeed {
		return infDistance
	}
	return speed * speed / (2 * net.Params.BrakeDecel)
}

// brakePoint is where a packet at offset would come to a halt
func (net *Network) brakePoint(offset, speed int) int {
	return satAdd(offset, net.brakeDistance(speed))
}

// searchHorizon is the furthest point that can influence a packet's decision this tick
func (net *Network) searchHorizon(offset, speed int) int {
	reach := satAdd(2*speed, 2*net.Params.VehicleLength)
	return satAdd(net.brakePoint(offset, speed), reach)
}

// judge compares a requester with the packet it follows. decided is false
// when the leader leaves the requester free to accelerate.
func (net *Network) judge(reqBP, reqSpeed, leaderBP, leader int) (res resolution, decided bool) {
	sp := &net.Params
	if satAdd(reqBP, reqSpeed+sp.VehicleLength) >= leaderBP {
		return resolution{action: Brake, blockedBy: leader}, true
	}
	if satAdd(reqBP, reqSpeed+sp.SpeedupAccel+sp.VehicleLength) >= max(0, leaderBP-sp.BrakeDecel) {
		return resolution{action: Maintain, blockedBy: leader}, true
	}
	return freeToGo, false
}

// stateOf returns the current state of packet id, if it exists
func (net *Network) stateOf(id int) (pcktState, bool) {
	pckt, present := net.packets[id]
	if !present {
		return pcktState{}, false
	}
	return pckt.now(), true
}

// request describes the packet a search is made for
type request struct {
	id     int
	speed  int
	origin int   // index of the segment the packet occupies
	route  []int // route[0] == origin
}

// resolve computes the speed action of pckt, which is resident at index idx of seg
func (net *Network) resolve(pckt *Packet, cur pcktState, route []int, seg *Segment, idx int) resolution {
	req := &request{id: pckt.ID, speed: cur.Speed, origin: seg.Index, route: route}
	return net.forward(req, 0, cur.Offset, idx)
}

// forward searches the segment at position depth of the requester's route.
// pos is the requester's offset in that segment's coordinates and resIdx its
// index among the residents, or externalRequester.
func (net *Network) forward(req *request, depth, pos, resIdx int) resolution {
	seg := net.segments[req.route[depth]]
	reqBP := net.brakePoint(pos, req.speed)
	horizon := net.searchHorizon(pos, req.speed)

	// the packet immediately ahead, if any
	leader := NoPacket
	residents := seg.residents.Read()
	if resIdx == externalRequester {
		if len(residents) > 0 {
			tailID := residents[len(residents)-1]
			if st, present := net.stateOf(tailID); present && tailID != req.id && st.Offset <= horizon {
				leader = tailID
			}
		}
	} else if resIdx > 0 {
		leader = residents[resIdx-1]
	}
	if st, present := net.stateOf(leader); present {
		if res, decided := net.judge(reqBP, req.speed, net.brakePoint(st.Offset, st.Speed), leader); decided {
			res.physical = true
			return res
		}
	}

	if horizon <= seg.Length {
		return freeToGo
	}

	// the requester may reach the end of seg; look at what it meets there
	past := pos - seg.Length
	result := freeToGo
	for _, other := range seg.Intf {
		if other == req.origin || other == seg.Index {
			continue
		}
		intf := net.segments[other]
		visited := map[int]bool{req.origin: true, seg.Index: true, other: true}
		res := net.backward(req, intf, intf.Length+past, true, visited)
		result = leastPermissive(result, net.override(req, res))
		if result.action == Brake {
			return result
		}
	}
	for _, other := range seg.Coop {
		if other == req.origin || other == seg.Index {
			continue
		}
		coop := net.segments[other]
		visited := map[int]bool{req.origin: true, seg.Index: true, other: true}
		res := net.backward(req, coop, coop.Length+past, false, visited)
		result = leastPermissive(result, net.override(req, res))
		if result.action == Brake {
			return result
		}
	}
	if depth+1 < len(req.route) {
		result = leastPermissive(result, net.forward(req, depth+1, past, externalRequester))
	}
	return result
}

// override turns an outcome into freeToGo when the packet blocking the
// requester has granted it right of way
func (net *Network) override(req *request, res resolution) resolution {
	if res.action == Increase || res.blockedBy == NoPacket {
		return res
	}
	if st, present := net.stateOf(res.blockedBy); present && st.yields(req.id) {
		return freeToGo
	}
	return res
}

// backward searches seg upstream from its end for packets that conflict with
// the requester, positioned at p in seg's coordinates. With yielding set the
// requester gives way to packets close behind its position, the merge
// variant only keeps the requester behind the packet ahead of it.
func (net *Network) backward(req *request, seg *Segment, p int, yielding bool, visited map[int]bool) resolution {
	if p >= seg.Length {
		return freeToGo
	}
	reqBP := net.brakePoint(p, req.speed)
	residents := seg.residents.Read()

	if p < 0 {
		// every resident is ahead of the requester, the trailing one nearest
		result := freeToGo
		if tailID := seg.tail(); tailID != req.id {
			if st, present := net.stateOf(tailID); present {
				if res, decided := net.judge(reqBP, req.speed, net.brakePoint(st.Offset, st.Speed), tailID); decided {
					result = res
				}
			}
		}
		for _, predIdx := range seg.Pred {
			if result.action == Brake {
				break
			}
			if visited[predIdx] {
				continue
			}
			visited[predIdx] = true
			pred := net.segments[predIdx]
			result = leastPermissive(result, net.backward(req, pred, p+pred.Length, yielding, visited))
		}
		return result
	}

	// residents before the first index not ahead of p are ahead of the requester
	first := 0
	nearest := NoPacket
	for first < len(residents) {
		id := residents[first]
		st, present := net.stateOf(id)
		if id != req.id && present && !(st.Offset > p || (st.Offset == p && id < req.id)) {
			break
		}
		if id != req.id && present {
			nearest = id
		}
		first += 1
	}

	result := freeToGo
	if st, present := net.stateOf(nearest); present {
		if res, decided := net.judge(reqBP, req.speed, net.brakePoint(st.Offset, st.Speed), nearest); decided {
			result = res
		}
	}
	if !yielding || result.action == Brake {
		return result
	}

	sp := &net.Params
	window := sp.YieldFactor * sp.NominalSpeed
	checked := 0
	for _, id := range residents[first:] {
		if checked == sp.YieldDepth {
			break
		}
		st, present := net.stateOf(id)
		if id == req.id || !present {
			continue
		}
		checked += 1
		if p-st.Offset <= window {
			return resolution{action: Brake, blockedBy: id}
		}
		if satAdd(net.brakePoint(st.Offset, st.Speed), st.Speed+sp.VehicleLength) >= reqBP {
			return resolution{action: Brake, blockedBy: id}
		}
	}

	// the right of way window may reach into the segments feeding seg
	if checked < sp.YieldDepth && p < window {
		for _, predIdx := range seg.Pred {
			if visited[predIdx] {
				continue
			}
			pred := net.segments[predIdx]
			front := pred.residents.Read()
			if len(front) == 0 || front[0] == req.id {
				continue
			}
			st, present := net.stateOf(front[0])
			if present && p+pred.Length-st.Offset <= window {
				return resolution{action: Brake, blockedBy: front[0]}
			}
		}
	}
	return result
}
