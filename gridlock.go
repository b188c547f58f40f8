package lanesim

// gridlock.go breaks circular waits. A packet stalled long enough follows
// the chain of packets it waits for; when the chain leads back to it, and
// the packet it waits for directly is the one that has waited longest,
// it grants that packet right of way. The resolver consults the grant
// when the favored packet next searches, letting it move.

import (
	"context"

	"github.com/iti/lanesim/internal/logging"
	"golang.org/x/exp/slices"
)

// stalled reports whether the next state of a packet calls for a chain walk
func (net *Network) stalled(nxt *pcktState) bool {
	return nxt.Speed == 0 && nxt.Action != Increase && nxt.BlockedBy != NoPacket &&
		nxt.Waited >= net.Params.GridlockThreshold
}

// detectGridlock walks the wait-for chain starting at pckt, whose current and
// next states are cur and nxt, and records a grant in nxt when a cycle is found
func (net *Network) detectGridlock(pckt *Packet, cur pcktState, nxt *pcktState) {
	if !net.stalled(nxt) {
		return
	}

	// the packet not physically blocked that has waited longest, lowest id on ties
	best, bestWait := NoPacket, -1
	consider := func(id int, st pcktState) {
		if st.Physical {
			return
		}
		if st.Waited > bestWait || (st.Waited == bestWait && id < best) {
			best, bestWait = id, st.Waited
		}
	}
	consider(pckt.ID, cur)

	visited := map[int]bool{pckt.ID: true}
	prev, at := pckt.ID, nxt.BlockedBy
	for step := 0; step < nxt.Waited; step++ {
		if at == pckt.ID {
			if prev != pckt.ID && prev == best && !slices.Contains(nxt.Yield, best) {
				nxt.Yield = append(nxt.Yield, best)
				net.metrics.ObserveGridlockGrant()
				net.logger.Debug(context.Background(), "gridlock broken",
					logging.Int("packet", pckt.ID), logging.Int("favored", best))
			}
			return
		}
		if visited[at] {
			// a cycle not through pckt, someone on it will break it
			return
		}
		st, present := net.stateOf(at)
		if !present {
			return
		}
		visited[at] = true
		consider(at, st)
		if st.BlockedBy == NoPacket {
			return
		}
		prev, at = at, st.BlockedBy
	}
}
