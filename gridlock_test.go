package lanesim

import (
	"reflect"
	"testing"
)

// newCrossing builds two approaches, 0 and 1, each yielding to the other,
// with loops 2 and 3 bringing packets back to them
func newCrossing(t *testing.T) *Network {
	t.Helper()
	net := newTestNetwork(t, "crossing", nil)
	addSegments(t, net, 100000, 100000, 200000, 200000)
	connect(t, net, [2]int{0, 2}, [2]int{1, 3}, [2]int{2, 0}, [2]int{3, 1})
	if err := net.AddYield(0, 1); err != nil {
		t.Fatalf("AddYield: %v", err)
	}
	if err := net.AddYield(1, 0); err != nil {
		t.Fatalf("AddYield: %v", err)
	}
	return net
}

func TestMutualYieldIsBroken(t *testing.T) {
	net := newCrossing(t)
	a := spawn(t, net, 0, 99000, 0)
	b := spawn(t, net, 1, 99000, 0)

	for tick := 1; tick < net.Params.GridlockThreshold; tick++ {
		if err := net.Tick(); err != nil {
			t.Fatalf("Tick %d: %v", tick, err)
		}
		av, bv := packetView(t, net, a), packetView(t, net, b)
		if av.Action != Brake || av.BlockedBy != b || av.Physical {
			t.Fatalf("tick %d: a action %v blocked by %d physical %v, want brake by %d", tick, av.Action, av.BlockedBy, av.Physical, b)
		}
		if bv.Action != Brake || bv.BlockedBy != a || bv.Physical {
			t.Fatalf("tick %d: b action %v blocked by %d physical %v, want brake by %d", tick, bv.Action, bv.BlockedBy, bv.Physical, a)
		}
		if bv.Waited != tick || len(av.Yield)+len(bv.Yield) != 0 {
			t.Fatalf("tick %d: waited %d, yields %v %v", tick, bv.Waited, av.Yield, bv.Yield)
		}
	}

	// both have waited long enough; the tie on waiting time favors the lower id
	if err := net.Tick(); err != nil {
		t.Fatalf("Tick: %v", err)
	}
	av, bv := packetView(t, net, a), packetView(t, net, b)
	if !reflect.DeepEqual(bv.Yield, []int{a}) {
		t.Fatalf("b yields to %v, want [%d]", bv.Yield, a)
	}
	if len(av.Yield) != 0 {
		t.Fatalf("a yields to %v, want nobody", av.Yield)
	}

	if err := net.Tick(); err != nil {
		t.Fatalf("Tick: %v", err)
	}
	av, bv = packetView(t, net, a), packetView(t, net, b)
	if av.Action != Increase {
		t.Fatalf("favored packet action = %v, want increase", av.Action)
	}
	if av.Segment != 2 || av.Offset != 500 {
		t.Fatalf("favored packet at segment %d offset %d, want 2 and 500", av.Segment, av.Offset)
	}
	if bv.Action != Brake || !reflect.DeepEqual(bv.Yield, []int{a}) {
		t.Fatalf("b action %v yields %v, want brake still yielding to %d", bv.Action, bv.Yield, a)
	}

	// once a has cleared the crossing b is free to go
	for tick := 0; tick < 5; tick++ {
		if err := net.Tick(); err != nil {
			t.Fatalf("Tick: %v", err)
		}
	}
	if bv = packetView(t, net, b); bv.Segment != 3 {
		t.Fatalf("b still at segment %d offset %d action %v", bv.Segment, bv.Offset, bv.Action)
	}
	if len(bv.Yield) != 0 {
		t.Fatalf("b kept yielding to %v after accelerating", bv.Yield)
	}
}

func TestGridlockGrantsAreCounted(t *testing.T) {
	net := newCrossing(t)
	spawn(t, net, 0, 99000, 0)
	spawn(t, net, 1, 99000, 0)
	cr := &countingRecorder{actions: make(map[string]int)}
	net.SetMetrics(cr)

	if err := net.Run(net.Params.GridlockThreshold + 1); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if cr.grants != 1 {
		t.Fatalf("grants = %d, want 1", cr.grants)
	}
}

func TestStalledNeedsThreshold(t *testing.T) {
	net := newTestNetwork(t, "stalled", nil)
	st := pcktState{Speed: 0, Action: Brake, BlockedBy: 3, Waited: net.Params.GridlockThreshold - 1}
	if net.stalled(&st) {
		t.Fatalf("stalled before reaching the threshold")
	}
	st.Waited += 1
	if !net.stalled(&st) {
		t.Fatalf("not stalled at the threshold")
	}
	st.BlockedBy = NoPacket
	if net.stalled(&st) {
		t.Fatalf("stalled without anybody to wait for")
	}
}

func TestGridlockChainWalk(t *testing.T) {
	// chain is the state of packets 0 to 3 given as blocked-by, waited and physical
	type link struct {
		blockedBy int
		waited    int
		physical  bool
	}
	cases := []struct {
		name   string
		walker int
		chain  []link
		want   []int
	}{
		{"two packet cycle", 0, []link{{1, 6, false}, {0, 9, false}}, []int{1}},
		{"tie favors the lower id", 1, []link{{1, 6, false}, {0, 6, false}}, []int{0}},
		{"lower id does not grant on a tie", 0, []link{{1, 6, false}, {0, 6, false}}, nil},
		{"physically blocked packet is passed over", 0,
			[]link{{1, 6, false}, {2, 20, true}, {0, 7, false}}, []int{2}},
		{"longest waiter not next to the walker", 0,
			[]link{{1, 6, false}, {2, 20, false}, {0, 7, false}}, nil},
		{"cycle not through the walker", 0,
			[]link{{1, 6, false}, {2, 9, false}, {1, 9, false}}, nil},
		{"chain reaches a packet that is gone", 0,
			[]link{{1, 6, false}, {99, 9, false}}, nil},
		{"chain ends", 0, []link{{1, 6, false}, {NoPacket, 9, false}}, nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			net := newRing(t, "chains", 1000000, nil)
			for idx, ln := range tc.chain {
				id := spawn(t, net, 0, idx*100000, 0)
				net.packets[id].state.Initialize(pcktState{Action: Brake, BlockedBy: ln.blockedBy,
					Waited: ln.waited, Physical: ln.physical, Yield: []int{}})
			}

			walker := net.packets[tc.walker]
			cur := walker.now()
			nxt := cur.clone()
			net.detectGridlock(walker, cur, &nxt)
			if len(nxt.Yield) != len(tc.want) || (len(tc.want) > 0 && !reflect.DeepEqual(nxt.Yield, tc.want)) {
				t.Fatalf("walker %d yields to %v, want %v", tc.walker, nxt.Yield, tc.want)
			}
		})
	}
}
