package lanesim

import (
	"errors"
	"reflect"
	"testing"
)

// newDiamond builds 0 -> {1, 2} -> 3 -> 0 where the way through 2 is shorter,
// plus a segment 4 that only leads into itself
func newDiamond(t *testing.T) *Network {
	t.Helper()
	net := newTestNetwork(t, "diamond", nil)
	addSegments(t, net, 10000, 50000, 20000, 10000, 10000)
	connect(t, net, [2]int{0, 1}, [2]int{0, 2}, [2]int{1, 3}, [2]int{2, 3}, [2]int{3, 0}, [2]int{4, 4})
	return net
}

func TestPlanRouteTakesShortestWay(t *testing.T) {
	net := newDiamond(t)
	route, err := net.PlanRoute(0, 3)
	if err != nil {
		t.Fatalf("PlanRoute: %v", err)
	}
	if !reflect.DeepEqual(route, []int{0, 2, 3}) {
		t.Fatalf("route = %v, want [0 2 3]", route)
	}
	if got := net.ShowRoute(route); got != "0,2,3" {
		t.Fatalf("ShowRoute = %q", got)
	}
	if route, _ := net.PlanRoute(1, 1); !reflect.DeepEqual(route, []int{1}) {
		t.Fatalf("route to self = %v, want [1]", route)
	}
}

func TestPlanRouteFailures(t *testing.T) {
	net := newDiamond(t)
	if _, err := net.PlanRoute(0, 4); err == nil {
		t.Fatalf("PlanRoute found a way into an isolated segment")
	}
	if _, err := net.PlanRoute(0, 9); !errors.Is(err, ErrUnknownSegment) {
		t.Fatalf("PlanRoute error = %v, want ErrUnknownSegment", err)
	}
}

func TestPlanRouteSeesNewLinks(t *testing.T) {
	net := newDiamond(t)
	if _, err := net.PlanRoute(0, 4); err == nil {
		t.Fatalf("PlanRoute found a way into an isolated segment")
	}
	connect(t, net, [2]int{3, 4})
	route, err := net.PlanRoute(0, 4)
	if err != nil {
		t.Fatalf("PlanRoute after linking: %v", err)
	}
	if !reflect.DeepEqual(route, []int{0, 2, 3, 4}) {
		t.Fatalf("route = %v, want [0 2 3 4]", route)
	}
}

func TestReachableAndComponents(t *testing.T) {
	net := newDiamond(t)
	if got := net.Reachable([]int{1}); !reflect.DeepEqual(got, []int{0, 1, 2, 3}) {
		t.Fatalf("reachable from 1 = %v", got)
	}
	if got := net.Reachable([]int{4, 42}); !reflect.DeepEqual(got, []int{4}) {
		t.Fatalf("reachable from 4 = %v", got)
	}
	comps := net.Components()
	if !reflect.DeepEqual(comps, [][]int{{0, 1, 2, 3}, {4}}) {
		t.Fatalf("components = %v", comps)
	}
}

func TestValidateOnlyChecksReachableSegments(t *testing.T) {
	net := newDiamond(t)
	if _, err := net.AddSegment(5, Coord{}, Coord{}, 1000); err != nil {
		t.Fatalf("AddSegment: %v", err)
	}
	if err := net.Validate(); err != nil {
		t.Fatalf("Validate with an unreachable dead end: %v", err)
	}
	if err := net.AddEntry(5); err != nil {
		t.Fatalf("AddEntry: %v", err)
	}
	if err := net.Validate(); !errors.Is(err, ErrDeadEnd) {
		t.Fatalf("Validate error = %v, want ErrDeadEnd", err)
	}
	if err := net.AddEntry(17); !errors.Is(err, ErrUnknownSegment) {
		t.Fatalf("AddEntry error = %v, want ErrUnknownSegment", err)
	}
}
