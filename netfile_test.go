package lanesim

import (
	"bytes"
	"reflect"
	"strings"
	"testing"
)

const crossingText = `# two approaches meeting at the origin
0 -10 0 0 0 0 0 1 3 1 2 0 1 1
1 0 -10 0 0 0 0 1 2 1 3 0 1 0
2 0 0 0 10 10 0 1 0 1 1 0 0

3 0 0 0 -10 -10 0 1 1 1 0 0 0
4 garbage line
5 0 0 0 1 1 1 0 0 0 0 7
6 0 0 0 1 1 1 9000000000000000000 1 0 0 0
`

func TestParseNetworkText(t *testing.T) {
	nd, err := ParseNetworkText(strings.NewReader(crossingText), "crossing", nil)
	if err != nil {
		t.Fatalf("ParseNetworkText: %v", err)
	}
	if len(nd.Segments) != 4 {
		t.Fatalf("parsed %d segments, want 4 (malformed lines dropped)", len(nd.Segments))
	}
	// every reference on the first line is to a segment described later
	first := nd.Segments[0]
	want := SegmentDesc{Number: 0, Begin: Coord{X: -10}, End: Coord{},
		In: []int{}, Out: []int{}, Merge: []int{}, Yield: []int{}}
	if !reflect.DeepEqual(first, want) {
		t.Fatalf("segment 0 = %+v, want %+v", first, want)
	}
	third := nd.Segments[2]
	if !reflect.DeepEqual(third.In, []int{0}) || !reflect.DeepEqual(third.Out, []int{1}) {
		t.Fatalf("segment 2 in %v out %v, want [0] and [1]", third.In, third.Out)
	}
	if nd.Name != "crossing" {
		t.Fatalf("name = %q, want crossing", nd.Name)
	}
}

func TestNetworkTextRoundTrip(t *testing.T) {
	nd, err := ParseNetworkText(strings.NewReader(crossingText), "crossing", nil)
	if err != nil {
		t.Fatalf("ParseNetworkText: %v", err)
	}
	var buf bytes.Buffer
	if err := WriteNetworkText(&buf, nd); err != nil {
		t.Fatalf("WriteNetworkText: %v", err)
	}
	again, err := ParseNetworkText(&buf, "crossing", nil)
	if err != nil {
		t.Fatalf("ParseNetworkText: %v", err)
	}
	if !reflect.DeepEqual(again, nd) {
		t.Fatalf("round trip changed the description:\n%+v\n%+v", again, nd)
	}
}

func TestBuildNetworkFromText(t *testing.T) {
	nd, err := ParseNetworkText(strings.NewReader(crossingText), "crossing", nil)
	if err != nil {
		t.Fatalf("ParseNetworkText: %v", err)
	}
	net, err := BuildNetwork(nd, DefaultSimParams(), nil)
	if err != nil {
		t.Fatalf("BuildNetwork: %v", err)
	}
	a, _ := net.SegmentByNumber(0)
	c, _ := net.SegmentByNumber(2)
	if a.Length != 10000 {
		t.Fatalf("segment 0 length = %d, want 10000", a.Length)
	}
	if !reflect.DeepEqual(a.Succ, []int{c.Index}) {
		t.Fatalf("segment 0 successors = %v, want [%d]", a.Succ, c.Index)
	}
	if len(c.Pred) != 1 || len(c.Succ) != 1 {
		t.Fatalf("segment 2 pred %v succ %v", c.Pred, c.Succ)
	}
	// segment 0 refers to 1 before it is described, only 1's reference survives
	b, _ := net.SegmentByNumber(1)
	if len(a.Intf) != 0 || !reflect.DeepEqual(b.Intf, []int{a.Index}) {
		t.Fatalf("yield links: 0 -> %v, 1 -> %v", a.Intf, b.Intf)
	}
	if err := net.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}
