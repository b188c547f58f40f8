package lanesim

// generate.go creates random networks and fills networks with packets

import (
	"fmt"
)

// side of the square random nodes are placed on
const generateSpan = 20

// GenerateNetwork creates the description of a random network. nodes points
// are placed on a grid; every node gets a segment leaving it and a segment
// entering it, both to or from another random node. Each segment continues
// into every segment leaving the node it ends at, and segments ending at the
// same node merge with one another.
func GenerateNetwork(name string, nodes int, rng RandSource) (*NetworkDesc, error) {
	if nodes < 2 {
		return nil, fmt.Errorf("%w: a random network needs at least 2 nodes, asked for %d", ErrBadParam, nodes)
	}

	points := make([]Coord, nodes)
	for idx := range points {
		points[idx] = Coord{X: float64(rng.RandInt(0, generateSpan-1) - generateSpan/2),
			Y: float64(rng.RandInt(0, generateSpan-1) - generateSpan/2)}
	}

	// other picks a node different from idx
	other := func(idx int) int {
		pick := rng.RandInt(0, nodes-2)
		if pick >= idx {
			pick += 1
		}
		return pick
	}

	nf := CreateNetworkFrame(name)
	in := make([][]*SegmentFrame, nodes)
	out := make([][]*SegmentFrame, nodes)
	addLine := func(from, to int) {
		sf := nf.CreateSegmentFrame(points[from], points[to])
		out[from] = append(out[from], sf)
		in[to] = append(in[to], sf)
	}
	for from := 0; from < nodes; from++ {
		addLine(from, other(from))
	}
	for to := 0; to < nodes; to++ {
		addLine(other(to), to)
	}

	for node := 0; node < nodes; node++ {
		for _, arriving := range in[node] {
			for _, leaving := range out[node] {
				ConnectSegments(arriving, leaving)
			}
			for _, peer := range in[node] {
				if peer != arriving {
					arriving.AddMerge(peer)
				}
			}
		}
	}

	nd := nf.Transform()
	return &nd, nil
}

// Populate places on every segment a random number of packets, between none and
// twice avg, evenly spaced from the segment's end backwards. Packets that would
// come too close to one already present are skipped. The number placed is returned.
func (net *Network) Populate(avg int) (int, error) {
	if net.ctrl.InTick() {
		return 0, ErrInTick
	}
	placed := 0
	sp := &net.Params
	for _, seg := range net.segments {
		count := net.rng.RandInt(0, 2*avg)
		for idx := 0; idx < count; idx++ {
			offset := seg.Length - 1 - idx*seg.Length/count
			ps := PacketSpec{Segment: seg.Index, Offset: offset, Speed: 0,
				PrefSpeed: sp.NominalSpeed - 10 + net.rng.RandInt(0, 20),
				Color:     randomColor(net.rng)}
			if !seg.hasRoom(offset) {
				continue
			}
			if _, err := net.Spawn(ps); err != nil {
				return placed, err
			}
			placed += 1
		}
	}
	return placed, nil
}
