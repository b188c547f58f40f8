package lanesim

// routes.go converts the segment network into the graph representation of
// gonum, and uses it to check that no packet can run into a dead end, to
// plan shortest routes, and to summarize the strongly connected parts of
// the network.
//
// Every segment is a node, with an edge from a segment to each of its
// successors weighted by the length of the segment it leaves. A shortest
// path then minimizes the distance driven from the start of the first
// segment to the start of the last.

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/path"
	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/topo"
	"gonum.org/v1/gonum/graph/traverse"
)

// graphOf returns the graph of the segment network, building it if needed
func (net *Network) graphOf() *simple.WeightedDirectedGraph {
	if net.segGraph != nil {
		return net.segGraph
	}
	segGraph := simple.NewWeightedDirectedGraph(0, math.Inf(1))
	for _, seg := range net.segments {
		segGraph.AddNode(simple.Node(seg.Index))
	}
	for _, seg := range net.segments {
		for _, succ := range seg.Succ {
			// a segment leading into itself adds nothing to reachability or routes
			if succ == seg.Index {
				continue
			}
			edge := simple.WeightedEdge{F: simple.Node(seg.Index), T: simple.Node(succ), W: float64(seg.Length)}
			segGraph.SetWeightedEdge(edge)
		}
	}
	net.segGraph = segGraph
	net.cachedSP = make(map[int]path.Shortest)
	return segGraph
}

// getSPTree returns the tree of shortest paths rooted in segment from,
// computing and caching it when not already known
func (net *Network) getSPTree(from int) path.Shortest {
	segGraph := net.graphOf()
	spTree, present := net.cachedSP[from]
	if present {
		return spTree
	}
	spTree = path.DijkstraFrom(segGraph.Node(int64(from)), segGraph)
	net.cachedSP[from] = spTree
	return spTree
}

// convertNodeSeq extracts segment indices from a sequence of graph nodes
func convertNodeSeq(nodes []graph.Node) []int {
	rtn := make([]int, 0, len(nodes))
	for _, node := range nodes {
		rtn = append(rtn, int(node.ID()))
	}
	return rtn
}

// PlanRoute returns the shortest sequence of segment indices leading from
// segment from to segment to, both included
func (net *Network) PlanRoute(from, to int) ([]int, error) {
	if net.Segment(from) == nil {
		return nil, fmt.Errorf("route source %d: %w", from, ErrUnknownSegment)
	}
	if net.Segment(to) == nil {
		return nil, fmt.Errorf("route destination %d: %w", to, ErrUnknownSegment)
	}
	if from == to {
		return []int{from}, nil
	}
	nodes, _ := net.getSPTree(from).To(int64(to))
	if len(nodes) == 0 {
		return nil, fmt.Errorf("segment %d cannot be reached from segment %d",
			net.segments[to].Number, net.segments[from].Number)
	}
	return convertNodeSeq(nodes), nil
}

// ShowRoute lists the description numbers of the segments on a route
func (net *Network) ShowRoute(route []int) string {
	names := make([]string, 0, len(route))
	for _, idx := range route {
		if seg := net.Segment(idx); seg != nil {
			names = append(names, strconv.Itoa(seg.Number))
		}
	}
	return strings.Join(names, ",")
}

// Reachable returns, sorted, the indices of every segment reachable from the given ones,
// the given ones included
func (net *Network) Reachable(roots []int) []int {
	segGraph := net.graphOf()
	seen := make(map[int]bool)
	bfs := traverse.BreadthFirst{
		Visit: func(node graph.Node) { seen[int(node.ID())] = true },
	}
	for _, root := range roots {
		if net.Segment(root) == nil || seen[root] {
			continue
		}
		bfs.Walk(segGraph, segGraph.Node(int64(root)), nil)
	}
	reached := make([]int, 0, len(seen))
	for idx := range seen {
		reached = append(reached, idx)
	}
	sort.Ints(reached)
	return reached
}

// roots returns the segments holding packets together with the entries
func (net *Network) roots() []int {
	roots := make([]int, 0, len(net.entries))
	roots = append(roots, net.entries...)
	for _, seg := range net.segments {
		if len(seg.residents.Read()) > 0 {
			roots = append(roots, seg.Index)
		}
	}
	return roots
}

// Validate fails when any segment a packet can get to has no successor,
// or has a length that is not positive
func (net *Network) Validate() error {
	errs := []error{}
	for _, seg := range net.segments {
		if seg.Length <= 0 {
			errs = append(errs, fmt.Errorf("segment %d has length %d", seg.Number, seg.Length))
		}
	}
	for _, idx := range net.Reachable(net.roots()) {
		seg := net.segments[idx]
		if len(seg.Succ) == 0 {
			errs = append(errs, fmt.Errorf("segment %d: %w", seg.Number, ErrDeadEnd))
		}
	}
	err := ReportErrs(errs)
	net.checked = err == nil
	return err
}

// Components returns the strongly connected components of the network as lists
// of segment indices, largest first
func (net *Network) Components() [][]int {
	sccs := topo.TarjanSCC(net.graphOf())
	comps := make([][]int, 0, len(sccs))
	for _, scc := range sccs {
		comp := convertNodeSeq(scc)
		sort.Ints(comp)
		comps = append(comps, comp)
	}
	sort.Slice(comps, func(i, j int) bool {
		if len(comps[i]) != len(comps[j]) {
			return len(comps[i]) > len(comps[j])
		}
		return comps[i][0] < comps[j][0]
	})
	return comps
}
