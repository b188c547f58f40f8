package lanesim

// view.go is what a rendering layer sees of a network: copies of the
// current epoch, safe to keep after later ticks

import (
	"golang.org/x/exp/slices"
)

// PacketView describes a packet in the current epoch
type PacketView struct {
	ID        int
	Segment   int // segment index
	Offset    int
	Speed     int
	PrefSpeed int
	Color     [3]float64
	Action    SpeedAction
	BlockedBy int  // NoPacket when not waiting
	Physical  bool // waiting on the packet ahead
	Waited    int
	Yield     []int // packets granted right of way
	Route     []int // segment indices, the first one being Segment
}

// SegmentView describes a segment and the packets on it, front first
type SegmentView struct {
	Index   int
	Number  int
	Begin   Coord
	End     Coord
	Length  int
	Succ    []int
	Packets []PacketView
}

func (pckt *Packet) view() PacketView {
	st := pckt.now()
	return PacketView{ID: pckt.ID, Segment: st.Seg, Offset: st.Offset, Speed: st.Speed,
		PrefSpeed: pckt.PrefSpeed, Color: pckt.Color, Action: st.Action, BlockedBy: st.BlockedBy,
		Physical: st.Physical, Waited: st.Waited,
		Yield: slices.Clone(st.Yield), Route: slices.Clone(st.Route)}
}

// View describes the segment
func (seg *Segment) View() SegmentView {
	sv := SegmentView{Index: seg.Index, Number: seg.Number, Begin: seg.Begin, End: seg.End,
		Length: seg.Length, Succ: slices.Clone(seg.Succ)}
	residents := seg.residents.Read()
	sv.Packets = make([]PacketView, 0, len(residents))
	for _, id := range residents {
		if pckt, present := seg.net.packets[id]; present {
			sv.Packets = append(sv.Packets, pckt.view())
		}
	}
	return sv
}

// Segments describes every segment in index order
func (net *Network) Segments() []SegmentView {
	views := make([]SegmentView, len(net.segments))
	for idx, seg := range net.segments {
		views[idx] = seg.View()
	}
	return views
}

// Packet describes the packet with the given id
func (net *Network) Packet(id int) (PacketView, bool) {
	pckt, present := net.packets[id]
	if !present {
		return PacketView{}, false
	}
	return pckt.view(), true
}

// TotalCreated returns the number of packets ever placed on the network
func (net *Network) TotalCreated() int {
	return net.created
}

// LivePackets returns the number of packets on the network
func (net *Network) LivePackets() int {
	return len(net.packets)
}
