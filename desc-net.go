package lanesim

// file desc-net.go holds structs, methods, and data structures supporting
// the description of segment networks: frames are built in code with
// pointers between segments, descriptions replace the pointers with
// segment numbers and can be serialized to yaml or json

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path"
	"strings"

	"github.com/iti/lanesim/internal/logging"
	"gopkg.in/yaml.v3"
)

// SegmentDesc is a serializable description of a segment, the links to other
// segments given by their numbers
type SegmentDesc struct {
	Number int   `json:"number" yaml:"number"`
	Begin  Coord `json:"begin" yaml:"begin"`
	End    Coord `json:"end" yaml:"end"`

	// computed from the endpoints when not positive
	Length int `json:"length,omitempty" yaml:"length,omitempty"`

	In    []int `json:"in" yaml:"in"`
	Out   []int `json:"out" yaml:"out"`
	Merge []int `json:"merge" yaml:"merge"`
	Yield []int `json:"yield" yaml:"yield"`
}

// PacketDesc describes a packet present when the simulation starts
type PacketDesc struct {
	Segment   int `json:"segment" yaml:"segment"` // segment number
	Offset    int `json:"offset" yaml:"offset"`
	Speed     int `json:"speed" yaml:"speed"`
	PrefSpeed int `json:"prefspeed" yaml:"prefspeed"`
}

// SourceDesc describes a packet source
type SourceDesc struct {
	Name    string  `json:"name" yaml:"name"`
	Segment int     `json:"segment" yaml:"segment"` // segment number
	Rate    float64 `json:"rate" yaml:"rate"`

	// number of the segment routes are planned to, negative for random routes
	Dest int `json:"dest" yaml:"dest"`
}

// NetworkDesc is a serializable description of a whole network
type NetworkDesc struct {
	Name     string        `json:"name" yaml:"name"`
	Segments []SegmentDesc `json:"segments" yaml:"segments"`
	Packets  []PacketDesc  `json:"packets,omitempty" yaml:"packets,omitempty"`
	Sources  []SourceDesc  `json:"sources,omitempty" yaml:"sources,omitempty"`
}

// CreateNetworkDesc is a constructor
func CreateNetworkDesc(name string) *NetworkDesc {
	nd := new(NetworkDesc)
	nd.Name = name
	nd.Segments = make([]SegmentDesc, 0)
	return nd
}

// WriteToFile stores the NetworkDesc struct to the file whose name is given.
// Serialization to json or to yaml is selected based on the extension of this name.
func (nd *NetworkDesc) WriteToFile(filename string) error {
	bytes, err := marshalByExt(filename, *nd)
	if err != nil {
		return err
	}
	return os.WriteFile(filename, bytes, 0o644)
}

// ReadNetworkDesc deserializes a byte slice holding a representation of a NetworkDesc struct.
// If the input argument of dict (those bytes) is empty, the file whose name is given is read
// to acquire them.  A deserialized representation is returned, or an error if one is generated
// from a file read or the deserialization.
func ReadNetworkDesc(filename string, useYAML bool, dict []byte) (*NetworkDesc, error) {
	var err error

	// if the dict slice of bytes is empty we get them from the file whose name is an argument
	if len(dict) == 0 {
		dict, err = os.ReadFile(filename)
		if err != nil {
			return nil, err
		}
	}

	example := NetworkDesc{}
	if useYAML {
		err = yaml.Unmarshal(dict, &example)
	} else {
		err = json.Unmarshal(dict, &example)
	}
	if err != nil {
		return nil, err
	}
	return &example, nil
}

// SegmentFrame describes a segment while a network is assembled in code
type SegmentFrame struct {
	Number int
	Begin  Coord
	End    Coord
	Length int

	In    []*SegmentFrame
	Out   []*SegmentFrame
	Merge []*SegmentFrame
	Yield []*SegmentFrame
}

// NetworkFrame holds the frames of a network in the order they were created
type NetworkFrame struct {
	Name     string
	Segments []*SegmentFrame
}

// CreateNetworkFrame is a constructor
func CreateNetworkFrame(name string) *NetworkFrame {
	nf := new(NetworkFrame)
	nf.Name = name
	nf.Segments = make([]*SegmentFrame, 0)
	return nf
}

// CreateSegmentFrame adds a segment numbered after the ones already present
func (nf *NetworkFrame) CreateSegmentFrame(begin, end Coord) *SegmentFrame {
	sf := new(SegmentFrame)
	sf.Number = len(nf.Segments)
	sf.Begin = begin
	sf.End = end
	sf.In = make([]*SegmentFrame, 0)
	sf.Out = make([]*SegmentFrame, 0)
	sf.Merge = make([]*SegmentFrame, 0)
	sf.Yield = make([]*SegmentFrame, 0)
	nf.Segments = append(nf.Segments, sf)
	return sf
}

func framePresent(frames []*SegmentFrame, sf *SegmentFrame) bool {
	for _, frame := range frames {
		if frame == sf {
			return true
		}
	}
	return false
}

// ConnectSegments makes to a successor of from
func ConnectSegments(from, to *SegmentFrame) {
	if !framePresent(from.Out, to) {
		from.Out = append(from.Out, to)
	}
	if !framePresent(to.In, from) {
		to.In = append(to.In, from)
	}
}

// AddMerge records that traffic of sf merges with that of other
func (sf *SegmentFrame) AddMerge(other *SegmentFrame) {
	if !framePresent(sf.Merge, other) {
		sf.Merge = append(sf.Merge, other)
	}
}

// AddYield records that traffic of sf yields to that of other
func (sf *SegmentFrame) AddYield(other *SegmentFrame) {
	if !framePresent(sf.Yield, other) {
		sf.Yield = append(sf.Yield, other)
	}
}

func frameNumbers(frames []*SegmentFrame) []int {
	numbers := make([]int, len(frames))
	for idx, frame := range frames {
		numbers[idx] = frame.Number
	}
	return numbers
}

// Transform returns the serializable version of the frame
func (sf *SegmentFrame) Transform() SegmentDesc {
	return SegmentDesc{Number: sf.Number, Begin: sf.Begin, End: sf.End, Length: sf.Length,
		In: frameNumbers(sf.In), Out: frameNumbers(sf.Out),
		Merge: frameNumbers(sf.Merge), Yield: frameNumbers(sf.Yield)}
}

// Transform returns the serializable version of the network frame
func (nf *NetworkFrame) Transform() NetworkDesc {
	nd := CreateNetworkDesc(nf.Name)
	for _, sf := range nf.Segments {
		nd.Segments = append(nd.Segments, sf.Transform())
	}
	return *nd
}

// BuildNetwork creates a network from a description. Segments are created
// first and linked once all of them exist; a link to a segment the
// description does not hold is dropped. Packets of the description are
// placed, its sources are not started (see BuildSources).
func BuildNetwork(nd *NetworkDesc, params SimParams, logger logging.Logger) (*Network, error) {
	if logger == nil {
		logger = logging.Noop()
	}
	net, err := CreateNetwork(nd.Name, params)
	if err != nil {
		return nil, err
	}
	net.SetLogger(logger)
	ctx := context.Background()

	for _, sd := range nd.Segments {
		if _, err := net.AddSegment(sd.Number, sd.Begin, sd.End, sd.Length); err != nil {
			return nil, err
		}
	}

	dropped := 0
	for _, sd := range nd.Segments {
		links := []struct {
			others []int
			apply  func(other int) error
		}{
			{sd.In, func(other int) error { return net.Connect(other, sd.Number) }},
			{sd.Out, func(other int) error { return net.Connect(sd.Number, other) }},
			{sd.Merge, func(other int) error { return net.AddMerge(sd.Number, other) }},
			{sd.Yield, func(other int) error { return net.AddYield(sd.Number, other) }},
		}
		for _, link := range links {
			for _, other := range link.others {
				if _, present := net.SegmentByNumber(other); !present {
					dropped += 1
					logger.Debug(ctx, "dropped reference to unknown segment",
						logging.Int("segment", sd.Number), logging.Int("reference", other))
					continue
				}
				if err := link.apply(other); err != nil {
					return nil, err
				}
			}
		}
	}

	for _, pd := range nd.Packets {
		seg, present := net.SegmentByNumber(pd.Segment)
		if !present {
			return nil, fmt.Errorf("packet on segment %d: %w", pd.Segment, ErrUnknownSegment)
		}
		_, err := net.Spawn(PacketSpec{Segment: seg.Index, Offset: pd.Offset, Speed: pd.Speed,
			PrefSpeed: pd.PrefSpeed, Color: randomColor(net.rng)})
		if err != nil {
			return nil, err
		}
	}

	logger.Info(ctx, "network built",
		logging.String("network", nd.Name),
		logging.Int("segments", net.NumSegments()),
		logging.Int("packets", net.LivePackets()),
		logging.Int("dropped_references", dropped))
	return net, nil
}

// BuildSources creates the sources of a description for a network built from it
func BuildSources(net *Network, nd *NetworkDesc) ([]*Source, error) {
	sources := make([]*Source, 0, len(nd.Sources))
	for idx, sd := range nd.Sources {
		seg, present := net.SegmentByNumber(sd.Segment)
		if !present {
			return nil, fmt.Errorf("source %s: segment %d: %w", sd.Name, sd.Segment, ErrUnknownSegment)
		}
		dest := NoPacket
		if sd.Dest >= 0 {
			destSeg, present := net.SegmentByNumber(sd.Dest)
			if !present {
				return nil, fmt.Errorf("source %s: destination %d: %w", sd.Name, sd.Dest, ErrUnknownSegment)
			}
			dest = destSeg.Index
		}
		name := sd.Name
		if len(name) == 0 {
			name = fmt.Sprintf("%s-source-%d", nd.Name, idx)
		}
		src, err := CreateSource(net, name, seg.Index, sd.Rate, dest)
		if err != nil {
			return nil, err
		}
		sources = append(sources, src)
	}
	return sources, nil
}

// Describe returns a description of the network's topology and of the packets
// on it in the current epoch
func (net *Network) Describe() NetworkDesc {
	nd := CreateNetworkDesc(net.Name)
	numbers := func(indices []int) []int {
		rtn := make([]int, len(indices))
		for idx, segIdx := range indices {
			rtn[idx] = net.segments[segIdx].Number
		}
		return rtn
	}
	for _, seg := range net.segments {
		nd.Segments = append(nd.Segments, SegmentDesc{Number: seg.Number, Begin: seg.Begin, End: seg.End,
			Length: seg.Length, In: numbers(seg.Pred), Out: numbers(seg.Succ),
			Merge: numbers(seg.Coop), Yield: numbers(seg.Intf)})
		for _, id := range seg.residents.Read() {
			pckt := net.packets[id]
			st := pckt.now()
			nd.Packets = append(nd.Packets, PacketDesc{Segment: seg.Number, Offset: st.Offset,
				Speed: st.Speed, PrefSpeed: pckt.PrefSpeed})
		}
	}
	return *nd
}

// LoadNetwork reads a network description, as yaml or json when the file
// extension says so and in the flat text format otherwise, and builds it
func LoadNetwork(filename string, params SimParams, logger logging.Logger) (*Network, *NetworkDesc, error) {
	if _, err := CheckReadableFiles([]string{filename}); err != nil {
		return nil, nil, err
	}

	var nd *NetworkDesc
	var err error
	switch strings.ToLower(path.Ext(filename)) {
	case ".yaml", ".yml", ".json":
		nd, err = ReadNetworkDesc(filename, useYAMLExt(filename), nil)
	default:
		nd, err = ReadNetworkText(filename, logger)
	}
	if err != nil {
		return nil, nil, err
	}
	net, err := BuildNetwork(nd, params, logger)
	if err != nil {
		return nil, nil, err
	}
	return net, nd, nil
}
