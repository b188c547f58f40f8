package lanesim

// flow.go has packet sources: event driven injection of new packets at the
// start of an entry segment, with exponentially distributed gaps between
// attempts

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/iti/evt/evtm"
	"github.com/iti/evt/vrtime"
	"github.com/iti/lanesim/internal/logging"
	"github.com/iti/rngstream"
)

// Source injects packets into one segment
type Source struct {
	Name      string
	Segment   int     // index of the segment packets are placed on
	Dest      int     // index of a segment to plan routes to, or NoPacket for random routes
	Rate      float64 // mean attempts per virtual second
	Suspended bool

	Injected int // packets placed
	Blocked  int // attempts given up because the entry was not clear

	rng *rngstream.RngStream
	net *Network
}

// CreateSource is a constructor. The segment is registered with the network as an
// entry so that validation covers everything the source's packets can reach.
func CreateSource(net *Network, name string, segIdx int, rate float64, dest int) (*Source, error) {
	if !(rate > 0) {
		return nil, fmt.Errorf("source %s: %w: rate must be positive", name, ErrBadParam)
	}
	if err := net.AddEntry(segIdx); err != nil {
		return nil, fmt.Errorf("source %s: %w", name, err)
	}
	if dest != NoPacket {
		if _, err := net.PlanRoute(segIdx, dest); err != nil {
			return nil, fmt.Errorf("source %s: %w", name, err)
		}
	}
	src := new(Source)
	src.Name = name
	src.Segment = segIdx
	src.Dest = dest
	src.Rate = rate
	src.rng = rngstream.New(name)
	src.net = net
	return src, nil
}

// Start schedules the first arrival
func (src *Source) Start(evtMgr *evtm.EventManager) {
	evtMgr.Schedule(src, nil, sourceArrival, vrtime.SecondsToTime(src.nextGap()))
}

// Suspend stops injection until Resume is called; arrivals keep being drawn
func (src *Source) Suspend() {
	src.Suspended = true
}

// Resume restarts injection
func (src *Source) Resume() {
	src.Suspended = false
}

// nextGap draws an exponentially distributed interarrival time
func (src *Source) nextGap() float64 {
	u01 := src.rng.RandU01()
	return -math.Log(1.0-u01) / src.Rate
}

// spec describes the next packet of the source
func (src *Source) spec() (PacketSpec, error) {
	sp := &src.net.Params
	ps := PacketSpec{Segment: src.Segment, Offset: 0, Speed: 0,
		PrefSpeed: sp.NominalSpeed - 10 + src.rng.RandInt(0, 20),
		Color:     randomColor(src.rng)}
	if src.Dest != NoPacket {
		route, err := src.net.PlanRoute(src.Segment, src.Dest)
		if err != nil {
			return ps, err
		}
		if len(route) > sp.RouteLookahead {
			route = route[:sp.RouteLookahead]
		}
		ps.Route = route
	}
	return ps, nil
}

// Inject places one packet at the start of the source's segment, if there is room
func (src *Source) Inject() (int, error) {
	ps, err := src.spec()
	if err != nil {
		return NoPacket, err
	}
	id, err := src.net.Spawn(ps)
	if errors.Is(err, ErrNoRoom) {
		src.Blocked += 1
		return NoPacket, err
	}
	if err != nil {
		return NoPacket, err
	}
	src.Injected += 1
	return id, nil
}

// arrive injects a packet unless the source is suspended. A full entry only
// costs this arrival; other failures are logged.
func (src *Source) arrive() {
	if src.Suspended {
		return
	}
	if _, err := src.Inject(); err != nil && !errors.Is(err, ErrNoRoom) {
		src.net.logger.Error(context.Background(), "source failed to inject",
			logging.String("source", src.Name), logging.Any("error", err))
	}
}

// sourceArrival is the event handler of an arrival; it injects a packet and
// schedules the next arrival
func sourceArrival(evtMgr *evtm.EventManager, context any, data any) any {
	src := context.(*Source)
	src.arrive()
	evtMgr.Schedule(src, nil, sourceArrival, vrtime.SecondsToTime(src.nextGap()))
	return nil
}

// randomColor draws each component from [0.4, 0.9)
func randomColor(rng RandSource) [3]float64 {
	var color [3]float64
	for idx := range color {
		color[idx] = 0.4 + float64(rng.RandInt(0, 499))/1000.0
	}
	return color
}
