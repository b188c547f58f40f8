package lanesim

// scheduler.go drives a Network from a discrete event manager. Ticks become
// events spaced one period apart in virtual time, so that other event
// driven activity (packet sources in particular) interleaves with them and
// always sees the network between ticks.

import (
	"context"

	"github.com/iti/evt/evtm"
	"github.com/iti/evt/vrtime"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/iti/lanesim"

// TickRunner schedules the ticks of a Network as events
type TickRunner struct {
	net    *Network
	period float64 // virtual seconds between ticks
	limit  int     // ticks to run, unbounded when not positive
	done   int     // ticks run by this runner
	err    error   // error that stopped the runner
	tracer trace.Tracer
}

// CreateTickRunner is a constructor. Ticks are spaced by the network's Period
// parameter; limit bounds the number of ticks run, with limit <= 0 leaving it
// to the event manager's time limit to stop the run.
func CreateTickRunner(net *Network, limit int) *TickRunner {
	tr := new(TickRunner)
	tr.net = net
	tr.period = net.Params.Period
	tr.limit = limit
	tr.tracer = otel.Tracer(tracerName)
	return tr
}

// Start schedules the first tick one period from the current virtual time
func (tr *TickRunner) Start(evtMgr *evtm.EventManager) {
	evtMgr.Schedule(tr, nil, runTick, vrtime.SecondsToTime(tr.period))
}

// Done returns the number of ticks run
func (tr *TickRunner) Done() int {
	return tr.done
}

// Err returns the error that stopped the runner, if any
func (tr *TickRunner) Err() error {
	return tr.err
}

// runTick is the event handler for one tick. It schedules the next one
// unless the limit is reached or the tick failed.
func runTick(evtMgr *evtm.EventManager, context any, data any) any {
	tr := context.(*TickRunner)
	if tr.err != nil {
		return nil
	}

	tr.err = tr.tick(evtMgr.CurrentSeconds())
	if tr.err != nil {
		return nil
	}
	tr.done += 1
	if tr.limit <= 0 || tr.done < tr.limit {
		evtMgr.Schedule(tr, nil, runTick, vrtime.SecondsToTime(tr.period))
	}
	return nil
}

// tick runs one network tick inside a span
func (tr *TickRunner) tick(now float64) error {
	_, span := tr.tracer.Start(context.Background(), "tick",
		trace.WithAttributes(
			attribute.Int("tick", tr.net.Ticks()+1),
			attribute.Float64("time", now),
		))
	defer span.End()

	err := tr.net.Tick()
	span.SetAttributes(attribute.Int("packets", tr.net.LivePackets()))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}
