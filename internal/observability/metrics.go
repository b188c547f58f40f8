package observability

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// SimCollector bundles Prometheus metrics describing a running simulation.
// It satisfies the recorder interface networks report their ticks to.
type SimCollector struct {
	gatherer prometheus.Gatherer

	Actions       *prometheus.CounterVec
	GridlockGrant prometheus.Counter
	Transfers     prometheus.Counter
	Ticks         prometheus.Counter
	LivePackets   prometheus.Gauge
	TickDurations *prometheus.HistogramVec
}

// NewSimCollector registers simulation metrics against the provided
// registerer, defaulting to the global Prometheus registry when nil.
func NewSimCollector(reg prometheus.Registerer) (*SimCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	actions, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "lanesim_actions_total",
		Help: "Speed actions taken by packets, labeled by action.",
	}, []string{"action"}), "lanesim_actions_total")
	if err != nil {
		return nil, err
	}

	grants, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "lanesim_gridlock_grants_total",
		Help: "Right of way grants issued to break waiting cycles.",
	}), "lanesim_gridlock_grants_total")
	if err != nil {
		return nil, err
	}

	transfers, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "lanesim_transfers_total",
		Help: "Packets that crossed from one segment into the next.",
	}), "lanesim_transfers_total")
	if err != nil {
		return nil, err
	}

	ticks, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "lanesim_ticks_total",
		Help: "Completed simulation ticks.",
	}), "lanesim_ticks_total")
	if err != nil {
		return nil, err
	}

	live, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "lanesim_live_packets",
		Help: "Packets on the network after the last tick.",
	}), "lanesim_live_packets")
	if err != nil {
		return nil, err
	}

	durations, err := registerHistogramVec(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "lanesim_tick_duration_seconds",
		Help:    "Wall clock time spent computing one tick.",
		Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
	}, []string{}), "lanesim_tick_duration_seconds")
	if err != nil {
		return nil, err
	}

	return &SimCollector{
		gatherer:      gatherer,
		Actions:       actions,
		GridlockGrant: grants,
		Transfers:     transfers,
		Ticks:         ticks,
		LivePackets:   live,
		TickDurations: durations,
	}, nil
}

// ObserveAction counts one packet decision
func (c *SimCollector) ObserveAction(action string) {
	c.Actions.WithLabelValues(action).Inc()
}

// ObserveGridlockGrant counts one right of way grant
func (c *SimCollector) ObserveGridlockGrant() {
	c.GridlockGrant.Inc()
}

// ObserveTransfer counts one segment crossing
func (c *SimCollector) ObserveTransfer() {
	c.Transfers.Inc()
}

// ObserveTick records a completed tick
func (c *SimCollector) ObserveTick(packets int, elapsed time.Duration) {
	c.Ticks.Inc()
	c.LivePackets.Set(float64(packets))
	c.TickDurations.WithLabelValues().Observe(elapsed.Seconds())
}

// WriteTextfile writes the gathered metrics in the Prometheus text exposition
// format, for node exporter style collection after a batch run.
func (c *SimCollector) WriteTextfile(filename string) error {
	if err := prometheus.WriteToTextfile(filename, c.gatherer); err != nil {
		return fmt.Errorf("write metrics to %s: %w", filename, err)
	}
	return nil
}

func registerCounterVec(reg prometheus.Registerer, vec *prometheus.CounterVec, name string) (*prometheus.CounterVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerHistogramVec(reg prometheus.Registerer, vec *prometheus.HistogramVec, name string) (*prometheus.HistogramVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.HistogramVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerCounter(reg prometheus.Registerer, counter prometheus.Counter, name string) (prometheus.Counter, error) {
	if err := reg.Register(counter); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Counter); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return counter, nil
}

func registerGauge(reg prometheus.Registerer, gauge prometheus.Gauge, name string) (prometheus.Gauge, error) {
	if err := reg.Register(gauge); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Gauge); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return gauge, nil
}
