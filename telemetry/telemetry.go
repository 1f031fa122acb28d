package telemetry

import (
	"errors"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Collector captures telemetry events emitted by the view state engine.
//
// Implementations may forward metrics to Prometheus, loggers or other
// monitoring systems. They should be inexpensive to call because hooks are
// executed inline with every dispatched event.
type Collector interface {
	IncEvent(role string)
	IncCommand(kind string)
	IncSkippedWrite(kind string)
	SetTracked(count int)
	IncHotReload(file string)
}

type noopCollector struct{}

// Noop returns a collector that discards all metrics.
func Noop() Collector {
	return noopCollector{}
}

func (noopCollector) IncEvent(string)        {}
func (noopCollector) IncCommand(string)      {}
func (noopCollector) IncSkippedWrite(string) {}
func (noopCollector) SetTracked(int)         {}
func (noopCollector) IncHotReload(string)    {}

// PrometheusCollector exposes telemetry counters via Prometheus.
type PrometheusCollector struct {
	events        *prometheus.CounterVec
	commands      *prometheus.CounterVec
	skippedWrites *prometheus.CounterVec
	tracked       prometheus.Gauge
	hotReloads    *prometheus.CounterVec
}

var (
	metricsLock      sync.Mutex
	eventCounter     *prometheus.CounterVec
	commandCounter   *prometheus.CounterVec
	skippedCounter   *prometheus.CounterVec
	trackedGauge     prometheus.Gauge
	hotReloadCounter *prometheus.CounterVec
)

// NewPrometheusCollector registers the required metrics with the provided
// registerer. Metrics registered by an earlier call are reused.
func NewPrometheusCollector(reg prometheus.Registerer) (*PrometheusCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	metricsLock.Lock()
	defer metricsLock.Unlock()

	var err error
	if eventCounter == nil {
		eventCounter, err = registerCounterVec(reg, prometheus.CounterOpts{
			Name: "viewstate_events_total",
			Help: "Number of tracked events observed per correlation role.",
		}, "role")
		if err != nil {
			return nil, err
		}
	}
	if commandCounter == nil {
		commandCounter, err = registerCounterVec(reg, prometheus.CounterOpts{
			Name: "viewstate_commands_applied_total",
			Help: "Number of lifecycle commands that changed the view state collection.",
		}, "command")
		if err != nil {
			return nil, err
		}
	}
	if skippedCounter == nil {
		skippedCounter, err = registerCounterVec(reg, prometheus.CounterOpts{
			Name: "viewstate_commands_skipped_total",
			Help: "Number of lifecycle commands that left the view state collection unchanged.",
		}, "command")
		if err != nil {
			return nil, err
		}
	}
	if trackedGauge == nil {
		gauge := prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "viewstate_tracked_operations",
			Help: "Number of operations currently tracked in the view state collection.",
		})
		if err := reg.Register(gauge); err != nil {
			var already prometheus.AlreadyRegisteredError
			if !errors.As(err, &already) {
				return nil, err
			}
			existing, ok := already.ExistingCollector.(prometheus.Gauge)
			if !ok {
				return nil, err
			}
			gauge = existing
		}
		trackedGauge = gauge
	}
	if hotReloadCounter == nil {
		hotReloadCounter, err = registerCounterVec(reg, prometheus.CounterOpts{
			Name: "viewstate_config_hot_reload_total",
			Help: "Number of hot reload operations triggered per configuration source file.",
		}, "file")
		if err != nil {
			return nil, err
		}
	}

	return &PrometheusCollector{
		events:        eventCounter,
		commands:      commandCounter,
		skippedWrites: skippedCounter,
		tracked:       trackedGauge,
		hotReloads:    hotReloadCounter,
	}, nil
}

func registerCounterVec(reg prometheus.Registerer, opts prometheus.CounterOpts, labels ...string) (*prometheus.CounterVec, error) {
	counter := prometheus.NewCounterVec(opts, labels)
	if err := reg.Register(counter); err != nil {
		var already prometheus.AlreadyRegisteredError
		if !errors.As(err, &already) {
			return nil, err
		}
		existing, ok := already.ExistingCollector.(*prometheus.CounterVec)
		if !ok {
			return nil, err
		}
		return existing, nil
	}
	return counter, nil
}

// IncEvent counts an event that matched a correlation role.
func (p *PrometheusCollector) IncEvent(role string) {
	if p == nil || p.events == nil {
		return
	}
	p.events.WithLabelValues(role).Inc()
}

// IncCommand counts a command that changed the collection.
func (p *PrometheusCollector) IncCommand(kind string) {
	if p == nil || p.commands == nil {
		return
	}
	p.commands.WithLabelValues(kind).Inc()
}

// IncSkippedWrite counts a command deduplicated by status equality.
func (p *PrometheusCollector) IncSkippedWrite(kind string) {
	if p == nil || p.skippedWrites == nil {
		return
	}
	p.skippedWrites.WithLabelValues(kind).Inc()
}

// SetTracked updates the tracked operations gauge.
func (p *PrometheusCollector) SetTracked(count int) {
	if p == nil || p.tracked == nil {
		return
	}
	p.tracked.Set(float64(count))
}

// IncHotReload increments the counter for the provided file path.
func (p *PrometheusCollector) IncHotReload(file string) {
	if p == nil || p.hotReloads == nil {
		return
	}
	p.hotReloads.WithLabelValues(file).Inc()
}
