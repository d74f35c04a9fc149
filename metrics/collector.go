// Package metrics exports pipeline execution statistics to Prometheus.
// The collector reads the task counters on scrape, so the hot loop pays
// nothing beyond the bookkeeping the tasks already do.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/polarsim/wavekit/pipeline"
)

// Collector turns the call counters and timers of registered modules
// into constant metrics. Same-named tasks aggregate across modules, so
// parallel workers running identical chains fold into one series per
// stage. It implements prometheus.Collector.
type Collector struct {
	mu      sync.RWMutex
	modules []*pipeline.Module

	calls    *prometheus.Desc
	duration *prometheus.Desc
	durMin   *prometheus.Desc
	durMax   *prometheus.Desc
	phase    *prometheus.Desc
}

// NewCollector builds an empty collector; add modules with Register.
func NewCollector() *Collector {
	taskLabels := []string{"module", "task"}
	return &Collector{
		calls: prometheus.NewDesc(
			"wavekit_task_calls_total",
			"Number of times the task executed.",
			taskLabels, nil),
		duration: prometheus.NewDesc(
			"wavekit_task_duration_seconds_total",
			"Wall time spent inside the task codelet.",
			taskLabels, nil),
		durMin: prometheus.NewDesc(
			"wavekit_task_duration_seconds_min",
			"Shortest observed task execution.",
			taskLabels, nil),
		durMax: prometheus.NewDesc(
			"wavekit_task_duration_seconds_max",
			"Longest observed task execution.",
			taskLabels, nil),
		phase: prometheus.NewDesc(
			"wavekit_task_phase_seconds_total",
			"Wall time per registered sub-phase of the task.",
			[]string{"module", "task", "phase"}, nil),
	}
}

// Register adds the modules' tasks to the scrape and switches their
// statistics on.
func (c *Collector) Register(mods ...*pipeline.Module) {
	for _, m := range mods {
		for _, t := range m.Tasks() {
			t.SetStats(true)
		}
	}
	c.mu.Lock()
	c.modules = append(c.modules, mods...)
	c.mu.Unlock()
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.calls
	ch <- c.duration
	ch <- c.durMin
	ch <- c.durMax
	ch <- c.phase
}

type taskKey struct {
	module, task string
}

type phaseKey struct {
	module, task, phase string
}

type taskAgg struct {
	calls    uint64
	total    time.Duration
	min, max time.Duration
	ranged   bool
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	aggs := map[taskKey]*taskAgg{}
	var order []taskKey
	phases := map[phaseKey]time.Duration{}
	var phaseOrder []phaseKey

	for _, m := range c.modules {
		for _, t := range m.Tasks() {
			key := taskKey{m.Name(), t.Name()}
			a, ok := aggs[key]
			if !ok {
				a = &taskAgg{}
				aggs[key] = a
				order = append(order, key)
			}
			calls := t.NCalls()
			total, min, max := t.Durations()
			a.calls += calls
			a.total += total
			if calls > 0 {
				if !a.ranged || min < a.min {
					a.min = min
				}
				if max > a.max {
					a.max = max
				}
				a.ranged = true
			}
			for _, name := range t.TimerKeys() {
				tm, err := t.TimerStats(name)
				if err != nil {
					continue
				}
				pk := phaseKey{m.Name(), t.Name(), name}
				if _, ok := phases[pk]; !ok {
					phaseOrder = append(phaseOrder, pk)
				}
				phases[pk] += tm.Total
			}
		}
	}

	for _, key := range order {
		a := aggs[key]
		ch <- prometheus.MustNewConstMetric(c.calls, prometheus.CounterValue,
			float64(a.calls), key.module, key.task)
		ch <- prometheus.MustNewConstMetric(c.duration, prometheus.CounterValue,
			a.total.Seconds(), key.module, key.task)
		if a.ranged {
			ch <- prometheus.MustNewConstMetric(c.durMin, prometheus.GaugeValue,
				a.min.Seconds(), key.module, key.task)
			ch <- prometheus.MustNewConstMetric(c.durMax, prometheus.GaugeValue,
				a.max.Seconds(), key.module, key.task)
		}
	}
	for _, pk := range phaseOrder {
		ch <- prometheus.MustNewConstMetric(c.phase, prometheus.CounterValue,
			phases[pk].Seconds(), pk.module, pk.task, pk.phase)
	}
}
