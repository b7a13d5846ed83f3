// Package metric samples caller-supplied gauges into a Prometheus
// registry on a cron schedule.
package metric

import (
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/robfig/cron/v3"
)

// ErrClosed is returned by [Collector.Add] after [Collector.Close].
var ErrClosed = errors.New("metric: collector is closed")

// A Value is a single gauge sample qualified by its label values.
type Value struct {
	Labels []string
	Value  float64
}

// ValueOf returns a Value for an integer gauge reading.
func ValueOf(value int, labels ...string) Value {
	return Value{Labels: labels, Value: float64(value)}
}

// A Metric describes one gauge to sample. Collect is called on every
// tick of the collector's schedule and returns a Value per label
// combination; it must be safe to call from the sampling goroutine.
type Metric struct {
	Name        string
	Description string
	Labels      []string
	Collect     func() []Value
}

// A Collector periodically refreshes registered gauges on a fixed
// schedule.
type Collector struct {
	registerer prometheus.Registerer
	schedule   cron.Schedule

	wg        sync.WaitGroup
	closeOnce sync.Once
	closed    chan struct{}
}

// NewCollector returns a collector that samples on the given
// schedule, registering its gauges with registerer. The schedule uses
// the standard five-field cron syntax; descriptors such as
// "@every 30s" also work.
func NewCollector(registerer prometheus.Registerer, schedule string) (*Collector, error) {
	s, err := cron.ParseStandard(schedule)
	if err != nil {
		return nil, errors.WithMessagef(err, "parse schedule %q", schedule)
	}
	return &Collector{
		registerer: registerer,
		schedule:   s,
		closed:     make(chan struct{}),
	}, nil
}

// Add registers m's gauge vector and starts sampling it on the
// collector's schedule. The first sample is taken right away rather
// than on the first tick. If a gauge with the same name is already
// registered, it is reused. On a closed collector Add registers
// nothing and returns [ErrClosed].
func (c *Collector) Add(m Metric) error {
	select {
	case <-c.closed:
		return ErrClosed
	default:
	}

	vec := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: m.Name,
		Help: m.Description,
	}, m.Labels)

	if err := c.registerer.Register(vec); err != nil {
		var already prometheus.AlreadyRegisteredError
		if !errors.As(err, &already) {
			return errors.WithMessagef(err, "register %s", m.Name)
		}
		vec = already.ExistingCollector.(*prometheus.GaugeVec)
	}

	c.wg.Add(1)
	go c.sample(vec, m.Collect)
	return nil
}

func (c *Collector) sample(vec *prometheus.GaugeVec, collect func() []Value) {
	defer c.wg.Done()
	for {
		for _, v := range collect() {
			vec.WithLabelValues(v.Labels...).Set(v.Value)
		}

		now := time.Now()
		select {
		case <-time.After(c.schedule.Next(now).Sub(now)):
		case <-c.closed:
			return
		}
	}
}

// Close stops all sampling goroutines and waits for them to finish.
// It is safe to call more than once.
func (c *Collector) Close() {
	c.closeOnce.Do(func() { close(c.closed) })
	c.wg.Wait()
}
