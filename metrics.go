package connpool

import "github.com/prometheus/client_golang/prometheus"

const metricsNamespace = "connpool"

type collector struct {
	p *pool

	connections *prometheus.Desc
	requests    *prometheus.Desc
	acquired    *prometheus.Desc
	created     *prometheus.Desc
	evicted     *prometheus.Desc
	failures    *prometheus.Desc
}

func newCollector(p *pool) *collector {
	labels := prometheus.Labels{"pool": p.name}
	desc := func(name, help string, variable ...string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(metricsNamespace, "", name), help, variable, labels)
	}
	return &collector{
		p:           p,
		connections: desc("connections", "Pooled connections by address and state.", "address", "state"),
		requests:    desc("requests_total", "Acquire attempts."),
		acquired:    desc("acquired_total", "Successful acquires."),
		created:     desc("created_total", "Connections built by the factory."),
		evicted:     desc("evicted_total", "Connections evicted as closed, defunct or unresettable."),
		failures:    desc("address_failures_total", "Address failures escalated to the error handler."),
	}
}

func (c *collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.connections
	ch <- c.requests
	ch <- c.acquired
	ch <- c.created
	ch <- c.evicted
	ch <- c.failures
}

func (c *collector) Collect(ch chan<- prometheus.Metric) {
	for addr, u := range c.p.occupancy() {
		ch <- prometheus.MustNewConstMetric(c.connections, prometheus.GaugeValue, float64(u.idle), addr.String(), "idle")
		ch <- prometheus.MustNewConstMetric(c.connections, prometheus.GaugeValue, float64(u.inUse), addr.String(), "in_use")
	}
	s := c.p.stats
	ch <- prometheus.MustNewConstMetric(c.requests, prometheus.CounterValue, float64(s.request.val()))
	ch <- prometheus.MustNewConstMetric(c.acquired, prometheus.CounterValue, float64(s.success.val()))
	ch <- prometheus.MustNewConstMetric(c.created, prometheus.CounterValue, float64(s.created.val()))
	ch <- prometheus.MustNewConstMetric(c.evicted, prometheus.CounterValue, float64(s.evicted.val()))
	ch <- prometheus.MustNewConstMetric(c.failures, prometheus.CounterValue, float64(s.failures.val()))
}
