package connpool

import "sync/atomic"

type counter interface {
	inc() (newVal int)
	val() int
}

type occupier interface {
	occupancy() map[Address]usage
}

type usage struct {
	idle  int
	inUse int
}

type count struct {
	v int64
}

func newCounter() counter {
	return &count{}
}

func (c *count) inc() (new int) {
	return int(atomic.AddInt64(&c.v, 1))
}

func (c *count) val() int {
	return int(atomic.LoadInt64(&c.v))
}

type stats struct {
	o        occupier
	request  counter
	success  counter
	created  counter
	evicted  counter
	failures counter
}

func newStats(o occupier) *stats {
	return &stats{
		o:        o,
		request:  newCounter(),
		success:  newCounter(),
		created:  newCounter(),
		evicted:  newCounter(),
		failures: newCounter(),
	}
}

func (s *stats) snapshot() Stats {
	snap := &statsSnapshot{
		request: s.request.val(),
		success: s.success.val(),
		created: s.created.val(),
		evicted: s.evicted.val(),
	}
	for _, u := range s.o.occupancy() {
		snap.idle += u.idle
		snap.inUse += u.inUse
	}
	return snap
}

type statsSnapshot struct {
	idle    int
	inUse   int
	request int
	success int
	created int
	evicted int
}

func (s *statsSnapshot) Idle() int {
	return s.idle
}

func (s *statsSnapshot) InUse() int {
	return s.inUse
}

func (s *statsSnapshot) Request() int {
	return s.request
}

func (s *statsSnapshot) Success() int {
	return s.success
}

func (s *statsSnapshot) Created() int {
	return s.created
}

func (s *statsSnapshot) Evicted() int {
	return s.evicted
}
