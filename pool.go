package connpool

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"go.uber.org/multierr"
)

const (
	defaultNamePrefix = "conn-pool"
)

var (
	connPoolCounter = newCounter()
)

type Option func(p *pool) error

// WithName is an option and used for naming the pool.
func WithName(name string) Option {
	return func(p *pool) error {
		p.name = name
		return nil
	}
}

// WithLogger sets the logger the pool reports evictions and failures to.
func WithLogger(logger logrus.FieldLogger) Option {
	return func(p *pool) error {
		if logger == nil {
			return fmt.Errorf("nil logger")
		}
		p.logger = logger
		return nil
	}
}

// WithConfig applies cfg to the pool. See Config for the meaning of each field.
func WithConfig(cfg Config) Option {
	return func(p *pool) error {
		if err := cfg.validate(); err != nil {
			return err
		}
		p.cfg = cfg
		return nil
	}
}

// WithRegisterer registers the pool's metrics collector with r once the pool is built.
func WithRegisterer(r prometheus.Registerer) Option {
	return func(p *pool) error {
		p.registerer = r
		return nil
	}
}

type bucket struct {
	mu     sync.Mutex
	conns  []*entry
	closed bool
	slots  *admission
}

type entry struct {
	Conn
	inUse bool
}

type pool struct {
	name       string
	cfg        Config
	factory    Factory
	handler    ErrorHandler
	logger     logrus.FieldLogger
	registerer prometheus.Registerer
	collector  prometheus.Collector
	closed     int32
	ctx        context.Context
	cancel     context.CancelFunc
	mu         sync.RWMutex
	buckets    map[Address]*bucket
	stats      *stats
}

// New returns a connection Pool which builds connections with factory and
// escalates address failures to handler. A nil handler behaves like
// DirectErrorHandler.
func New(factory Factory, handler ErrorHandler, options ...Option) (Pool, error) {
	if factory == nil {
		return nil, fmt.Errorf("no connection factory provided")
	}
	if handler == nil {
		handler = DirectErrorHandler{}
	}

	p := &pool{
		factory: factory,
		handler: handler,
		logger:  discardLogger(),
		buckets: make(map[Address]*bucket),
	}
	p.stats = newStats(p)
	for _, opt := range options {
		if err := opt(p); err != nil {
			return nil, err
		}
	}
	if p.name == "" {
		p.name = fmt.Sprintf("%s-%d", defaultNamePrefix, connPoolCounter.inc())
	}
	p.logger = p.logger.WithField("pool", p.name)
	if p.registerer != nil {
		c := newCollector(p)
		if err := p.registerer.Register(c); err != nil {
			return nil, fmt.Errorf("registering metrics of %s: %w", p.name, err)
		}
		p.collector = c
	}
	p.ctx, p.cancel = context.WithCancel(context.Background())
	return p, nil
}

// AcquireDirect returns a connection bound to addr, reusing an idle healthy
// one when possible. Idle connections found closed or defunct are evicted on
// the way. Release the connection when done with it.
func (p *pool) AcquireDirect(addr Address) (c Conn, err error) {
	defer p.updateStat(&err)

	if p.Closed() {
		return nil, ErrClosed
	}
	b, err := p.bucket(addr)
	if err != nil {
		return nil, err
	}
	if err := b.slots.acquire(p.ctx, p.cfg.AcquisitionTimeout); err != nil {
		return nil, err
	}
	c, err = p.acquire(b, addr)
	if err != nil {
		b.slots.release(1)
	}
	return c, err
}

// Release hands c back to the pool. Connections that fail to reset, or that
// are closed or defunct afterwards, are evicted. Releasing a connection the
// pool does not track as in use does nothing.
func (p *pool) Release(c Conn) {
	if c == nil {
		return
	}
	addr := c.Address()
	b := p.lookup(addr)
	if b == nil {
		return
	}

	b.mu.Lock()
	i := b.index(c)
	if i < 0 || !b.conns[i].inUse {
		b.mu.Unlock()
		return
	}
	healthy := true
	if err := c.Reset(); err != nil {
		p.logger.WithFields(logrus.Fields{"address": addr, "error": err}).Warn("Connection reset failed")
		healthy = false
	} else if c.Closed() || c.Defunct() {
		healthy = false
	}
	if healthy {
		b.conns[i].inUse = false
	} else {
		b.conns = append(b.conns[:i], b.conns[i+1:]...)
	}
	b.mu.Unlock()

	b.slots.release(1)
	if !healthy {
		p.evict(addr, c)
	}
}

// InUseConnectionCount returns how many connections to addr are held by callers.
func (p *pool) InUseConnectionCount(addr Address) int {
	b := p.lookup(addr)
	if b == nil {
		return 0
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.count(true)
}

// Remove closes every connection to addr, in use or not. Later releases of
// the removed connections are no-ops.
func (p *pool) Remove(addr Address) error {
	b := p.lookup(addr)
	if b == nil {
		return nil
	}
	b.mu.Lock()
	conns := b.conns
	b.conns = nil
	b.mu.Unlock()

	inUse := 0
	var err error
	for _, e := range conns {
		if e.inUse {
			inUse++
		}
		err = multierr.Append(err, e.Close())
	}
	b.slots.release(inUse)
	p.logger.WithFields(logrus.Fields{"address": addr, "count": len(conns)}).Debug("Removed address from pool")
	return err
}

// Addresses returns the addresses that currently hold at least one connection.
func (p *pool) Addresses() []Address {
	usages := p.occupancy()
	addrs := make([]Address, 0, len(usages))
	for addr, u := range usages {
		if u.idle+u.inUse > 0 {
			addrs = append(addrs, addr)
		}
	}
	sort.Slice(addrs, func(i, j int) bool {
		return addrs[i].String() < addrs[j].String()
	})
	return addrs
}

// Closed reports whether Close has been called.
func (p *pool) Closed() bool {
	return atomic.LoadInt32(&p.closed) == 1
}

// Close terminates the pool and closes every connection it tracks, including
// the ones currently held by callers. It can be called more than once.
func (p *pool) Close() error {
	if !atomic.CompareAndSwapInt32(&p.closed, 0, 1) {
		return nil
	}
	// Wakes callers waiting for a connection slot.
	p.cancel()
	if p.collector != nil {
		p.registerer.Unregister(p.collector)
	}

	p.mu.Lock()
	buckets := p.buckets
	p.buckets = make(map[Address]*bucket)
	p.mu.Unlock()

	var err error
	for addr, b := range buckets {
		b.mu.Lock()
		conns := b.conns
		b.conns = nil
		b.closed = true
		b.mu.Unlock()

		for _, e := range conns {
			if cerr := e.Close(); cerr != nil {
				err = multierr.Append(err, fmt.Errorf("closing connection to %s: %w", addr, cerr))
			}
		}
	}
	if err != nil {
		p.logger.WithError(err).Warn("Errors while closing pool")
	}
	return err
}

// Name returns the pool name.
// If you do not provide name param while creating the pool then a name starts with "conn-pool" is assigned.
func (p *pool) Name() string {
	return p.name
}

// Stats returns statistical info of pool.
func (p *pool) Stats() Stats {
	return p.stats.snapshot()
}

// bucket returns the bucket of addr, creating it on first use.
func (p *pool) bucket(addr Address) (*bucket, error) {
	if b := p.lookup(addr); b != nil {
		return b, nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.Closed() {
		return nil, ErrClosed
	}
	b, ok := p.buckets[addr]
	if !ok {
		b = &bucket{slots: newAdmission(p.cfg.MaxConnectionsPerAddress)}
		p.buckets[addr] = b
	}
	return b, nil
}

func (p *pool) lookup(addr Address) *bucket {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.buckets[addr]
}

func (p *pool) acquire(b *bucket, addr Address) (Conn, error) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil, ErrClosed
	}
	c, stale := b.checkout()
	b.mu.Unlock()

	p.evict(addr, stale...)
	if c != nil {
		p.logger.WithField("address", addr).Debug("Reusing idle connection")
		return c, nil
	}

	// The bucket stays unlocked while dialing so other callers of the same
	// address are not serialized behind network I/O.
	c, err := p.factory(addr, p.onFailure)
	if err == nil && c == nil {
		err = errors.New("factory returned no connection")
	}
	if err != nil {
		p.logger.WithFields(logrus.Fields{"address": addr, "error": err}).Warn("Could not establish connection")
		p.onFailure(addr)
		return nil, &ConnectError{Address: addr, Err: err}
	}
	p.stats.created.inc()

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		_ = c.Close()
		return nil, ErrClosed
	}
	b.conns = append(b.conns, &entry{Conn: c, inUse: true})
	b.mu.Unlock()

	p.logger.WithField("address", addr).Debug("Created connection")
	return c, nil
}

// evict closes connections already unlinked from their bucket.
func (p *pool) evict(addr Address, conns ...Conn) {
	for _, c := range conns {
		p.stats.evicted.inc()
		if err := c.Close(); err != nil {
			p.logger.WithFields(logrus.Fields{"address": addr, "error": err}).Warn("Closing evicted connection failed")
			continue
		}
		p.logger.WithField("address", addr).Debug("Evicted connection")
	}
}

func (p *pool) onFailure(addr Address) {
	p.stats.failures.inc()
	p.logger.WithField("address", addr).Warn("Address failure reported")
	p.handler.OnFailure(addr)
}

func (p *pool) occupancy() map[Address]usage {
	p.mu.RLock()
	buckets := make(map[Address]*bucket, len(p.buckets))
	for addr, b := range p.buckets {
		buckets[addr] = b
	}
	p.mu.RUnlock()

	usages := make(map[Address]usage, len(buckets))
	for addr, b := range buckets {
		b.mu.Lock()
		usages[addr] = usage{idle: b.count(false), inUse: b.count(true)}
		b.mu.Unlock()
	}
	return usages
}

func (p *pool) updateStat(err *error) {
	p.stats.request.inc()
	if *err == nil {
		p.stats.success.inc()
	}
}

// checkout marks the first idle healthy connection in use. Idle connections
// found closed or defunct before it are unlinked and returned as stale.
func (b *bucket) checkout() (c Conn, stale []Conn) {
	for i := 0; i < len(b.conns); {
		e := b.conns[i]
		if e.inUse {
			i++
			continue
		}
		if e.Closed() || e.Defunct() {
			stale = append(stale, e.Conn)
			b.conns = append(b.conns[:i], b.conns[i+1:]...)
			continue
		}
		e.inUse = true
		return e.Conn, stale
	}
	return nil, stale
}

func (b *bucket) index(c Conn) int {
	for i, e := range b.conns {
		if e.Conn == c {
			return i
		}
	}
	return -1
}

func (b *bucket) count(inUse bool) int {
	n := 0
	for _, e := range b.conns {
		if e.inUse == inUse {
			n++
		}
	}
	return n
}

// WithConn acquires a connection to addr, runs fn with it and releases it on
// every exit path.
func WithConn(p Pool, addr Address, fn func(Conn) error) error {
	c, err := p.AcquireDirect(addr)
	if err != nil {
		return err
	}
	defer p.Release(c)
	return fn(c)
}

func discardLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}
