package connpool

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"
)

var (
	// ErrServiceUnavailable is returned when no usable connection could be produced.
	ErrServiceUnavailable = errors.New("service unavailable")

	ErrClosed        = fmt.Errorf("%w: pool is closed", ErrServiceUnavailable)
	ErrPoolExhausted = fmt.Errorf("%w: connection limit reached", ErrServiceUnavailable)
)

// Address identifies a server endpoint. The pool only uses it as a map key.
type Address struct {
	Host string
	Port int
}

func (a Address) String() string {
	return net.JoinHostPort(a.Host, strconv.Itoa(a.Port))
}

// ParseAddress splits a "host:port" string into an Address.
func ParseAddress(s string) (Address, error) {
	host, port, err := net.SplitHostPort(s)
	if err != nil {
		return Address{}, fmt.Errorf("invalid address %q: %w", s, err)
	}
	p, err := strconv.Atoi(port)
	if err != nil {
		return Address{}, fmt.Errorf("invalid port in address %q: %w", s, err)
	}
	return Address{Host: host, Port: p}, nil
}

// Conn is the capability set the pool needs from a connection.
// Implementations must be comparable, pointer types are expected.
type Conn interface {
	// Address is the peer the connection is bound to. It never changes.
	Address() Address

	// Reset restores the connection to a reusable state.
	Reset() error

	// Close tears down the transport. It must be safe to call more than once.
	Close() error

	// Closed reports whether Close has been called.
	Closed() bool

	// Defunct reports whether a fatal error was latched on the connection.
	// Once true it never reverts.
	Defunct() bool
}

// FailureFunc reports that the address of a connection may be bad.
type FailureFunc func(addr Address)

// Factory builds a new connection to addr. onFailure is handed to the
// connection so the protocol layer can report address failures later.
type Factory func(addr Address, onFailure FailureFunc) (Conn, error)

type Pool interface {
	Name() string
	AcquireDirect(addr Address) (Conn, error)
	Release(c Conn)
	InUseConnectionCount(addr Address) int
	Remove(addr Address) error
	Addresses() []Address
	Closed() bool
	Close() error
	Stats() Stats
}

type Config struct {
	// MaxConnectionsPerAddress bounds in-use connections per address. Zero means unbounded.
	MaxConnectionsPerAddress int `yaml:"max_connections_per_address" envconfig:"MAX_CONNECTIONS_PER_ADDRESS"`

	// AcquisitionTimeout is how long AcquireDirect waits for a slot when the
	// limit is reached. Zero rejects immediately.
	AcquisitionTimeout time.Duration `yaml:"acquisition_timeout" envconfig:"ACQUISITION_TIMEOUT"`
}

type Stats interface {
	// Idle connections waiting in the pool.
	Idle() int

	// InUse connections held by callers.
	InUse() int

	// Request total number of acquire attempts.
	Request() int

	// Success total number of successful acquires.
	Success() int

	// Created total number of connections built by the factory.
	Created() int

	// Evicted total number of connections dropped as defunct, closed or unresettable.
	Evicted() int
}
