package connpool

import (
	"errors"
	"fmt"
	"net"
	"sync"
	"time"
)

// NetConn adapts a net.Conn to Conn. The first Read or Write error latches
// the connection as defunct and is reported through the failure callback.
type NetConn struct {
	net.Conn
	addr      Address
	onFailure FailureFunc
	mu        sync.RWMutex
	defunct   bool
	closed    bool
}

func NewNetConn(c net.Conn, addr Address, onFailure FailureFunc) *NetConn {
	return &NetConn{Conn: c, addr: addr, onFailure: onFailure}
}

func (c *NetConn) Address() Address {
	return c.addr
}

func (c *NetConn) Read(b []byte) (int, error) {
	n, err := c.Conn.Read(b)
	if err != nil {
		c.fail(err)
	}
	return n, err
}

func (c *NetConn) Write(b []byte) (int, error) {
	n, err := c.Conn.Write(b)
	if err != nil {
		c.fail(err)
	}
	return n, err
}

// Reset clears any deadline left behind by the previous user.
func (c *NetConn) Reset() error {
	if c.Closed() {
		return fmt.Errorf("connection to %s is closed", c.addr)
	}
	if c.Defunct() {
		return fmt.Errorf("connection to %s is defunct", c.addr)
	}
	return c.Conn.SetDeadline(time.Time{})
}

func (c *NetConn) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()
	return c.Conn.Close()
}

func (c *NetConn) Closed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.closed
}

func (c *NetConn) Defunct() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.defunct
}

// MarkDefunct latches the connection as unusable without reporting the address.
// Use it when the protocol failed but the server is known to be fine.
func (c *NetConn) MarkDefunct() {
	c.mu.Lock()
	c.defunct = true
	c.mu.Unlock()
}

// fail latches the connection. Timeouts say nothing about the address, so
// they are not reported.
func (c *NetConn) fail(err error) {
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		c.MarkDefunct()
		return
	}
	c.mu.Lock()
	already := c.defunct || c.closed
	c.defunct = true
	c.mu.Unlock()
	if !already && c.onFailure != nil {
		c.onFailure(c.addr)
	}
}
