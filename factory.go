package connpool

import "net"

// DialFactory returns a Factory dialing TCP with d. Timeouts and keep-alives
// are taken from d; a nil d uses the zero net.Dialer.
func DialFactory(d *net.Dialer) Factory {
	if d == nil {
		d = &net.Dialer{}
	}
	return func(addr Address, onFailure FailureFunc) (Conn, error) {
		c, err := d.Dial("tcp", addr.String())
		if err != nil {
			return nil, err
		}
		return NewNetConn(c, addr, onFailure), nil
	}
}
