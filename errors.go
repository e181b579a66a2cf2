package connpool

import "fmt"

// ConnectError is returned by AcquireDirect when the factory could not
// establish a connection. It matches ErrServiceUnavailable with errors.Is.
type ConnectError struct {
	Address Address
	Err     error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("%v: cannot connect to %s: %v", ErrServiceUnavailable, e.Address, e.Err)
}

func (e *ConnectError) Unwrap() error {
	return e.Err
}

func (e *ConnectError) Is(target error) bool {
	return target == ErrServiceUnavailable
}
