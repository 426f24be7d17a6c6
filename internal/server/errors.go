package server

import (
	"sync/atomic"
)

const (
	reasonCannotParse  = "Cannot parse GPS data from device"
	msgSocketError     = "socket error"
	msgServerError     = "server error"
	msgAddrUnavailable = "IP or port not available"
)

// ParseError is carried by fail events.
type ParseError struct {
	Reason string
	Input  string
	Conn   *ConnInfo
}

func (e *ParseError) Error() string {
	return e.Reason
}

// SocketError is carried by error events raised by a session.
type SocketError struct {
	Reason   string
	Conn     *ConnInfo
	Settings Settings
	Err      error
}

func (e *SocketError) Error() string {
	return msgSocketError + ": " + e.Reason
}

func (e *SocketError) Unwrap() error {
	return e.Err
}

// BindError is returned by Listener.Start when the address cannot be bound,
// and is also reported on accept failures.
type BindError struct {
	Reason   string
	Settings Settings
	// Unavailable is set when the IP is not local or the port is taken.
	Unavailable bool
	Err         error
}

func (e *BindError) Error() string {
	if e.Unavailable {
		return msgAddrUnavailable + ": " + e.Reason
	}
	return msgServerError + ": " + e.Reason
}

func (e *BindError) Unwrap() error {
	return e.Err
}

type atomicCounter struct {
	v atomic.Uint64
}

func (c *atomicCounter) inc() {
	c.v.Add(1)
}

func (c *atomicCounter) load() uint64 {
	return c.v.Load()
}
