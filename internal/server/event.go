package server

import (
	"net"
	"time"

	"tk102-ng/internal/tk102"
)

type EventKind string

const (
	EventListening  EventKind = "listening"
	EventConnection EventKind = "connection"
	EventData       EventKind = "data"
	EventTimeout    EventKind = "timeout"
	EventTrack      EventKind = "track"
	EventFail       EventKind = "fail"
	EventError      EventKind = "error"
)

// ConnInfo identifies one accepted socket.
type ConnInfo struct {
	ID         uint64    `json:"id"`
	RemoteAddr string    `json:"remote_addr"`
	LocalAddr  string    `json:"local_addr"`
	Created    time.Time `json:"created"`
}

// Event is one notification from the Listener or a session.
//
// Which fields are set depends on Kind:
//
//	listening:  Addr
//	connection: Conn
//	data:       Conn, Chunk
//	timeout:    Conn
//	track:      Conn, Payload (untrimmed input), Report
//	fail:       Conn, Payload, Err (*ParseError)
//	error:      Conn (nil for listener errors), Err (*SocketError or *BindError)
type Event struct {
	Kind    EventKind
	At      time.Time
	Conn    *ConnInfo
	Addr    net.Addr
	Chunk   []byte
	Payload string
	Report  *tk102.Report
	Err     error
}

// Observer receives events. OnEvent is called from many goroutines and must
// not block.
type Observer interface {
	OnEvent(Event)
}

type ObserverFunc func(Event)

func (f ObserverFunc) OnEvent(ev Event) {
	if f != nil {
		f(ev)
	}
}

// Observers fans each event out in order.
type Observers []Observer

func (o Observers) OnEvent(ev Event) {
	for _, obs := range o {
		if obs != nil {
			obs.OnEvent(ev)
		}
	}
}

// Chan delivers events to ch without blocking; events are dropped when ch is
// full. The returned func reports how many were dropped.
func Chan(ch chan<- Event) (Observer, func() uint64) {
	var dropped atomicCounter
	obs := ObserverFunc(func(ev Event) {
		select {
		case ch <- ev:
		default:
			dropped.inc()
		}
	})
	return obs, dropped.load
}
