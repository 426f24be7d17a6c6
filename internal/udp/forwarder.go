package udp

import (
	"encoding/json"
	"fmt"
	"log"
	"net"
	"sync/atomic"

	"tk102-ng/internal/server"
)

const (
	FormatJSON = "json"
	FormatRaw  = "raw"
)

type udpConn interface {
	Write(p []byte) (int, error)
	Close() error
}

type resolveFunc func(network, address string) (*net.UDPAddr, error)
type dialFunc func(network string, laddr, raddr *net.UDPAddr) (udpConn, error)

// Forwarder sends one datagram per track event: the report as JSON, or the
// raw sentence.
type Forwarder struct {
	dest   string
	format string
	conn   udpConn

	sent   atomic.Uint64
	errors atomic.Uint64
}

func NewForwarder(dest string, format string) (*Forwarder, error) {
	return newForwarder(dest, format, net.ResolveUDPAddr, func(network string, laddr, raddr *net.UDPAddr) (udpConn, error) {
		return net.DialUDP(network, laddr, raddr)
	})
}

func newForwarder(dest string, format string, resolve resolveFunc, dial dialFunc) (*Forwarder, error) {
	if format == "" {
		format = FormatJSON
	}
	if format != FormatJSON && format != FormatRaw {
		return nil, fmt.Errorf("unknown udp format %q", format)
	}
	addr, err := resolve("udp", dest)
	if err != nil {
		return nil, fmt.Errorf("resolve dest: %w", err)
	}

	// DialUDP selects a suitable local address automatically.
	conn, err := dial("udp", nil, addr)
	if err != nil {
		return nil, fmt.Errorf("dial udp: %w", err)
	}

	return &Forwarder{
		dest:   dest,
		format: format,
		conn:   conn,
	}, nil
}

func (f *Forwarder) Send(payload []byte) error {
	if len(payload) == 0 {
		return nil
	}
	_, err := f.conn.Write(payload)
	return err
}

func (f *Forwarder) OnEvent(ev server.Event) {
	if ev.Kind != server.EventTrack || ev.Report == nil {
		return
	}
	var payload []byte
	switch f.format {
	case FormatRaw:
		payload = []byte(ev.Report.Raw)
	default:
		b, err := json.Marshal(ev.Report)
		if err != nil {
			log.Printf("udp: marshal report: %v", err)
			return
		}
		payload = b
	}
	if err := f.Send(payload); err != nil {
		// Log the first failure and then every 100th, so an absent receiver
		// does not flood the log.
		if n := f.errors.Add(1); n == 1 || n%100 == 0 {
			log.Printf("udp: send to %s failed (%d so far): %v", f.dest, n, err)
		}
		return
	}
	f.sent.Add(1)
}

// Stats returns datagrams sent and send errors.
func (f *Forwarder) Stats() (sent, errs uint64) {
	return f.sent.Load(), f.errors.Load()
}

func (f *Forwarder) Close() error {
	if f.conn == nil {
		return nil
	}
	return f.conn.Close()
}
