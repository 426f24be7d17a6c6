package web

import (
	"errors"
	"net"
	"testing"

	"tk102-ng/internal/server"
)

func TestHub_SubscribeReceives(t *testing.T) {
	h := NewHub(4)
	id, ch := h.Subscribe(1)

	h.OnEvent(server.Event{Kind: server.EventData, Chunk: []byte("abc")})
	msg := <-ch
	if msg.Kind != "data" || msg.Bytes != 3 {
		t.Fatalf("msg=%+v", msg)
	}

	h.Unsubscribe(id)
	if _, ok := <-ch; ok {
		t.Fatalf("expected closed channel after unsubscribe")
	}
	if h.Snapshot().Subscribers != 0 {
		t.Fatalf("expected no subscribers")
	}
}

func TestHub_FullSubscriberDrops(t *testing.T) {
	h := NewHub(4)
	_, _ = h.Subscribe(1)

	h.OnEvent(server.Event{Kind: server.EventConnection})
	h.OnEvent(server.Event{Kind: server.EventConnection})
	if got := h.Snapshot().Dropped; got != 1 {
		t.Fatalf("dropped=%d want 1", got)
	}
}

func TestToMessage_Errors(t *testing.T) {
	perr := &server.ParseError{Reason: "Cannot parse GPS data from device", Input: "junk"}
	msg := toMessage(server.Event{Kind: server.EventFail, Err: perr})
	if msg.Reason != perr.Reason || msg.Input != "junk" {
		t.Fatalf("msg=%+v", msg)
	}

	serr := &server.SocketError{Reason: "connection reset", Err: errors.New("reset")}
	msg = toMessage(server.Event{Kind: server.EventError, Err: serr})
	if msg.Reason != "socket error: connection reset" || msg.Input != "" {
		t.Fatalf("msg=%+v", msg)
	}

	addr := &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 9000}
	msg = toMessage(server.Event{Kind: server.EventListening, Addr: addr})
	if msg.Addr != "127.0.0.1:9000" {
		t.Fatalf("addr=%q", msg.Addr)
	}
}
