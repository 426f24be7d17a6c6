package web

import (
	"errors"
	"sync"
	"time"

	"tk102-ng/internal/server"
	"tk102-ng/internal/tk102"
)

// EventMessage is the JSON form of a server.Event sent to websocket clients.
type EventMessage struct {
	Kind       string        `json:"kind"`
	At         string        `json:"at"`
	ConnID     uint64        `json:"conn_id,omitempty"`
	RemoteAddr string        `json:"remote_addr,omitempty"`
	Addr       string        `json:"addr,omitempty"`
	Bytes      int           `json:"bytes,omitempty"`
	Report     *tk102.Report `json:"report,omitempty"`
	Reason     string        `json:"reason,omitempty"`
	Input      string        `json:"input,omitempty"`
}

type HubSnapshot struct {
	Subscribers int    `json:"subscribers"`
	Tracks      uint64 `json:"tracks"`
	Fails       uint64 `json:"fails"`
	Dropped     uint64 `json:"dropped"`
}

// Hub fans events out to subscribers and keeps the most recent tracks.
// Slow subscribers lose messages rather than stall sessions.
type Hub struct {
	mu     sync.RWMutex
	subs   map[int]chan EventMessage
	nextID int

	recentMu  sync.Mutex
	maxRecent int
	recent    []tk102.Report
	tracks    uint64
	fails     uint64
	dropped   uint64
}

func NewHub(maxRecent int) *Hub {
	if maxRecent <= 0 {
		maxRecent = 100
	}
	return &Hub{
		subs:      make(map[int]chan EventMessage),
		maxRecent: maxRecent,
		recent:    make([]tk102.Report, 0, maxRecent),
	}
}

func (h *Hub) Subscribe(buffer int) (int, <-chan EventMessage) {
	if h == nil {
		return 0, nil
	}
	if buffer <= 0 {
		buffer = 16
	}
	ch := make(chan EventMessage, buffer)
	h.mu.Lock()
	id := h.nextID
	h.nextID++
	h.subs[id] = ch
	h.mu.Unlock()
	return id, ch
}

func (h *Hub) Unsubscribe(id int) {
	if h == nil {
		return
	}
	h.mu.Lock()
	ch, ok := h.subs[id]
	if ok {
		delete(h.subs, id)
		close(ch)
	}
	h.mu.Unlock()
}

func (h *Hub) OnEvent(ev server.Event) {
	if h == nil {
		return
	}
	msg := toMessage(ev)

	switch ev.Kind {
	case server.EventTrack:
		if ev.Report != nil {
			h.addRecent(*ev.Report)
		}
	case server.EventFail:
		h.recentMu.Lock()
		h.fails++
		h.recentMu.Unlock()
	}

	// Holding the read lock keeps Unsubscribe from closing a channel mid-send.
	h.mu.RLock()
	for _, ch := range h.subs {
		select {
		case ch <- msg:
		default:
			h.recentMu.Lock()
			h.dropped++
			h.recentMu.Unlock()
		}
	}
	h.mu.RUnlock()
}

func (h *Hub) addRecent(rep tk102.Report) {
	h.recentMu.Lock()
	defer h.recentMu.Unlock()
	h.tracks++
	if len(h.recent) < h.maxRecent {
		h.recent = append(h.recent, rep)
		return
	}
	copy(h.recent, h.recent[1:])
	h.recent[len(h.recent)-1] = rep
}

// Recent returns up to n reports, oldest first. n <= 0 returns all.
func (h *Hub) Recent(n int) []tk102.Report {
	if h == nil {
		return nil
	}
	h.recentMu.Lock()
	defer h.recentMu.Unlock()
	if n <= 0 || n > len(h.recent) {
		n = len(h.recent)
	}
	return append([]tk102.Report(nil), h.recent[len(h.recent)-n:]...)
}

func (h *Hub) Snapshot() HubSnapshot {
	if h == nil {
		return HubSnapshot{}
	}
	h.mu.RLock()
	subs := len(h.subs)
	h.mu.RUnlock()
	h.recentMu.Lock()
	defer h.recentMu.Unlock()
	return HubSnapshot{Subscribers: subs, Tracks: h.tracks, Fails: h.fails, Dropped: h.dropped}
}

func toMessage(ev server.Event) EventMessage {
	at := ev.At
	if at.IsZero() {
		at = time.Now()
	}
	msg := EventMessage{
		Kind:   string(ev.Kind),
		At:     at.UTC().Format(time.RFC3339Nano),
		Bytes:  len(ev.Chunk),
		Report: ev.Report,
	}
	if ev.Conn != nil {
		msg.ConnID = ev.Conn.ID
		msg.RemoteAddr = ev.Conn.RemoteAddr
	}
	if ev.Addr != nil {
		msg.Addr = ev.Addr.String()
	}
	if ev.Err != nil {
		msg.Reason = ev.Err.Error()
		var perr *server.ParseError
		if errors.As(ev.Err, &perr) {
			msg.Reason = perr.Reason
			msg.Input = perr.Input
		}
	}
	return msg
}
