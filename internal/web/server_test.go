package web

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"tk102-ng/internal/server"
	"tk102-ng/internal/tk102"
)

type fakeListener struct {
	snap server.Snapshot
}

func (f fakeListener) Snapshot(time.Time) server.Snapshot { return f.snap }

func getJSON(t *testing.T, url string, v any) {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("get %s: %v", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status code=%d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
		t.Fatalf("content-type=%q", ct)
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("decode json: %v", err)
	}
}

func TestAPIStatus(t *testing.T) {
	hub := NewHub(10)
	fl := fakeListener{snap: server.Snapshot{State: "listening", Addr: "127.0.0.1:9000", Accepted: 4}}
	ts := httptest.NewServer(Handler(fl, hub, nil))
	defer ts.Close()

	hub.OnEvent(server.Event{Kind: server.EventFail, Err: &server.ParseError{Reason: "x"}})

	var snap StatusSnapshot
	getJSON(t, ts.URL+"/api/status", &snap)
	if snap.Service != "tk102-ng" {
		t.Fatalf("service=%q", snap.Service)
	}
	if snap.Listener.Addr != "127.0.0.1:9000" || snap.Listener.Accepted != 4 {
		t.Fatalf("listener=%+v", snap.Listener)
	}
	if snap.Hub.Fails != 1 {
		t.Fatalf("hub=%+v want 1 fail", snap.Hub)
	}
}

func TestAPIStatus_MethodNotAllowed(t *testing.T) {
	ts := httptest.NewServer(Handler(nil, NewHub(1), nil))
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/api/status", "application/json", strings.NewReader("{}"))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("status code=%d want 405", resp.StatusCode)
	}
}

func TestAPITracks(t *testing.T) {
	hub := NewHub(2)
	ts := httptest.NewServer(Handler(nil, hub, nil))
	defer ts.Close()

	for i := 0; i < 3; i++ {
		rep := tk102.Report{IMEI: fmt.Sprintf("imei-%d", i)}
		hub.OnEvent(server.Event{Kind: server.EventTrack, Report: &rep})
	}

	var all TracksResponse
	getJSON(t, ts.URL+"/api/tracks", &all)
	if all.Count != 2 || all.Tracks[0].IMEI != "imei-1" || all.Tracks[1].IMEI != "imei-2" {
		t.Fatalf("tracks=%+v want newest two oldest first", all)
	}

	var one TracksResponse
	getJSON(t, ts.URL+"/api/tracks?n=1", &one)
	if one.Count != 1 || one.Tracks[0].IMEI != "imei-2" {
		t.Fatalf("tracks=%+v want newest only", one)
	}

	resp, err := http.Get(ts.URL + "/api/tracks?n=zero")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status code=%d want 400", resp.StatusCode)
	}
}

func TestAPIEvents_StreamsTrack(t *testing.T) {
	hub := NewHub(10)
	ts := httptest.NewServer(Handler(nil, hub, nil))
	defer ts.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/events"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for hub.Snapshot().Subscribers == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("websocket client never subscribed")
		}
		time.Sleep(10 * time.Millisecond)
	}

	rep := tk102.Report{IMEI: "123456789012345", Checksum: true}
	hub.OnEvent(server.Event{
		Kind:   server.EventTrack,
		At:     time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
		Conn:   &server.ConnInfo{ID: 7, RemoteAddr: "10.0.0.1:4000"},
		Report: &rep,
	})

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg EventMessage
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read: %v", err)
	}
	if msg.Kind != "track" || msg.ConnID != 7 || msg.Report == nil || msg.Report.IMEI != rep.IMEI {
		t.Fatalf("msg=%+v", msg)
	}
	if msg.At != "2024-01-02T03:04:05Z" {
		t.Fatalf("at=%q", msg.At)
	}
}

func TestAPILogs(t *testing.T) {
	logs := NewLogBuffer(10)
	_, _ = logs.Write([]byte("first line\nsecond "))
	_, _ = logs.Write([]byte("line\n"))

	ts := httptest.NewServer(Handler(nil, NewHub(1), logs))
	defer ts.Close()

	var resp LogsResponse
	getJSON(t, ts.URL+"/api/logs?tail=5", &resp)
	if len(resp.Lines) != 2 || resp.Lines[0] != "first line" || resp.Lines[1] != "second line" {
		t.Fatalf("lines=%q", resp.Lines)
	}
}

func TestRootPage(t *testing.T) {
	ts := httptest.NewServer(Handler(nil, NewHub(1), nil))
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/")
	if err != nil {
		t.Fatalf("get root: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status code=%d", resp.StatusCode)
	}

	missing, err := http.Get(ts.URL + "/nope")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	missing.Body.Close()
	if missing.StatusCode != http.StatusNotFound {
		t.Fatalf("status code=%d want 404", missing.StatusCode)
	}
}
