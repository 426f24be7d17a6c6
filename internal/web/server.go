package web

import (
	"context"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"tk102-ng/internal/server"
	"tk102-ng/internal/tk102"
)

const wsWriteTimeout = 5 * time.Second

// ListenerStatus is implemented by *server.Listener.
type ListenerStatus interface {
	Snapshot(nowUTC time.Time) server.Snapshot
}

type StatusSnapshot struct {
	Service   string          `json:"service"`
	NowUTC    string          `json:"now_utc"`
	UptimeSec float64         `json:"uptime_sec"`
	Listener  server.Snapshot `json:"listener"`
	Hub       HubSnapshot     `json:"hub"`
}

type TracksResponse struct {
	Count  int            `json:"count"`
	Tracks []tk102.Report `json:"tracks"`
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Handler serves the status API. logs may be nil.
func Handler(listener ListenerStatus, hub *Hub, logs *LogBuffer) http.Handler {
	started := time.Now()
	mux := http.NewServeMux()

	mux.HandleFunc("/api/status", func(w http.ResponseWriter, r *http.Request) {
		if !allowGet(w, r) {
			return
		}
		now := time.Now().UTC()
		snap := StatusSnapshot{
			Service:   "tk102-ng",
			NowUTC:    now.Format(time.RFC3339Nano),
			UptimeSec: now.Sub(started).Seconds(),
			Hub:       hub.Snapshot(),
		}
		if listener != nil {
			snap.Listener = listener.Snapshot(now)
		}
		writeJSON(w, snap)
	})

	mux.HandleFunc("/api/tracks", func(w http.ResponseWriter, r *http.Request) {
		if !allowGet(w, r) {
			return
		}
		n := 0
		if s := strings.TrimSpace(r.URL.Query().Get("n")); s != "" {
			v, err := strconv.Atoi(s)
			if err != nil || v < 1 {
				http.Error(w, "n must be a positive integer", http.StatusBadRequest)
				return
			}
			n = v
		}
		tracks := hub.Recent(n)
		if tracks == nil {
			tracks = []tk102.Report{}
		}
		writeJSON(w, TracksResponse{Count: len(tracks), Tracks: tracks})
	})

	mux.HandleFunc("/api/events", func(w http.ResponseWriter, r *http.Request) {
		serveEvents(w, r, hub)
	})

	if logs != nil {
		mux.Handle("/api/logs", logs.Handler())
	}

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		if !allowGet(w, r) {
			return
		}
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("tk102-ng\n\n/api/status\n/api/tracks?n=\n/api/events (websocket)\n/api/logs?tail=\n"))
	})

	return mux
}

func allowGet(w http.ResponseWriter, r *http.Request) bool {
	if r.Method == http.MethodGet {
		return true
	}
	w.Header().Set("Allow", http.MethodGet)
	http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	return false
}

// serveEvents streams hub events to one websocket client until it goes away.
func serveEvents(w http.ResponseWriter, r *http.Request, hub *Hub) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("web: websocket upgrade error: %v", err)
		return
	}
	defer conn.Close()

	id, ch := hub.Subscribe(64)
	defer hub.Unsubscribe(id)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// Clients only send close frames; reading is needed to see them.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteJSON(msg); err != nil {
				log.Printf("web: websocket write error: %v", err)
				return
			}
		}
	}
}

// Serve runs the HTTP server until ctx is cancelled.
func Serve(ctx context.Context, addr string, h http.Handler) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	log.Printf("web: listening on %s", addr)

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return nil
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}
