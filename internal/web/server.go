package web

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"enroute-hub/internal/traffic"
)

// Provider is the aggregation facade surface the web layer consumes.
type Provider interface {
	Snapshot(nowUTC time.Time) traffic.Snapshot
	ConnectToTrafficReceiver()
	DisconnectFromTrafficReceiver()
	Subscribe() (<-chan traffic.StateSnapshot, func())
}

type Config struct {
	// WSRatePerSec caps state pushes per websocket client. Updates beyond
	// the cap are coalesced, never queued unboundedly.
	WSRatePerSec float64
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

func Handler(p Provider, cfg Config) http.Handler {
	if cfg.WSRatePerSec <= 0 {
		cfg.WSRatePerSec = 5
	}

	r := mux.NewRouter()

	r.HandleFunc("/api/status", func(w http.ResponseWriter, req *http.Request) {
		snap := p.Snapshot(time.Now().UTC())
		writeJSON(w, snap)
	}).Methods(http.MethodGet)

	r.HandleFunc("/api/connect", func(w http.ResponseWriter, req *http.Request) {
		p.ConnectToTrafficReceiver()
		writeJSON(w, map[string]string{"status": "ok"})
	}).Methods(http.MethodPost)

	r.HandleFunc("/api/disconnect", func(w http.ResponseWriter, req *http.Request) {
		p.DisconnectFromTrafficReceiver()
		writeJSON(w, map[string]string{"status": "ok"})
	}).Methods(http.MethodPost)

	r.HandleFunc("/api/state/ws", stateWS(p, cfg.WSRatePerSec)).Methods(http.MethodGet)

	return r
}

func writeJSON(w http.ResponseWriter, v any) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		http.Error(w, "marshal failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(b)
	_, _ = w.Write([]byte("\n"))
}

// stateWS streams aggregate state changes to one websocket client. The
// current state is sent on connect, then one message per change, rate
// limited with coalescing so a slow client always ends up at the latest
// state instead of a growing backlog.
func stateWS(p Provider, perSec float64) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		conn, err := upgrader.Upgrade(w, req, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		updates, cancel := p.Subscribe()
		defer cancel()

		// Reader pump, only to detect client close.
		closed := make(chan struct{})
		go func() {
			defer close(closed)
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()

		if err := conn.WriteJSON(p.Snapshot(time.Now().UTC()).StateSnapshot); err != nil {
			return
		}

		limiter := rate.NewLimiter(rate.Limit(perSec), 1)
		for {
			select {
			case <-closed:
				return
			case <-req.Context().Done():
				return
			case snap := <-updates:
				if err := limiter.Wait(req.Context()); err != nil {
					return
				}
			coalesce:
				for {
					select {
					case s := <-updates:
						snap = s
					default:
						break coalesce
					}
				}
				if err := conn.WriteJSON(snap); err != nil {
					return
				}
			}
		}
	}
}
