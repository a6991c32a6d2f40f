package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/chhayank-20/Mosquitto-Manager/pkg/events"
	"github.com/chhayank-20/Mosquitto-Manager/pkg/log"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// PushHub streams events to dashboard websocket connections. Every
// connection gets its own event subscription; a slow client only loses its
// own events.
type PushHub struct {
	events   *events.Broker
	prime    func() []*events.Event
	upgrader websocket.Upgrader
}

// NewPushHub creates a hub fed by b. prime, when set, returns the events
// sent to a connection before any live event.
func NewPushHub(b *events.Broker, prime func() []*events.Event) *PushHub {
	return &PushHub{
		events: b,
		prime:  prime,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			// The dashboard may be served from another origin during development
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// ServeHTTP upgrades the request and pushes events until either side
// closes
func (h *PushHub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.events == nil {
		http.Error(w, "push channel unavailable", http.StatusServiceUnavailable)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.WithComponent("push").Warn().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	wanted := requestedTypes(r)
	sub := h.events.Subscribe(wanted...)
	defer h.events.Unsubscribe(sub)

	logger := log.WithComponent("push")
	logger.Debug().Str("remote", r.RemoteAddr).Msg("Push client connected")

	done := make(chan struct{})
	go h.readPump(conn, done)

	if h.prime != nil {
		for _, ev := range h.prime() {
			if !wants(wanted, ev.Type) {
				continue
			}
			if err := h.write(conn, ev); err != nil {
				return
			}
		}
	}

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case ev, ok := <-sub:
			if !ok {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, ""), time.Now().Add(writeWait))
				return
			}
			if err := h.write(conn, ev); err != nil {
				logger.Debug().Err(err).Msg("Push client write failed")
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		case <-done:
			logger.Debug().Str("remote", r.RemoteAddr).Msg("Push client disconnected")
			return
		}
	}
}

func (h *PushHub) write(conn *websocket.Conn, ev *events.Event) error {
	if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return conn.WriteJSON(ev)
}

// readPump discards client messages and detects disconnects
func (h *PushHub) readPump(conn *websocket.Conn, done chan<- struct{}) {
	defer close(done)
	conn.SetReadLimit(4096)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

// requestedTypes reads the optional ?types=clients,stats filter
func requestedTypes(r *http.Request) []events.EventType {
	var out []events.EventType
	for _, v := range r.URL.Query()["types"] {
		for _, name := range strings.Split(v, ",") {
			if name = strings.TrimSpace(name); name != "" {
				out = append(out, events.EventType(name))
			}
		}
	}
	return out
}

func wants(types []events.EventType, t events.EventType) bool {
	if len(types) == 0 {
		return true
	}
	for _, want := range types {
		if want == t {
			return true
		}
	}
	return false
}
