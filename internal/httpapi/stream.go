package httpapi

import (
	"errors"
	"net/http"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/ahrav/gavel-arena/internal/application"
	"github.com/ahrav/gavel-arena/internal/domain"
	"github.com/ahrav/gavel-arena/internal/ports"
)

// Stream message types.
const (
	MessageStatus = "status"
	MessageKicked = "kicked"
)

// StreamConfig tunes the status websocket.
type StreamConfig struct {
	// Interval is how often a status view is pushed without any change.
	Interval time.Duration
	// PingInterval must be shorter than PongWait.
	PingInterval time.Duration
	PongWait     time.Duration
	WriteWait    time.Duration
}

// DefaultStreamConfig returns production stream timings.
func DefaultStreamConfig() StreamConfig {
	return StreamConfig{
		Interval:     3 * time.Second,
		PingInterval: 25 * time.Second,
		PongWait:     30 * time.Second,
		WriteWait:    10 * time.Second,
	}
}

func (c StreamConfig) withDefaults() StreamConfig {
	d := DefaultStreamConfig()
	if c.Interval <= 0 {
		c.Interval = d.Interval
	}
	if c.PingInterval <= 0 {
		c.PingInterval = d.PingInterval
	}
	if c.PongWait <= c.PingInterval {
		c.PongWait = c.PingInterval + 5*time.Second
	}
	if c.WriteWait <= 0 {
		c.WriteWait = d.WriteWait
	}
	return c
}

// streamMessage is the frame written to the socket.
type streamMessage struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// Streamer pushes status views over a websocket. Each push goes through the
// same path as a status poll, so an open stream also keeps the participant
// online.
type Streamer struct {
	gateway  *application.ParticipantGateway
	events   ports.EventSubscriber
	clock    clockwork.Clock
	config   StreamConfig
	upgrader websocket.Upgrader
}

// NewStreamer creates a Streamer. A nil events subscriber degrades to
// interval pushes only.
func NewStreamer(
	gateway *application.ParticipantGateway,
	events ports.EventSubscriber,
	clock clockwork.Clock,
	config StreamConfig,
	origins []string,
) *Streamer {
	return &Streamer{
		gateway: gateway,
		events:  events,
		clock:   clock,
		config:  config.withDefaults(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(origins),
		},
	}
}

func originChecker(origins []string) func(*http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" || len(origins) == 0 || slices.Contains(origins, "*") {
			return true
		}
		return slices.Contains(origins, origin)
	}
}

// ServeHTTP upgrades the request and runs the push loop until the client
// goes away or is kicked.
func (s *Streamer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	username := r.URL.Query().Get("username")
	ip := clientIP(r)

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	connID := uuid.NewString()
	logger := log.With().Str("conn_id", connID).Str("username", username).Logger()
	logger.Debug().Msg("stream connected")
	defer func() {
		_ = conn.Close()
		logger.Debug().Msg("stream disconnected")
	}()

	poke := make(chan struct{}, 1)
	if s.events != nil {
		unsubscribe := s.events.Subscribe(func(ports.Event) {
			select {
			case poke <- struct{}{}:
			default:
			}
		})
		defer unsubscribe()
	}

	done := make(chan struct{})
	go s.readPump(conn, done)

	ticker := s.clock.NewTicker(s.config.Interval)
	defer ticker.Stop()
	ping := time.NewTicker(s.config.PingInterval)
	defer ping.Stop()

	ctx := r.Context()
	if !s.push(conn, r, username, ip) {
		return
	}
	for {
		select {
		case <-poke:
		case <-ticker.Chan():
		case <-ping.C:
			_ = conn.SetWriteDeadline(time.Now().Add(s.config.WriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
			continue
		case <-done:
			return
		case <-ctx.Done():
			return
		}
		if !s.push(conn, r, username, ip) {
			return
		}
	}
}

// push writes one status frame. It reports false once the connection should
// close.
func (s *Streamer) push(conn *websocket.Conn, r *http.Request, username, ip string) bool {
	msg := streamMessage{Type: MessageStatus}
	st, err := s.gateway.Status(r.Context(), username, ip)
	kicked := errors.Is(err, domain.ErrKicked)
	switch {
	case kicked:
		msg = streamMessage{Type: MessageKicked, Data: kickedResponse{Kicked: true, Message: KickedMessage}}
	case err != nil:
		log.Error().Err(err).Str("username", username).Msg("stream status failed")
		return true
	default:
		msg.Data = toStatus(st)
	}

	_ = conn.SetWriteDeadline(time.Now().Add(s.config.WriteWait))
	if err := conn.WriteJSON(msg); err != nil {
		return false
	}
	if kicked {
		_ = conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.ClosePolicyViolation, KickedMessage),
			time.Now().Add(s.config.WriteWait),
		)
		return false
	}
	return true
}

// readPump drains client frames so control messages are processed, and
// closes done when the peer goes away.
func (s *Streamer) readPump(conn *websocket.Conn, done chan<- struct{}) {
	defer close(done)
	conn.SetReadLimit(512)
	_ = conn.SetReadDeadline(time.Now().Add(s.config.PongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(s.config.PongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
