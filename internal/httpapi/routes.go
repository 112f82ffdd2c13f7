// Package httpapi exposes the competition over HTTP and a websocket status
// stream.
package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/jonboulle/clockwork"
	"github.com/rs/cors"

	"github.com/ahrav/gavel-arena/infrastructure/middleware"
	"github.com/ahrav/gavel-arena/internal/application"
	"github.com/ahrav/gavel-arena/internal/domain"
	"github.com/ahrav/gavel-arena/internal/ports"
)

// Deps are the services the router dispatches to.
type Deps struct {
	Gateway  *application.ParticipantGateway
	Pipeline *application.ScoringPipeline
	Control  *application.ControlPlane
	Events   ports.EventSubscriber
	Clock    clockwork.Clock

	// Metrics, when set, instruments every route.
	Metrics ports.MetricsCollector
	// MetricsHandler, when set, is served at /metrics.
	MetricsHandler http.Handler

	CORSOrigins []string
	Stream      StreamConfig
}

// Server holds the handlers.
type Server struct {
	gateway  *application.ParticipantGateway
	pipeline *application.ScoringPipeline
	control  *application.ControlPlane
	stream   *Streamer
}

// NewRouter builds the full HTTP handler, CORS included.
func NewRouter(d Deps) http.Handler {
	if d.Clock == nil {
		d.Clock = clockwork.NewRealClock()
	}
	s := &Server{
		gateway:  d.Gateway,
		pipeline: d.Pipeline,
		control:  d.Control,
		stream:   NewStreamer(d.Gateway, d.Events, d.Clock, d.Stream, d.CORSOrigins),
	}

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(middleware.RequestLogger)
	if d.Metrics != nil {
		r.Use(middleware.HTTPMetrics(d.Metrics))
	}
	r.Use(chimw.Recoverer)

	r.Get("/healthz", Healthz)
	if d.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", d.MetricsHandler)
	}

	r.Route("/api", func(r chi.Router) {
		r.Post("/auth/join", s.join)
		r.Post("/auth/admin-login", s.adminLogin)

		r.Get("/game/status", s.status)
		r.Get("/game/stream", s.stream.ServeHTTP)
		r.Post("/game/submit/text", s.submit(domain.RoundText))
		r.Post("/game/submit/image", s.submit(domain.RoundImage))

		r.Route("/admin", func(r chi.Router) {
			r.Post("/round/toggle", s.toggleRound)
			r.Post("/round/text", s.updateTextRound)
			r.Post("/round/image", s.updateImageRound)
			r.Post("/config/password", s.setCompetitionSecret)
			r.Post("/change-password", s.changeAdminSecret)
			r.Post("/users/warn", s.warn)
			r.Post("/users/kick", s.userAction(s.control.Kick))
			r.Post("/users/reset", s.userAction(s.control.Reset))
			r.Post("/users/delete", s.userAction(s.control.Delete))
			r.Post("/dashboard", s.dashboard)
			r.Post("/leaderboard/all-time", s.allTime)
		})
	})

	origins := d.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	return cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"*"},
		MaxAge:         int((12 * time.Hour).Seconds()),
	}).Handler(r)
}

// Healthz reports liveness.
func Healthz(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}
