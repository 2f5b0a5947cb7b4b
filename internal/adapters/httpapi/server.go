// Package httpapi exposes the escrow, registry and query operations over
// JSON/HTTP, plus a websocket stream of committed events.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/alejandrodnm/squadbid/internal/application/query"
	"github.com/alejandrodnm/squadbid/internal/application/registry"
	"github.com/alejandrodnm/squadbid/internal/domain"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/shopspring/decimal"
)

// Escrow es la parte del servicio de escrow que sirve la API.
type Escrow interface {
	Deposit(ctx context.Context, token, account string, amount int64) (int64, error)
	CreateBid(ctx context.Context, creator string, squadID int64, wager int64, duration time.Duration) (domain.Bid, error)
	CancelBid(ctx context.Context, bidID, requester string) (domain.Bid, error)
	MatchBids(ctx context.Context, bidA, bidB, token string) (domain.Match, error)
	CompleteMatch(ctx context.Context, matchID string, finalA, finalB []decimal.Decimal, token string) (domain.SettlementResult, error)
	DisputeMatch(ctx context.Context, matchID, token string) (domain.Match, error)
	ClaimPrize(ctx context.Context, matchID, claimant string) ([]domain.Payout, error)
	SetFeeConfig(ctx context.Context, token string, cfg domain.FeeConfig) (domain.FeeConfig, error)
	FeeConfig(ctx context.Context) (domain.FeeConfig, error)
}

// Registry es la parte del registro de escuadrones que sirve la API.
type Registry interface {
	CreateSquad(ctx context.Context, owner, name, formation string, roster []string) (domain.Squad, error)
	GetSquad(ctx context.Context, id int64) (domain.Squad, error)
	UpdateSquad(ctx context.Context, id int64, owner string, ch registry.SquadChange) (domain.Squad, error)
	DeleteSquad(ctx context.Context, id int64, owner string) error
	ReviveSquad(ctx context.Context, id int64, owner string, instant bool) (domain.Squad, error)
	SquadsForAccount(ctx context.Context, owner string) ([]domain.Squad, error)
}

// Query son las proyecciones de sólo lectura.
type Query interface {
	Account(ctx context.Context, account string) (query.AccountView, error)
	Balance(ctx context.Context, account string) (int64, error)
	OpenBidsForAccount(ctx context.Context, account string) ([]domain.Bid, error)
	MatchesForAccount(ctx context.Context, account string) ([]domain.Match, error)
	AllOpenBids(ctx context.Context) ([]domain.Bid, error)
	Bid(ctx context.Context, id string) (domain.Bid, error)
	Match(ctx context.Context, id string) (domain.Match, error)
	CanCancel(ctx context.Context, bidID, account string) (query.Eligibility, error)
	CanClaim(ctx context.Context, matchID, account string) (query.Eligibility, error)
	EventsSince(ctx context.Context, seq int64, limit int) ([]domain.Event, error)
	Summary(ctx context.Context) (domain.Summary, error)
}

// Server agrupa las dependencias de los handlers.
type Server struct {
	escrow   Escrow
	registry Registry
	query    Query
	hub      *Hub
	metrics  http.Handler
}

// New crea un Server. hub puede ser nil si no se sirve /ws.
func New(escrow Escrow, registry Registry, q Query, hub *Hub) *Server {
	return &Server{escrow: escrow, registry: registry, query: q, hub: hub}
}

// WithMetrics monta h en /metrics.
func (s *Server) WithMetrics(h http.Handler) *Server {
	s.metrics = h
	return s
}

// Router monta todas las rutas.
func (s *Server) Router(allowedOrigins []string) http.Handler {
	r := chi.NewRouter()

	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	if len(allowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: allowedOrigins,
			AllowedMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", accountHeader},
			MaxAge:         300,
		}))
	}

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, envelope{"status": "ok"})
	})

	r.Route("/accounts/{account}", func(r chi.Router) {
		r.Get("/", s.getAccount)
		r.Post("/deposit", s.deposit)
		r.Get("/balance", s.getBalance)
		r.Get("/bids", s.getAccountBids)
		r.Get("/matches", s.getAccountMatches)
		r.Get("/squads", s.getAccountSquads)
	})

	r.Route("/squads", func(r chi.Router) {
		r.Post("/", s.createSquad)
		r.Get("/{id}", s.getSquad)
		r.Patch("/{id}", s.patchSquad)
		r.Delete("/{id}", s.deleteSquad)
		r.Post("/{id}/revive", s.reviveSquad)
	})

	r.Route("/bids", func(r chi.Router) {
		r.Get("/", s.listOpenBids)
		r.Post("/", s.createBid)
		r.Get("/{id}", s.getBid)
		r.Delete("/{id}", s.cancelBid)
		r.Get("/{id}/can-cancel", s.canCancel)
	})

	r.Route("/matches", func(r chi.Router) {
		r.Post("/", s.matchBids)
		r.Get("/{id}", s.getMatch)
		r.Post("/{id}/complete", s.completeMatch)
		r.Post("/{id}/dispute", s.disputeMatch)
		r.Post("/{id}/claim", s.claimPrize)
		r.Get("/{id}/can-claim", s.canClaim)
	})

	r.Get("/fees", s.getFees)
	r.Put("/fees", s.putFees)
	r.Get("/events", s.listEvents)
	r.Get("/summary", s.getSummary)
	if s.hub != nil {
		r.Get("/ws", s.hub.ServeWS)
	}
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics)
	}
	return r
}
