// Package engine runs the background loops that drive the protocol: the
// matchmaker pairs open bids, the settler completes ended matches and the
// sweeper cancels stale bids. Each loop only calls escrow operations, so a
// lost race surfaces as a state conflict and the loop tries the next record.
package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/alejandrodnm/squadbid/internal/domain"
	"github.com/alejandrodnm/squadbid/internal/ports"
	"github.com/shopspring/decimal"
)

// BidMatcher es la parte del escrow que usa el matchmaker.
type BidMatcher interface {
	MatchBids(ctx context.Context, bidA, bidB, token string) (domain.Match, error)
}

// MatchSettler es la parte del escrow que usa el settler.
type MatchSettler interface {
	CompleteMatch(ctx context.Context, matchID string, finalA, finalB []decimal.Decimal, token string) (domain.SettlementResult, error)
	DisputeMatch(ctx context.Context, matchID, token string) (domain.Match, error)
}

// BidSweeper es la parte del escrow que usa el sweeper.
type BidSweeper interface {
	SweepBid(ctx context.Context, bidID, token string) (domain.Bid, error)
}

// Reader es la vista de sólo lectura que consumen los engines.
type Reader interface {
	AllOpenBids(ctx context.Context) ([]domain.Bid, error)
	ActiveMatchesEndedBy(ctx context.Context, t time.Time) ([]domain.Match, error)
	Squad(ctx context.Context, id int64) (domain.Squad, error)
}

// Cycle is one engine pass.
type Cycle interface {
	RunOnce(ctx context.Context) (domain.CycleReport, error)
}

// Config contiene los intervalos de cada loop.
type Config struct {
	MatchInterval  time.Duration
	SettleInterval time.Duration
	SweepInterval  time.Duration
}

// Runner schedules the three loops and reports their cycles.
type Runner struct {
	cfg        Config
	matchmaker Cycle
	settler    Cycle
	sweeper    Cycle
	notifier   ports.Notifier
}

// NewRunner crea un Runner; un Cycle nil desactiva ese loop.
func NewRunner(cfg Config, matchmaker, settler, sweeper Cycle, notifier ports.Notifier) *Runner {
	return &Runner{cfg: cfg, matchmaker: matchmaker, settler: settler, sweeper: sweeper, notifier: notifier}
}

// RunOnce runs settler, sweeper and matchmaker once and merges their reports.
func (r *Runner) RunOnce(ctx context.Context) domain.CycleReport {
	var merged domain.CycleReport
	for _, c := range []Cycle{r.settler, r.sweeper, r.matchmaker} {
		if c == nil {
			continue
		}
		rep := r.step(ctx, c)
		merged = merge(merged, rep)
	}
	return merged
}

// Run ejecuta los loops hasta que el contexto se cancele.
func (r *Runner) Run(ctx context.Context) error {
	slog.Info("engines starting",
		"match_interval", r.cfg.MatchInterval,
		"settle_interval", r.cfg.SettleInterval,
		"sweep_interval", r.cfg.SweepInterval,
	)

	matchC, stopMatch := tick(r.matchmaker, r.cfg.MatchInterval)
	defer stopMatch()
	settleC, stopSettle := tick(r.settler, r.cfg.SettleInterval)
	defer stopSettle()
	sweepC, stopSweep := tick(r.sweeper, r.cfg.SweepInterval)
	defer stopSweep()

	for {
		select {
		case <-ctx.Done():
			slog.Info("engines stopped")
			return nil
		case <-matchC:
			r.report(ctx, r.step(ctx, r.matchmaker))
		case <-settleC:
			r.report(ctx, r.step(ctx, r.settler))
		case <-sweepC:
			r.report(ctx, r.step(ctx, r.sweeper))
		}
	}
}

// tick returns a ticker channel, or nil (never fires) for a disabled loop.
func tick(c Cycle, every time.Duration) (<-chan time.Time, func()) {
	if c == nil || every <= 0 {
		return nil, func() {}
	}
	t := time.NewTicker(every)
	return t.C, t.Stop
}

func (r *Runner) step(ctx context.Context, c Cycle) domain.CycleReport {
	rep, err := c.RunOnce(ctx)
	if err != nil {
		slog.Error("engine cycle failed", "err", err)
		rep.Warnings = append(rep.Warnings, err.Error())
	}
	return rep
}

func (r *Runner) report(ctx context.Context, rep domain.CycleReport) {
	if r.notifier == nil || (rep.Empty() && len(rep.Warnings) == 0) {
		return
	}
	if err := r.notifier.NotifyCycle(ctx, rep); err != nil {
		slog.Warn("notifier error", "err", err)
	}
}

func merge(a, b domain.CycleReport) domain.CycleReport {
	if a.At.IsZero() {
		a.At = b.At
	}
	a.Matched = append(a.Matched, b.Matched...)
	a.Settled = append(a.Settled, b.Settled...)
	a.Disputed = append(a.Disputed, b.Disputed...)
	a.Swept = append(a.Swept, b.Swept...)
	a.Skipped += b.Skipped
	a.Warnings = append(a.Warnings, b.Warnings...)
	return a
}

// expected reports whether err is an outcome the loops skip over: a lost
// race or a candidate the protocol rejected.
func expected(err error) bool {
	switch domain.KindOf(err) {
	case domain.KindStateConflict, domain.KindValidation, domain.KindResource:
		return true
	}
	return false
}
