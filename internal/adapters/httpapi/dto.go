package httpapi

import (
	"fmt"
	"math"
	"time"

	"github.com/alejandrodnm/squadbid/internal/domain"
	"github.com/shopspring/decimal"
)

type squadJSON struct {
	ID        int64      `json:"id"`
	Owner     string     `json:"owner"`
	Name      string     `json:"name"`
	Formation string     `json:"formation"`
	Roster    []string   `json:"roster"`
	Lives     int        `json:"lives"`
	Alive     bool       `json:"alive"`
	DeathTime *time.Time `json:"death_time,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

func toSquad(s domain.Squad) squadJSON {
	return squadJSON{
		ID: s.ID, Owner: s.Owner, Name: s.Name, Formation: s.Formation,
		Roster: s.Roster[:], Lives: s.Lives, Alive: s.IsAlive(), DeathTime: s.DeathTime,
		CreatedAt: s.CreatedAt, UpdatedAt: s.UpdatedAt,
	}
}

type bidJSON struct {
	ID              string     `json:"id"`
	Creator         string     `json:"creator"`
	SquadID         int64      `json:"squad_id"`
	Wager           int64      `json:"wager"`
	DurationSeconds int64      `json:"duration_seconds"`
	Status          string     `json:"status"`
	CreatedAt       time.Time  `json:"created_at"`
	EscrowPrincipal int64      `json:"escrow_principal"`
	EscrowFee       int64      `json:"escrow_fee"`
	FeeVersion      int64      `json:"fee_version"`
	MatchID         string     `json:"match_id,omitempty"`
	ClosedAt        *time.Time `json:"closed_at,omitempty"`
}

func toBid(b domain.Bid) bidJSON {
	return bidJSON{
		ID: b.ID, Creator: b.Creator, SquadID: b.SquadID, Wager: b.Wager,
		DurationSeconds: int64(b.Duration / time.Second), Status: string(b.Status), CreatedAt: b.CreatedAt,
		EscrowPrincipal: b.EscrowPrincipal, EscrowFee: b.EscrowFee, FeeVersion: b.FeeVersion,
		MatchID: b.MatchID, ClosedAt: b.ClosedAt,
	}
}

func toBids(in []domain.Bid) []bidJSON {
	out := make([]bidJSON, 0, len(in))
	for _, b := range in {
		out = append(out, toBid(b))
	}
	return out
}

type matchJSON struct {
	ID              string     `json:"id"`
	BidA            string     `json:"bid_a"`
	BidB            string     `json:"bid_b"`
	PlayerA         string     `json:"player_a"`
	PlayerB         string     `json:"player_b"`
	SquadA          int64      `json:"squad_a"`
	SquadB          int64      `json:"squad_b"`
	PrizePool       int64      `json:"prize_pool"`
	FeePool         int64      `json:"fee_pool"`
	DurationSeconds int64      `json:"duration_seconds"`
	StartTime       time.Time  `json:"start_time"`
	EndTime         time.Time  `json:"end_time"`
	Status          string     `json:"status"`
	Winner          string     `json:"winner,omitempty"`
	PrizeClaimed    bool       `json:"prize_claimed"`
	ClaimedBy       string     `json:"claimed_by,omitempty"`
	ClaimedAt       *time.Time `json:"claimed_at,omitempty"`
	EntryPricesA    []string   `json:"entry_prices_a"`
	EntryPricesB    []string   `json:"entry_prices_b"`
	PerformanceA    string     `json:"performance_a,omitempty"`
	PerformanceB    string     `json:"performance_b,omitempty"`
	SettledAt       *time.Time `json:"settled_at,omitempty"`
}

func toMatch(m domain.Match) matchJSON {
	out := matchJSON{
		ID: m.ID, BidA: m.BidA, BidB: m.BidB, PlayerA: m.PlayerA, PlayerB: m.PlayerB,
		SquadA: m.SquadA, SquadB: m.SquadB, PrizePool: m.PrizePool, FeePool: m.FeePool,
		DurationSeconds: int64(m.Duration / time.Second), StartTime: m.StartTime, EndTime: m.EndTime,
		Status: string(m.Status), Winner: m.Winner,
		PrizeClaimed: m.PrizeClaimed, ClaimedBy: m.ClaimedBy, ClaimedAt: m.ClaimedAt,
		EntryPricesA: decimals(m.EntryPricesA[:]), EntryPricesB: decimals(m.EntryPricesB[:]),
		SettledAt: m.SettledAt,
	}
	if m.SettledAt != nil && m.Status != domain.MatchDisputed {
		out.PerformanceA = m.PerformanceA.String()
		out.PerformanceB = m.PerformanceB.String()
	}
	return out
}

func toMatches(in []domain.Match) []matchJSON {
	out := make([]matchJSON, 0, len(in))
	for _, m := range in {
		out = append(out, toMatch(m))
	}
	return out
}

func decimals(in []decimal.Decimal) []string {
	out := make([]string, len(in))
	for i, d := range in {
		out[i] = d.String()
	}
	return out
}

type feeJSON struct {
	Version           int64     `json:"version"`
	UpfrontBps        int64     `json:"upfront_bps"`
	SquadFee          int64     `json:"squad_fee"`
	ReviveStandardFee int64     `json:"revive_standard_fee"`
	ReviveInstantFee  int64     `json:"revive_instant_fee"`
	CreatedAt         time.Time `json:"created_at,omitzero"`
}

func toFee(c domain.FeeConfig) feeJSON {
	return feeJSON{
		Version: c.Version, UpfrontBps: c.UpfrontBps, SquadFee: c.SquadFee,
		ReviveStandardFee: c.ReviveStandardFee, ReviveInstantFee: c.ReviveInstantFee, CreatedAt: c.CreatedAt,
	}
}

func (f feeJSON) config() domain.FeeConfig {
	return domain.FeeConfig{
		UpfrontBps: f.UpfrontBps, SquadFee: f.SquadFee,
		ReviveStandardFee: f.ReviveStandardFee, ReviveInstantFee: f.ReviveInstantFee,
	}
}

type payoutJSON struct {
	Account string `json:"account"`
	Amount  int64  `json:"amount"`
}

// --- requests ---

type depositRequest struct {
	Amount int64 `json:"amount"`
}

type squadRequest struct {
	Name      string   `json:"name"`
	Formation string   `json:"formation"`
	Roster    []string `json:"roster"`
}

type squadPatch struct {
	Name      *string  `json:"name"`
	Formation *string  `json:"formation"`
	Roster    []string `json:"roster"`
}

type reviveRequest struct {
	Instant bool `json:"instant"`
}

type bidRequest struct {
	SquadID         int64 `json:"squad_id"`
	Wager           int64 `json:"wager"`
	DurationSeconds int64 `json:"duration_seconds"`
}

// duration converts duration_seconds, rejecting values a time.Duration cannot hold.
func (r bidRequest) duration() (time.Duration, error) {
	if r.DurationSeconds <= 0 || r.DurationSeconds > int64(math.MaxInt64/time.Second) {
		return 0, fmt.Errorf("%w: duration_seconds %d out of range", domain.ErrInvalidParameters, r.DurationSeconds)
	}
	return time.Duration(r.DurationSeconds) * time.Second, nil
}

type matchRequest struct {
	BidA string `json:"bid_a"`
	BidB string `json:"bid_b"`
}

type completeRequest struct {
	FinalPricesA []decimal.Decimal `json:"final_prices_a"`
	FinalPricesB []decimal.Decimal `json:"final_prices_b"`
}
