package ports

import (
	"context"
	"time"

	"github.com/alejandrodnm/squadbid/internal/domain"
)

// Ledger is the single source of truth for accounts, squads, bids and matches.
// Every state transition runs inside one serializable transaction.
type Ledger interface {
	// InTx runs fn inside a read-write transaction. If fn returns an error the
	// transaction is rolled back and nothing it wrote is visible.
	InTx(ctx context.Context, fn func(tx LedgerTx) error) error

	// View runs fn inside a read-only transaction so every read comes from
	// one consistent snapshot.
	View(ctx context.Context, fn func(tx LedgerTx) error) error

	Close() error
}

// LedgerTx is the set of record operations available inside a transaction.
type LedgerTx interface {
	// Accounts
	Balance(ctx context.Context, account string) (int64, error)
	Credit(ctx context.Context, account string, amount int64) error
	// Debit fails with domain.ErrInsufficientFunds if the balance is short.
	Debit(ctx context.Context, account string, amount int64) error

	// Fee configuration
	CurrentFeeConfig(ctx context.Context) (domain.FeeConfig, error)
	SaveFeeConfig(ctx context.Context, cfg domain.FeeConfig) (int64, error)

	// Squads
	InsertSquad(ctx context.Context, s domain.Squad) (int64, error)
	GetSquad(ctx context.Context, id int64) (domain.Squad, error)
	UpdateSquad(ctx context.Context, s domain.Squad) error
	DeleteSquad(ctx context.Context, id int64) error
	SquadsByOwner(ctx context.Context, owner string) ([]domain.Squad, error)
	// SquadPledged reports whether the squad backs an OPEN bid or an ACTIVE match.
	SquadPledged(ctx context.Context, id int64) (bool, error)

	// Bids
	InsertBid(ctx context.Context, b domain.Bid) error
	GetBid(ctx context.Context, id string) (domain.Bid, error)
	// TransitionBid moves an OPEN bid to status; false means it was no longer OPEN.
	TransitionBid(ctx context.Context, id string, to domain.BidStatus, matchID string, at time.Time) (bool, error)
	OpenBidForSquad(ctx context.Context, squadID int64) (bool, error)
	OpenBids(ctx context.Context) ([]domain.Bid, error)
	BidsByCreator(ctx context.Context, creator string, status domain.BidStatus) ([]domain.Bid, error)

	// Matches
	InsertMatch(ctx context.Context, m domain.Match) error
	GetMatch(ctx context.Context, id string) (domain.Match, error)
	// SettleMatch writes a terminal status on an ACTIVE match; false means it was no longer ACTIVE.
	SettleMatch(ctx context.Context, m domain.Match) (bool, error)
	// MarkPrizeClaimed flips the claimed flag once; false means it was already set.
	MarkPrizeClaimed(ctx context.Context, id, claimant string, at time.Time) (bool, error)
	MatchesByAccount(ctx context.Context, account string) ([]domain.Match, error)
	ActiveMatchesEndedBy(ctx context.Context, t time.Time) ([]domain.Match, error)
	CountMatches(ctx context.Context) (map[domain.MatchStatus]int, error)

	// Events
	AppendEvent(ctx context.Context, e domain.Event) (int64, error)
	EventsSince(ctx context.Context, seq int64, limit int) ([]domain.Event, error)
	LastEventSeq(ctx context.Context) (int64, error)
}
