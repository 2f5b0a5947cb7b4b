package domain

import "time"

// CycleReport is what one pass of the background engines did.
type CycleReport struct {
	At       time.Time
	Matched  []Match
	Settled  []SettlementResult
	Disputed []string // match ids
	Swept    []string // bid ids
	Skipped  int      // candidates rejected with an expected state conflict
	Warnings []string
}

// Empty reports whether the cycle changed nothing.
func (r CycleReport) Empty() bool {
	return len(r.Matched) == 0 && len(r.Settled) == 0 && len(r.Disputed) == 0 && len(r.Swept) == 0
}

// Summary is an aggregate snapshot of the ledger.
type Summary struct {
	OpenBids        int
	OpenEscrow      int64
	Matches         map[MatchStatus]int
	TreasuryBalance int64
	LastEventSeq    int64
}
