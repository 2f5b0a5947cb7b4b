package domain

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"
)

const (
	RosterSize    = 7
	StartingLives = 5
	MaxNameLength = 32
)

// Squad is a named roster of RosterSize token references with a life counter.
type Squad struct {
	ID        int64
	Owner     string
	Name      string
	Formation string
	Roster    [RosterSize]string // token ids, slot order matters for weights
	Lives     int
	DeathTime *time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}

// IsAlive devuelve true si al escuadrón le quedan vidas.
func (s Squad) IsAlive() bool {
	return s.Lives > 0
}

// ApplyLoss decrements lives (floor 0) and records the death time the first
// time lives reach zero. Returns true if this loss killed the squad.
func (s *Squad) ApplyLoss(now time.Time) bool {
	if s.Lives <= 0 {
		s.Lives = 0
		return false
	}
	s.Lives--
	s.UpdatedAt = now
	if s.Lives == 0 {
		t := now
		s.DeathTime = &t
		return true
	}
	return false
}

// Revive restores a dead squad to full lives.
func (s *Squad) Revive(now time.Time) {
	s.Lives = StartingLives
	s.DeathTime = nil
	s.UpdatedAt = now
}

// ValidateSquadName trims and checks a squad name.
func ValidateSquadName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" || utf8.RuneCountInString(name) > MaxNameLength {
		return "", fmt.Errorf("%w: squad name must be 1-%d characters", ErrInvalidParameters, MaxNameLength)
	}
	return name, nil
}

// ValidateRoster requires RosterSize distinct, non-empty token ids.
func ValidateRoster(tokens []string) ([RosterSize]string, error) {
	var roster [RosterSize]string
	if len(tokens) != RosterSize {
		return roster, fmt.Errorf("%w: roster needs %d players, got %d", ErrInvalidParameters, RosterSize, len(tokens))
	}
	seen := make(map[string]bool, RosterSize)
	for i, t := range tokens {
		t = strings.TrimSpace(t)
		if t == "" {
			return roster, fmt.Errorf("%w: roster slot %d is empty", ErrInvalidParameters, i)
		}
		if seen[t] {
			return roster, fmt.Errorf("%w: player %q appears twice", ErrInvalidParameters, t)
		}
		seen[t] = true
		roster[i] = t
	}
	return roster, nil
}

// Weights is the per-slot multiplier row of a formation.
type Weights [RosterSize]decimal.Decimal

// Formations maps a formation name to its slot multipliers.
type Formations map[string]Weights

// DefaultFormations is used when the configuration defines none.
func DefaultFormations() Formations {
	return Formations{
		"balanced":   weightsOf(1, 1, 1, 1, 1, 1, 1),
		"captain":    weightsOf(2, 1.5, 1, 1, 1, 0.75, 0.75),
		"aggressive": weightsOf(1.5, 1.5, 1.5, 1, 1, 0.5, 0.5),
	}
}

// Lookup returns the weights for a formation.
func (f Formations) Lookup(name string) (Weights, error) {
	w, ok := f[name]
	if !ok {
		return Weights{}, fmt.Errorf("%w: unknown formation %q", ErrInvalidParameters, name)
	}
	return w, nil
}

// ParseWeights converts a config row of decimal strings into Weights.
func ParseWeights(values []string) (Weights, error) {
	var w Weights
	if len(values) != RosterSize {
		return w, fmt.Errorf("%w: formation needs %d weights, got %d", ErrConfiguration, RosterSize, len(values))
	}
	for i, v := range values {
		d, err := decimal.NewFromString(v)
		if err != nil {
			return w, fmt.Errorf("%w: weight %q: %v", ErrConfiguration, v, err)
		}
		if d.IsNegative() {
			return w, fmt.Errorf("%w: negative weight %s", ErrConfiguration, v)
		}
		w[i] = d
	}
	return w, nil
}

func weightsOf(vals ...float64) Weights {
	var w Weights
	for i, v := range vals {
		w[i] = decimal.NewFromFloat(v)
	}
	return w
}
