// Package notify prints engine cycles and ledger reports to a terminal.
package notify

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/alejandrodnm/squadbid/internal/domain"
	"github.com/olekukonko/tablewriter"
)

// Console implementa ports.Notifier.
type Console struct {
	out   io.Writer
	clock func() time.Time
}

// NewConsole crea un notificador que escribe a stdout.
func NewConsole() *Console {
	return NewConsoleWriter(os.Stdout)
}

// NewConsoleWriter crea un notificador sobre w (útil en tests).
func NewConsoleWriter(w io.Writer) *Console {
	return &Console{out: w, clock: time.Now}
}

// NotifyCycle imprime una línea resumen y una tabla por cada tipo de cambio.
func (c *Console) NotifyCycle(_ context.Context, rep domain.CycleReport) error {
	at := rep.At
	if at.IsZero() {
		at = c.clock()
	}
	fmt.Fprintf(c.out, "[%s] matched:%d settled:%d disputed:%d swept:%d skipped:%d\n",
		at.Format("15:04:05"), len(rep.Matched), len(rep.Settled), len(rep.Disputed), len(rep.Swept), rep.Skipped)

	if len(rep.Matched) > 0 {
		c.printMatches(rep.Matched)
	}
	if len(rep.Settled) > 0 {
		table := tablewriter.NewWriter(c.out)
		table.Header("Match", "Result", "Winner", "Perf A", "Perf B")
		for _, r := range rep.Settled {
			table.Append(short(r.MatchID), string(r.Status), dash(r.Winner),
				r.PerformanceA.StringFixed(4), r.PerformanceB.StringFixed(4))
		}
		table.Render()
	}
	for _, id := range rep.Disputed {
		fmt.Fprintf(c.out, "  !! disputed %s\n", id)
	}
	if len(rep.Swept) > 0 {
		fmt.Fprintf(c.out, "  swept: %s\n", strings.Join(rep.Swept, ", "))
	}
	for i, w := range rep.Warnings {
		if i >= 5 {
			fmt.Fprintf(c.out, "  >> ... %d more\n", len(rep.Warnings)-i)
			break
		}
		fmt.Fprintf(c.out, "  >> %s\n", w)
	}
	return nil
}

// ReportOpenBids imprime el libro de pujas abiertas.
func (c *Console) ReportOpenBids(bids []domain.Bid) {
	if len(bids) == 0 {
		fmt.Fprintln(c.out, "\n  No open bids.")
		return
	}
	now := c.clock()
	table := tablewriter.NewWriter(c.out)
	table.Header("#", "Bid", "Creator", "Squad", "Wager", "Fee", "Duration", "Age")
	for i, b := range bids {
		table.Append(
			fmt.Sprintf("%d", i+1),
			short(b.ID),
			b.Creator,
			fmt.Sprintf("%d", b.SquadID),
			fmt.Sprintf("%d", b.EscrowPrincipal),
			fmt.Sprintf("%d", b.EscrowFee),
			b.Duration.String(),
			b.Age(now).Round(time.Second).String(),
		)
	}
	table.Render()
}

// ReportMatches imprime los matches dados.
func (c *Console) ReportMatches(matches []domain.Match) {
	if len(matches) == 0 {
		fmt.Fprintln(c.out, "\n  No matches.")
		return
	}
	c.printMatches(matches)
}

// ReportSummary imprime el agregado del ledger.
func (c *Console) ReportSummary(s domain.Summary) {
	fmt.Fprintf(c.out, "\n=== LEDGER SUMMARY ===\n")
	fmt.Fprintf(c.out, "  Open bids:        %d\n", s.OpenBids)
	fmt.Fprintf(c.out, "  Escrowed in bids: %d\n", s.OpenEscrow)
	fmt.Fprintf(c.out, "  Treasury:         %d\n", s.TreasuryBalance)
	fmt.Fprintf(c.out, "  Last event:       #%d\n", s.LastEventSeq)

	statuses := make([]string, 0, len(s.Matches))
	for st := range s.Matches {
		statuses = append(statuses, string(st))
	}
	sort.Strings(statuses)
	for _, st := range statuses {
		fmt.Fprintf(c.out, "  Matches %-9s %d\n", st+":", s.Matches[domain.MatchStatus(st)])
	}
	fmt.Fprintln(c.out)
}

func (c *Console) printMatches(matches []domain.Match) {
	table := tablewriter.NewWriter(c.out)
	table.Header("Match", "Player A", "Player B", "Prize", "Fees", "Ends", "Status", "Claimed")
	for _, m := range matches {
		claimed := "-"
		if m.PrizeClaimed {
			claimed = m.ClaimedBy
		}
		table.Append(
			short(m.ID),
			m.PlayerA,
			m.PlayerB,
			fmt.Sprintf("%d", m.PrizePool),
			fmt.Sprintf("%d", m.FeePool),
			m.EndTime.Format("01-02 15:04:05"),
			string(m.Status),
			claimed,
		)
	}
	table.Render()
}

// short recorta un uuid a su primer bloque.
func short(id string) string {
	if i := strings.IndexByte(id, '-'); i > 0 {
		return id[:i]
	}
	return id
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
