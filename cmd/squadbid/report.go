package main

import (
	"context"
	"fmt"
)

// runReport imprime el estado del ledger, o de una sola cuenta.
func runReport(ctx context.Context, a *app, account string) error {
	if account != "" {
		v, err := a.query.Account(ctx, account)
		if err != nil {
			return err
		}
		fmt.Printf("\n=== ACCOUNT %s | balance %d ===\n", v.Account, v.Balance)
		a.console.ReportOpenBids(v.OpenBids)
		a.console.ReportMatches(v.Matches)
		return nil
	}

	open, err := a.query.AllOpenBids(ctx)
	if err != nil {
		return err
	}
	a.console.ReportOpenBids(open)

	summary, err := a.query.Summary(ctx)
	if err != nil {
		return err
	}
	a.console.ReportSummary(summary)
	return nil
}
