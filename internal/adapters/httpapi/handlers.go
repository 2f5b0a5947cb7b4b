package httpapi

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/alejandrodnm/squadbid/internal/application/registry"
	"github.com/alejandrodnm/squadbid/internal/domain"
	"github.com/go-chi/chi/v5"
)

// --- accounts ---

func (s *Server) getAccount(w http.ResponseWriter, r *http.Request) {
	v, err := s.query.Account(r.Context(), chi.URLParam(r, "account"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{
		"account":   v.Account,
		"balance":   v.Balance,
		"open_bids": toBids(v.OpenBids),
		"matches":   toMatches(v.Matches),
	})
}

func (s *Server) deposit(w http.ResponseWriter, r *http.Request) {
	var req depositRequest
	if err := readJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	account := chi.URLParam(r, "account")
	bal, err := s.escrow.Deposit(r.Context(), bearer(r), account, req.Amount)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{"account": account, "balance": bal})
}

func (s *Server) getBalance(w http.ResponseWriter, r *http.Request) {
	account := chi.URLParam(r, "account")
	bal, err := s.query.Balance(r.Context(), account)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{"account": account, "balance": bal})
}

func (s *Server) getAccountBids(w http.ResponseWriter, r *http.Request) {
	bids, err := s.query.OpenBidsForAccount(r.Context(), chi.URLParam(r, "account"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{"bids": toBids(bids)})
}

func (s *Server) getAccountMatches(w http.ResponseWriter, r *http.Request) {
	matches, err := s.query.MatchesForAccount(r.Context(), chi.URLParam(r, "account"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{"matches": toMatches(matches)})
}

func (s *Server) getAccountSquads(w http.ResponseWriter, r *http.Request) {
	squads, err := s.registry.SquadsForAccount(r.Context(), chi.URLParam(r, "account"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := make([]squadJSON, 0, len(squads))
	for _, sq := range squads {
		out = append(out, toSquad(sq))
	}
	writeJSON(w, http.StatusOK, envelope{"squads": out})
}

// --- squads ---

func (s *Server) createSquad(w http.ResponseWriter, r *http.Request) {
	owner, err := caller(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req squadRequest
	if err := readJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	sq, err := s.registry.CreateSquad(r.Context(), owner, req.Name, req.Formation, req.Roster)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, envelope{"squad": toSquad(sq)})
}

func (s *Server) getSquad(w http.ResponseWriter, r *http.Request) {
	id, err := squadParam(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	sq, err := s.registry.GetSquad(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{"squad": toSquad(sq)})
}

// patchSquad renombra y/o cambia la plantilla. Formation y roster van juntos.
func (s *Server) patchSquad(w http.ResponseWriter, r *http.Request) {
	owner, err := caller(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	id, err := squadParam(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req squadPatch
	if err := readJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	sq, err := s.registry.UpdateSquad(r.Context(), id, owner, registry.SquadChange{
		Name: req.Name, Formation: req.Formation, Roster: req.Roster,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{"squad": toSquad(sq)})
}

func (s *Server) deleteSquad(w http.ResponseWriter, r *http.Request) {
	owner, err := caller(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	id, err := squadParam(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.registry.DeleteSquad(r.Context(), id, owner); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) reviveSquad(w http.ResponseWriter, r *http.Request) {
	owner, err := caller(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	id, err := squadParam(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req reviveRequest
	if r.ContentLength != 0 {
		if err := readJSON(w, r, &req); err != nil {
			writeError(w, r, err)
			return
		}
	}
	sq, err := s.registry.ReviveSquad(r.Context(), id, owner, req.Instant)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{"squad": toSquad(sq)})
}

// --- bids ---

func (s *Server) listOpenBids(w http.ResponseWriter, r *http.Request) {
	bids, err := s.query.AllOpenBids(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{"bids": toBids(bids)})
}

func (s *Server) createBid(w http.ResponseWriter, r *http.Request) {
	creator, err := caller(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req bidRequest
	if err := readJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	d, err := req.duration()
	if err != nil {
		writeError(w, r, err)
		return
	}
	b, err := s.escrow.CreateBid(r.Context(), creator, req.SquadID, req.Wager, d)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, envelope{"bid": toBid(b)})
}

func (s *Server) getBid(w http.ResponseWriter, r *http.Request) {
	b, err := s.query.Bid(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{"bid": toBid(b)})
}

func (s *Server) cancelBid(w http.ResponseWriter, r *http.Request) {
	requester, err := caller(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	b, err := s.escrow.CancelBid(r.Context(), chi.URLParam(r, "id"), requester)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{"bid": toBid(b)})
}

func (s *Server) canCancel(w http.ResponseWriter, r *http.Request) {
	account, err := caller(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	e, err := s.query.CanCancel(r.Context(), chi.URLParam(r, "id"), account)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, e)
}

// --- matches ---

func (s *Server) matchBids(w http.ResponseWriter, r *http.Request) {
	var req matchRequest
	if err := readJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	m, err := s.escrow.MatchBids(r.Context(), req.BidA, req.BidB, bearer(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, envelope{"match": toMatch(m)})
}

func (s *Server) getMatch(w http.ResponseWriter, r *http.Request) {
	m, err := s.query.Match(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{"match": toMatch(m)})
}

func (s *Server) completeMatch(w http.ResponseWriter, r *http.Request) {
	var req completeRequest
	if err := readJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	res, err := s.escrow.CompleteMatch(r.Context(), chi.URLParam(r, "id"), req.FinalPricesA, req.FinalPricesB, bearer(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{
		"match_id":      res.MatchID,
		"status":        string(res.Status),
		"winner":        res.Winner,
		"performance_a": res.PerformanceA.String(),
		"performance_b": res.PerformanceB.String(),
	})
}

func (s *Server) disputeMatch(w http.ResponseWriter, r *http.Request) {
	m, err := s.escrow.DisputeMatch(r.Context(), chi.URLParam(r, "id"), bearer(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{"match": toMatch(m)})
}

func (s *Server) claimPrize(w http.ResponseWriter, r *http.Request) {
	claimant, err := caller(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	payouts, err := s.escrow.ClaimPrize(r.Context(), chi.URLParam(r, "id"), claimant)
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := make([]payoutJSON, 0, len(payouts))
	for _, p := range payouts {
		out = append(out, payoutJSON{Account: p.Account, Amount: p.Amount})
	}
	writeJSON(w, http.StatusOK, envelope{"payouts": out})
}

func (s *Server) canClaim(w http.ResponseWriter, r *http.Request) {
	account, err := caller(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	e, err := s.query.CanClaim(r.Context(), chi.URLParam(r, "id"), account)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, e)
}

// --- fees, events ---

func (s *Server) getFees(w http.ResponseWriter, r *http.Request) {
	cfg, err := s.escrow.FeeConfig(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{"fees": toFee(cfg)})
}

func (s *Server) putFees(w http.ResponseWriter, r *http.Request) {
	var req feeJSON
	if err := readJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	cfg, err := s.escrow.SetFeeConfig(r.Context(), bearer(r), req.config())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{"fees": toFee(cfg)})
}

const (
	defaultEventPage = 100
	maxEventPage     = 1000
)

func (s *Server) listEvents(w http.ResponseWriter, r *http.Request) {
	since, err := intQuery(r, "since", 0)
	if err != nil {
		writeError(w, r, err)
		return
	}
	limit, err := intQuery(r, "limit", defaultEventPage)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if limit <= 0 || limit > maxEventPage {
		limit = maxEventPage
	}
	events, err := s.query.EventsSince(r.Context(), since, int(limit))
	if err != nil {
		writeError(w, r, err)
		return
	}
	if events == nil {
		events = []domain.Event{}
	}
	writeJSON(w, http.StatusOK, envelope{"events": events})
}

func (s *Server) getSummary(w http.ResponseWriter, r *http.Request) {
	sum, err := s.query.Summary(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	matches := make(map[string]int, len(sum.Matches))
	for st, n := range sum.Matches {
		matches[string(st)] = n
	}
	writeJSON(w, http.StatusOK, envelope{
		"open_bids":        sum.OpenBids,
		"open_escrow":      sum.OpenEscrow,
		"matches":          matches,
		"treasury_balance": sum.TreasuryBalance,
		"last_event_seq":   sum.LastEventSeq,
	})
}

func intQuery(r *http.Request, key string, def int64) (int64, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%w: bad %s %q", domain.ErrInvalidParameters, key, raw)
	}
	return n, nil
}
