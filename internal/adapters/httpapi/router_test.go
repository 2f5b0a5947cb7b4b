package httpapi_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alejandrodnm/squadbid/internal/adapters/httpapi"
	"github.com/alejandrodnm/squadbid/internal/adapters/metrics"
	"github.com/alejandrodnm/squadbid/internal/adapters/oracle"
	"github.com/alejandrodnm/squadbid/internal/adapters/storage"
	"github.com/alejandrodnm/squadbid/internal/application/escrow"
	"github.com/alejandrodnm/squadbid/internal/application/query"
	"github.com/alejandrodnm/squadbid/internal/application/registry"
	"github.com/alejandrodnm/squadbid/internal/domain"
	"github.com/alejandrodnm/squadbid/internal/ports"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var roster = []string{"T1", "T2", "T3", "T4", "T5", "T6", "T7"}

type tokenAuth struct{}

func (tokenAuth) HasCapability(token string, kind ports.Capability) bool {
	return token == string(kind)
}

type fixedClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fixedClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type api struct {
	t     *testing.T
	srv   *httptest.Server
	clock *fixedClock
	hub   *httpapi.Hub
}

func newAPI(t *testing.T) *api {
	t.Helper()
	db, err := storage.NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	table := make(map[string]string, len(roster))
	for _, tok := range roster {
		table[tok] = "100"
	}
	static, err := oracle.NewStatic(table)
	require.NoError(t, err)

	clock := &fixedClock{t: time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)}
	hub := httpapi.NewHub(nil)
	t.Cleanup(hub.Close)

	esc := escrow.New(escrow.Config{
		Limits:       domain.BidLimits{MinWager: 1000, MinDuration: time.Minute, MaxDuration: 30 * time.Minute},
		GraceWindow:  2 * time.Minute,
		DisputeAfter: 10 * time.Minute,
	}, db, static, tokenAuth{}, clock, hub)
	_, err = esc.EnsureFeeConfig(context.Background(), domain.FeeConfig{UpfrontBps: 500})
	require.NoError(t, err)
	reg := registry.New(registry.Config{}, db, clock, hub)

	srv := httptest.NewServer(httpapi.New(esc, reg, query.New(db), hub).Router(nil))
	t.Cleanup(srv.Close)
	return &api{t: t, srv: srv, clock: clock, hub: hub}
}

// do sends body (marshalled unless it is a string) and decodes the reply into out.
func (a *api) do(method, path, account, token string, body any, out any) int {
	a.t.Helper()
	var rd *bytes.Reader
	switch b := body.(type) {
	case nil:
		rd = bytes.NewReader(nil)
	case string:
		rd = bytes.NewReader([]byte(b))
	default:
		js, err := json.Marshal(b)
		require.NoError(a.t, err)
		rd = bytes.NewReader(js)
	}
	req, err := http.NewRequest(method, a.srv.URL+path, rd)
	require.NoError(a.t, err)
	if account != "" {
		req.Header.Set("X-Account", account)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(a.t, err)
	defer resp.Body.Close()
	if out != nil && resp.StatusCode != http.StatusNoContent {
		require.NoError(a.t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

type errorBody struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

type squadBody struct {
	Squad struct {
		ID    int64 `json:"id"`
		Lives int   `json:"lives"`
	} `json:"squad"`
}

type bidBody struct {
	Bid struct {
		ID        string `json:"id"`
		Status    string `json:"status"`
		EscrowFee int64  `json:"escrow_fee"`
	} `json:"bid"`
}

type matchBody struct {
	Match struct {
		ID        string `json:"id"`
		Status    string `json:"status"`
		PrizePool int64  `json:"prize_pool"`
		FeePool   int64  `json:"fee_pool"`
	} `json:"match"`
}

type balanceBody struct {
	Balance int64 `json:"balance"`
}

func (a *api) player(account string, funds int64) int64 {
	a.t.Helper()
	require.Equal(a.t, http.StatusOK,
		a.do("POST", "/accounts/"+account+"/deposit", "", "admin", map[string]int64{"amount": funds}, nil))
	var sq squadBody
	require.Equal(a.t, http.StatusCreated, a.do("POST", "/squads", account, "", map[string]any{
		"name": account + " squad", "formation": "balanced", "roster": roster,
	}, &sq))
	return sq.Squad.ID
}

func (a *api) bid(account string, squad int64) string {
	a.t.Helper()
	var b bidBody
	require.Equal(a.t, http.StatusCreated, a.do("POST", "/bids", account, "", map[string]int64{
		"squad_id": squad, "wager": 1_000_000, "duration_seconds": 300,
	}, &b))
	return b.Bid.ID
}

func TestAPI_MatchLifecycle(t *testing.T) {
	a := newAPI(t)
	sa := a.player("alice", 1_050_000)
	sb := a.player("bob", 1_050_000)
	bidA := a.bid("alice", sa)
	bidB := a.bid("bob", sb)

	var m matchBody
	require.Equal(t, http.StatusCreated, a.do("POST", "/matches", "", "match",
		map[string]string{"bid_a": bidA, "bid_b": bidB}, &m))
	assert.Equal(t, "ACTIVE", m.Match.Status)
	assert.Equal(t, int64(2_000_000), m.Match.PrizePool)
	assert.Equal(t, int64(100_000), m.Match.FeePool)

	var e errorBody
	final := map[string][]string{
		"final_prices_a": {"110", "100", "100", "100", "100", "100", "100"},
		"final_prices_b": {"100", "100", "100", "100", "100", "100", "100"},
	}
	assert.Equal(t, http.StatusConflict, a.do("POST", "/matches/"+m.Match.ID+"/complete", "", "settle", final, &e))
	assert.Equal(t, "match_not_ended", e.Error.Code)

	a.clock.Advance(5 * time.Minute)
	var res struct {
		Status string `json:"status"`
		Winner string `json:"winner"`
	}
	require.Equal(t, http.StatusOK, a.do("POST", "/matches/"+m.Match.ID+"/complete", "", "settle", final, &res))
	assert.Equal(t, "COMPLETED", res.Status)
	assert.Equal(t, "alice", res.Winner)

	var elig query.Eligibility
	require.Equal(t, http.StatusOK, a.do("GET", "/matches/"+m.Match.ID+"/can-claim", "bob", "", nil, &elig))
	assert.False(t, elig.Allowed)
	assert.Equal(t, "not_winner", elig.Reason)

	var payouts struct {
		Payouts []struct {
			Account string `json:"account"`
			Amount  int64  `json:"amount"`
		} `json:"payouts"`
	}
	require.Equal(t, http.StatusOK, a.do("POST", "/matches/"+m.Match.ID+"/claim", "alice", "", nil, &payouts))
	assert.Len(t, payouts.Payouts, 2)

	var bal balanceBody
	require.Equal(t, http.StatusOK, a.do("GET", "/accounts/alice/balance", "", "", nil, &bal))
	assert.Equal(t, int64(2_000_000), bal.Balance)

	assert.Equal(t, http.StatusConflict, a.do("POST", "/matches/"+m.Match.ID+"/claim", "alice", "", nil, &e))
	assert.Equal(t, "already_claimed", e.Error.Code)
}

func TestAPI_ErrorMapping(t *testing.T) {
	a := newAPI(t)
	sq := a.player("alice", 1_000_000)

	tests := []struct {
		name    string
		method  string
		path    string
		account string
		token   string
		body    any
		status  int
		code    string
	}{
		{"missing account header", "POST", "/bids", "", "", map[string]int64{"squad_id": sq, "wager": 1000, "duration_seconds": 60}, http.StatusForbidden, "not_authorized"},
		{"deposit without admin", "POST", "/accounts/bob/deposit", "", "match", map[string]int64{"amount": 5}, http.StatusForbidden, "missing_capability"},
		{"unknown bid", "GET", "/bids/nope", "", "", nil, http.StatusNotFound, "not_found"},
		{"bad json", "POST", "/bids", "alice", "", "{", http.StatusBadRequest, "invalid_parameters"},
		{"unknown field", "POST", "/bids", "alice", "", `{"squad":1}`, http.StatusBadRequest, "invalid_parameters"},
		{"insufficient funds", "POST", "/bids", "alice", "", map[string]int64{"squad_id": sq, "wager": 1_000_000, "duration_seconds": 60}, http.StatusUnprocessableEntity, "insufficient_funds"},
		{"duration out of range", "POST", "/bids", "alice", "", map[string]int64{"squad_id": sq, "wager": 1000, "duration_seconds": 5}, http.StatusBadRequest, "invalid_parameters"},
		{"duration overflows", "POST", "/bids", "alice", "", map[string]int64{"squad_id": sq, "wager": 1000, "duration_seconds": 300 + 1<<55}, http.StatusBadRequest, "invalid_parameters"},
		{"bad squad id", "GET", "/squads/abc", "", "", nil, http.StatusBadRequest, "invalid_parameters"},
		{"bad since", "GET", "/events?since=-1", "", "", nil, http.StatusBadRequest, "invalid_parameters"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var e errorBody
			assert.Equal(t, tt.status, a.do(tt.method, tt.path, tt.account, tt.token, tt.body, &e))
			assert.Equal(t, tt.code, e.Error.Code)
		})
	}
}

func TestAPI_CancelBid(t *testing.T) {
	a := newAPI(t)
	sq := a.player("alice", 1_050_000)
	id := a.bid("alice", sq)

	var elig query.Eligibility
	require.Equal(t, http.StatusOK, a.do("GET", "/bids/"+id+"/can-cancel", "mallory", "", nil, &elig))
	assert.False(t, elig.Allowed)

	var e errorBody
	assert.Equal(t, http.StatusForbidden, a.do("DELETE", "/bids/"+id, "mallory", "", nil, &e))

	var b bidBody
	require.Equal(t, http.StatusOK, a.do("DELETE", "/bids/"+id, "alice", "", nil, &b))
	assert.Equal(t, "CANCELLED", b.Bid.Status)

	assert.Equal(t, http.StatusConflict, a.do("DELETE", "/bids/"+id, "alice", "", nil, &e))
	assert.Equal(t, "bid_not_open", e.Error.Code)
}

func TestAPI_SquadPatchAndDelete(t *testing.T) {
	a := newAPI(t)
	id := a.player("alice", 0)
	path := "/squads/" + jsonInt(id)

	var sq squadBody
	require.Equal(t, http.StatusOK, a.do("PATCH", path, "alice", "", map[string]string{"name": "renamed"}, &sq))

	var e errorBody
	assert.Equal(t, http.StatusBadRequest, a.do("PATCH", path, "alice", "", map[string]string{"formation": "captain"}, &e))
	assert.Equal(t, http.StatusBadRequest, a.do("PATCH", path, "alice", "", map[string]any{
		"name": "half applied", "formation": "captain", "roster": []string{"T1"},
	}, &e))
	var named struct {
		Squad struct {
			Name string `json:"name"`
		} `json:"squad"`
	}
	require.Equal(t, http.StatusOK, a.do("GET", path, "", "", nil, &named))
	assert.Equal(t, "renamed", named.Squad.Name)
	assert.Equal(t, http.StatusForbidden, a.do("DELETE", path, "bob", "", nil, &e))
	assert.Equal(t, http.StatusNoContent, a.do("DELETE", path, "alice", "", nil, nil))
	assert.Equal(t, http.StatusNotFound, a.do("GET", path, "", "", nil, &e))
}

func TestAPI_FeesAndEvents(t *testing.T) {
	a := newAPI(t)

	var fees struct {
		Fees struct {
			Version    int64 `json:"version"`
			UpfrontBps int64 `json:"upfront_bps"`
		} `json:"fees"`
	}
	require.Equal(t, http.StatusOK, a.do("GET", "/fees", "", "", nil, &fees))
	assert.Equal(t, int64(500), fees.Fees.UpfrontBps)

	var e errorBody
	assert.Equal(t, http.StatusForbidden, a.do("PUT", "/fees", "", "settle", map[string]int64{"upfront_bps": 100}, &e))
	require.Equal(t, http.StatusOK, a.do("PUT", "/fees", "", "admin", map[string]int64{"upfront_bps": 100}, &fees))
	assert.Equal(t, int64(100), fees.Fees.UpfrontBps)

	a.player("alice", 10)

	var events struct {
		Events []domain.Event `json:"events"`
	}
	require.Equal(t, http.StatusOK, a.do("GET", "/events?since=0", "", "", nil, &events))
	require.NotEmpty(t, events.Events)
	last := events.Events[len(events.Events)-1]
	assert.Equal(t, domain.EventSquadCreated, last.Type)

	require.Equal(t, http.StatusOK, a.do("GET", "/events?since="+jsonInt(last.Seq), "", "", nil, &events))
	assert.Empty(t, events.Events)
}

func TestAPI_WebsocketStream(t *testing.T) {
	a := newAPI(t)
	url := "ws" + strings.TrimPrefix(a.srv.URL, "http") + "/ws?account=alice"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()
	require.Eventually(t, func() bool { return a.hub.Clients() == 1 }, time.Second, 5*time.Millisecond)

	a.player("bob", 10)   // filtered out
	a.player("alice", 10) // deposit + squad

	var msg struct {
		Type    domain.EventType `json:"type"`
		Payload domain.Event     `json:"payload"`
	}
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, domain.EventDeposited, msg.Type)
	assert.Equal(t, "alice", msg.Payload.Account)

	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, domain.EventSquadCreated, msg.Type)
}

func jsonInt(n int64) string {
	js, _ := json.Marshal(n)
	return string(js)
}

func TestAPI_MetricsEndpoint(t *testing.T) {
	meter := metrics.New()
	meter.Publish(domain.Event{Seq: 9, Type: domain.EventBidCreated})
	srv := httptest.NewServer(httpapi.New(nil, nil, nil, nil).WithMetrics(meter.Handler()).Router(nil))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `squadbid_events_total{type="bid.created"} 1`)
}
