package routes

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"
	"nhooyr.io/websocket"

	"fundtreasury/crypto"
	"fundtreasury/gateway/middleware"
	"fundtreasury/ledger"
	"fundtreasury/native/treasury"
	"fundtreasury/storage"
	"fundtreasury/storage/audit"
)

const testSecret = "0123456789abcdef0123456789abcdef"

var (
	owner     = testAddr(0x01)
	authA     = testAddr(0xa1)
	authB     = testAddr(0xb1)
	authC     = testAddr(0xc1)
	recipient = testAddr(0xee)
	donor     = testAddr(0x55)
)

func testAddr(b byte) crypto.Address {
	var addr crypto.Address
	addr[0] = 0x20
	addr[19] = b
	return addr
}

type harness struct {
	t         *testing.T
	srv       *httptest.Server
	ledger    *ledger.Ledger
	audit     *audit.Store
	exportDir string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	dir := t.TempDir()

	store, err := audit.Open("sqlite://" + filepath.Join(dir, "audit.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	led, err := ledger.Open(storage.NewMemDB(), treasury.Genesis{
		Owner:             owner,
		Authorities:       []crypto.Address{authA, authB, authC},
		RequiredApprovals: 2,
	}, treasury.DefaultParams(),
		ledger.WithClock(func() time.Time { return time.Unix(1_700_000_000, 0).UTC() }),
		ledger.WithSink(store))
	require.NoError(t, err)
	t.Cleanup(led.Close)

	idem, err := middleware.OpenIdempotencyStore(filepath.Join(dir, "idempotency.db"), time.Hour, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = idem.Close() })

	exportDir := filepath.Join(dir, "exports")
	handler, err := New(Config{
		Ledger:        led,
		Audit:         store,
		ExportDir:     exportDir,
		Authenticator: middleware.NewAuthenticator(middleware.AuthConfig{HMACSecret: testSecret, Issuer: "fundtreasury"}, nil),
		RateLimiter:   middleware.NewRateLimiter(map[string]middleware.RateLimit{RateLimitKey: {RatePerSecond: 1000, Burst: 1000}}, nil),
		Observability: middleware.NewObservability(middleware.ObservabilityConfig{}, nil),
		Idempotency:   idem,
	})
	require.NoError(t, err)

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return &harness{t: t, srv: srv, ledger: led, audit: store, exportDir: exportDir}
}

func (h *harness) token(addr crypto.Address) string {
	token, err := middleware.SignToken(testSecret, "fundtreasury", "", addr, time.Hour, time.Now())
	require.NoError(h.t, err)
	return token
}

func (h *harness) do(method, path string, as *crypto.Address, body any, headers map[string]string) (int, []byte, http.Header) {
	h.t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(h.t, err)
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, h.srv.URL+path, reader)
	require.NoError(h.t, err)
	req.Header.Set("Content-Type", "application/json")
	if as != nil {
		req.Header.Set("Authorization", "Bearer "+h.token(*as))
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	res, err := h.srv.Client().Do(req)
	require.NoError(h.t, err)
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	require.NoError(h.t, err)
	return res.StatusCode, data, res.Header
}

func (h *harness) mutate(method, path string, as crypto.Address, body any, wantStatus int) mutationResponse {
	h.t.Helper()
	status, data, _ := h.do(method, path, &as, body, nil)
	require.Equal(h.t, wantStatus, status, string(data))
	var resp mutationResponse
	require.NoError(h.t, json.Unmarshal(data, &resp))
	return resp
}

func (h *harness) expectError(method, path string, as *crypto.Address, body any, wantStatus int, wantCode string) {
	h.t.Helper()
	status, data, _ := h.do(method, path, as, body, nil)
	require.Equal(h.t, wantStatus, status, string(data))
	var errBody middleware.ErrorBody
	require.NoError(h.t, json.Unmarshal(data, &errBody))
	require.Equal(h.t, wantCode, errBody.Error.Code)
}

func TestHTTPLifecycle(t *testing.T) {
	h := newHarness(t)

	dep := h.mutate(http.MethodPost, "/v1/deposits", donor, map[string]string{"amount": "1000"}, http.StatusOK)
	require.Equal(t, uint64(1), dep.Sequence)

	sub := h.mutate(http.MethodPost, "/v1/proposals", donor, map[string]string{
		"description": "ward renovation",
		"amount":      "600",
		"recipient":   recipient.Hex(),
	}, http.StatusCreated)
	require.Equal(t, uint64(1), sub.ProposalID)
	require.NotNil(t, sub.Proposal)
	require.Equal(t, "awaiting_approval", sub.Proposal.Phase)
	require.Equal(t, "300", sub.Proposal.InitialTranche.Dec())

	vote := h.mutate(http.MethodPost, "/v1/proposals/1/votes", authA, nil, http.StatusOK)
	require.Equal(t, uint64(1), vote.Proposal.Votes)
	require.False(t, vote.Proposal.Approved)
	vote = h.mutate(http.MethodPost, "/v1/proposals/1/votes", authB, nil, http.StatusOK)
	require.True(t, vote.Proposal.Approved)

	initial := h.mutate(http.MethodPost, "/v1/proposals/1/release-initial", owner, nil, http.StatusOK)
	require.Len(t, initial.Transfers, 1)
	require.Equal(t, "300", initial.Transfers[0].Amount.Dec())
	require.Equal(t, recipient, initial.Transfers[0].Recipient)

	report := h.mutate(http.MethodPost, "/v1/proposals/1/report", recipient, map[string]string{"report": "phase one complete"}, http.StatusOK)
	require.True(t, report.Proposal.Stage.StageLocked)

	h.mutate(http.MethodPost, "/v1/proposals/1/stage-approvals", authA, nil, http.StatusOK)
	h.mutate(http.MethodPost, "/v1/proposals/1/stage-approvals", authC, nil, http.StatusOK)

	final := h.mutate(http.MethodPost, "/v1/proposals/1/release-final", owner, nil, http.StatusOK)
	require.Len(t, final.Transfers, 1)
	require.Equal(t, "300", final.Transfers[0].Amount.Dec())
	require.True(t, final.Proposal.Executed)

	status, data, _ := h.do(http.MethodGet, "/v1/treasury", nil, nil, nil)
	require.Equal(t, http.StatusOK, status)
	var summary summaryView
	require.NoError(t, json.Unmarshal(data, &summary))
	require.Equal(t, "400", summary.Balance.Dec())
	require.Equal(t, "1000", summary.TotalDeposited.Dec())
	require.Equal(t, "600", summary.TotalReleased.Dec())
	require.Equal(t, uint64(9), summary.Head.Sequence)
	require.Equal(t, owner, summary.Owner)

	status, data, _ = h.do(http.MethodGet, "/v1/proposals/1/stage", nil, nil, nil)
	require.Equal(t, http.StatusOK, status)
	var stage treasury.StageDetails
	require.NoError(t, json.Unmarshal(data, &stage))
	require.Equal(t, uint8(1), stage.CurrentStage)
	require.Equal(t, uint8(2), stage.TotalStages)
	require.Equal(t, uint64(2), stage.StageApprovalCount)

	status, data, _ = h.do(http.MethodGet, "/v1/transfers?limit=1&from=2", nil, nil, nil)
	require.Equal(t, http.StatusOK, status)
	var transfers struct {
		Transfers []ledger.Transfer `json:"transfers"`
	}
	require.NoError(t, json.Unmarshal(data, &transfers))
	require.Len(t, transfers.Transfers, 1)
	require.Equal(t, uint8(1), transfers.Transfers[0].Stage)

	status, data, _ = h.do(http.MethodGet, "/v1/journal/verify", nil, nil, nil)
	require.Equal(t, http.StatusOK, status, string(data))
	require.Contains(t, string(data), `"intact":true`)
	require.Contains(t, string(data), `"verified":9`)

	status, data, _ = h.do(http.MethodGet, "/v1/audit/records?proposal=1&type=treasury.funds.released", nil, nil, nil)
	require.Equal(t, http.StatusOK, status)
	var records struct {
		Records []audit.Record `json:"records"`
	}
	require.NoError(t, json.Unmarshal(data, &records))
	require.Len(t, records.Records, 2)

	h.expectError(http.MethodPost, "/v1/audit/exports", &donor, map[string]any{}, http.StatusForbidden, "not_owner")
	status, data, _ = h.do(http.MethodPost, "/v1/audit/exports", &owner, map[string]any{"proposalId": 1}, nil)
	require.Equal(t, http.StatusCreated, status, string(data))
	var export struct {
		File string `json:"file"`
		Rows int    `json:"rows"`
	}
	require.NoError(t, json.Unmarshal(data, &export))
	require.Positive(t, export.Rows)
	_, err := os.Stat(filepath.Join(h.exportDir, export.File))
	require.NoError(t, err)
}

func TestHTTPQueries(t *testing.T) {
	h := newHarness(t)

	status, data, _ := h.do(http.MethodGet, "/v1/authorities", nil, nil, nil)
	require.Equal(t, http.StatusOK, status)
	var auths authoritiesView
	require.NoError(t, json.Unmarshal(data, &auths))
	require.Equal(t, []crypto.Address{authA, authB, authC}, auths.Authorities)
	require.Equal(t, uint64(2), auths.RequiredApprovals)

	status, data, _ = h.do(http.MethodGet, "/v1/authorities/"+authB.Hex(), nil, nil, nil)
	require.Equal(t, http.StatusOK, status)
	require.Contains(t, string(data), `"isAuthority":true`)

	status, data, _ = h.do(http.MethodGet, "/v1/owner", nil, nil, nil)
	require.Equal(t, http.StatusOK, status)
	require.Contains(t, string(data), owner.Hex())

	status, data, _ = h.do(http.MethodGet, "/v1/proposals", nil, nil, nil)
	require.Equal(t, http.StatusOK, status)
	require.JSONEq(t, `{"proposals":[]}`, string(data))

	status, _, _ = h.do(http.MethodGet, "/healthz", nil, nil, nil)
	require.Equal(t, http.StatusOK, status)

	status, data, _ = h.do(http.MethodGet, "/metrics", nil, nil, nil)
	require.Equal(t, http.StatusOK, status)
	require.True(t, strings.Contains(string(data), "fundtreasury_gateway_requests_total"))
}

func TestHTTPGovernance(t *testing.T) {
	h := newHarness(t)
	newAuth := testAddr(0xd1)

	h.mutate(http.MethodPost, "/v1/authorities", owner, map[string]string{"address": newAuth.Hex()}, http.StatusCreated)
	h.expectError(http.MethodPost, "/v1/authorities", &owner, map[string]string{"address": newAuth.Hex()}, http.StatusConflict, "duplicate_authority")
	h.expectError(http.MethodPost, "/v1/authorities", &authA, map[string]string{"address": testAddr(0xd2).Hex()}, http.StatusForbidden, "not_owner")

	h.mutate(http.MethodPut, "/v1/threshold", owner, map[string]uint64{"requiredApprovals": 4}, http.StatusOK)
	h.expectError(http.MethodPut, "/v1/threshold", &owner, map[string]uint64{"requiredApprovals": 5}, http.StatusBadRequest, "invalid_threshold")
	h.expectError(http.MethodDelete, "/v1/authorities/"+authA.Hex(), &owner, nil, http.StatusUnprocessableEntity, "minimum_authorities_violation")

	h.mutate(http.MethodPut, "/v1/threshold", owner, map[string]uint64{"requiredApprovals": 2}, http.StatusOK)
	h.mutate(http.MethodDelete, "/v1/authorities/"+authA.Hex(), owner, nil, http.StatusOK)
	h.expectError(http.MethodDelete, "/v1/authorities/"+authA.Hex(), &owner, nil, http.StatusNotFound, "unknown_authority")

	status, data, _ := h.do(http.MethodGet, "/v1/threshold", nil, nil, nil)
	require.Equal(t, http.StatusOK, status)
	require.JSONEq(t, `{"requiredApprovals":2}`, string(data))
}

func TestHTTPErrorMapping(t *testing.T) {
	h := newHarness(t)

	h.expectError(http.MethodPost, "/v1/deposits", nil, map[string]string{"amount": "10"}, http.StatusUnauthorized, "missing_token")
	h.expectError(http.MethodPost, "/v1/deposits", &donor, map[string]string{"amount": "0"}, http.StatusBadRequest, "zero_deposit")
	h.expectError(http.MethodPost, "/v1/deposits", &donor, map[string]string{"amount": "ten"}, http.StatusBadRequest, "malformed_body")
	h.expectError(http.MethodPost, "/v1/deposits", &donor, map[string]string{"sum": "10"}, http.StatusBadRequest, "malformed_body")
	h.expectError(http.MethodPost, "/v1/proposals", &donor, map[string]string{
		"description": "x", "amount": "5", "recipient": "nonsense",
	}, http.StatusBadRequest, "invalid_recipient")
	h.expectError(http.MethodPost, "/v1/proposals", &donor, map[string]string{
		"description": " ", "amount": "5", "recipient": recipient.Hex(),
	}, http.StatusBadRequest, "empty_description")
	h.expectError(http.MethodGet, "/v1/proposals/99", nil, nil, http.StatusNotFound, "proposal_not_found")
	h.expectError(http.MethodGet, "/v1/proposals/abc", nil, nil, http.StatusBadRequest, "invalid_proposal_id")

	h.mutate(http.MethodPost, "/v1/proposals", donor, map[string]string{
		"description": "clinic", "amount": "50", "recipient": recipient.Hex(),
	}, http.StatusCreated)
	h.expectError(http.MethodPost, "/v1/proposals/1/votes", &donor, nil, http.StatusForbidden, "not_authority")
	h.mutate(http.MethodPost, "/v1/proposals/1/votes", authA, nil, http.StatusOK)
	h.expectError(http.MethodPost, "/v1/proposals/1/votes", &authA, nil, http.StatusConflict, "already_voted")
	h.mutate(http.MethodPost, "/v1/proposals/1/votes", authB, nil, http.StatusOK)
	h.expectError(http.MethodPost, "/v1/proposals/1/release-initial", &owner, nil, http.StatusUnprocessableEntity, "insufficient_treasury")
	h.expectError(http.MethodPost, "/v1/proposals/1/report", &recipient, map[string]string{"report": "early"}, http.StatusConflict, "wrong_stage")

	seq, _ := h.ledger.Head()
	require.Equal(t, uint64(3), seq, "rejections must not reach the journal")
}

func TestHTTPIdempotentRetry(t *testing.T) {
	h := newHarness(t)
	headers := map[string]string{middleware.HeaderIdempotencyKey: "deposit-42"}

	status, first, _ := h.do(http.MethodPost, "/v1/deposits", &donor, map[string]string{"amount": "42"}, headers)
	require.Equal(t, http.StatusOK, status)
	status, second, hdr := h.do(http.MethodPost, "/v1/deposits", &donor, map[string]string{"amount": "42"}, headers)
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, "true", hdr.Get(middleware.HeaderReplayed))
	require.JSONEq(t, string(first), string(second))

	var balance *uint256.Int
	require.NoError(t, h.ledger.View(func(engine *treasury.Engine) error {
		balance = engine.TreasuryBalance()
		return nil
	}))
	require.Equal(t, uint64(42), balance.Uint64())

	// the same key from another caller is a different request
	status, _, hdr = h.do(http.MethodPost, "/v1/deposits", &authA, map[string]string{"amount": "42"}, headers)
	require.Equal(t, http.StatusOK, status)
	require.Empty(t, hdr.Get(middleware.HeaderReplayed))
}

func TestEventStream(t *testing.T) {
	h := newHarness(t)
	h.mutate(http.MethodPost, "/v1/deposits", donor, map[string]string{"amount": "7"}, http.StatusOK)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	url := "ws" + strings.TrimPrefix(h.srv.URL, "http") + "/v1/events?cursor=0"
	conn, _, err := websocket.Dial(ctx, url, nil)
	require.NoError(t, err)
	defer conn.Close(websocket.StatusNormalClosure, "done")

	readCommit := func() ledger.Commit {
		_, data, err := conn.Read(ctx)
		require.NoError(t, err)
		var commit ledger.Commit
		require.NoError(t, json.Unmarshal(data, &commit))
		return commit
	}

	backlog := readCommit()
	require.Equal(t, uint64(1), backlog.Entry.Sequence)
	require.Equal(t, ledger.OpDeposit, backlog.Entry.Op)
	require.Len(t, backlog.Events, 1)
	require.Equal(t, "treasury.deposit", backlog.Events[0].Type)

	_, err = h.ledger.Apply(ctx, ledger.SubmitProposal(donor, "beds", uint256.NewInt(3), recipient))
	require.NoError(t, err)
	live := readCommit()
	require.Equal(t, uint64(2), live.Entry.Sequence)
	require.Equal(t, "treasury.proposal.submitted", live.Events[0].Type)
	require.Equal(t, backlog.Entry.Hash, live.Entry.PrevHash)
}

func TestWriteErrorMapsCommitFailure(t *testing.T) {
	s := &server{logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/deposits", nil)
	s.writeError(rec, req, fmt.Errorf("%w: disk full", ledger.ErrCommit))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	require.Contains(t, rec.Body.String(), "commit_failed")

	rec = httptest.NewRecorder()
	s.writeError(rec, req, fmt.Errorf("boom"))
	require.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestStatusForKind(t *testing.T) {
	cases := map[treasury.Kind]int{
		treasury.KindAuthorization:      http.StatusForbidden,
		treasury.KindNotFound:           http.StatusNotFound,
		treasury.KindInvalidInput:       http.StatusBadRequest,
		treasury.KindZeroDeposit:        http.StatusBadRequest,
		treasury.KindStateConflict:      http.StatusConflict,
		treasury.KindResourceExhaustion: http.StatusUnprocessableEntity,
		treasury.KindUnknown:            http.StatusInternalServerError,
	}
	for kind, want := range cases {
		require.Equal(t, want, statusForKind(kind), kind.String())
	}
}
