package routes

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/holiman/uint256"

	"fundtreasury/crypto"
	"fundtreasury/gateway/middleware"
	"fundtreasury/ledger"
	"fundtreasury/native/treasury"
)

const maxRequestBody = 64 << 10

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxRequestBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		badRequest(w, "malformed_body", "request body is not valid JSON: "+err.Error())
		return false
	}
	return true
}

func proposalID(w http.ResponseWriter, r *http.Request) (uint64, bool) {
	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		badRequest(w, "invalid_proposal_id", "proposal id must be a positive integer")
		return 0, false
	}
	return id, true
}

func pageParams(r *http.Request, maxPage int) (uint64, int, error) {
	q := r.URL.Query()
	var from uint64
	if raw := strings.TrimSpace(q.Get("from")); raw != "" {
		parsed, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			return 0, 0, errors.New("from must be an unsigned integer")
		}
		from = parsed
	}
	limit := maxPage
	if raw := strings.TrimSpace(q.Get("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			return 0, 0, errors.New("limit must be a positive integer")
		}
		if parsed < limit {
			limit = parsed
		}
	}
	return from, limit, nil
}

// caller is set by the required-auth middleware on every mutating route.
func caller(r *http.Request) crypto.Address {
	addr, _ := middleware.CallerFrom(r.Context())
	return addr
}

func (s *server) handleSummary(w http.ResponseWriter, r *http.Request) {
	seq, hash := s.ledger.Head()
	var view summaryView
	_ = s.ledger.View(func(engine *treasury.Engine) error {
		view = summaryView{
			Owner:             engine.Owner(),
			Balance:           engine.TreasuryBalance(),
			TotalDeposited:    engine.TotalDeposited(),
			TotalReleased:     engine.TotalReleased(),
			RequiredApprovals: engine.RequiredApprovals(),
			AuthorityCount:    len(engine.Authorities()),
			ProposalCount:     engine.ProposalCount(),
			InitialReleaseBps: engine.Params().InitialReleaseBps,
			Head:              headView{Sequence: seq, Hash: hash},
		}
		return nil
	})
	middleware.WriteJSON(w, http.StatusOK, view)
}

func (s *server) handleOwner(w http.ResponseWriter, r *http.Request) {
	var owner crypto.Address
	_ = s.ledger.View(func(engine *treasury.Engine) error {
		owner = engine.Owner()
		return nil
	})
	middleware.WriteJSON(w, http.StatusOK, map[string]crypto.Address{"owner": owner})
}

func (s *server) handleListAuthorities(w http.ResponseWriter, r *http.Request) {
	var view authoritiesView
	_ = s.ledger.View(func(engine *treasury.Engine) error {
		view = authoritiesView{Authorities: engine.Authorities(), RequiredApprovals: engine.RequiredApprovals()}
		return nil
	})
	middleware.WriteJSON(w, http.StatusOK, view)
}

func (s *server) handleIsAuthority(w http.ResponseWriter, r *http.Request) {
	addr, err := crypto.ParseAddress(chi.URLParam(r, "address"))
	if err != nil {
		badRequest(w, "invalid_address", err.Error())
		return
	}
	var is bool
	_ = s.ledger.View(func(engine *treasury.Engine) error {
		is = engine.IsAuthority(addr)
		return nil
	})
	middleware.WriteJSON(w, http.StatusOK, map[string]any{"address": addr, "isAuthority": is})
}

func (s *server) handleThreshold(w http.ResponseWriter, r *http.Request) {
	var required uint64
	_ = s.ledger.View(func(engine *treasury.Engine) error {
		required = engine.RequiredApprovals()
		return nil
	})
	middleware.WriteJSON(w, http.StatusOK, thresholdRequest{RequiredApprovals: required})
}

func (s *server) handleListProposals(w http.ResponseWriter, r *http.Request) {
	from, limit, err := pageParams(r, s.maxPageSize)
	if err != nil {
		badRequest(w, "invalid_page", err.Error())
		return
	}
	views := make([]proposalView, 0)
	_ = s.ledger.View(func(engine *treasury.Engine) error {
		for _, p := range engine.Proposals() {
			if p.ID < from {
				continue
			}
			if len(views) == limit {
				break
			}
			views = append(views, newProposalView(engine, p))
		}
		return nil
	})
	middleware.WriteJSON(w, http.StatusOK, map[string]any{"proposals": views})
}

func (s *server) handleGetProposal(w http.ResponseWriter, r *http.Request) {
	id, ok := proposalID(w, r)
	if !ok {
		return
	}
	var view proposalView
	err := s.ledger.View(func(engine *treasury.Engine) error {
		p, err := engine.GetProposal(id)
		if err != nil {
			return err
		}
		view = newProposalView(engine, p)
		return nil
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, view)
}

func (s *server) handleStageDetails(w http.ResponseWriter, r *http.Request) {
	id, ok := proposalID(w, r)
	if !ok {
		return
	}
	var details treasury.StageDetails
	err := s.ledger.View(func(engine *treasury.Engine) error {
		var err error
		details, err = engine.GetProposalStageDetails(id)
		return err
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, details)
}

func (s *server) handleTransfers(w http.ResponseWriter, r *http.Request) {
	from, limit, err := pageParams(r, s.maxPageSize)
	if err != nil {
		badRequest(w, "invalid_page", err.Error())
		return
	}
	transfers, err := s.ledger.Transfers(from, limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if transfers == nil {
		transfers = []ledger.Transfer{}
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]any{"transfers": transfers})
}

func (s *server) handleJournal(w http.ResponseWriter, r *http.Request) {
	from, limit, err := pageParams(r, s.maxPageSize)
	if err != nil {
		badRequest(w, "invalid_page", err.Error())
		return
	}
	entries, err := s.ledger.Journal(from, limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if entries == nil {
		entries = []ledger.Entry{}
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

func (s *server) handleVerifyJournal(w http.ResponseWriter, r *http.Request) {
	verified, err := s.ledger.VerifyJournal()
	seq, hash := s.ledger.Head()
	body := map[string]any{
		"verified": verified,
		"head":     headView{Sequence: seq, Hash: hash},
		"intact":   err == nil,
	}
	if err != nil {
		if !errors.Is(err, ledger.ErrJournalTampered) {
			s.writeError(w, r, err)
			return
		}
		body["problem"] = err.Error()
		middleware.WriteJSON(w, http.StatusConflict, body)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, body)
}

// apply commits op and renders the result, attaching the proposal view when
// the op targets one.
func (s *server) apply(w http.ResponseWriter, r *http.Request, op ledger.Op, status int) {
	result, err := s.ledger.Apply(r.Context(), op)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	resp := mutationResponse{Result: result}
	if result.ProposalID != 0 {
		_ = s.ledger.View(func(engine *treasury.Engine) error {
			p, err := engine.GetProposal(result.ProposalID)
			if err != nil {
				return err
			}
			view := newProposalView(engine, p)
			resp.Proposal = &view
			return nil
		})
	}
	middleware.WriteJSON(w, status, resp)
}

func (s *server) handleDeposit(w http.ResponseWriter, r *http.Request) {
	var req depositRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Amount == nil {
		req.Amount = new(uint256.Int)
	}
	s.apply(w, r, ledger.Deposit(caller(r), req.Amount), http.StatusOK)
}

func (s *server) handleAddAuthority(w http.ResponseWriter, r *http.Request) {
	var req authorityRequest
	if !decodeBody(w, r, &req) {
		return
	}
	addr, err := crypto.ParseAddress(req.Address)
	if err != nil {
		s.writeError(w, r, treasury.ErrInvalidAuthority)
		return
	}
	s.apply(w, r, ledger.AddAuthority(caller(r), addr), http.StatusCreated)
}

func (s *server) handleRemoveAuthority(w http.ResponseWriter, r *http.Request) {
	addr, err := crypto.ParseAddress(chi.URLParam(r, "address"))
	if err != nil {
		s.writeError(w, r, treasury.ErrInvalidAuthority)
		return
	}
	s.apply(w, r, ledger.RemoveAuthority(caller(r), addr), http.StatusOK)
}

func (s *server) handleUpdateThreshold(w http.ResponseWriter, r *http.Request) {
	var req thresholdRequest
	if !decodeBody(w, r, &req) {
		return
	}
	s.apply(w, r, ledger.UpdateThreshold(caller(r), req.RequiredApprovals), http.StatusOK)
}

func (s *server) handleSubmitProposal(w http.ResponseWriter, r *http.Request) {
	var req proposalRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Amount == nil {
		req.Amount = new(uint256.Int)
	}
	var recipient crypto.Address
	if strings.TrimSpace(req.Recipient) != "" {
		parsed, err := crypto.ParseAddress(req.Recipient)
		if err != nil {
			s.writeError(w, r, treasury.ErrInvalidRecipient)
			return
		}
		recipient = parsed
	}
	s.apply(w, r, ledger.SubmitProposal(caller(r), req.Description, req.Amount, recipient), http.StatusCreated)
}

func (s *server) handleVote(w http.ResponseWriter, r *http.Request) {
	id, ok := proposalID(w, r)
	if !ok {
		return
	}
	s.apply(w, r, ledger.Vote(caller(r), id), http.StatusOK)
}

func (s *server) handleReleaseInitial(w http.ResponseWriter, r *http.Request) {
	id, ok := proposalID(w, r)
	if !ok {
		return
	}
	s.apply(w, r, ledger.ReleaseInitial(caller(r), id), http.StatusOK)
}

func (s *server) handleStageReport(w http.ResponseWriter, r *http.Request) {
	id, ok := proposalID(w, r)
	if !ok {
		return
	}
	var req reportRequest
	if !decodeBody(w, r, &req) {
		return
	}
	s.apply(w, r, ledger.SubmitStageReport(caller(r), id, req.Report), http.StatusOK)
}

func (s *server) handleApproveStage(w http.ResponseWriter, r *http.Request) {
	id, ok := proposalID(w, r)
	if !ok {
		return
	}
	s.apply(w, r, ledger.ApproveStage(caller(r), id), http.StatusOK)
}

func (s *server) handleReleaseFinal(w http.ResponseWriter, r *http.Request) {
	id, ok := proposalID(w, r)
	if !ok {
		return
	}
	s.apply(w, r, ledger.ReleaseNext(caller(r), id), http.StatusOK)
}
