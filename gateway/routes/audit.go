package routes

import (
	"fmt"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"fundtreasury/crypto"
	"fundtreasury/gateway/middleware"
	"fundtreasury/native/treasury"
	"fundtreasury/storage/audit"
)

func (s *server) auditAvailable(w http.ResponseWriter) bool {
	if s.audit == nil {
		middleware.WriteError(w, http.StatusServiceUnavailable, "unavailable", "audit_disabled", "audit trail is not configured")
		return false
	}
	return true
}

func (s *server) handleAuditRecords(w http.ResponseWriter, r *http.Request) {
	if !s.auditAvailable(w) {
		return
	}
	from, limit, err := pageParams(r, s.maxPageSize)
	if err != nil {
		badRequest(w, "invalid_page", err.Error())
		return
	}
	q := r.URL.Query()
	filter := audit.Filter{
		EventType:    strings.TrimSpace(q.Get("type")),
		FromSequence: from,
		Limit:        limit,
	}
	if raw := strings.TrimSpace(q.Get("proposal")); raw != "" {
		id, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			badRequest(w, "invalid_proposal_id", "proposal must be an unsigned integer")
			return
		}
		filter.ProposalID = id
	}
	if raw := strings.TrimSpace(q.Get("caller")); raw != "" {
		addr, err := crypto.ParseAddress(raw)
		if err != nil {
			badRequest(w, "invalid_address", err.Error())
			return
		}
		filter.Caller = addr.Hex()
	}
	records, err := s.audit.List(r.Context(), filter)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if records == nil {
		records = []audit.Record{}
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]any{"records": records})
}

// handleAuditExport writes a parquet extract into the export directory. Only
// the owner may trigger exports.
func (s *server) handleAuditExport(w http.ResponseWriter, r *http.Request) {
	if !s.auditAvailable(w) {
		return
	}
	var isOwner bool
	_ = s.ledger.View(func(engine *treasury.Engine) error {
		isOwner = engine.Policy().IsOwner(caller(r))
		return nil
	})
	if !isOwner {
		s.writeError(w, r, treasury.ErrNotOwner)
		return
	}
	var req exportRequest
	if !decodeBody(w, r, &req) {
		return
	}
	filter := audit.Filter{
		ProposalID:   req.ProposalID,
		EventType:    strings.TrimSpace(req.EventType),
		FromSequence: req.FromSequence,
	}
	if raw := strings.TrimSpace(req.Caller); raw != "" {
		addr, err := crypto.ParseAddress(raw)
		if err != nil {
			badRequest(w, "invalid_address", err.Error())
			return
		}
		filter.Caller = addr.Hex()
	}
	seq, _ := s.ledger.Head()
	name := fmt.Sprintf("audit-%d-%s.parquet", seq, time.Now().UTC().Format("20060102T150405Z"))
	path := filepath.Join(s.exportDir, name)
	rows, err := s.audit.ExportParquet(r.Context(), path, filter)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.logger.Info("audit export written", "path", path, "rows", rows)
	middleware.WriteJSON(w, http.StatusCreated, map[string]any{"file": name, "rows": rows, "head": seq})
}
