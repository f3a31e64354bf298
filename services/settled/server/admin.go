package server

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"burnrouter/native/common"
	"burnrouter/native/settlement"
)

func (s *Server) mountAdmin(r chi.Router) {
	r.Method(http.MethodPut, "/params", s.route("admin_params", s.handleSetParams))
	r.Method(http.MethodPost, "/pause", s.route("admin_pause", s.handlePause))
	r.Method(http.MethodPut, "/partners/{account}", s.route("admin_put_partner", s.handlePutPartner))
	r.Method(http.MethodDelete, "/partners/{account}", s.route("admin_remove_partner", s.handleRemovePartner))
	r.Method(http.MethodPost, "/admins", s.route("admin_grant", s.handleGrantAdmin))
	r.Method(http.MethodPut, "/admins", s.route("admin_replace", s.handleReplaceAdmin))
	r.Method(http.MethodDelete, "/admins/{account}", s.route("admin_revoke", s.handleRevokeAdmin))
	r.Method(http.MethodPost, "/owner", s.route("admin_owner", s.handleTransferOwnership))
	r.Method(http.MethodPost, "/rescue", s.route("admin_rescue", s.handleRescue))
}

// paramsRequest carries the parameters to change. Absent fields are left
// untouched; all present fields are applied atomically.
type paramsRequest struct {
	FeeCollector               *string `json:"feeCollector"`
	BurnFeeDivisor             *uint64 `json:"burnFeeDivisor"`
	NativeSentFeeDivisor       *uint64 `json:"nativeSentFeeDivisor"`
	ReferrerFeeShare           *uint8  `json:"referrerFeeShare"`
	ForwardingTarget           *string `json:"forwardingTarget"`
	MinExecutionBudget         *uint64 `json:"minExecutionBudget"`
	MaxItemsPerBatch           *uint64 `json:"maxItemsPerBatch"`
	AcceptSettlementAssetInput *bool   `json:"acceptSettlementAssetInput"`
}

func (s *Server) handleSetParams(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.caller(w, r)
	if !ok {
		return
	}
	var req paramsRequest
	if !decode(w, r, &req) {
		return
	}
	var steps []func(*settlement.Engine) error
	if req.FeeCollector != nil {
		addr, err := parseAddress("feeCollector", *req.FeeCollector)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		steps = append(steps, func(e *settlement.Engine) error { return e.SetFeeCollector(caller, addr) })
	}
	if req.ForwardingTarget != nil {
		addr, err := parseAddress("forwardingTarget", *req.ForwardingTarget)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		steps = append(steps, func(e *settlement.Engine) error { return e.SetForwardingTarget(caller, addr) })
	}
	if v := req.BurnFeeDivisor; v != nil {
		steps = append(steps, func(e *settlement.Engine) error { return e.SetBurnFeeDivisor(caller, *v) })
	}
	if v := req.NativeSentFeeDivisor; v != nil {
		steps = append(steps, func(e *settlement.Engine) error { return e.SetNativeSentFeeDivisor(caller, *v) })
	}
	if v := req.ReferrerFeeShare; v != nil {
		steps = append(steps, func(e *settlement.Engine) error { return e.SetReferrerFeeShare(caller, *v) })
	}
	if v := req.MinExecutionBudget; v != nil {
		steps = append(steps, func(e *settlement.Engine) error { return e.SetMinExecutionBudget(caller, *v) })
	}
	if v := req.MaxItemsPerBatch; v != nil {
		steps = append(steps, func(e *settlement.Engine) error { return e.SetMaxItemsPerBatch(caller, *v) })
	}
	if v := req.AcceptSettlementAssetInput; v != nil {
		steps = append(steps, func(e *settlement.Engine) error { return e.SetAcceptSettlementAssetInput(caller, *v) })
	}
	if len(steps) == 0 {
		writeError(w, http.StatusBadRequest, "no parameters supplied")
		return
	}
	s.exec(w, r, func(e *settlement.Engine) error {
		for _, step := range steps {
			if err := step(e); err != nil {
				return err
			}
		}
		return nil
	})
}

type pauseRequest struct {
	Module string `json:"module"`
	Paused bool   `json:"paused"`
}

func (s *Server) handlePause(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.caller(w, r)
	if !ok {
		return
	}
	var req pauseRequest
	if !decode(w, r, &req) {
		return
	}
	var op func(*settlement.Engine) error
	switch strings.ToLower(strings.TrimSpace(req.Module)) {
	case "", common.ModuleSettlement:
		op = func(e *settlement.Engine) error {
			if req.Paused {
				return e.Pause(caller)
			}
			return e.Unpause(caller)
		}
	case common.ModuleForwarding:
		op = func(e *settlement.Engine) error { return e.SetForwardingPaused(caller, req.Paused) }
	case common.ModuleReferral:
		op = func(e *settlement.Engine) error { return e.SetReferralPaused(caller, req.Paused) }
	default:
		writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown module %q", req.Module))
		return
	}
	s.exec(w, r, op)
}

type partnerRequest struct {
	Share uint8 `json:"share"`
}

func (s *Server) handlePutPartner(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.caller(w, r)
	if !ok {
		return
	}
	partner, err := parseAddress("account", chi.URLParam(r, "account"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var req partnerRequest
	if !decode(w, r, &req) {
		return
	}
	s.exec(w, r, func(e *settlement.Engine) error { return e.PutPartner(caller, partner, req.Share) })
}

func (s *Server) handleRemovePartner(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.caller(w, r)
	if !ok {
		return
	}
	partner, err := parseAddress("account", chi.URLParam(r, "account"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.exec(w, r, func(e *settlement.Engine) error { return e.RemovePartner(caller, partner) })
}

type adminRequest struct {
	Admin    string `json:"admin"`
	Previous string `json:"previous"`
}

func (s *Server) handleGrantAdmin(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.caller(w, r)
	if !ok {
		return
	}
	var req adminRequest
	if !decode(w, r, &req) {
		return
	}
	admin, err := parseAddress("admin", req.Admin)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.exec(w, r, func(e *settlement.Engine) error { return e.GrantAdmin(caller, admin) })
}

func (s *Server) handleReplaceAdmin(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.caller(w, r)
	if !ok {
		return
	}
	var req adminRequest
	if !decode(w, r, &req) {
		return
	}
	previous, err := parseAddress("previous", req.Previous)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	admin, err := parseAddress("admin", req.Admin)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.exec(w, r, func(e *settlement.Engine) error { return e.SetAdmin(caller, previous, admin) })
}

func (s *Server) handleRevokeAdmin(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.caller(w, r)
	if !ok {
		return
	}
	admin, err := parseAddress("account", chi.URLParam(r, "account"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.exec(w, r, func(e *settlement.Engine) error { return e.RevokeAdmin(caller, admin) })
}

type ownerRequest struct {
	Owner string `json:"owner"`
}

func (s *Server) handleTransferOwnership(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.caller(w, r)
	if !ok {
		return
	}
	var req ownerRequest
	if !decode(w, r, &req) {
		return
	}
	owner, err := parseAddress("owner", req.Owner)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.exec(w, r, func(e *settlement.Engine) error { return e.TransferOwnership(caller, owner) })
}

type rescueRequest struct {
	Asset  string `json:"asset"`
	To     string `json:"to"`
	Amount string `json:"amount"`
}

// handleRescue recovers assets held by the engine. An empty asset selects
// the settlement asset.
func (s *Server) handleRescue(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.caller(w, r)
	if !ok {
		return
	}
	var req rescueRequest
	if !decode(w, r, &req) {
		return
	}
	to, err := parseAddress("to", req.To)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	amount, err := parseAmount("amount", req.Amount)
	if err != nil || amount == nil {
		writeError(w, http.StatusBadRequest, "amount required")
		return
	}
	if strings.TrimSpace(req.Asset) == "" {
		s.exec(w, r, func(e *settlement.Engine) error { return e.RescueNative(r.Context(), caller, to, amount) })
		return
	}
	info, err := s.node.LookupAsset(req.Asset)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.exec(w, r, func(e *settlement.Engine) error { return e.RescueAsset(r.Context(), caller, info.ID, to, amount) })
}

// exec runs an administrative call and answers with its events.
func (s *Server) exec(w http.ResponseWriter, r *http.Request, fn func(*settlement.Engine) error) {
	evts, err := s.node.Exec(fn)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.logger.Info("admin call applied", "path", r.URL.Path, "requestid", requestIDFromContext(r.Context()), "events", len(evts))
	writeJSON(w, http.StatusOK, map[string]any{"events": renderEvents(evts)})
}
