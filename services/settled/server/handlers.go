package server

import (
	"context"
	"math/big"
	"net/http"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/go-chi/chi/v5"

	"burnrouter/config"
	"burnrouter/core/types"
	"burnrouter/native/common"
	"burnrouter/native/fees"
	"burnrouter/native/referral"
	"burnrouter/native/settlement"
)

type paramsResponse struct {
	Owner                      string          `json:"owner"`
	Admins                     []string        `json:"admins"`
	FeeCollector               string          `json:"feeCollector"`
	ForwardingTarget           string          `json:"forwardingTarget,omitempty"`
	SettlementAsset            string          `json:"settlementAsset"`
	PaymentToken               string          `json:"paymentToken,omitempty"`
	PaymentDecimals            uint8           `json:"paymentDecimals"`
	Fees                       fees.Params     `json:"fees"`
	MaxItemsPerBatch           uint64          `json:"maxItemsPerBatch"`
	MinExecutionBudget         uint64          `json:"minExecutionBudget"`
	AcceptSettlementAssetInput bool            `json:"acceptSettlementAssetInput"`
	ForwardingMinimum          string          `json:"forwardingMinimum"`
	Paused                     map[string]bool `json:"paused"`
}

func (s *Server) handleParams(w http.ResponseWriter, r *http.Request) {
	var resp paramsResponse
	err := s.node.View(func(e *settlement.Engine) error {
		params, err := e.Params()
		if err != nil {
			return err
		}
		owner, err := e.Owner()
		if err != nil {
			return err
		}
		admins, err := e.Admins()
		if err != nil {
			return err
		}
		resp = paramsResponse{
			Owner:                      account(owner),
			Admins:                     make([]string, 0, len(admins)),
			FeeCollector:               account(params.FeeCollector),
			SettlementAsset:            assetString(params.SettlementAsset),
			PaymentDecimals:            params.PaymentDecimals,
			Fees:                       params.Fees,
			MaxItemsPerBatch:           params.MaxItemsPerBatch,
			MinExecutionBudget:         params.MinExecutionBudget,
			AcceptSettlementAssetInput: params.AcceptSettlementAssetInput,
			ForwardingMinimum:          new(big.Int).SetUint64(params.Fees.NativeSentFeeDivisor * settlement.ForwardingMinimumMultiplier).String(),
			Paused: map[string]bool{
				common.ModuleSettlement: e.IsPaused(common.ModuleSettlement),
				common.ModuleForwarding: e.IsPaused(common.ModuleForwarding),
				common.ModuleReferral:   e.IsPaused(common.ModuleReferral),
			},
		}
		for _, admin := range admins {
			resp.Admins = append(resp.Admins, account(admin))
		}
		if !common.IsZero(params.ForwardingTarget) {
			resp.ForwardingTarget = account(params.ForwardingTarget)
		}
		if !common.IsZero(params.PaymentToken) {
			resp.PaymentToken = assetString(params.PaymentToken)
		}
		return nil
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

type assetResponse struct {
	ID       string `json:"id"`
	Symbol   string `json:"symbol"`
	Decimals uint8  `json:"decimals"`
}

func (s *Server) handleAssets(w http.ResponseWriter, _ *http.Request) {
	listed := s.node.Assets()
	out := make([]assetResponse, 0, len(listed))
	for _, info := range listed {
		out = append(out, assetResponse{ID: assetString(info.ID), Symbol: info.Symbol, Decimals: info.Decimals})
	}
	writeJSON(w, http.StatusOK, out)
}

type balanceResponse struct {
	Asset     string `json:"asset"`
	Symbol    string `json:"symbol"`
	Balance   string `json:"balance"`
	Formatted string `json:"formatted"`
	Allowance string `json:"allowance"`
}

func (s *Server) handleBalances(w http.ResponseWriter, r *http.Request) {
	owner, err := parseAddress("account", chi.URLParam(r, "account"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	engine := s.node.EngineAddress()
	listed := s.node.Assets()
	out := make([]balanceResponse, 0, len(listed))
	for _, info := range listed {
		balance, err := s.node.Balance(info.ID, owner)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		allowance, err := s.node.Allowance(info.ID, owner, engine)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		out = append(out, balanceResponse{
			Asset:     assetString(info.ID),
			Symbol:    info.Symbol,
			Balance:   balance.String(),
			Formatted: config.FormatAmount(balance, info.Decimals),
			Allowance: allowance.String(),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"account": account(owner), "balances": out})
}

func (s *Server) handlePartner(w http.ResponseWriter, r *http.Request) {
	partner, err := parseAddress("account", chi.URLParam(r, "account"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var (
		share uint8
		tier  referral.Tier
	)
	err = s.node.View(func(e *settlement.Engine) error {
		var err error
		if share, err = e.PartnerShare(partner); err != nil {
			return err
		}
		tier, err = e.PartnerTier(partner)
		return err
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"account": account(partner),
		"share":   share,
		"tier":    tier.String(),
	})
}

type quoteItem struct {
	Asset  string `json:"asset"`
	Amount string `json:"amount"`
}

type quoteRequest struct {
	Caller   string      `json:"caller"`
	Referrer string      `json:"referrer"`
	Items    []quoteItem `json:"items"`
	Value    string      `json:"value"`
}

type quotedItem struct {
	Asset    string `json:"asset"`
	AmountIn string `json:"amountIn"`
	Expected string `json:"expected,omitempty"`
	Error    string `json:"error,omitempty"`
}

type breakdownResponse struct {
	Gross        string `json:"gross"`
	SwapFee      string `json:"swapFee"`
	DirectFee    string `json:"directFee"`
	Fee          string `json:"fee"`
	Net          string `json:"net"`
	ReferrerCut  string `json:"referrerCut"`
	CollectorCut string `json:"collectorCut"`
}

func renderBreakdown(b fees.Breakdown) breakdownResponse {
	return breakdownResponse{
		Gross:        amountString(b.Gross),
		SwapFee:      amountString(b.SwapFee),
		DirectFee:    amountString(b.DirectFee),
		Fee:          amountString(b.Fee),
		Net:          amountString(b.Net),
		ReferrerCut:  amountString(b.ReferrerCut),
		CollectorCut: amountString(b.CollectorCut),
	}
}

// handleQuote prices a prospective settlement. Items the router cannot
// convert are reported and contribute nothing, as they would in a batch.
func (s *Server) handleQuote(w http.ResponseWriter, r *http.Request) {
	var req quoteRequest
	if !decode(w, r, &req) {
		return
	}
	caller, err := parseAddress("caller", req.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	referrer, err := parseAddress("referrer", req.Referrer)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	value, err := parseAmount("value", req.Value)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	proceeds := new(big.Int)
	items := make([]quotedItem, 0, len(req.Items))
	for _, item := range req.Items {
		info, err := s.node.LookupAsset(item.Asset)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		amount, err := parseAmount("amount", item.Amount)
		if err != nil || amount == nil {
			writeError(w, http.StatusBadRequest, "items: positive amount required")
			return
		}
		quoted := quotedItem{Asset: assetString(info.ID), AmountIn: amount.String()}
		out, err := s.node.Router().Quote(info.ID, amount)
		if err != nil {
			quoted.Error = err.Error()
		} else {
			quoted.Expected = out.String()
			proceeds.Add(proceeds, out)
		}
		items = append(items, quoted)
	}
	var breakdown fees.Breakdown
	err = s.node.View(func(e *settlement.Engine) error {
		var err error
		breakdown, err = e.Quote(caller, referrer, proceeds, value)
		return err
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items, "breakdown": renderBreakdown(breakdown)})
}

type approveRequest struct {
	Asset   string `json:"asset"`
	Spender string `json:"spender"`
	Amount  string `json:"amount"`
}

// handleApprove grants the engine (or another spender) an allowance over the
// caller's balance.
func (s *Server) handleApprove(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.caller(w, r)
	if !ok {
		return
	}
	var req approveRequest
	if !decode(w, r, &req) {
		return
	}
	info, err := s.node.LookupAsset(req.Asset)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	spender, err := parseAddress("spender", req.Spender)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if common.IsZero(spender) {
		spender = s.node.EngineAddress()
	}
	amount, err := parseAmount("amount", req.Amount)
	if err != nil || amount == nil {
		writeError(w, http.StatusBadRequest, "amount required")
		return
	}
	if err := s.node.Approve(r.Context(), info.ID, caller, spender, amount); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"asset":     assetString(info.ID),
		"owner":     account(caller),
		"spender":   account(spender),
		"allowance": amount.String(),
	})
}

type settleItem struct {
	Asset    string `json:"asset"`
	AmountIn string `json:"amountIn"`
	MinOut   string `json:"minOut"`
	Route    string `json:"route"`
	Deadline int64  `json:"deadline"`
}

type settleRequest struct {
	Items     []settleItem `json:"items"`
	Recipient string       `json:"recipient"`
	Forward   bool         `json:"forward"`
	Payload   string       `json:"payload"`
	Referrer  string       `json:"referrer"`
	Deadline  int64        `json:"deadline"`
	Value     string       `json:"value"`
}

type outcomeResponse struct {
	Index    int    `json:"index"`
	Asset    string `json:"asset"`
	AmountIn string `json:"amountIn"`
	Status   string `json:"status"`
	Consumed string `json:"consumed,omitempty"`
	Produced string `json:"produced,omitempty"`
	Reason   string `json:"reason,omitempty"`
}

type receiptResponse struct {
	ID           string            `json:"id"`
	Caller       string            `json:"caller"`
	Mode         string            `json:"mode"`
	Phase        string            `json:"phase"`
	Outcomes     []outcomeResponse `json:"outcomes"`
	Proceeds     string            `json:"proceeds"`
	DirectValue  string            `json:"directValue"`
	SwapFee      string            `json:"swapFee"`
	DirectFee    string            `json:"directFee"`
	Fee          string            `json:"fee"`
	Net          string            `json:"net"`
	Referrer     string            `json:"referrer,omitempty"`
	ReferrerCut  string            `json:"referrerCut"`
	CollectorCut string            `json:"collectorCut"`
	Destination  string            `json:"destination"`
	ReturnData   hexutil.Bytes     `json:"returnData,omitempty"`
	Events       []*types.Event    `json:"events"`
}

func renderReceipt(id string, receipt *settlement.Receipt, evts []*types.Event) receiptResponse {
	out := receiptResponse{
		ID:           id,
		Caller:       account(receipt.Caller),
		Mode:         receipt.Mode.String(),
		Phase:        receipt.Phase.String(),
		Outcomes:     make([]outcomeResponse, 0, len(receipt.Outcomes)),
		Proceeds:     amountString(receipt.Proceeds),
		DirectValue:  amountString(receipt.DirectValue),
		SwapFee:      amountString(receipt.SwapFee),
		DirectFee:    amountString(receipt.DirectFee),
		Fee:          amountString(receipt.Fee),
		Net:          amountString(receipt.Net),
		ReferrerCut:  amountString(receipt.ReferrerCut),
		CollectorCut: amountString(receipt.CollectorCut),
		Destination:  account(receipt.Destination),
		ReturnData:   receipt.ReturnData,
		Events:       evts,
	}
	if !common.IsZero(receipt.Referrer) {
		out.Referrer = account(receipt.Referrer)
	}
	for _, o := range receipt.Outcomes {
		item := outcomeResponse{
			Index:    o.Index,
			Asset:    assetString(o.Asset),
			AmountIn: amountString(o.AmountIn),
			Status:   o.Status.String(),
			Reason:   o.Reason,
		}
		if o.Succeeded() {
			item.Consumed = amountString(o.Consumed)
			item.Produced = amountString(o.Produced)
		}
		out.Outcomes = append(out.Outcomes, item)
	}
	return out
}

func (s *Server) budget() *common.Meter {
	if s.cfg.ExecutionBudget == 0 {
		return nil
	}
	return common.NewMeter(s.cfg.ExecutionBudget)
}

func (s *Server) handleSettle(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.caller(w, r)
	if !ok {
		return
	}
	var req settleRequest
	if !decode(w, r, &req) {
		return
	}
	call := settlement.BatchCall{
		Caller:   caller,
		Forward:  req.Forward,
		Deadline: req.Deadline,
		Budget:   s.budget(),
		Requests: make([]settlement.Request, 0, len(req.Items)),
	}
	var err error
	if call.Recipient, err = parseAddress("recipient", req.Recipient); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if call.Referrer, err = parseAddress("referrer", req.Referrer); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if call.Payload, err = parsePayload(req.Payload); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if call.Value, err = parseAmount("value", req.Value); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	for _, item := range req.Items {
		info, err := s.node.LookupAsset(item.Asset)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		request := settlement.Request{Asset: info.ID, Deadline: item.Deadline}
		if request.AmountIn, err = parseAmount("amountIn", item.AmountIn); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		if request.MinOut, err = parseAmount("minOut", item.MinOut); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		if request.Route, err = parsePayload(item.Route); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		call.Requests = append(call.Requests, request)
	}

	var receipt *settlement.Receipt
	evts, err := s.node.Exec(func(e *settlement.Engine) error {
		var err error
		receipt, err = e.SettleBatch(r.Context(), call)
		return err
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, renderReceipt(requestIDFromContext(r.Context()), receipt, renderEvents(evts)))
}

type relayRequest struct {
	Payload  string `json:"payload"`
	Referrer string `json:"referrer"`
	Deadline int64  `json:"deadline"`
	Value    string `json:"value"`
}

func (s *Server) handleRelay(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.caller(w, r)
	if !ok {
		return
	}
	var req relayRequest
	if !decode(w, r, &req) {
		return
	}
	call := settlement.RelayCall{Caller: caller, Deadline: req.Deadline, Budget: s.budget()}
	var err error
	if call.Referrer, err = parseAddress("referrer", req.Referrer); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if call.Payload, err = parsePayload(req.Payload); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if call.Value, err = parseAmount("value", req.Value); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var receipt *settlement.Receipt
	evts, err := s.node.Exec(func(e *settlement.Engine) error {
		var err error
		receipt, err = e.RelayForward(r.Context(), call)
		return err
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, renderReceipt(requestIDFromContext(r.Context()), receipt, renderEvents(evts)))
}

type amountRequest struct {
	Amount string `json:"amount"`
}

func (s *Server) handleReferralPurchase(w http.ResponseWriter, r *http.Request) {
	s.referralCall(w, r, (*settlement.Engine).PurchaseReferralTier)
}

func (s *Server) handleReferralUpgrade(w http.ResponseWriter, r *http.Request) {
	s.referralCall(w, r, (*settlement.Engine).UpgradeReferralTier)
}

type referralOp func(*settlement.Engine, context.Context, [20]byte, *big.Int) (referral.Tier, error)

func (s *Server) referralCall(w http.ResponseWriter, r *http.Request, op referralOp) {
	caller, ok := s.caller(w, r)
	if !ok {
		return
	}
	var req amountRequest
	if !decode(w, r, &req) {
		return
	}
	amount, err := parseAmount("amount", req.Amount)
	if err != nil || amount == nil {
		writeError(w, http.StatusBadRequest, "amount required")
		return
	}
	var tier referral.Tier
	evts, err := s.node.Exec(func(e *settlement.Engine) error {
		var err error
		tier, err = op(e, r.Context(), caller, amount)
		return err
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"account": account(caller),
		"tier":    tier.String(),
		"events":  renderEvents(evts),
	})
}
