package settlement_test

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"burnrouter/core/events"
	"burnrouter/native/settlement"
)

func TestScenarioSingleSwap(t *testing.T) {
	env := newTestEnv(t)
	env.fund(env.tokenA, userAddr, ether(t, "1.0"))

	receipt, err := env.engine.SettleBatch(context.Background(), settlement.BatchCall{
		Caller:   userAddr,
		Requests: []settlement.Request{env.request(env.tokenA, "1.0")},
	})
	if err != nil {
		t.Fatalf("settle: %v", err)
	}
	env.requireBalance(env.settle, userAddr, ether(t, "0.975"))
	env.requireBalance(env.settle, collectorAddr, ether(t, "0.025"))
	env.requireBalance(env.settle, engineAddr, big.NewInt(0))
	env.requireBalance(env.tokenA, userAddr, big.NewInt(0))
	if receipt.Fee.Cmp(ether(t, "0.025")) != 0 || receipt.Net.Cmp(ether(t, "0.975")) != 0 {
		t.Fatalf("unexpected receipt: fee=%s net=%s", receipt.Fee, receipt.Net)
	}
	if receipt.Phase != settlement.PhaseDistributed || receipt.Destination != userAddr {
		t.Fatalf("unexpected receipt state: %+v", receipt)
	}
	settled := env.events.OfType(events.TypeBatchSettled)
	if len(settled) != 1 {
		t.Fatalf("expected one BatchSettled event, got %d", len(settled))
	}
	evt := settled[0].(events.BatchSettled)
	if evt.Payer != userAddr || evt.Net.Cmp(ether(t, "0.975")) != 0 || evt.Fee.Cmp(ether(t, "0.025")) != 0 {
		t.Fatalf("unexpected BatchSettled: %+v", evt)
	}
}

func TestScenarioSwapWithDirectValue(t *testing.T) {
	env := newTestEnv(t)
	env.fund(env.tokenA, userAddr, ether(t, "1.0"))
	env.fund(env.settle, userAddr, ether(t, "0.1"))

	receipt, err := env.engine.SettleBatch(context.Background(), settlement.BatchCall{
		Caller:    userAddr,
		Requests:  []settlement.Request{env.request(env.tokenA, "1.0")},
		Recipient: recipientAddr,
		Value:     ether(t, "0.1"),
	})
	if err != nil {
		t.Fatalf("settle: %v", err)
	}
	env.requireBalance(env.settle, recipientAddr, ether(t, "1.07475"))
	env.requireBalance(env.settle, collectorAddr, ether(t, "0.02525"))
	env.requireBalance(env.settle, userAddr, big.NewInt(0))
	if receipt.SwapFee.Cmp(ether(t, "0.025")) != 0 || receipt.DirectFee.Cmp(ether(t, "0.00025")) != 0 {
		t.Fatalf("fee bases mixed: swap=%s direct=%s", receipt.SwapFee, receipt.DirectFee)
	}
}

func TestScenarioDefaultReferrer(t *testing.T) {
	env := newTestEnv(t)
	env.fund(env.tokenA, userAddr, ether(t, "1.0"))

	_, err := env.engine.SettleBatch(context.Background(), settlement.BatchCall{
		Caller:   userAddr,
		Requests: []settlement.Request{env.request(env.tokenA, "1.0")},
		Referrer: referrerAddr,
	})
	if err != nil {
		t.Fatalf("settle: %v", err)
	}
	env.requireBalance(env.settle, referrerAddr, ether(t, "0.005"))
	env.requireBalance(env.settle, collectorAddr, ether(t, "0.02"))
	env.requireBalance(env.settle, userAddr, ether(t, "0.975"))
	paid := env.events.OfType(events.TypeReferrerFeePaid)
	if len(paid) != 1 {
		t.Fatalf("expected ReferrerFeePaid, got %d", len(paid))
	}
	evt := paid[0].(events.ReferrerFeePaid)
	if evt.Referrer != referrerAddr || evt.Payer != userAddr || evt.Amount.Cmp(ether(t, "0.005")) != 0 {
		t.Fatalf("unexpected ReferrerFeePaid: %+v", evt)
	}
}

func TestScenarioTopTierPartner(t *testing.T) {
	env := newTestEnv(t)
	env.fund(env.tokenA, userAddr, ether(t, "1.0"))
	if err := env.engine.PutPartner(adminAddr, referrerAddr, 10); err != nil {
		t.Fatalf("put partner: %v", err)
	}

	if _, err := env.engine.SettleBatch(context.Background(), settlement.BatchCall{
		Caller:   userAddr,
		Requests: []settlement.Request{env.request(env.tokenA, "1.0")},
		Referrer: referrerAddr,
	}); err != nil {
		t.Fatalf("settle: %v", err)
	}
	env.requireBalance(env.settle, referrerAddr, ether(t, "0.0125"))
	env.requireBalance(env.settle, collectorAddr, ether(t, "0.0125"))
}

func TestScenarioElevenItems(t *testing.T) {
	env := newTestEnv(t)
	requests := make([]settlement.Request, 0, 11)
	for i := 0; i < 11; i++ {
		env.fund(env.tokenA, userAddr, ether(t, "1.0"))
		requests = append(requests, env.request(env.tokenA, "1.0"))
	}
	receipt, err := env.engine.SettleBatch(context.Background(), settlement.BatchCall{
		Caller:   userAddr,
		Requests: requests,
	})
	if err != nil {
		t.Fatalf("settle: %v", err)
	}
	if receipt.Proceeds.Cmp(ether(t, "11.0")) != 0 {
		t.Fatalf("expected proceeds 11.0, got %s", receipt.Proceeds)
	}
	env.requireBalance(env.settle, userAddr, ether(t, "10.725"))
	env.requireBalance(env.settle, collectorAddr, ether(t, "0.275"))
	if got := len(env.events.OfType(events.TypeSwapSucceeded)); got != 11 {
		t.Fatalf("expected 11 SwapSucceeded events, got %d", got)
	}
}

func TestFeeInvariants(t *testing.T) {
	env := newTestEnv(t)
	env.fund(env.tokenA, userAddr, big.NewInt(123_457))
	env.fund(env.settle, userAddr, big.NewInt(98_765))
	receipt, err := env.engine.SettleBatch(context.Background(), settlement.BatchCall{
		Caller:    userAddr,
		Requests:  []settlement.Request{{Asset: tokenAID, AmountIn: big.NewInt(123_457)}},
		Recipient: recipientAddr,
		Referrer:  referrerAddr,
		Value:     big.NewInt(98_765),
	})
	if err != nil {
		t.Fatalf("settle: %v", err)
	}
	gross := new(big.Int).Add(receipt.Proceeds, receipt.DirectValue)
	if new(big.Int).Add(receipt.Fee, receipt.Net).Cmp(gross) != 0 {
		t.Fatalf("fee + net != total: %s + %s != %s", receipt.Fee, receipt.Net, gross)
	}
	if new(big.Int).Add(receipt.ReferrerCut, receipt.CollectorCut).Cmp(receipt.Fee) != 0 {
		t.Fatalf("cuts do not sum to fee")
	}
	env.requireBalance(env.settle, engineAddr, big.NewInt(0))
}

func TestSelfReferral(t *testing.T) {
	env := newTestEnv(t)
	env.fund(env.tokenA, userAddr, ether(t, "2.0"))
	call := settlement.BatchCall{
		Caller:   userAddr,
		Requests: []settlement.Request{env.request(env.tokenA, "1.0")},
		Referrer: userAddr,
	}
	if _, err := env.engine.SettleBatch(context.Background(), call); !errors.Is(err, settlement.ErrReferrerCannotBeSelfUnlessPartner) {
		t.Fatalf("expected ErrReferrerCannotBeSelfUnlessPartner, got %v", err)
	}
	env.requireBalance(env.tokenA, userAddr, ether(t, "2.0"))
	if len(env.events.Events) != 0 {
		t.Fatalf("aborted call must not emit events, got %d", len(env.events.Events))
	}

	if err := env.engine.PutPartner(ownerAddr, userAddr, 6); err != nil {
		t.Fatalf("put partner: %v", err)
	}
	if _, err := env.engine.SettleBatch(context.Background(), call); err != nil {
		t.Fatalf("partner self-referral: %v", err)
	}
	// 0.975 net plus 6/20 of the 0.025 fee.
	env.requireBalance(env.settle, userAddr, ether(t, "0.9825"))
}

func TestReferrerRoleRestrictions(t *testing.T) {
	env := newTestEnv(t)
	env.fund(env.tokenA, userAddr, ether(t, "1.0"))
	base := settlement.BatchCall{Caller: userAddr, Requests: []settlement.Request{env.request(env.tokenA, "1.0")}}

	call := base
	call.Referrer = collectorAddr
	if _, err := env.engine.SettleBatch(context.Background(), call); !errors.Is(err, settlement.ErrReferrerCannotBeFeeCollector) {
		t.Fatalf("expected ErrReferrerCannotBeFeeCollector, got %v", err)
	}
	call.Referrer = engineAddr
	if _, err := env.engine.SettleBatch(context.Background(), call); !errors.Is(err, settlement.ErrReferrerCannotBeContract) {
		t.Fatalf("expected ErrReferrerCannotBeContract, got %v", err)
	}
}

func TestReferralPauseZeroesCut(t *testing.T) {
	env := newTestEnv(t)
	env.fund(env.tokenA, userAddr, ether(t, "1.0"))
	if err := env.engine.SetReferralPaused(ownerAddr, true); err != nil {
		t.Fatalf("pause referral: %v", err)
	}
	receipt, err := env.engine.SettleBatch(context.Background(), settlement.BatchCall{
		Caller:   userAddr,
		Requests: []settlement.Request{env.request(env.tokenA, "1.0")},
		Referrer: referrerAddr,
	})
	if err != nil {
		t.Fatalf("settle: %v", err)
	}
	if receipt.ReferrerCut.Sign() != 0 {
		t.Fatalf("expected zero referrer cut, got %s", receipt.ReferrerCut)
	}
	env.requireBalance(env.settle, collectorAddr, ether(t, "0.025"))
	env.requireBalance(env.settle, referrerAddr, big.NewInt(0))
	if len(env.events.OfType(events.TypeReferrerFeePaid)) != 0 {
		t.Fatalf("no referral event expected while paused")
	}
}

func TestRecipientValidation(t *testing.T) {
	env := newTestEnv(t)
	env.fund(env.tokenA, userAddr, ether(t, "1.0"))
	env.fund(env.settle, userAddr, ether(t, "0.1"))
	base := settlement.BatchCall{Caller: userAddr, Requests: []settlement.Request{env.request(env.tokenA, "1.0")}}

	cases := []struct {
		name   string
		mutate func(*settlement.BatchCall)
		want   error
	}{
		{"recipient is sender", func(c *settlement.BatchCall) { c.Recipient = userAddr }, settlement.ErrRecipientIsSender},
		{"recipient is collector", func(c *settlement.BatchCall) { c.Recipient = collectorAddr }, settlement.ErrToCannotBeFeeCollector},
		{"recipient is engine", func(c *settlement.BatchCall) { c.Recipient = engineAddr }, settlement.ErrToCannotBeContract},
		{"value without recipient", func(c *settlement.BatchCall) { c.Value = ether(t, "0.1") }, settlement.ErrRecipientMustBeSet},
		{"payload without forwarding", func(c *settlement.BatchCall) { c.Payload = []byte{0x01} }, settlement.ErrBridgeDataMustBeEmpty},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			call := base
			tc.mutate(&call)
			if _, err := env.engine.SettleBatch(context.Background(), call); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
			env.requireBalance(env.tokenA, userAddr, ether(t, "1.0"))
			env.requireBalance(env.settle, userAddr, ether(t, "0.1"))
		})
	}

	call := base
	call.Payload = []byte{0xde, 0xad}
	_, err := env.engine.SettleBatch(context.Background(), call)
	var dataErr *settlement.BridgeDataMustBeEmptyError
	if !errors.As(err, &dataErr) || string(dataErr.Data) != string([]byte{0xde, 0xad}) {
		t.Fatalf("expected payload in error, got %v", err)
	}
}

func TestForwarding(t *testing.T) {
	env := newTestEnv(t)
	env.fund(env.tokenA, userAddr, ether(t, "1.0"))
	payload := []byte("deliver-to:chain-b")

	receipt, err := env.engine.SettleBatch(context.Background(), settlement.BatchCall{
		Caller:   userAddr,
		Requests: []settlement.Request{env.request(env.tokenA, "1.0")},
		Forward:  true,
		Payload:  payload,
		Referrer: referrerAddr,
	})
	if err != nil {
		t.Fatalf("settle: %v", err)
	}
	env.requireBalance(env.settle, targetAddr, ether(t, "0.975"))
	env.requireBalance(env.settle, referrerAddr, ether(t, "0.005"))
	if receipt.Mode != settlement.ModeForward || string(receipt.ReturnData) != string(env.forwarder.reply) {
		t.Fatalf("unexpected receipt: %+v", receipt)
	}
	if len(env.forwarder.calls) != 1 || string(env.forwarder.calls[0].Payload) != string(payload) || env.forwarder.targets[0] != targetAddr {
		t.Fatalf("unexpected forwarder calls: %+v", env.forwarder.calls)
	}
	fwd := env.events.OfType(events.TypeForwardSucceeded)
	if len(fwd) != 1 || string(fwd[0].(events.ForwardSucceeded).ReturnData) != string(env.forwarder.reply) {
		t.Fatalf("unexpected ForwardSucceeded events: %v", fwd)
	}
}

func TestForwardingMisuse(t *testing.T) {
	env := newTestEnv(t)
	env.fund(env.tokenA, userAddr, ether(t, "1.0"))
	base := settlement.BatchCall{
		Caller:   userAddr,
		Requests: []settlement.Request{env.request(env.tokenA, "1.0")},
		Forward:  true,
		Payload:  []byte{0x01},
	}

	call := base
	call.Recipient = recipientAddr
	_, err := env.engine.SettleBatch(context.Background(), call)
	var bothErr *settlement.BridgeAndRecipientBothSetError
	if !errors.As(err, &bothErr) || bothErr.Recipient != recipientAddr {
		t.Fatalf("expected BridgeAndRecipientBothSetError, got %v", err)
	}

	call = base
	call.Payload = nil
	if _, err := env.engine.SettleBatch(context.Background(), call); !errors.Is(err, settlement.ErrInvalidBridgeData) {
		t.Fatalf("expected ErrInvalidBridgeData, got %v", err)
	}

	if err := env.engine.SetForwardingPaused(ownerAddr, true); err != nil {
		t.Fatalf("pause forwarding: %v", err)
	}
	if _, err := env.engine.SettleBatch(context.Background(), base); !errors.Is(err, settlement.ErrForwardingPaused) {
		t.Fatalf("expected ErrForwardingPaused, got %v", err)
	}
	direct := base
	direct.Forward = false
	direct.Payload = nil
	if _, err := env.engine.SettleBatch(context.Background(), direct); err != nil {
		t.Fatalf("direct settlement must work while forwarding is paused: %v", err)
	}
}

func TestForwardingRecipientAlwaysFails(t *testing.T) {
	env := newTestEnv(t)
	for _, value := range []*big.Int{nil, big.NewInt(10_000)} {
		env.fund(env.settle, userAddr, big.NewInt(10_000))
		_, err := env.engine.SettleBatch(context.Background(), settlement.BatchCall{
			Caller:    userAddr,
			Requests:  []settlement.Request{{Asset: tokenAID, AmountIn: big.NewInt(0)}},
			Forward:   true,
			Payload:   []byte{0x01},
			Recipient: recipientAddr,
			Value:     value,
		})
		if !errors.Is(err, settlement.ErrBridgeAndRecipientBoth) {
			t.Fatalf("expected ErrBridgeAndRecipientBoth, got %v", err)
		}
	}
}

func TestForwardingMinimumValue(t *testing.T) {
	env := newTestEnv(t)
	env.fund(env.settle, userAddr, big.NewInt(8_000))

	_, err := env.engine.RelayForward(context.Background(), settlement.RelayCall{
		Caller:  userAddr,
		Payload: []byte{0x01},
		Value:   big.NewInt(7_999),
	})
	var valueErr *settlement.InsufficientValueError
	if !errors.As(err, &valueErr) || valueErr.Min.Int64() != 8_000 || valueErr.Got.Int64() != 7_999 {
		t.Fatalf("expected InsufficientValueError, got %v", err)
	}

	receipt, err := env.engine.RelayForward(context.Background(), settlement.RelayCall{
		Caller:  userAddr,
		Payload: []byte{0x01},
		Value:   big.NewInt(8_000),
	})
	if err != nil {
		t.Fatalf("relay at minimum: %v", err)
	}
	if receipt.DirectFee.Int64() != 20 || receipt.SwapFee.Sign() != 0 {
		t.Fatalf("unexpected relay fees: %+v", receipt)
	}
	env.requireBalance(env.settle, targetAddr, big.NewInt(7_980))
}

func TestForwardingWithoutForwarder(t *testing.T) {
	env := newTestEnv(t)
	env.fund(env.tokenA, userAddr, ether(t, "1.0"))
	env.fund(env.settle, userAddr, big.NewInt(10_000))
	env.engine.SetForwarder(nil)

	_, err := env.engine.SettleBatch(context.Background(), settlement.BatchCall{
		Caller:   userAddr,
		Requests: []settlement.Request{env.request(env.tokenA, "1.0")},
		Forward:  true,
		Payload:  []byte{0xde, 0xad},
	})
	if !errors.Is(err, settlement.ErrForwarderNotSet) {
		t.Fatalf("expected ErrForwarderNotSet, got %v", err)
	}
	_, err = env.engine.RelayForward(context.Background(), settlement.RelayCall{
		Caller:  userAddr,
		Payload: []byte{0xde, 0xad},
		Value:   big.NewInt(10_000),
	})
	if !errors.Is(err, settlement.ErrForwarderNotSet) {
		t.Fatalf("expected ErrForwarderNotSet from relay, got %v", err)
	}
	env.requireBalance(env.tokenA, userAddr, ether(t, "1.0"))
	env.requireBalance(env.settle, userAddr, big.NewInt(10_000))
	env.requireBalance(env.settle, targetAddr, big.NewInt(0))
	if fwd := env.events.OfType(events.TypeForwardSucceeded); len(fwd) != 0 {
		t.Fatalf("unexpected ForwardSucceeded events: %v", fwd)
	}

	direct, err := env.engine.SettleBatch(context.Background(), settlement.BatchCall{
		Caller:   userAddr,
		Requests: []settlement.Request{env.request(env.tokenA, "1.0")},
	})
	if err != nil || direct.Mode != settlement.ModeDirect {
		t.Fatalf("direct settlement must not need a forwarder: %+v, %v", direct, err)
	}
}

func TestRelayForwardRejectsZeroValue(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.engine.RelayForward(context.Background(), settlement.RelayCall{
		Caller:  userAddr,
		Payload: []byte{0x01},
	}); !errors.Is(err, settlement.ErrZeroValue) {
		t.Fatalf("expected ErrZeroValue, got %v", err)
	}
}

func TestForwarderFailureRevertsEverything(t *testing.T) {
	env := newTestEnv(t)
	env.fund(env.tokenA, userAddr, ether(t, "1.0"))
	env.forwarder.err = errors.New("target unavailable")

	_, err := env.engine.SettleBatch(context.Background(), settlement.BatchCall{
		Caller:   userAddr,
		Requests: []settlement.Request{env.request(env.tokenA, "1.0")},
		Forward:  true,
		Payload:  []byte{0x01},
	})
	if !errors.Is(err, settlement.ErrForwardFailed) {
		t.Fatalf("expected ErrForwardFailed, got %v", err)
	}
	env.requireBalance(env.tokenA, userAddr, ether(t, "1.0"))
	env.requireBalance(env.settle, targetAddr, big.NewInt(0))
	env.requireBalance(env.settle, collectorAddr, big.NewInt(0))
	env.requireBalance(env.settle, routerAddr, ether(t, "1000"))
	if len(env.events.Events) != 0 {
		t.Fatalf("reverted call leaked %d events", len(env.events.Events))
	}
}

func TestQuote(t *testing.T) {
	env := newTestEnv(t)
	bd, err := env.engine.Quote(userAddr, referrerAddr, ether(t, "1.0"), ether(t, "0.1"))
	if err != nil {
		t.Fatalf("quote: %v", err)
	}
	if bd.Fee.Cmp(ether(t, "0.02525")) != 0 || bd.ReferrerCut.Cmp(ether(t, "0.00505")) != 0 {
		t.Fatalf("unexpected quote: %+v", bd)
	}
	if _, err := env.engine.Quote(userAddr, userAddr, ether(t, "1.0"), nil); !errors.Is(err, settlement.ErrReferrerCannotBeSelfUnlessPartner) {
		t.Fatalf("expected self referral error, got %v", err)
	}
}
