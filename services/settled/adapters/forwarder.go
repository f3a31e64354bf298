package adapters

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"burnrouter/crypto"
	"burnrouter/native/settlement"
)

// maxReturnData caps how much of the endpoint's response becomes return data.
const maxReturnData = 4 << 10

// ForwardRequest is the JSON body posted for every forwarding settlement.
type ForwardRequest struct {
	Target  string        `json:"target"`
	Engine  string        `json:"engine"`
	Payer   string        `json:"payer"`
	Asset   string        `json:"asset"`
	Amount  string        `json:"amount"`
	Payload hexutil.Bytes `json:"payload"`
}

// WebhookForwarder delivers forwarding settlements to an HTTP endpoint. The
// response body is returned as the call's return data; any non-2xx status
// fails the forward and with it the settlement.
type WebhookForwarder struct {
	url    string
	client *http.Client
}

func NewWebhookForwarder(url string, timeout time.Duration) *WebhookForwarder {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &WebhookForwarder{
		url: url,
		client: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
}

func (f *WebhookForwarder) Forward(ctx context.Context, target [20]byte, call settlement.ForwardCall) ([]byte, error) {
	body, err := json.Marshal(ForwardRequest{
		Target:  crypto.FromRaw(crypto.AccountPrefix, target).String(),
		Engine:  crypto.FromRaw(crypto.AccountPrefix, call.Engine).String(),
		Payer:   crypto.FromRaw(crypto.AccountPrefix, call.Payer).String(),
		Asset:   crypto.FromRaw(crypto.AssetPrefix, call.Asset).String(),
		Amount:  call.Amount.String(),
		Payload: call.Payload,
	})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxReturnData))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("forward endpoint returned %d", resp.StatusCode)
	}
	return data, nil
}
