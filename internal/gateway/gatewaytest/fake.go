// Package gatewaytest provides an in-memory gateway.Gateway for tests and
// local development without a provider account.
package gatewaytest

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/juju/errors"

	"github.com/baharkarakas/pixelmart/internal/gateway"
)

const SignatureHeader = "X-Test-Signature"

var _ gateway.Gateway = (*Fake)(nil)

// Fake records every call. Failures are injected per destination account.
type Fake struct {
	mu sync.Mutex

	Sessions  []gateway.SessionRequest
	Transfers []gateway.Transfer
	Prices    []gateway.PriceRequest
	Discounts map[string]gateway.Discount

	// FailTransfers maps destination account -> error returned by TransferFunds.
	FailTransfers map[string]error
	// TransferDelay is slept before every transfer; it honours ctx cancellation.
	TransferDelay time.Duration
	// OnTransfer, when set, runs as each transfer starts.
	OnTransfer func(gateway.Transfer)
	// SessionErr, when set, is returned by CreateCheckoutSession.
	SessionErr error

	seq int
}

func New() *Fake {
	return &Fake{
		Discounts:     map[string]gateway.Discount{},
		FailTransfers: map[string]error{},
	}
}

func (f *Fake) next(prefix string) string {
	f.seq++
	return fmt.Sprintf("%s_%d", prefix, f.seq)
}

func (f *Fake) CreateCheckoutSession(_ context.Context, req gateway.SessionRequest) (gateway.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.SessionErr != nil {
		return gateway.Session{}, f.SessionErr
	}
	f.Sessions = append(f.Sessions, req)
	id := f.next("cs_test")
	return gateway.Session{ID: id, PaymentURL: "https://pay.test/" + id}, nil
}

// wireEvent is the JSON shape Sign and VerifyEvent agree on.
type wireEvent struct {
	ID        string            `json:"id"`
	Type      string            `json:"type"`
	SessionID string            `json:"session_id"`
	Metadata  map[string]string `json:"metadata"`
}

// Payload builds a signed-ready event body.
func Payload(ev gateway.Event) []byte {
	b, _ := json.Marshal(wireEvent{ID: ev.ID, Type: ev.Type, SessionID: ev.SessionID, Metadata: ev.Metadata})
	return b
}

// Sign returns the signature VerifyEvent accepts for payload under secret.
func Sign(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

func (f *Fake) VerifyEvent(payload []byte, signature, secret string) (gateway.Event, error) {
	want := Sign(payload, secret)
	if signature == "" || !hmac.Equal([]byte(want), []byte(signature)) {
		return gateway.Event{}, errors.Unauthorizedf("webhook signature mismatch")
	}
	var w wireEvent
	if err := json.Unmarshal(payload, &w); err != nil {
		return gateway.Event{}, errors.BadRequestf("decoding event: %v", err)
	}
	return gateway.Event{ID: w.ID, Type: w.Type, SessionID: w.SessionID, Metadata: w.Metadata}, nil
}

func (f *Fake) TransferFunds(ctx context.Context, t gateway.Transfer) (gateway.TransferResult, error) {
	if f.OnTransfer != nil {
		f.OnTransfer(t)
	}
	if f.TransferDelay > 0 {
		select {
		case <-time.After(f.TransferDelay):
		case <-ctx.Done():
			f.record(t)
			return gateway.TransferResult{}, errors.Annotate(ctx.Err(), "transfer timed out")
		}
	}
	f.record(t)

	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.FailTransfers[t.Destination]; ok {
		return gateway.TransferResult{}, err
	}
	return gateway.TransferResult{ID: f.next("tr_test")}, nil
}

func (f *Fake) record(t gateway.Transfer) {
	f.mu.Lock()
	f.Transfers = append(f.Transfers, t)
	f.mu.Unlock()
}

func (f *Fake) LookupDiscount(_ context.Context, code string) (gateway.Discount, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.Discounts[code]
	if !ok {
		return gateway.Discount{}, errors.NotFoundf("discount code %q", code)
	}
	return d, nil
}

func (f *Fake) RegisterPrice(_ context.Context, req gateway.PriceRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Prices = append(f.Prices, req)
	return f.next("price_test"), nil
}

// SetTransferFailure makes transfers to destination fail with err; nil clears it.
func (f *Fake) SetTransferFailure(destination string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err == nil {
		delete(f.FailTransfers, destination)
		return
	}
	f.FailTransfers[destination] = err
}

// TransfersTo returns the recorded transfer attempts to destination.
func (f *Fake) TransfersTo(destination string) []gateway.Transfer {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []gateway.Transfer
	for _, t := range f.Transfers {
		if t.Destination == destination {
			out = append(out, t)
		}
	}
	return out
}

func (f *Fake) SessionCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Sessions)
}

func (f *Fake) LastSession() gateway.SessionRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.Sessions) == 0 {
		return gateway.SessionRequest{}
	}
	return f.Sessions[len(f.Sessions)-1]
}
