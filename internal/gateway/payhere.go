package gateway

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
)

// PayHere hosted checkout endpoints. The script URL is fixed; the checkout
// host depends on the per-request sandbox flag.
const (
	DefaultScriptURL = "https://www.payhere.lk/lib/payhere.js"

	liveCheckoutURL    = "https://www.payhere.lk/pay/checkout"
	sandboxCheckoutURL = "https://sandbox.payhere.lk/pay/checkout"
)

// Values renders the request in the exact wire format the hosted checkout
// expects. The hash is forwarded verbatim.
func (r Request) Values() url.Values {
	v := url.Values{}
	v.Set("merchant_id", r.MerchantID)
	v.Set("return_url", r.ReturnURL)
	v.Set("cancel_url", r.CancelURL)
	v.Set("notify_url", r.NotifyURL)
	v.Set("order_id", r.OrderID)
	v.Set("items", r.Items)
	v.Set("currency", r.Currency)
	v.Set("amount", r.Amount)
	v.Set("first_name", r.FirstName)
	v.Set("last_name", r.LastName)
	v.Set("email", r.Email)
	v.Set("phone", r.Phone)
	v.Set("address", r.Address)
	v.Set("city", r.City)
	v.Set("country", r.Country)
	v.Set("hash", r.Hash)
	if r.Sandbox {
		v.Set("sandbox", "true")
	}
	return v
}

// CheckoutURL returns the hosted checkout endpoint for the request.
func (r Request) CheckoutURL() string {
	if r.Sandbox {
		return sandboxCheckoutURL
	}
	return liveCheckoutURL
}

// PendingSession is the form the storefront submits to the hosted checkout.
type PendingSession struct {
	OrderID string
	Action  string
	Fields  url.Values
}

// PayHereSDK adapts PayHere's hosted checkout to the CheckoutSDK contract.
// Like the vendor script it keeps a single global slot per terminal
// callback; the HTTP ingress (return/cancel redirects, gateway errors) feeds
// Completed, Dismissed and Error.
type PayHereSDK struct {
	mu          sync.Mutex
	onCompleted func(orderID string)
	onDismissed func()
	onError     func(message string)
	pending     *PendingSession
}

// NewPayHereSDK constructs an idle SDK with empty callback slots.
func NewPayHereSDK() *PayHereSDK {
	return &PayHereSDK{}
}

// OnCompleted installs (or with nil detaches) the completion handler.
func (p *PayHereSDK) OnCompleted(fn func(orderID string)) {
	p.mu.Lock()
	p.onCompleted = fn
	p.mu.Unlock()
}

// OnDismissed installs (or with nil detaches) the dismissal handler.
func (p *PayHereSDK) OnDismissed(fn func()) {
	p.mu.Lock()
	p.onDismissed = fn
	p.mu.Unlock()
}

// OnError installs (or with nil detaches) the gateway error handler.
func (p *PayHereSDK) OnError(fn func(message string)) {
	p.mu.Lock()
	p.onError = fn
	p.mu.Unlock()
}

// Start opens a checkout session: it materialises the wire form the
// storefront posts to the hosted checkout and records it as the pending
// session. The outcome arrives later through Completed, Dismissed or Error.
func (p *PayHereSDK) Start(req Request) error {
	if strings.TrimSpace(req.MerchantID) == "" {
		return errors.New("payhere: merchant id missing")
	}
	p.mu.Lock()
	p.pending = &PendingSession{
		OrderID: req.OrderID,
		Action:  req.CheckoutURL(),
		Fields:  req.Values(),
	}
	p.mu.Unlock()
	return nil
}

// Pending returns the session opened by the last Start, if any.
func (p *PayHereSDK) Pending() (PendingSession, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.pending == nil {
		return PendingSession{}, false
	}
	return *p.pending, true
}

// Completed fires the completion slot with the gateway-confirmed order id.
func (p *PayHereSDK) Completed(orderID string) {
	p.mu.Lock()
	fn := p.onCompleted
	p.pending = nil
	p.mu.Unlock()
	if fn != nil {
		fn(orderID)
	}
}

// Dismissed fires the dismissal slot.
func (p *PayHereSDK) Dismissed() {
	p.mu.Lock()
	fn := p.onDismissed
	p.pending = nil
	p.mu.Unlock()
	if fn != nil {
		fn()
	}
}

// Error fires the error slot with the processor message.
func (p *PayHereSDK) Error(message string) {
	p.mu.Lock()
	fn := p.onError
	p.pending = nil
	p.mu.Unlock()
	if fn != nil {
		fn(message)
	}
}

var (
	globalMu  sync.Mutex
	globalSDK CheckoutSDK
)

// RegisterGlobal publishes an SDK entry point process-wide, mirroring a
// vendor script that attached itself through another code path. Passing nil
// clears the registration.
func RegisterGlobal(sdk CheckoutSDK) {
	globalMu.Lock()
	globalSDK = sdk
	globalMu.Unlock()
}

func registeredGlobal() (CheckoutSDK, bool) {
	globalMu.Lock()
	defer globalMu.Unlock()
	return globalSDK, globalSDK != nil
}

// Doer executes an HTTP request; resilience.HTTPClient satisfies it.
type Doer interface {
	Do(ctx context.Context, req *http.Request) (*http.Response, error)
}

// ScriptLoaderHTTP fetches the vendor script over HTTP and hands out the
// configured SDK once the script is known to be servable. A load that
// returns an empty script models "loaded but never registered": the bridge
// then fails sessions with SDKUnavailableError.
type ScriptLoaderHTTP struct {
	ScriptURL string
	Client    Doer
	SDK       *PayHereSDK
}

// Existing consults the process-wide registry.
func (l *ScriptLoaderHTTP) Existing() (CheckoutSDK, bool) {
	return registeredGlobal()
}

// Load performs the one-time script fetch.
func (l *ScriptLoaderHTTP) Load(ctx context.Context) (CheckoutSDK, error) {
	if l.Client == nil {
		return nil, errors.New("payhere: script client not configured")
	}
	scriptURL := l.ScriptURL
	if strings.TrimSpace(scriptURL) == "" {
		scriptURL = DefaultScriptURL
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, scriptURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := l.Client.Do(ctx, req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return nil, errors.New("payhere: script fetch returned " + resp.Status)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if len(strings.TrimSpace(string(body))) == 0 {
		return nil, nil
	}
	if l.SDK == nil {
		return nil, nil
	}
	RegisterGlobal(l.SDK)
	return l.SDK, nil
}
