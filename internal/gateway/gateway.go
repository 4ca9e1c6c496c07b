package gateway

import (
	"context"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/madukaneranga/Kixora-sub000/internal/obs"
)

// DefaultSessionTimeout bounds how long a session may stay open without a
// terminal event before the bridge synthesises a timeout failure.
const DefaultSessionTimeout = 5 * time.Minute

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// Request is the outbound payment order, immutable once submitted. Field
// names follow the gateway wire format (see Request.Values in payhere.go).
// Hash is precomputed by a trusted upstream and passed through verbatim; the
// bridge only checks its presence.
type Request struct {
	MerchantID string
	OrderID    string
	Amount     string
	Currency   string
	Items      string

	FirstName string
	LastName  string
	Email     string
	Phone     string
	Address   string
	City      string
	Country   string

	ReturnURL string
	CancelURL string
	NotifyURL string

	Hash    string
	Sandbox bool
}

// Validate checks the invariants required before a session may open and
// reports every missing or malformed field by its wire name.
func (r Request) Validate() error {
	var bad []string
	for _, f := range []struct {
		name  string
		value string
	}{
		{"merchant_id", r.MerchantID},
		{"order_id", r.OrderID},
		{"amount", r.Amount},
		{"currency", r.Currency},
		{"first_name", r.FirstName},
		{"last_name", r.LastName},
		{"email", r.Email},
		{"hash", r.Hash},
	} {
		if strings.TrimSpace(f.value) == "" {
			bad = append(bad, f.name)
		}
	}
	if amount := strings.TrimSpace(r.Amount); amount != "" {
		v, err := strconv.ParseFloat(amount, 64)
		if err != nil || math.IsNaN(v) || math.IsInf(v, 0) || v <= 0 {
			bad = append(bad, "amount")
		}
	}
	if email := strings.TrimSpace(r.Email); email != "" && !emailPattern.MatchString(email) {
		bad = append(bad, "email")
	}
	if len(bad) > 0 {
		return &ValidationError{Fields: bad}
	}
	return nil
}

// Result is the outcome of one session. Exactly one of OrderID (success) or
// ErrorMessage (failure) is populated.
type Result struct {
	Succeeded    bool   `json:"succeeded"`
	OrderID      string `json:"orderId,omitempty"`
	ErrorMessage string `json:"errorMessage,omitempty"`
}

// CheckoutSDK mirrors the vendor checkout object: three global callback
// slots plus a session-start entry point. Implementations keep exactly one
// handler per slot; registering nil detaches the handler.
type CheckoutSDK interface {
	OnCompleted(fn func(orderID string))
	OnDismissed(fn func())
	OnError(fn func(message string))
	Start(req Request) error
}

// ScriptLoader abstracts how the vendor script reaches the process.
type ScriptLoader interface {
	// Existing returns an SDK whose entry point was already registered by
	// another code path, if any.
	Existing() (CheckoutSDK, bool)
	// Load fetches and evaluates the vendor script. Returning a nil SDK
	// with a nil error means the script loaded but never registered an
	// entry point (blocked by policy, truncated, etc.).
	Load(ctx context.Context) (CheckoutSDK, error)
}

// SessionOptions carries per-session knobs. All fields are optional; the
// observers fire at most once, on their own terminal event only.
type SessionOptions struct {
	Timeout     time.Duration
	OnCompleted func(orderID string)
	OnDismissed func()
	OnError     func(message string)
}

type bridgeState int

const (
	stateUninitialized bridgeState = iota
	stateInitializing
	stateReady
)

// loadHandle is the shared resolution for one in-flight script load.
// Concurrent Initialize callers wait on the same handle instead of
// triggering duplicate loads.
type loadHandle struct {
	done chan struct{}
	sdk  CheckoutSDK
	err  error
}

// Bridge adapts the callback-driven checkout SDK into an awaitable
// operation. One instance serves the whole process; sessions are strictly
// serialized because the SDK keeps its terminal callbacks in a single
// global location.
type Bridge struct {
	loader  ScriptLoader
	log     zerolog.Logger
	timeout time.Duration

	mu      sync.Mutex
	state   bridgeState
	sdk     CheckoutSDK
	loading *loadHandle

	// slot is a capacity-1 semaphore guarding the SDK's callback slots.
	slot chan struct{}
}

// New constructs a bridge around the provided loader. timeout overrides the
// default session window when positive.
func New(loader ScriptLoader, log zerolog.Logger, timeout time.Duration) *Bridge {
	if timeout <= 0 {
		timeout = DefaultSessionTimeout
	}
	return &Bridge{
		loader:  loader,
		log:     log,
		timeout: timeout,
		slot:    make(chan struct{}, 1),
	}
}

// Initialize ensures the vendor script is loaded exactly once for the life
// of the process. It is an idempotent no-op once ready; concurrent callers
// during a load share the same resolution. After a hard failure the state
// returns to uninitialized so a later call may retry.
func (b *Bridge) Initialize(ctx context.Context) (CheckoutSDK, error) {
	b.mu.Lock()
	switch b.state {
	case stateReady:
		sdk := b.sdk
		b.mu.Unlock()
		return sdk, nil
	case stateInitializing:
		handle := b.loading
		b.mu.Unlock()
		return awaitLoad(ctx, handle)
	}
	if sdk, ok := b.loader.Existing(); ok {
		b.sdk = sdk
		b.state = stateReady
		b.mu.Unlock()
		b.log.Debug().Msg("checkout sdk already registered, skipping script load")
		return sdk, nil
	}
	handle := &loadHandle{done: make(chan struct{})}
	b.loading = handle
	b.state = stateInitializing
	b.mu.Unlock()

	go b.runLoad(handle)
	return awaitLoad(ctx, handle)
}

// runLoad performs the single script load. It deliberately uses a background
// context: the load is shared state, so one caller giving up must not fail
// the load for everyone else. The loader bounds its own network time.
func (b *Bridge) runLoad(handle *loadHandle) {
	sdk, err := b.loader.Load(context.Background())

	b.mu.Lock()
	if err != nil {
		b.state = stateUninitialized
		handle.err = &ScriptLoadError{Err: err}
	} else {
		b.sdk = sdk
		b.state = stateReady
		handle.sdk = sdk
	}
	b.loading = nil
	b.mu.Unlock()
	close(handle.done)

	if err != nil {
		b.log.Error().Err(err).Msg("checkout script load failed")
		obs.CountScriptLoad("error")
		return
	}
	if sdk == nil {
		b.log.Warn().Msg("checkout script loaded but registered no entry point")
		obs.CountScriptLoad("unregistered")
		return
	}
	b.log.Info().Msg("checkout script loaded")
	obs.CountScriptLoad("ok")
}

func awaitLoad(ctx context.Context, handle *loadHandle) (CheckoutSDK, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-handle.done:
		return handle.sdk, handle.err
	}
}

// session is the single-settlement point for one checkout attempt. The
// first terminal event (completed, dismissed, error or timeout) wins; later
// events are no-ops because the once already fired and the handlers were
// detached.
type session struct {
	once   sync.Once
	done   chan struct{}
	result Result
	err    error
}

// StartPayment validates the request, waits for the script, opens exactly
// one checkout session and settles on the first terminal event or the
// timeout. Calls are serialized: a new session never starts before the
// previous one has settled and released the callback slots.
//
// ctx governs the waits before the session opens (script load, slot
// acquisition). Once the SDK has been started there is no caller-initiated
// cancellation; only a terminal event or the timeout releases the caller.
func (b *Bridge) StartPayment(ctx context.Context, req Request, opts SessionOptions) (Result, error) {
	if err := req.Validate(); err != nil {
		b.log.Warn().Err(err).Str("order_id", req.OrderID).Msg("payment request rejected")
		return failed(err), err
	}

	b.log.Info().
		Str("order_id", req.OrderID).
		Str("amount", req.Amount).
		Str("currency", req.Currency).
		Bool("sandbox", req.Sandbox).
		Msg("payment session requested")

	sdk, err := b.Initialize(ctx)
	if err != nil {
		return failed(err), err
	}
	if sdk == nil {
		err := &SDKUnavailableError{Reason: "script loaded but no entry point registered"}
		b.log.Error().Err(err).Str("order_id", req.OrderID).Msg("checkout sdk missing")
		return failed(err), err
	}

	select {
	case b.slot <- struct{}{}:
	case <-ctx.Done():
		return failed(ctx.Err()), ctx.Err()
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = b.timeout
	}

	s := &session{done: make(chan struct{})}
	started := time.Now()

	// settle runs at most once. Handlers are detached before the slot is
	// released so the next session cannot observe stale callbacks.
	settle := func(res Result, err error, outcome string, notify func()) {
		s.once.Do(func() {
			sdk.OnCompleted(nil)
			sdk.OnDismissed(nil)
			sdk.OnError(nil)
			s.result, s.err = res, err
			if notify != nil {
				notify()
			}
			close(s.done)
			<-b.slot

			evt := b.log.Info()
			if err != nil {
				evt = b.log.Warn().Err(err)
			}
			evt.Str("order_id", req.OrderID).
				Str("outcome", outcome).
				Dur("elapsed", time.Since(started)).
				Msg("payment session settled")
			obs.CountSession(outcome, time.Since(started))
		})
	}

	sdk.OnCompleted(func(orderID string) {
		settle(Result{Succeeded: true, OrderID: orderID}, nil, "completed", func() {
			if opts.OnCompleted != nil {
				opts.OnCompleted(orderID)
			}
		})
	})
	sdk.OnDismissed(func() {
		settle(failed(ErrUserCancelled), ErrUserCancelled, "dismissed", opts.OnDismissed)
	})
	sdk.OnError(func(message string) {
		gwErr := &GatewayError{Message: message}
		settle(failed(gwErr), gwErr, "error", func() {
			if opts.OnError != nil {
				opts.OnError(message)
			}
		})
	})

	timer := time.NewTimer(timeout)
	go func() {
		select {
		case <-timer.C:
			// Best effort only: the hosted checkout, if still open
			// upstream, is not force-closed.
			settle(failed(ErrSessionTimeout), ErrSessionTimeout, "timeout", nil)
		case <-s.done:
		}
	}()

	if err := startSDK(sdk, req); err != nil {
		sdkErr := &SDKUnavailableError{Reason: err.Error()}
		settle(failed(sdkErr), sdkErr, "start_failed", nil)
	}

	<-s.done
	timer.Stop()
	return s.result, s.err
}

// startSDK invokes the vendor entry point, converting a synchronous panic
// into an error so a wedged script cannot take the process down.
func startSDK(sdk CheckoutSDK, req Request) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("checkout start panicked: %v", r)
		}
	}()
	return sdk.Start(req)
}

func failed(err error) Result {
	return Result{ErrorMessage: err.Error()}
}
