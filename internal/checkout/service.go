package checkout

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/madukaneranga/Kixora-sub000/internal/gateway"
	"github.com/madukaneranga/Kixora-sub000/internal/lock"
	"github.com/madukaneranga/Kixora-sub000/internal/order"
)

// Signer supplies the precomputed integrity hash for a payment attempt. The
// hash is computed by a trusted upstream and passed through verbatim; this
// service never computes or inspects it.
type Signer interface {
	Hash(ctx context.Context, orderID, amount, currency string) (string, error)
}

// RemoteSigner fetches the hash from the upstream signing service.
type RemoteSigner struct {
	BaseURL string
	Client  gateway.Doer
}

// Hash requests the hash for one attempt and returns it untouched.
func (s RemoteSigner) Hash(ctx context.Context, orderID, amount, currency string) (string, error) {
	if s.Client == nil {
		return "", errors.New("checkout: signer client not configured")
	}
	u := strings.TrimRight(s.BaseURL, "/") + "/sign?" + url.Values{
		"order_id": {orderID},
		"amount":   {amount},
		"currency": {currency},
	}.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return "", err
	}
	resp, err := s.Client.Do(ctx, req)
	if err != nil {
		return "", fmt.Errorf("checkout: fetch hash: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("checkout: signer returned %s", resp.Status)
	}
	var payload struct {
		Hash string `json:"hash"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", fmt.Errorf("checkout: decode signer response: %w", err)
	}
	if strings.TrimSpace(payload.Hash) == "" {
		return "", errors.New("checkout: signer returned empty hash")
	}
	return payload.Hash, nil
}

// PaymentStarter is the slice of the gateway bridge this service needs.
type PaymentStarter interface {
	StartPayment(ctx context.Context, req gateway.Request, opts gateway.SessionOptions) (gateway.Result, error)
}

// Service orchestrates one payment attempt: order lookup, hash passthrough,
// bridge invocation, attempt bookkeeping.
type Service struct {
	Orders order.Store
	Bridge PaymentStarter
	Signer Signer
	// Locker guards against the same order being paid from two replicas at
	// once. Optional; nil skips the guard.
	Locker *lock.Locker

	MerchantID string
	ReturnURL  string
	CancelURL  string
	NotifyURL  string
	Sandbox    bool
	// SessionTimeout overrides the bridge default when positive.
	SessionTimeout time.Duration

	Log zerolog.Logger
}

// Pay opens a checkout session for the order and blocks until it settles.
func (s *Service) Pay(ctx context.Context, orderID string) (gateway.Result, error) {
	if s == nil || s.Orders == nil || s.Bridge == nil || s.Signer == nil {
		return gateway.Result{}, errors.New("checkout: service not configured")
	}
	ord, err := s.Orders.Get(ctx, orderID)
	if err != nil {
		return gateway.Result{}, err
	}
	hash, err := s.Signer.Hash(ctx, ord.ID, ord.Amount, ord.Currency)
	if err != nil {
		return gateway.Result{}, err
	}

	req := gateway.Request{
		MerchantID: s.MerchantID,
		OrderID:    ord.ID,
		Amount:     ord.Amount,
		Currency:   ord.Currency,
		Items:      ord.Items,
		FirstName:  ord.FirstName,
		LastName:   ord.LastName,
		Email:      ord.Email,
		Phone:      ord.Phone,
		Address:    ord.Address,
		City:       ord.City,
		Country:    ord.Country,
		ReturnURL:  s.ReturnURL,
		CancelURL:  s.CancelURL,
		NotifyURL:  s.NotifyURL,
		Hash:       hash,
		Sandbox:    s.Sandbox,
	}

	var result gateway.Result
	var payErr error
	run := func(ctx context.Context) error {
		result, payErr = s.Bridge.StartPayment(ctx, req, gateway.SessionOptions{Timeout: s.SessionTimeout})
		return nil
	}

	if s.Locker != nil {
		ttl := s.SessionTimeout
		if ttl <= 0 {
			ttl = gateway.DefaultSessionTimeout
		}
		// slack so the lock outlives the session it guards
		if err := s.Locker.WithLock(ctx, "pay:"+ord.ID, ttl+30*time.Second, run); err != nil {
			return gateway.Result{}, err
		}
	} else if err := run(ctx); err != nil {
		return gateway.Result{}, err
	}

	outcome, message := classify(result, payErr)
	if recErr := s.Orders.RecordAttempt(ctx, ord.ID, outcome, message); recErr != nil {
		s.Log.Error().Err(recErr).Str("order_id", ord.ID).Msg("record payment attempt")
	}
	return result, payErr
}

// classify maps a settled session onto the attempt-log vocabulary.
func classify(res gateway.Result, err error) (outcome, message string) {
	switch {
	case err == nil && res.Succeeded:
		return "COMPLETED", ""
	case errors.Is(err, gateway.ErrUserCancelled):
		return "DISMISSED", ""
	case errors.Is(err, gateway.ErrSessionTimeout):
		return "TIMEOUT", res.ErrorMessage
	default:
	}
	var vErr *gateway.ValidationError
	if errors.As(err, &vErr) {
		return "VALIDATION_FAILED", vErr.Error()
	}
	var lErr *gateway.ScriptLoadError
	if errors.As(err, &lErr) {
		return "SCRIPT_LOAD_FAILED", lErr.Error()
	}
	var sErr *gateway.SDKUnavailableError
	if errors.As(err, &sErr) {
		return "SDK_UNAVAILABLE", sErr.Error()
	}
	var gErr *gateway.GatewayError
	if errors.As(err, &gErr) {
		return "GATEWAY_ERROR", gErr.Message
	}
	return "FAILED", res.ErrorMessage
}
