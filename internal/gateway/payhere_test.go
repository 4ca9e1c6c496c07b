package gateway_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/madukaneranga/Kixora-sub000/internal/gateway"
)

type doerFunc func(ctx context.Context, req *http.Request) (*http.Response, error)

func (f doerFunc) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	return f(ctx, req)
}

func plainDoer() gateway.Doer {
	return doerFunc(func(ctx context.Context, req *http.Request) (*http.Response, error) {
		return http.DefaultClient.Do(req.WithContext(ctx))
	})
}

func TestRequestValuesWireFormat(t *testing.T) {
	req := validRequest()
	v := req.Values()

	want := map[string]string{
		"merchant_id": "M1",
		"return_url":  "https://shop.example/return",
		"cancel_url":  "https://shop.example/cancel",
		"notify_url":  "https://shop.example/notify",
		"order_id":    "O-42",
		"items":       "Court sneakers",
		"currency":    "LKR",
		"amount":      "1500.00",
		"first_name":  "Nimal",
		"last_name":   "Perera",
		"email":       "nimal@example.com",
		"phone":       "0771234567",
		"address":     "12 Galle Rd",
		"city":        "Colombo",
		"country":     "Sri Lanka",
		"hash":        "AABBCC",
	}
	for key, value := range want {
		require.Equal(t, value, v.Get(key), "field %s", key)
	}
	require.Len(t, v, len(want))
	require.False(t, v.Has("sandbox"), "sandbox must be omitted for live requests")

	req.Sandbox = true
	require.Equal(t, "true", req.Values().Get("sandbox"))
}

func TestRequestCheckoutURL(t *testing.T) {
	req := validRequest()
	require.Equal(t, "https://www.payhere.lk/pay/checkout", req.CheckoutURL())
	req.Sandbox = true
	require.Equal(t, "https://sandbox.payhere.lk/pay/checkout", req.CheckoutURL())
}

func TestPayHereSDKLifecycle(t *testing.T) {
	sdk := gateway.NewPayHereSDK()

	_, ok := sdk.Pending()
	require.False(t, ok)

	bad := validRequest()
	bad.MerchantID = " "
	require.Error(t, sdk.Start(bad))

	require.NoError(t, sdk.Start(validRequest()))
	pending, ok := sdk.Pending()
	require.True(t, ok)
	require.Equal(t, "O-42", pending.OrderID)
	require.Equal(t, "https://www.payhere.lk/pay/checkout", pending.Action)
	require.Equal(t, "1500.00", pending.Fields.Get("amount"))

	var completed []string
	sdk.OnCompleted(func(orderID string) { completed = append(completed, orderID) })
	sdk.Completed("O-42")
	require.Equal(t, []string{"O-42"}, completed)
	_, ok = sdk.Pending()
	require.False(t, ok, "a terminal event must clear the pending session")

	// detached slots swallow events
	sdk.OnCompleted(nil)
	sdk.Completed("O-43")
	require.Equal(t, []string{"O-42"}, completed)
}

func TestPayHereSDKDismissedAndError(t *testing.T) {
	sdk := gateway.NewPayHereSDK()
	require.NoError(t, sdk.Start(validRequest()))

	dismissed := 0
	sdk.OnDismissed(func() { dismissed++ })
	sdk.Dismissed()
	require.Equal(t, 1, dismissed)
	_, ok := sdk.Pending()
	require.False(t, ok)

	require.NoError(t, sdk.Start(validRequest()))
	var messages []string
	sdk.OnError(func(message string) { messages = append(messages, message) })
	sdk.Error("card declined")
	require.Equal(t, []string{"card declined"}, messages)
	_, ok = sdk.Pending()
	require.False(t, ok)
}

func TestScriptLoaderHTTPLoad(t *testing.T) {
	defer gateway.RegisterGlobal(nil)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("window.payhere = {};"))
	}))
	defer srv.Close()

	sdk := gateway.NewPayHereSDK()
	loader := &gateway.ScriptLoaderHTTP{ScriptURL: srv.URL, Client: plainDoer(), SDK: sdk}

	got, err := loader.Load(context.Background())
	require.NoError(t, err)
	require.Same(t, gateway.CheckoutSDK(sdk), got)

	// a successful load publishes the entry point process-wide
	existing, ok := loader.Existing()
	require.True(t, ok)
	require.Same(t, gateway.CheckoutSDK(sdk), existing)
}

func TestScriptLoaderHTTPEmptyScript(t *testing.T) {
	defer gateway.RegisterGlobal(nil)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	loader := &gateway.ScriptLoaderHTTP{ScriptURL: srv.URL, Client: plainDoer(), SDK: gateway.NewPayHereSDK()}
	got, err := loader.Load(context.Background())
	require.NoError(t, err)
	require.Nil(t, got, "an empty script means loaded but unregistered")

	_, ok := loader.Existing()
	require.False(t, ok)
}

func TestScriptLoaderHTTPServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "nope", http.StatusInternalServerError)
	}))
	defer srv.Close()

	loader := &gateway.ScriptLoaderHTTP{ScriptURL: srv.URL, Client: plainDoer(), SDK: gateway.NewPayHereSDK()}
	_, err := loader.Load(context.Background())
	require.Error(t, err)
	require.Contains(t, err.Error(), "500")
}

func TestScriptLoaderHTTPUnconfigured(t *testing.T) {
	loader := &gateway.ScriptLoaderHTTP{}
	_, err := loader.Load(context.Background())
	require.Error(t, err)
}
