package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/cert-reminder-api/pkg/config"
)

func TestNormalizePhone(t *testing.T) {
	cases := []struct {
		name    string
		in      string
		want    string
		wantErr bool
	}{
		{name: "plain digits", in: "5550001111", want: "5550001111"},
		{name: "international", in: "+15550001111", want: "+15550001111"},
		{name: "punctuation stripped", in: "(555) 000-1111", want: "5550001111"},
		{name: "dots and spaces", in: " 555.000.1111 ", want: "5550001111"},
		{name: "too short", in: "555", wantErr: true},
		{name: "too long", in: "1234567890123456", wantErr: true},
		{name: "letters", in: "555000111a", wantErr: true},
		{name: "empty", in: "   ", wantErr: true},
		{name: "plus only prefix allowed", in: "+45 12 34 56 78 90", want: "+451234567890"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := NormalizePhone(tc.in)
			if tc.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tc.want, got)
		})
	}
}

func TestGatewaySMSSenderSuccess(t *testing.T) {
	var received gatewayRequest
	var gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(gatewayResponse{MessageID: "gw-42", Status: "queued"}) //nolint:errcheck
	}))
	defer server.Close()

	sender := NewGatewaySMSSender(config.SMSConfig{
		GatewayURL: server.URL,
		APIKey:     "key-123",
		SenderID:   "CERTS",
	}, nil)

	result := sender.Send(context.Background(), "(555) 000-1111", "Your code is 123456")
	require.True(t, result.Success)
	require.Equal(t, "gw-42", result.MessageID)
	require.Equal(t, "Bearer key-123", gotAuth)
	require.Equal(t, "5550001111", received.To)
	require.Equal(t, "CERTS", received.From)
	require.Equal(t, "Your code is 123456", received.Body)
}

func TestGatewaySMSSenderRejection(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		json.NewEncoder(w).Encode(gatewayResponse{Error: "unroutable number"}) //nolint:errcheck
	}))
	defer server.Close()

	sender := NewGatewaySMSSender(config.SMSConfig{GatewayURL: server.URL}, nil)
	result := sender.Send(context.Background(), "5550001111", "hello")
	require.False(t, result.Success)
	require.Equal(t, "unroutable number", result.Error)
}

func TestGatewaySMSSenderRetriesTransportError(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			// Drop the first connection mid-flight.
			hj, ok := w.(http.Hijacker)
			require.True(t, ok)
			conn, _, err := hj.Hijack()
			require.NoError(t, err)
			conn.Close()
			return
		}
		json.NewEncoder(w).Encode(gatewayResponse{MessageID: "gw-retry"}) //nolint:errcheck
	}))
	defer server.Close()

	sender := NewGatewaySMSSender(config.SMSConfig{GatewayURL: server.URL}, nil)
	result := sender.Send(context.Background(), "5550001111", "hello")
	require.True(t, result.Success)
	require.Equal(t, "gw-retry", result.MessageID)
	require.Equal(t, 2, calls)
}

func TestGatewaySMSSenderUnconfigured(t *testing.T) {
	sender := NewGatewaySMSSender(config.SMSConfig{}, nil)
	result := sender.Send(context.Background(), "5550001111", "hello")
	require.False(t, result.Success)
	require.Contains(t, result.Error, "not configured")
}

func TestGatewaySMSSenderInvalidDestination(t *testing.T) {
	sender := NewGatewaySMSSender(config.SMSConfig{GatewayURL: "http://localhost:1"}, nil)
	result := sender.Send(context.Background(), "bad", "hello")
	require.False(t, result.Success)
	require.Contains(t, result.Error, "invalid destination")
}
