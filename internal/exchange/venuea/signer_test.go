package venuea

import (
	"testing"

	"github.com/stretchr/testify/require"

	"botsupervisor/internal/exchange"
)

func TestHeadersAreDeterministic(t *testing.T) {
	s := New()
	in := exchange.SignInput{
		Method:    "GET",
		Path:      "/api/v1/order",
		Query:     "symbol=GCBUSDT",
		Timestamp: 1700000000000,
		APIKey:    "key1",
		APISecret: "secret1",
	}

	h1 := s.Headers(in)
	h2 := s.Headers(in)
	require.Equal(t, h1.Get("signature"), h2.Get("signature"))
	require.Equal(t, "key1", h1.Get("apikey"))
	require.Equal(t, "5000", h1.Get("recvWindow"))
}

func TestHeadersChangeWithBody(t *testing.T) {
	s := New()
	base := exchange.SignInput{Method: "POST", Path: "/api/v1/order", Timestamp: 1700000000000, APIKey: "k", APISecret: "s"}
	withBody := base
	withBody.Body = `{"symbol":"GCBUSDT"}`

	require.NotEqual(t, s.Headers(base).Get("signature"), s.Headers(withBody).Get("signature"))
}
