// Package venuea implements the exchange.Signer for signature variant A:
// HMAC_SHA256(apiSecret, ts || METHOD || path[?query] || bodyJson) hex,
// carried in apikey/ts/signature headers (spec.md §4.1, §6).
package venuea

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strconv"

	"botsupervisor/internal/exchange"
)

// Signer implements exchange.Signer for variant A.
type Signer struct{}

// New creates a variant-A signer.
func New() *Signer { return &Signer{} }

func (s *Signer) Name() string { return "venuea" }

func (s *Signer) Headers(in exchange.SignInput) http.Header {
	path := in.Path
	if in.Query != "" {
		path = path + "?" + in.Query
	}

	ts := strconv.FormatInt(in.Timestamp, 10)
	canonical := ts + in.Method + path + in.Body

	mac := hmac.New(sha256.New, []byte(in.APISecret))
	mac.Write([]byte(canonical))
	signature := hex.EncodeToString(mac.Sum(nil))

	recvWindow := in.RecvWindowMs
	if recvWindow == 0 {
		recvWindow = 5000
	}

	h := http.Header{}
	h.Set("apikey", in.APIKey)
	h.Set("ts", ts)
	h.Set("signature", signature)
	h.Set("recvWindow", strconv.Itoa(recvWindow))
	return h
}
