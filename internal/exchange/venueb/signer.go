// Package venueb implements the exchange.Signer for signature variant B:
// canonical string = sorted "validate-*" header pairs, joined with " & ",
// followed by " # METHOD # path [# sortedQuery] [# body]" (spec.md §4.1, §6).
package venueb

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"

	"botsupervisor/internal/exchange"
)

// Signer implements exchange.Signer for variant B.
type Signer struct{}

// New creates a variant-B signer.
func New() *Signer { return &Signer{} }

func (s *Signer) Name() string { return "venueb" }

func (s *Signer) Headers(in exchange.SignInput) http.Header {
	recvWindow := in.RecvWindowMs
	if recvWindow == 0 {
		recvWindow = 5000
	}
	ts := strconv.FormatInt(in.Timestamp, 10)

	pairs := map[string]string{
		"validate-algorithms": "HmacSHA256",
		"validate-appkey":     in.APIKey,
		"validate-recvwindow": strconv.Itoa(recvWindow),
		"validate-timestamp":  ts,
	}

	keys := make([]string, 0, len(pairs))
	for k := range pairs {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%s", k, pairs[k]))
	}
	canonical := strings.Join(parts, " & ")

	canonical += fmt.Sprintf(" # %s # %s", in.Method, in.Path)
	if in.Query != "" {
		canonical += fmt.Sprintf(" # %s", in.Query)
	}
	if in.Body != "" {
		canonical += fmt.Sprintf(" # %s", in.Body)
	}

	mac := hmac.New(sha256.New, []byte(in.APISecret))
	mac.Write([]byte(canonical))
	signature := hex.EncodeToString(mac.Sum(nil))

	h := http.Header{}
	h.Set("validate-algorithms", pairs["validate-algorithms"])
	h.Set("validate-appkey", pairs["validate-appkey"])
	h.Set("validate-recvwindow", pairs["validate-recvwindow"])
	h.Set("validate-timestamp", pairs["validate-timestamp"])
	h.Set("validate-signature", signature)
	return h
}
