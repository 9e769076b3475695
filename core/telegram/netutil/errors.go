// Package netutil classifies errors returned by Telegram API calls.
package netutil

import (
	"context"
	"crypto/tls"
	"errors"
	"net"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"
)

// Kind groups send failures for logging and retry decisions.
type Kind string

const (
	KindNone    Kind = ""
	KindTimeout Kind = "timeout"
	KindDNS     Kind = "dns"
	KindDial    Kind = "dial"
	KindTLS     Kind = "tls"
	KindFlood   Kind = "flood"
	KindHTTP4xx Kind = "http_4xx"
	KindHTTP5xx Kind = "http_5xx"
	KindUnknown Kind = "unknown"
)

// Retryable reports whether a failure of kind k may succeed when repeated.
func (k Kind) Retryable() bool {
	switch k {
	case KindTimeout, KindDial, KindFlood, KindHTTP5xx:
		return true
	}
	return false
}

var tokenRe = regexp.MustCompile(`bot[0-9]+:[A-Za-z0-9_-]+`)

// Classify maps err to a Kind.
func Classify(err error) Kind {
	if err == nil {
		return KindNone
	}
	var flood tele.FloodError
	if errors.As(err, &flood) {
		return KindFlood
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		if dnsErr.IsTimeout {
			return KindTimeout
		}
		return KindDNS
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return KindTimeout
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "dial" {
		return KindDial
	}
	var alert tls.AlertError
	if errors.As(err, &alert) {
		return KindTLS
	}
	switch code := StatusCode(err); {
	case code == http.StatusTooManyRequests:
		return KindFlood
	case code >= 500:
		return KindHTTP5xx
	case code >= 400:
		return KindHTTP4xx
	}
	return KindUnknown
}

// StatusCode extracts the HTTP status carried by a Telegram API error, or 0.
func StatusCode(err error) int {
	var apiErr *tele.Error
	if errors.As(err, &apiErr) {
		return apiErr.Code
	}
	var flood tele.FloodError
	if errors.As(err, &flood) {
		return http.StatusTooManyRequests
	}
	var group tele.GroupError
	if errors.As(err, &group) {
		return http.StatusBadRequest
	}
	// telebot formats unknown API errors as "telegram: <description> (<code>)".
	msg := err.Error()
	open, end := strings.LastIndex(msg, "("), strings.LastIndex(msg, ")")
	if open >= 0 && end > open+1 {
		if code, convErr := strconv.Atoi(strings.TrimSpace(msg[open+1 : end])); convErr == nil {
			return code
		}
	}
	return 0
}

// RetryAfter returns the wait Telegram asked for in a flood error, or 0.
func RetryAfter(err error) time.Duration {
	var flood tele.FloodError
	if errors.As(err, &flood) && flood.RetryAfter > 0 {
		return time.Duration(flood.RetryAfter) * time.Second
	}
	return 0
}

// Redact hides bot tokens embedded in API URLs of err's message.
func Redact(err error) string {
	if err == nil {
		return ""
	}
	return tokenRe.ReplaceAllString(err.Error(), "bot<redacted>")
}
