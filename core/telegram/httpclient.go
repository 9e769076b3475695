package telegram

import (
	"errors"
	"net"
	"net/http"
	"time"

)

// HTTPOptions tune the client used for Bot API calls.
type HTTPOptions struct {
	// LongPollTimeout is added to the request timeout so getUpdates is not cut short.
	LongPollTimeout time.Duration
	Retries         int
	RetryBackoff    time.Duration
}

// NewHTTPClient returns a client for the Bot API that retries requests which
// never reached Telegram. Anything later is left to the caller, since every
// Bot API call is a POST and a repeated sendMessage is a duplicate message.
func NewHTTPClient(opts HTTPOptions) *http.Client {
	if opts.Retries <= 0 {
		opts.Retries = 3
	}
	if opts.RetryBackoff <= 0 {
		opts.RetryBackoff = 2 * time.Second
	}
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: 5 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       30 * time.Second,
		TLSHandshakeTimeout:   5 * time.Second,
		ExpectContinueTimeout: time.Second,
	}
	return &http.Client{
		Timeout:   30*time.Second + opts.LongPollTimeout,
		Transport: &retryTransport{base: transport, retries: opts.Retries, backoff: opts.RetryBackoff},
	}
}

type retryTransport struct {
	base    http.RoundTripper
	retries int
	backoff time.Duration
}

func (t *retryTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := t.base.RoundTrip(req)
	for attempt := 1; err != nil && attempt <= t.retries; attempt++ {
		if !notSent(err) {
			return nil, err
		}
		if req.Body != nil && req.GetBody == nil {
			return nil, err
		}
		timer := time.NewTimer(t.backoff * time.Duration(attempt))
		select {
		case <-req.Context().Done():
			timer.Stop()
			return nil, req.Context().Err()
		case <-timer.C:
		}

		next := req.Clone(req.Context())
		if req.GetBody != nil {
			if next.Body, err = req.GetBody(); err != nil {
				return nil, err
			}
		}
		resp, err = t.base.RoundTrip(next)
	}
	return resp, err
}

// notSent reports whether err happened before the request left the host.
func notSent(err error) bool {
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}
	var opErr *net.OpError
	return errors.As(err, &opErr) && opErr.Op == "dial"
}
