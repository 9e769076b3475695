package telegram

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"
)

type scriptedTransport struct {
	errs  []error
	calls int
	body  []string
}

func (s *scriptedTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	s.calls++
	if req.Body != nil {
		var b strings.Builder
		buf := make([]byte, 64)
		for {
			n, err := req.Body.Read(buf)
			b.Write(buf[:n])
			if err != nil {
				break
			}
		}
		s.body = append(s.body, b.String())
	}
	if len(s.errs) > 0 {
		err := s.errs[0]
		s.errs = s.errs[1:]
		if err != nil {
			return nil, err
		}
	}
	return &http.Response{StatusCode: http.StatusOK, Body: http.NoBody}, nil
}

func TestRetryTransportRetriesDialErrors(t *testing.T) {
	dial := &net.OpError{Op: "dial", Err: errors.New("connection refused")}
	base := &scriptedTransport{errs: []error{dial, dial}}
	rt := &retryTransport{base: base, retries: 3, backoff: time.Millisecond}

	req, _ := http.NewRequestWithContext(context.Background(), http.MethodPost, "https://api.telegram.org/botX/sendMessage", strings.NewReader("chat_id=1"))
	resp, err := rt.RoundTrip(req)
	if err != nil {
		t.Fatalf("round trip: %v", err)
	}
	resp.Body.Close()
	if base.calls != 3 {
		t.Fatalf("calls = %d", base.calls)
	}
	for _, b := range base.body {
		if b != "chat_id=1" {
			t.Fatalf("body not replayed: %q", base.body)
		}
	}
}

func TestRetryTransportStopsOnOtherErrors(t *testing.T) {
	base := &scriptedTransport{errs: []error{errors.New("tls: bad certificate")}}
	rt := &retryTransport{base: base, retries: 3, backoff: time.Millisecond}
	req, _ := http.NewRequest(http.MethodGet, "https://api.telegram.org/botX/getMe", nil)
	if _, err := rt.RoundTrip(req); err == nil || base.calls != 1 {
		t.Fatalf("err = %v calls = %d", err, base.calls)
	}
}

func TestRetryTransportDoesNotRepeatTimeouts(t *testing.T) {
	base := &scriptedTransport{errs: []error{context.DeadlineExceeded}}
	rt := &retryTransport{base: base, retries: 3, backoff: time.Millisecond}
	req, _ := http.NewRequest(http.MethodPost, "https://api.telegram.org/botX/sendMessage", strings.NewReader("chat_id=1"))
	if _, err := rt.RoundTrip(req); !errors.Is(err, context.DeadlineExceeded) || base.calls != 1 {
		t.Fatalf("err = %v calls = %d", err, base.calls)
	}
}

func TestNewHTTPClientCoversLongPoll(t *testing.T) {
	c := NewHTTPClient(HTTPOptions{LongPollTimeout: 50 * time.Second})
	if c.Timeout <= 50*time.Second {
		t.Fatalf("timeout %v does not cover the long poll", c.Timeout)
	}
}
