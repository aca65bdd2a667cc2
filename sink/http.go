package sink

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"framelog/collector"
)

// HTTPSink POSTs each snapshot as JSON.
type HTTPSink struct {
	URL       string
	HTTP      *http.Client // injected for testability
	Creds     Credentials
	UserAgent string
}

// NewHTTP returns a sink posting to rawURL. With insecure set the server
// certificate is not verified.
func NewHTTP(rawURL string, creds Credentials, insecure bool, timeout time.Duration) (*HTTPSink, error) {
	if _, err := url.ParseRequestURI(rawURL); err != nil {
		return nil, fmt.Errorf("invalid sink url: %w", err)
	}

	client := &http.Client{Timeout: timeout}
	if insecure {
		tr := http.DefaultTransport.(*http.Transport).Clone()
		tr.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // opt-in via --insecure
		client.Transport = tr
	}

	return &HTTPSink{
		URL:       rawURL,
		HTTP:      client,
		Creds:     creds,
		UserAgent: "framelog/0.1",
	}, nil
}

func (h *HTTPSink) Write(ctx context.Context, snap *collector.MetricsSnapshot) error {
	body, err := encodeSnapshot(snap)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if h.UserAgent != "" {
		req.Header.Set("User-Agent", h.UserAgent)
	}
	if !h.Creds.Empty() {
		req.SetBasicAuth(h.Creds.User, h.Creds.Password)
	}

	resp, err := h.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("http do: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("%w: %s returned %d: %s", ErrSinkDelivery, h.URL, resp.StatusCode, bytes.TrimSpace(b))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

func (h *HTTPSink) Close() error {
	h.HTTP.CloseIdleConnections()
	return nil
}

func (h *HTTPSink) String() string {
	if u, err := url.Parse(h.URL); err == nil {
		return u.Redacted()
	}
	return h.URL
}
