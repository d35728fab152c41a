package httpclient

import (
	"net"
	"net/http"
	"time"
)

// NewDefaultClient returns an HTTP client tuned for outbound service calls.
// Timeouts bound every phase so a hung provider never wedges a dispatch or
// polling worker.
func NewDefaultClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			DialContext: (&net.Dialer{
				Timeout:   10 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			MaxIdleConns:          20,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   10 * time.Second,
			ResponseHeaderTimeout: timeout,
		},
	}
}
