// Package probe measures network throughput with one bounded-time transfer
// per invocation.
package probe

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/AnthonyJS/SignalStrength/internal/journey"
)

// Result is the outcome of one probe invocation. Mbps nil means the
// transfer could not be measured; that is an outcome, not an error, and it
// always comes with the disconnected transport class.
type Result struct {
	Mbps      *float64
	Transport journey.Transport
}

// Prober performs one throughput measurement.
type Prober interface {
	Measure(ctx context.Context) Result
}

// HTTPProber downloads a test payload and derives the rate from bytes over
// wall time. The transport class is the configured hint for the medium the
// device is on; the probe itself only distinguishes reachable from not.
type HTTPProber struct {
	url       string
	transport journey.Transport
	client    *http.Client
}

func NewHTTPProber(url string, timeout time.Duration, transport journey.Transport) *HTTPProber {
	if transport == "" {
		transport = journey.TransportUnknown
	}
	return &HTTPProber{
		url:       url,
		transport: transport,
		client:    &http.Client{Timeout: timeout},
	}
}

func (p *HTTPProber) Measure(ctx context.Context) Result {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url, nil)
	if err != nil {
		return unmeasurable()
	}

	start := time.Now()
	resp, err := p.client.Do(req)
	if err != nil {
		return unmeasurable()
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return unmeasurable()
	}

	// A timeout mid-body still counts whatever arrived; a transfer that
	// moved no bytes is unmeasurable, not zero.
	n, _ := io.Copy(io.Discard, resp.Body)
	elapsed := time.Since(start).Seconds()
	if n <= 0 || elapsed <= 0 {
		return unmeasurable()
	}

	mbps := float64(n) * 8 / 1e6 / elapsed
	return Result{Mbps: &mbps, Transport: p.transport}
}

func unmeasurable() Result {
	return Result{Transport: journey.TransportDisconnected}
}
