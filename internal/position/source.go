// Package position consumes the external position source: a sidecar that
// answers one-shot fix requests and supports continuous observation.
package position

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"
)

var (
	ErrPermissionDenied = errors.New("position: permission denied")
	ErrUnavailable      = errors.New("position: source unavailable")
	ErrTimedOut         = errors.New("position: request timed out")
)

// Fix is one geographic fix as delivered by the source.
type Fix struct {
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	Accuracy  float64   `json:"accuracy"`
	Time      time.Time `json:"time"`
}

// Source yields geographic fixes. Watch delivers fixes on the returned
// channel until the context is cancelled; the channel is closed on exit.
type Source interface {
	Current(ctx context.Context) (Fix, error)
	Watch(ctx context.Context) (<-chan Fix, error)
}

// HTTPSource reads fixes from a location daemon over HTTP. Watch is
// implemented by polling, which matches the last-fix-wins slot the recorder
// keeps: intermediate fixes carry no extra information.
type HTTPSource struct {
	baseURL      string
	pollInterval time.Duration
	client       *http.Client
}

func NewHTTPSource(baseURL string, timeout, pollInterval time.Duration) *HTTPSource {
	return &HTTPSource{
		baseURL:      baseURL,
		pollInterval: pollInterval,
		client:       &http.Client{Timeout: timeout},
	}
}

func (s *HTTPSource) Current(ctx context.Context) (Fix, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/fix", nil)
	if err != nil {
		return Fix{}, fmt.Errorf("position: build request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || isClientTimeout(err) {
			return Fix{}, ErrTimedOut
		}
		return Fix{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusForbidden, http.StatusUnauthorized:
		return Fix{}, ErrPermissionDenied
	default:
		return Fix{}, fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}

	var fix Fix
	if err := json.NewDecoder(resp.Body).Decode(&fix); err != nil {
		return Fix{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if fix.Time.IsZero() {
		fix.Time = time.Now()
	}
	return fix, nil
}

func (s *HTTPSource) Watch(ctx context.Context) (<-chan Fix, error) {
	// Probe once up front so a denied subscription fails immediately
	// instead of producing a silent, empty channel.
	first, err := s.Current(ctx)
	if err != nil {
		return nil, err
	}

	out := make(chan Fix, 1)
	go func() {
		defer close(out)
		deliver(out, first)

		ticker := time.NewTicker(s.pollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				fix, err := s.Current(ctx)
				if err != nil {
					continue
				}
				deliver(out, fix)
			}
		}
	}()
	return out, nil
}

// deliver replaces a pending fix rather than blocking: the consumer only
// ever wants the latest one.
func deliver(out chan Fix, fix Fix) {
	for {
		select {
		case out <- fix:
			return
		default:
			select {
			case <-out:
			default:
			}
		}
	}
}

func isClientTimeout(err error) bool {
	var t interface{ Timeout() bool }
	return errors.As(err, &t) && t.Timeout()
}
