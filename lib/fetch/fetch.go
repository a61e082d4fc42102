package fetch

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/go-resty/resty/v2"
)

// Fetcher issues GET requests with a fixed pre-request delay and a
// bounded retry policy. The delay runs before every attempt, including
// the first: it is the rate limit that keeps the remote catalog from
// throttling the client, not an optimization knob.
type Fetcher struct {
	Http       *resty.Client
	Delay      time.Duration
	MaxRetries int

	// Sleep is swappable so tests can run with a fake clock.
	Sleep func(ctx context.Context, d time.Duration) error
}

func New(client *resty.Client, delay time.Duration, maxRetries int) Fetcher {
	return Fetcher{
		Http:       client,
		Delay:      delay,
		MaxRetries: maxRetries,
		Sleep:      SleepContext,
	}
}

func SleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Get requests `path` relative to the client's base url (or an absolute
// url), retrying up to MaxRetries additional times on transport errors
// and non-2xx statuses. The wait between retries scales linearly with
// the attempt number.
func (f Fetcher) Get(ctx context.Context, path string, query url.Values) (*resty.Response, error) {
	var lastErr error

	for attempt := 0; attempt <= f.MaxRetries; attempt++ {
		wait := f.Delay * time.Duration(attempt)
		if attempt == 0 {
			wait = f.Delay
		}
		if err := f.Sleep(ctx, wait); err != nil {
			return nil, err
		}

		req := f.Http.R().SetContext(ctx)
		if query != nil {
			req.SetQueryParamsFromValues(query)
		}
		res, err := req.Get(path)
		if err != nil {
			lastErr = err
			slog.DebugContext(
				ctx, "fetch attempt failed",
				"url", path,
				"attempt", attempt+1,
				"max_attempts", f.MaxRetries+1,
				"err", err,
			)
			continue
		}
		if res.IsError() {
			lastErr = fmt.Errorf("unexpected status %d for %s", res.StatusCode(), path)
			slog.DebugContext(
				ctx, "fetch attempt got error status",
				"url", path,
				"attempt", attempt+1,
				"max_attempts", f.MaxRetries+1,
				"status", res.StatusCode(),
			)
			continue
		}
		return res, nil
	}

	return nil, fmt.Errorf("fetch %s: retries exhausted: %w", path, lastErr)
}
