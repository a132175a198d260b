// Package httpfetch downloads remote assets over HTTP with a size cap.
package httpfetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/forPelevin/promptcut/internal/logging"
	"github.com/forPelevin/promptcut/internal/urlpolicy"
)

const (
	DefaultMaxBytes = 200 << 20
	defaultTimeout  = 2 * time.Minute
	userAgent       = "promptcut/1"
)

// ErrTooLarge is returned when a body exceeds the configured limit.
var ErrTooLarge = errors.New("response exceeds size limit")

type Fetcher struct {
	client   *http.Client
	maxBytes int64
	policy   urlpolicy.Policy
	log      *slog.Logger
}

func New(timeout time.Duration, maxBytes int64, log *slog.Logger) *Fetcher {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	log = logging.OrDiscard(log)
	return &Fetcher{
		client:   &http.Client{Timeout: timeout},
		maxBytes: maxBytes,
		policy:   urlpolicy.Web("asset url"),
		log:      log,
	}
}

// Fetch streams the body of rawURL into w. Only http and https without
// userinfo are allowed and any non-2xx status is an error.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string, w io.Writer) error {
	u, err := f.policy.Check(rawURL)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", userAgent)

	started := time.Now()
	resp, err := f.client.Do(req)
	if err != nil {
		return fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("http status %d", resp.StatusCode)
	}
	if resp.ContentLength > f.maxBytes {
		return fmt.Errorf("%w: %d bytes", ErrTooLarge, resp.ContentLength)
	}

	n, err := io.Copy(w, io.LimitReader(resp.Body, f.maxBytes+1))
	if err != nil {
		return fmt.Errorf("read body: %w", err)
	}
	if n > f.maxBytes {
		return fmt.Errorf("%w: more than %d bytes", ErrTooLarge, f.maxBytes)
	}
	f.log.Debug("fetched", "host", u.Host, "bytes", n, "elapsed", time.Since(started).Round(time.Millisecond))
	return nil
}
