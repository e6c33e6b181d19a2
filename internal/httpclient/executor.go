package httpclient

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/Checker-Finance/assetcache/internal/rate"
)

// Backoff returns the retry sleep duration for the given attempt number.
func Backoff(attempt int) time.Duration {
	switch attempt {
	case 0:
		return 100 * time.Millisecond
	case 1:
		return 250 * time.Millisecond
	default:
		return 500 * time.Millisecond
	}
}

// StatusError is returned for non-retryable (4xx) responses when no custom
// error handler is installed.
type StatusError struct {
	Tag    string
	Status int
	Body   []byte
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s returned %d", e.Tag, e.Status)
}

// Options configures an Executor.
type Options struct {
	RetryMax int
	Tag      string // log prefix and error tag, e.g. "coincap"
	// ErrorHandler turns a 4xx response into an upstream-specific error.
	ErrorHandler func(status int, body []byte) error
	// Backoff overrides the default retry schedule.
	Backoff func(attempt int) time.Duration
}

// Executor handles rate-limited, retrying HTTP execution with JSON decoding.
type Executor struct {
	logger  *zap.Logger
	rateMgr *rate.Manager
	http    *http.Client
	opts    Options
}

// New creates an Executor. rateMgr may be nil to disable rate limiting.
func New(logger *zap.Logger, rateMgr *rate.Manager, httpClient *http.Client, opts Options) *Executor {
	if logger == nil {
		logger = zap.NewNop()
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if opts.Backoff == nil {
		opts.Backoff = Backoff
	}
	if opts.Tag == "" {
		opts.Tag = "http"
	}
	return &Executor{
		logger:  logger,
		rateMgr: rateMgr,
		http:    httpClient,
		opts:    opts,
	}
}

// DoJSON executes req with rate limiting and retries, then JSON-decodes the
// response into out. Transport errors and 5xx responses are retried up to
// RetryMax times; 4xx responses are returned immediately.
func (e *Executor) DoJSON(ctx context.Context, req *http.Request, rateLimitKey string, out any) error {
	if e.rateMgr != nil {
		if err := e.rateMgr.Wait(ctx, rateLimitKey); err != nil {
			return fmt.Errorf("rate limit wait: %w", err)
		}
	}

	var lastErr error
	for attempt := 0; attempt <= e.opts.RetryMax; attempt++ {
		if attempt > 0 {
			if err := sleep(ctx, e.opts.Backoff(attempt-1)); err != nil {
				return fmt.Errorf("%s request canceled: %w", e.opts.Tag, err)
			}
		}

		attemptReq, err := rewind(req)
		if err != nil {
			return err
		}

		start := time.Now()
		status, body, err := e.roundTrip(attemptReq)
		elapsed := time.Since(start)
		if err != nil {
			lastErr = err
			e.logger.Warn(e.opts.Tag+".http_failed",
				zap.String("url", req.URL.String()),
				zap.Error(err),
				zap.Int("attempt", attempt))
			if ctx.Err() != nil {
				break
			}
			continue
		}

		if status >= 500 {
			e.logger.Warn(e.opts.Tag+".server_error",
				zap.Int("status", status),
				zap.String("url", req.URL.String()),
				zap.Duration("latency", elapsed))
			lastErr = fmt.Errorf("%s server error: %d", e.opts.Tag, status)
			continue
		}

		if status >= 400 {
			if e.opts.ErrorHandler != nil {
				return e.opts.ErrorHandler(status, body)
			}
			return &StatusError{Tag: e.opts.Tag, Status: status, Body: body}
		}

		if out != nil && len(body) > 0 {
			if err := json.Unmarshal(body, out); err != nil {
				e.logger.Warn(e.opts.Tag+".decode_failed",
					zap.Error(err),
					zap.String("url", req.URL.String()))
				return fmt.Errorf("decode failed: %w", err)
			}
		}

		e.logger.Debug(e.opts.Tag+".http_success",
			zap.String("url", req.URL.String()),
			zap.Int("status", status),
			zap.Duration("elapsed", elapsed))
		return nil
	}

	return fmt.Errorf("%s request failed after %d attempts: %w", e.opts.Tag, e.opts.RetryMax, lastErr)
}

func (e *Executor) roundTrip(req *http.Request) (int, []byte, error) {
	resp, err := e.http.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, fmt.Errorf("read body: %w", err)
	}
	return resp.StatusCode, body, nil
}

// rewind returns a request whose body can be sent again.
func rewind(req *http.Request) (*http.Request, error) {
	if req.Body == nil || req.GetBody == nil {
		return req, nil
	}
	body, err := req.GetBody()
	if err != nil {
		return nil, fmt.Errorf("rewind body: %w", err)
	}
	clone := req.Clone(req.Context())
	clone.Body = body
	return clone, nil
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
