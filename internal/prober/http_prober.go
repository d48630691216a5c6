package prober

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"PingTower/internal/scheduler/models"
)

type Config struct {
	RetryAttempts  int
	RetryBaseDelay time.Duration
	RetryMaxDelay  time.Duration
	DefaultTimeout time.Duration
	UserAgent      string
	MaxRedirects   int

	// Transport overrides the default transport; used by tests.
	Transport http.RoundTripper
}

// HTTPProber executes HTTP checks with retry and exponential backoff.
type HTTPProber struct {
	client *http.Client
	config Config
	log    *slog.Logger
}

func NewHTTPProber(cfg Config, log *slog.Logger) *HTTPProber {
	if cfg.RetryAttempts < 0 {
		cfg.RetryAttempts = 0
	}
	if cfg.RetryBaseDelay <= 0 {
		cfg.RetryBaseDelay = 500 * time.Millisecond
	}
	if cfg.RetryMaxDelay <= 0 {
		cfg.RetryMaxDelay = 5 * time.Second
	}
	if cfg.DefaultTimeout <= 0 {
		cfg.DefaultTimeout = 10 * time.Second
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "PingTower-Scheduler/1.0"
	}
	if cfg.MaxRedirects <= 0 {
		cfg.MaxRedirects = 10
	}

	transport := cfg.Transport
	if transport == nil {
		transport = &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			TLSClientConfig: &tls.Config{
				MinVersion: tls.VersionTLS12,
			},
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
			TLSHandshakeTimeout: 10 * time.Second,
		}
	}

	maxRedirects := cfg.MaxRedirects
	return &HTTPProber{
		client: &http.Client{
			Transport: transport,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= maxRedirects {
					return fmt.Errorf("too many redirects")
				}
				return nil
			},
		},
		config: cfg,
		log:    log,
	}
}

// Probe runs the check described by req and never returns an error: every
// failure is folded into the outcome status.
func (p *HTTPProber) Probe(ctx context.Context, req models.ProbeRequest) models.Outcome {
	if _, err := url.ParseRequestURI(req.URL); err != nil {
		return models.Outcome{
			Status:       models.StatusError,
			ErrorMessage: fmt.Sprintf("Invalid URL: %s", req.URL),
			CheckedAt:    time.Now(),
		}
	}

	timeout := req.Timeout
	if timeout <= 0 {
		timeout = p.config.DefaultTimeout
	}

	var (
		outcome models.Outcome
		kind    failureKind
	)

	for attempt := 0; ; attempt++ {
		outcome, kind = p.attempt(ctx, req, timeout)

		retry := kind.retryable() || (kind == failureNone && retryableCode(outcome.Code()))
		if !retry || attempt >= p.config.RetryAttempts {
			break
		}

		delay := p.backoff(attempt)
		p.log.Debug("retrying probe",
			"url", req.URL,
			"attempt", attempt+1,
			"status", outcome.Status,
			"delay", delay,
		)

		select {
		case <-ctx.Done():
			return outcome
		case <-time.After(delay):
		}
	}

	return outcome
}

func (p *HTTPProber) attempt(ctx context.Context, req models.ProbeRequest, timeout time.Duration) (models.Outcome, failureKind) {
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	httpReq, err := buildRequest(attemptCtx, req)
	if err != nil {
		return models.Outcome{
			Status:       models.StatusError,
			ErrorMessage: fmt.Sprintf("Invalid request: %s", err),
			CheckedAt:    time.Now(),
		}, failureInvalidRequest
	}

	if httpReq.Header.Get("User-Agent") == "" {
		httpReq.Header.Set("User-Agent", p.config.UserAgent)
	}

	start := time.Now()
	resp, err := p.client.Do(httpReq)
	elapsed := time.Since(start).Milliseconds()

	if err != nil {
		status, message, kind := classifyError(err)
		if kind == failureCancelled && ctx.Err() == nil {
			// attempt context only; treat as unexpected
			kind = failureUnexpected
		}
		return models.Outcome{
			Status:         status,
			ResponseTimeMs: elapsed,
			ErrorMessage:   message,
			CheckedAt:      start,
		}, kind
	}
	defer resp.Body.Close()

	// drain a bounded amount so the connection can be reused
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	outcome := models.Outcome{
		Status:         statusForCode(resp.StatusCode),
		ResponseCode:   models.IntPtr(resp.StatusCode),
		ResponseTimeMs: elapsed,
		Metadata:       collectMetadata(resp),
		CheckedAt:      start,
	}
	if outcome.Status != models.StatusUp {
		outcome.ErrorMessage = fmt.Sprintf("HTTP %d", resp.StatusCode)
	}

	return outcome, failureNone
}

// backoff returns base * 2^attempt capped at the configured maximum.
func (p *HTTPProber) backoff(attempt int) time.Duration {
	delay := p.config.RetryBaseDelay << attempt
	if delay <= 0 || delay > p.config.RetryMaxDelay {
		return p.config.RetryMaxDelay
	}
	return delay
}

func collectMetadata(resp *http.Response) map[string]string {
	meta := make(map[string]string, 2)
	if v := resp.Header.Get("Content-Type"); v != "" {
		meta["content_type"] = v
	}
	if v := resp.Header.Get("Server"); v != "" {
		meta["server"] = v
	}
	return meta
}
