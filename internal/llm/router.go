package llm

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
)

var (
	// routerAttempts counts generation attempts by backend and outcome.
	routerAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "llm_router_attempts_total",
			Help: "Total number of LLM backend attempts.",
		},
		[]string{"backend", "outcome"}, // outcome: ok|retryable|fatal
	)

	// routerLatency records successful attempt duration per backend.
	routerLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "llm_router_attempt_duration_seconds",
			Help:    "Duration of successful LLM backend attempts in seconds.",
			Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"backend"},
	)
)

func init() {
	prometheus.MustRegister(routerAttempts, routerLatency)
}

// RouterConfig bounds the retry behavior of a Router.
type RouterConfig struct {
	// MaxRetries is the number of retry rounds across the whole chain.
	// Zero or negative is coerced to 3.
	MaxRetries int
	// BackoffBase is the delay before round n+1, doubled per round.
	// Zero or negative is coerced to 1s.
	BackoffBase time.Duration
}

// Router fans a request over an ordered backend chain with bounded retry.
// It is safe for concurrent use; backends are fixed at construction.
type Router struct {
	backends    []Backend
	maxRetries  int
	backoffBase time.Duration

	// sleep is replaced in tests to avoid real backoff delays.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewRouter builds a router over backends in priority order (first is the
// primary). At least one backend is required.
func NewRouter(cfg RouterConfig, backends ...Backend) (*Router, error) {
	if len(backends) == 0 {
		return nil, errors.New("llm: router needs at least one backend")
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = time.Second
	}
	return &Router{
		backends:    backends,
		maxRetries:  cfg.MaxRetries,
		backoffBase: cfg.BackoffBase,
		sleep:       sleepCtx,
	}, nil
}

// Route sends the request through the backend chain.
//
// Within a round the backends are tried in order; the first success wins and
// its content is cleaned before returning. A fatal classification still
// allows the remaining backends of the round a chance, but forbids another
// round. When a round ends with only retryable failures the router backs off
// (base * 2^round) and starts again, up to the configured bound. The
// terminal error always reports Retryable=false: retries are spent.
func (r *Router) Route(ctx context.Context, req Request) (*Response, error) {
	var lastErr error

	for round := 0; round < r.maxRetries; round++ {
		roundFatal := false

		for _, b := range r.backends {
			resp, err := b.Generate(ctx, req)
			if err == nil {
				routerAttempts.WithLabelValues(b.Name(), "ok").Inc()
				routerLatency.WithLabelValues(b.Name()).Observe(resp.Latency.Seconds())
				resp.Content = CleanContent(resp.Content)
				return resp, nil
			}

			lastErr = err
			if retryable(err) {
				routerAttempts.WithLabelValues(b.Name(), "retryable").Inc()
			} else {
				routerAttempts.WithLabelValues(b.Name(), "fatal").Inc()
				roundFatal = true
			}
			log.Warn().
				Err(err).
				Str("backend", b.Name()).
				Int("round", round).
				Msg("llm backend attempt failed")

			if ctx.Err() != nil {
				return nil, terminal(lastErr)
			}
		}

		if roundFatal {
			break
		}
		if round < r.maxRetries-1 {
			if err := r.sleep(ctx, r.backoffBase*(1<<round)); err != nil {
				break
			}
		}
	}

	return nil, terminal(lastErr)
}

// HealthCheck probes every backend with a synthetic round-trip and reports
// healthy per backend name. It never returns an error: an unreachable
// backend is simply unhealthy.
func (r *Router) HealthCheck(ctx context.Context) map[string]bool {
	out := make(map[string]bool, len(r.backends))
	for _, b := range r.backends {
		out[b.Name()] = b.Health(ctx) == nil
	}
	return out
}

// terminal wraps the last underlying cause into the exhausted-retries error.
func terminal(last error) error {
	provider := "llm"
	var le *Error
	if errors.As(last, &le) {
		provider = le.Provider
	}
	msg := "all backends failed"
	if last != nil {
		msg = fmt.Sprintf("all backends failed, last error: %v", last)
	}
	return &Error{Provider: provider, Message: msg, Retryable: false, Cause: last}
}

// retryable reports the classification of a backend error. Unclassified
// errors default to retryable so a flaky backend cannot poison the chain.
func retryable(err error) bool {
	var le *Error
	if errors.As(err, &le) {
		return le.Retryable
	}
	return true
}

// sleepCtx waits d or until ctx is done, whichever comes first.
func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Reasoning markup emitted by models that think out loud. Both the closed
// pair and a dangling open tag are stripped.
var (
	thinkBlockRE = regexp.MustCompile(`(?s)<think>.*?</think>`)
	thinkOpenRE  = regexp.MustCompile(`(?s)<think>.*$`)
	blankLinesRE = regexp.MustCompile(`\n\s*\n`)
)

// CleanContent removes chain-of-thought markup and squeezes the remaining
// whitespace so callers never see the model's internal reasoning.
func CleanContent(s string) string {
	if s == "" {
		return ""
	}
	// Prefer whatever follows the last closed reasoning block.
	if i := strings.LastIndex(s, "</think>"); i >= 0 {
		if after := strings.TrimSpace(s[i+len("</think>"):]); after != "" {
			return trimQuotes(after)
		}
	}
	s = thinkBlockRE.ReplaceAllString(s, "")
	s = thinkOpenRE.ReplaceAllString(s, "")
	s = blankLinesRE.ReplaceAllString(s, "\n")
	return trimQuotes(strings.TrimSpace(s))
}

// trimQuotes drops one pair of surrounding quotes, which chat models love
// to add around single-sentence answers.
func trimQuotes(s string) string {
	if len(s) >= 2 {
		if (s[0] == '"' && s[len(s)-1] == '"') || (s[0] == '\'' && s[len(s)-1] == '\'') {
			return strings.TrimSpace(s[1 : len(s)-1])
		}
	}
	return s
}
