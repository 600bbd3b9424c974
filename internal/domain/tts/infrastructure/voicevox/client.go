package voicevox

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/sony/gobreaker"

	"mochimon-server-go/internal/platform/errors"
	"mochimon-server-go/internal/platform/logging"
)

const (
	DefaultBaseURL = "http://127.0.0.1:50021"
	defaultTimeout = 30 * time.Second
	maxErrorBody   = 512
)

// Config configures the VOICEVOX engine client.
type Config struct {
	BaseURL string
	Timeout time.Duration
	Breaker BreakerConfig
}

// BreakerConfig tunes the circuit breaker around engine calls.
type BreakerConfig struct {
	// ConsecutiveFailures opens the breaker; zero disables tripping.
	ConsecutiveFailures uint32
	// OpenTimeout is how long the breaker stays open before probing.
	OpenTimeout time.Duration
	// HalfOpenRequests is the number of probes allowed while half-open.
	HalfOpenRequests uint32
}

// StatusError is returned when the engine answers with a non-200 status.
type StatusError struct {
	Step       string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s returned %d: %s", e.Step, e.StatusCode, e.Body)
}

// Client performs the two-step audio_query + synthesis exchange.
type Client struct {
	baseURL    string
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker
	logger     *logging.Logger
}

// New builds a client. A nil logger disables logging.
func New(cfg Config, logger *logging.Logger) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		base = DefaultBaseURL
	}
	if _, err := url.ParseRequestURI(base); err != nil {
		return nil, errors.Wrap(errors.KindConfig, "voicevox.new", "invalid engine url", err)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	c := &Client{
		baseURL:    base,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
	c.breaker = gobreaker.NewCircuitBreaker(c.breakerSettings(cfg.Breaker))
	return c, nil
}

func (c *Client) breakerSettings(cfg BreakerConfig) gobreaker.Settings {
	openTimeout := cfg.OpenTimeout
	if openTimeout <= 0 {
		openTimeout = 30 * time.Second
	}
	halfOpen := cfg.HalfOpenRequests
	if halfOpen == 0 {
		halfOpen = 1
	}
	threshold := cfg.ConsecutiveFailures

	return gobreaker.Settings{
		Name:        "voicevox",
		MaxRequests: halfOpen,
		Timeout:     openTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return threshold > 0 && counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			c.logger.WarnTag("VOICEVOX", "circuit %s: %s -> %s", name, from, to)
		},
		IsSuccessful: func(err error) bool {
			// caller cancellations say nothing about engine health
			return err == nil || stderrors.Is(err, context.Canceled)
		},
	}
}

// Synthesize renders text with the given speaker and returns raw audio bytes.
func (c *Client) Synthesize(ctx context.Context, text string, speakerID int) ([]byte, error) {
	out, err := c.breaker.Execute(func() (interface{}, error) {
		query, err := c.audioQuery(ctx, text, speakerID)
		if err != nil {
			return nil, err
		}
		return c.synthesis(ctx, query, speakerID)
	})
	if stderrors.Is(err, gobreaker.ErrOpenState) || stderrors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, errors.Wrap(errors.KindSynthesis, "voicevox.synthesize", "synthesis engine unavailable", err)
	}
	if err != nil {
		return nil, err
	}
	return out.([]byte), nil
}

// State exposes the breaker state; reported under /health.
func (c *Client) State() string {
	return c.breaker.State().String()
}

func (c *Client) audioQuery(ctx context.Context, text string, speakerID int) ([]byte, error) {
	params := url.Values{}
	params.Set("speaker", strconv.Itoa(speakerID))
	params.Set("text", text)

	return c.post(ctx, "audio_query", c.baseURL+"/audio_query?"+params.Encode(), nil)
}

func (c *Client) synthesis(ctx context.Context, query []byte, speakerID int) ([]byte, error) {
	if !json.Valid(query) {
		return nil, errors.New(errors.KindSynthesis, "voicevox.audio_query", "engine returned malformed query")
	}
	params := url.Values{}
	params.Set("speaker", strconv.Itoa(speakerID))

	return c.post(ctx, "synthesis", c.baseURL+"/synthesis?"+params.Encode(), query)
}

func (c *Client) post(ctx context.Context, step, endpoint string, body []byte) ([]byte, error) {
	op := "voicevox." + step

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, reader)
	if err != nil {
		return nil, errors.Wrap(errors.KindSynthesis, op, "failed to build request", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.Wrap(errors.KindSynthesis, op, "engine request failed", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(errors.KindSynthesis, op, "failed to read engine response", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, errors.Wrap(errors.KindSynthesis, op, "engine rejected request", &StatusError{
			Step:       step,
			StatusCode: resp.StatusCode,
			Body:       truncate(string(data), maxErrorBody),
		})
	}

	c.logger.DebugTag("VOICEVOX", "%s ok in %s (%d bytes)", step, time.Since(start), len(data))
	return data, nil
}

// truncate cuts s to at most n bytes without splitting a UTF-8 sequence.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "..."
}
