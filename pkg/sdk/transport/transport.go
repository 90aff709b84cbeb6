// Package transport delivers records to the ingestion API with bounded,
// exponentially backed-off retries.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/Thegreatsura/better-analytics-sub000/pkg/config"
)

// Endpoint is an ingestion API path relative to the API URL.
type Endpoint string

const (
	EndpointIngest Endpoint = "ingest"
	EndpointLog    Endpoint = "log"
)

// Result is the response shape of the ingestion API.
type Result struct {
	Success bool   `json:"success"`
	ID      string `json:"id,omitempty"`
	Message string `json:"message,omitempty"`
}

var (
	// ErrDisabled is returned when no client id is configured.
	ErrDisabled = errors.New("SDK is disabled")

	// ErrRejected is returned when the API answered 2xx with success:false.
	ErrRejected = errors.New("payload rejected")

	// ErrInvalidPayload is returned when the payload does not encode to a
	// JSON object.
	ErrInvalidPayload = errors.New("payload must encode to a JSON object")
)

// DisabledResult is returned by every send on a disabled client.
var DisabledResult = Result{Success: false, Message: ErrDisabled.Error()}

// Transport sends one payload to one endpoint.
type Transport interface {
	Send(ctx context.Context, endpoint Endpoint, payload any) (Result, error)
}

// Config holds the delivery settings.
type Config struct {
	APIURL      string
	ClientID    string
	AccessToken string

	// MaxRetries is the number of retries after the first attempt.
	MaxRetries int
	// RetryDelay is the wait before the first retry; each later wait doubles.
	RetryDelay time.Duration
	// Timeout bounds a single attempt.
	Timeout time.Duration

	HTTPClient *http.Client
	Logger     *zap.Logger
}

// HTTPTransport implements Transport over HTTP.
type HTTPTransport struct {
	baseURL     string
	clientID    string
	accessToken string
	maxRetries  int
	retryDelay  time.Duration
	timeout     time.Duration

	client *http.Client
	logger *zap.Logger

	// newTimer supplies the backoff timer. nil uses a real timer.
	newTimer func() backoff.Timer
}

// NewHTTP creates a new HTTP transport.
func NewHTTP(cfg Config) (*HTTPTransport, error) {
	u, err := url.Parse(cfg.APIURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid api url %q", cfg.APIURL)
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = config.DefaultRetryDelay
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = config.DefaultSendTimeout
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{}
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	return &HTTPTransport{
		baseURL:     strings.TrimRight(cfg.APIURL, "/"),
		clientID:    cfg.ClientID,
		accessToken: cfg.AccessToken,
		maxRetries:  cfg.MaxRetries,
		retryDelay:  cfg.RetryDelay,
		timeout:     cfg.Timeout,
		client:      cfg.HTTPClient,
		logger:      cfg.Logger,
	}, nil
}

// Send posts payload to endpoint, retrying network failures and non-2xx
// responses up to MaxRetries times. The error of the last attempt is
// returned once retries are exhausted. Nothing is queued for later.
func (t *HTTPTransport) Send(ctx context.Context, endpoint Endpoint, payload any) (Result, error) {
	if t.clientID == "" {
		return DisabledResult, ErrDisabled
	}

	body, err := t.encode(payload)
	if err != nil {
		return Result{Message: err.Error()}, err
	}
	target := t.baseURL + "/" + string(endpoint)

	var (
		result   Result
		attempts int
	)
	operation := func() error {
		attempts++
		res, err := t.attempt(ctx, target, body)
		if err != nil {
			return err
		}
		result = res
		return nil
	}
	notify := func(err error, delay time.Duration) {
		t.logger.Debug("delivery attempt failed, retrying",
			zap.String("endpoint", string(endpoint)),
			zap.Int("attempt", attempts),
			zap.Duration("delay", delay),
			zap.Error(err),
		)
	}

	var timer backoff.Timer
	if t.newTimer != nil {
		timer = t.newTimer()
	}
	if err := backoff.RetryNotifyWithTimer(operation, t.backoff(ctx), notify, timer); err != nil {
		t.logger.Debug("delivery failed",
			zap.String("endpoint", string(endpoint)),
			zap.Int("attempts", attempts),
			zap.Error(err),
		)
		return Result{Message: err.Error()}, err
	}
	return result, nil
}

// backoff yields RetryDelay * 2^n before retry n, MaxRetries times.
func (t *HTTPTransport) backoff(ctx context.Context) backoff.BackOff {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = t.retryDelay
	exp.Multiplier = 2
	exp.RandomizationFactor = 0
	exp.MaxInterval = time.Duration(math.MaxInt64)
	exp.MaxElapsedTime = 0

	return backoff.WithContext(backoff.WithMaxRetries(exp, uint64(t.maxRetries)), ctx)
}

// encode marshals payload and sets client_id on the resulting object.
func (t *HTTPTransport) encode(payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil || fields == nil {
		return nil, ErrInvalidPayload
	}
	id, _ := json.Marshal(t.clientID)
	fields["client_id"] = id

	return json.Marshal(fields)
}

// attempt performs one request under its own timeout.
func (t *HTTPTransport) attempt(ctx context.Context, target string, body []byte) (Result, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(body))
	if err != nil {
		return Result{}, backoff.Permanent(fmt.Errorf("failed to create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	if t.accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+t.accessToken)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	reply := decodeReply(data)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if reply.Message != "" {
			return Result{}, fmt.Errorf("request failed with status %d: %s", resp.StatusCode, reply.Message)
		}
		return Result{}, fmt.Errorf("request failed with status %d", resp.StatusCode)
	}
	if reply.Success != nil && !*reply.Success {
		return Result{}, backoff.Permanent(fmt.Errorf("%w: %s", ErrRejected, reply.Message))
	}
	return Result{Success: true, ID: reply.ID, Message: reply.Message}, nil
}

type reply struct {
	Success *bool  `json:"success"`
	ID      string `json:"id"`
	Message string `json:"message"`
}

// decodeReply tolerates empty and non-JSON bodies.
func decodeReply(data []byte) reply {
	var r reply
	if len(bytes.TrimSpace(data)) == 0 {
		return r
	}
	_ = json.Unmarshal(data, &r)
	return r
}
