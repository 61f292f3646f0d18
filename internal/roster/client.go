// Package roster is the REST client for the roster backend.
package roster

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"
	"golang.org/x/oauth2"

	"github.com/Tiliavir/rosterctl/internal/logging"
	"github.com/Tiliavir/rosterctl/internal/metrics"
	"github.com/Tiliavir/rosterctl/internal/model"
)

const breakerName = "roster-api"

// ActorHeader carries the session id of the client making a change so the
// backend can echo it on the live channel.
const ActorHeader = "X-Actor-ID"

// Client is an authenticated roster API client.
type Client struct {
	baseURL    string
	httpClient *http.Client
	cb         *gobreaker.CircuitBreaker[[]byte]
}

// NewClient creates a client that sends requests through httpClient.
func NewClient(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	metrics.CircuitBreakerState.WithLabelValues(breakerName).Set(0)
	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: httpClient,
		cb:         newBreaker(),
	}
}

// NewAuthenticatedClient creates a client that authorises every request with
// tokens from ts.
func NewAuthenticatedClient(ctx context.Context, baseURL string, ts oauth2.TokenSource, timeout time.Duration) *Client {
	hc := oauth2.NewClient(ctx, ts)
	hc.Timeout = timeout
	return NewClient(baseURL, hc)
}

// newBreaker opens after 60% failures over at least 10 requests and probes
// again after 30 seconds.
func newBreaker() *gobreaker.CircuitBreaker[[]byte] {
	return gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:        breakerName,
		MaxRequests: 3,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < 10 {
				return false
			}
			ratio := float64(counts.TotalFailures) / float64(counts.Requests)
			return ratio >= 0.6
		},
		IsSuccessful: func(err error) bool {
			return err == nil || clientError(err) || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("circuit breaker state change")
			metrics.CircuitBreakerState.WithLabelValues(name).Set(stateValue(to))
		},
	})
}

func stateValue(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return 0
	}
}

// Hours fetches every weekly-hours entry of an officer.
func (c *Client) Hours(ctx context.Context, nif int) ([]model.HoursEntry, error) {
	var out []model.HoursEntry
	path := fmt.Sprintf("/officers/%d/activity/hours", nif)
	if err := c.getJSON(ctx, "hours", path, &out); err != nil {
		return nil, fmt.Errorf("fetching hours of officer %d: %w", nif, err)
	}
	return out, nil
}

// Justifications fetches every inactivity justification of an officer.
func (c *Client) Justifications(ctx context.Context, nif int) ([]model.JustificationEntry, error) {
	var out []model.JustificationEntry
	path := fmt.Sprintf("/officers/%d/activity/justifications", nif)
	if err := c.getJSON(ctx, "justifications", path, &out); err != nil {
		return nil, fmt.Errorf("fetching justifications of officer %d: %w", nif, err)
	}
	return out, nil
}

// Officer fetches an officer profile. Unknown officers yield an error
// matching ErrNotFound.
func (c *Client) Officer(ctx context.Context, nif int) (model.Officer, error) {
	var out model.Officer
	if err := c.getJSON(ctx, "officer", fmt.Sprintf("/officers/%d", nif), &out); err != nil {
		return model.Officer{}, fmt.Errorf("fetching officer %d: %w", nif, err)
	}
	return out, nil
}

// Patrol fetches a patrol session.
func (c *Client) Patrol(ctx context.Context, id int) (model.Patrol, error) {
	var out model.Patrol
	if err := c.getJSON(ctx, "patrol", fmt.Sprintf("/patrols/%d", id), &out); err != nil {
		return model.Patrol{}, fmt.Errorf("fetching patrol %d: %w", id, err)
	}
	return out, nil
}

// UpdatePatrol saves a patrol and returns the stored version. actor is sent
// in ActorHeader so the resulting live event can be recognised.
func (c *Client) UpdatePatrol(ctx context.Context, p model.Patrol, actor string) (model.Patrol, error) {
	payload, err := json.Marshal(p)
	if err != nil {
		return model.Patrol{}, fmt.Errorf("encoding patrol: %w", err)
	}
	body, err := c.do(ctx, "patrol_update", http.MethodPatch, fmt.Sprintf("/patrols/%d", p.ID), payload, actor)
	if err != nil {
		return model.Patrol{}, fmt.Errorf("saving patrol %d: %w", p.ID, err)
	}
	var out model.Patrol
	if len(bytes.TrimSpace(body)) == 0 {
		return p, nil
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return model.Patrol{}, fmt.Errorf("decoding patrol response: %w", err)
	}
	return out, nil
}

func (c *Client) getJSON(ctx context.Context, endpoint, path string, out any) error {
	body, err := c.do(ctx, endpoint, http.MethodGet, path, nil, "")
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decoding %s response: %w", endpoint, err)
	}
	return nil
}

// do performs one request through the circuit breaker and returns the body of
// a 2xx response.
func (c *Client) do(ctx context.Context, endpoint, method, path string, payload []byte, actor string) ([]byte, error) {
	start := time.Now()
	body, err := c.cb.Execute(func() ([]byte, error) {
		var reader io.Reader
		if payload != nil {
			reader = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
		if err != nil {
			return nil, fmt.Errorf("creating request: %w", err)
		}
		req.Header.Set("Accept", "application/json")
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		if actor != "" {
			req.Header.Set(ActorHeader, actor)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("roster API request failed: %w", err)
		}
		data, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("reading response body: %w", err)
		}
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return nil, decodeError(resp.StatusCode, data)
		}
		return data, nil
	})
	metrics.APIRequestDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())

	switch {
	case err == nil:
		metrics.APIRequests.WithLabelValues(endpoint, "success").Inc()
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		metrics.APIRequests.WithLabelValues(endpoint, "rejected").Inc()
	default:
		metrics.APIRequests.WithLabelValues(endpoint, "failure").Inc()
	}
	return body, err
}

func decodeError(status int, body []byte) error {
	var envelope struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil || envelope.Message == "" {
		envelope.Message = strings.TrimSpace(string(body))
	}
	return &APIError{Status: status, Message: envelope.Message}
}
