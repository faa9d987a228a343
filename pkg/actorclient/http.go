package actorclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/brandbrain/compiler/pkg/version"
	"github.com/sony/gobreaker"
)

// HTTPConfig configures the HTTP-backed Client.
type HTTPConfig struct {
	BaseURL string
	Token   string

	// RequestTimeout bounds every individual HTTP request (start, a single
	// poll check, a single fetch page) — never the whole PollRun loop.
	RequestTimeout time.Duration

	Breaker gobreaker.Settings
}

// DefaultHTTPConfig returns sane defaults; BaseURL and Token must still be
// set by the caller.
func DefaultHTTPConfig() HTTPConfig {
	return HTTPConfig{
		RequestTimeout: 15 * time.Second,
		Breaker: gobreaker.Settings{
			Name:        "actorclient",
			MaxRequests: 2,
			Interval:    30 * time.Second,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
		},
	}
}

// httpClient is the production Client implementation: stdlib net/http with a
// per-call bounded deadline, wrapped in a circuit breaker so a sustained run
// of transport failures trips open instead of piling up serial timeouts
// across every worker polling the same degraded actor platform.
type httpClient struct {
	cfg     HTTPConfig
	http    *http.Client
	breaker *gobreaker.CircuitBreaker[*http.Response]
}

// NewHTTPClient constructs a Client that talks to the actor platform over
// HTTP.
func NewHTTPClient(cfg HTTPConfig) Client {
	return &httpClient{
		cfg:     cfg,
		http:    &http.Client{},
		breaker: gobreaker.NewCircuitBreaker[*http.Response](cfg.Breaker),
	}
}

func (c *httpClient) do(ctx context.Context, method, path string, body any) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request body: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	reqCtx, cancel := context.WithTimeout(ctx, c.cfg.RequestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, method, c.cfg.BaseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.Token)
	req.Header.Set("User-Agent", version.Full())
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.breaker.Execute(func() (*http.Response, error) {
		resp, err := c.http.Do(req)
		if err != nil {
			return nil, &TransportError{Method: method, Path: path, cause: err}
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			defer resp.Body.Close()
			respBody, _ := io.ReadAll(resp.Body)
			return nil, &StatusError{Method: method, Path: path, StatusCode: resp.StatusCode, Body: string(respBody)}
		}
		return resp, nil
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

type startRunResponse struct {
	RunID     string    `json:"run_id"`
	DatasetID string    `json:"dataset_id"`
	StartedAt time.Time `json:"started_at"`
	Status    RunStatus `json:"status"`
}

func (c *httpClient) StartRun(ctx context.Context, actorID string, input map[string]any) (StartResult, error) {
	resp, err := c.do(ctx, http.MethodPost, "/v1/actors/"+actorID+"/runs", map[string]any{"input": input})
	if err != nil {
		return StartResult{}, err
	}
	defer resp.Body.Close()

	var decoded startRunResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return StartResult{}, fmt.Errorf("decode start-run response: %w", err)
	}
	return StartResult{
		RunID:     decoded.RunID,
		DatasetID: decoded.DatasetID,
		StartedAt: decoded.StartedAt,
		Status:    decoded.Status,
	}, nil
}

type runInfoResponse struct {
	RunID      string     `json:"run_id"`
	DatasetID  string     `json:"dataset_id"`
	Status     RunStatus  `json:"status"`
	FinishedAt *time.Time `json:"finished_at"`
	ErrorText  string     `json:"error_text"`
}

func (c *httpClient) getRunInfo(ctx context.Context, runID string) (RunInfo, error) {
	resp, err := c.do(ctx, http.MethodGet, "/v1/runs/"+runID, nil)
	if err != nil {
		return RunInfo{}, err
	}
	defer resp.Body.Close()

	var decoded runInfoResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return RunInfo{}, fmt.Errorf("decode run-info response: %w", err)
	}
	return RunInfo{
		RunID:      decoded.RunID,
		DatasetID:  decoded.DatasetID,
		Status:     decoded.Status,
		FinishedAt: decoded.FinishedAt,
		ErrorText:  decoded.ErrorText,
	}, nil
}

// PollRun implements the protocol in spec.md §4.2: monotonic elapsed-time
// budget, never sleeps longer than interval, never returns with a
// non-terminal RunInfo on success.
func (c *httpClient) PollRun(ctx context.Context, runID string, timeout, interval time.Duration) (RunInfo, error) {
	deadline := time.Now().Add(timeout)

	for {
		info, err := c.getRunInfo(ctx, runID)
		if err != nil {
			return RunInfo{}, err
		}
		if info.Status.IsTerminal() {
			return info, nil
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return RunInfo{}, &TimeoutError{RunID: runID, Elapsed: timeout}
		}

		sleep := interval
		if remaining < sleep {
			sleep = remaining
		}

		select {
		case <-ctx.Done():
			return RunInfo{}, ctx.Err()
		case <-time.After(sleep):
		}
	}
}

func (c *httpClient) FetchItems(ctx context.Context, datasetID string, limit, offset int) ([]map[string]any, error) {
	path := fmt.Sprintf("/v1/datasets/%s/items?limit=%d&offset=%d", datasetID, limit, offset)
	resp, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var items []map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&items); err != nil {
		return nil, fmt.Errorf("decode fetch-items response: %w", err)
	}
	return items, nil
}
