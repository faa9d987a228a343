package actorclient_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/brandbrain/compiler/pkg/actorclient"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) actorclient.Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	cfg := actorclient.DefaultHTTPConfig()
	cfg.BaseURL = srv.URL
	cfg.Token = "test-token"
	cfg.RequestTimeout = 2 * time.Second
	return actorclient.NewHTTPClient(cfg)
}

func TestStartRun(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/actors/my-actor/runs", r.URL.Path)
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
		_ = json.NewEncoder(w).Encode(map[string]any{
			"run_id":     "run-1",
			"dataset_id": "dataset-1",
			"started_at": time.Now().Format(time.RFC3339),
			"status":     "RUNNING",
		})
	})

	result, err := client.StartRun(context.Background(), "my-actor", map[string]any{"cap": 50})
	require.NoError(t, err)
	assert.Equal(t, "run-1", result.RunID)
	assert.Equal(t, "dataset-1", result.DatasetID)
	assert.Equal(t, actorclient.RunStatusRunning, result.Status)
}

func TestPollRun_ReachesTerminalStatus(t *testing.T) {
	calls := 0
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		status := "RUNNING"
		if calls >= 3 {
			status = "SUCCEEDED"
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"run_id":     "run-1",
			"dataset_id": "dataset-1",
			"status":     status,
		})
	})

	info, err := client.PollRun(context.Background(), "run-1", 5*time.Second, 10*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, actorclient.RunStatusSucceeded, info.Status)
	assert.GreaterOrEqual(t, calls, 3)
}

func TestPollRun_TimesOutOnNonTerminalStatus(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"run_id":     "run-1",
			"dataset_id": "dataset-1",
			"status":     "RUNNING",
		})
	})

	_, err := client.PollRun(context.Background(), "run-1", 60*time.Millisecond, 10*time.Millisecond)
	require.Error(t, err)
	var timeoutErr *actorclient.TimeoutError
	assert.ErrorAs(t, err, &timeoutErr)
}

func TestFetchItems(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/datasets/dataset-1/items", r.URL.Path)
		assert.Equal(t, "50", r.URL.Query().Get("limit"))
		assert.Equal(t, "0", r.URL.Query().Get("offset"))
		_ = json.NewEncoder(w).Encode([]map[string]any{
			{"id": "a"},
			{"id": "b"},
		})
	})

	items, err := client.FetchItems(context.Background(), "dataset-1", 50, 0)
	require.NoError(t, err)
	assert.Len(t, items, 2)
}

func TestRunStatus_IsTerminal(t *testing.T) {
	assert.True(t, actorclient.RunStatusSucceeded.IsTerminal())
	assert.True(t, actorclient.RunStatusFailed.IsTerminal())
	assert.True(t, actorclient.RunStatusTimedOut.IsTerminal())
	assert.True(t, actorclient.RunStatusAborted.IsTerminal())
	assert.False(t, actorclient.RunStatusRunning.IsTerminal())
}
