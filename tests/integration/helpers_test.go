//go:build integration

package integration

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/storeops/opsqueue/internal/testutil"
)

var keyCounter atomic.Int64

// uniqueKey returns an idempotency key that no other test run reuses.
func uniqueKey(prefix string) string {
	return fmt.Sprintf("%s-%d-%d", prefix, time.Now().UnixNano(), keyCounter.Add(1))
}

type queueItemData struct {
	ID          string          `json:"id"`
	WorkType    string          `json:"work_type"`
	Payload     json.RawMessage `json:"payload"`
	Status      string          `json:"status"`
	Attempts    int             `json:"attempts"`
	MaxAttempts int             `json:"max_attempts"`
	LastError   string          `json:"last_error"`
}

type dispatchSummaryData struct {
	Processed int `json:"processed"`
	Sent      int `json:"sent"`
	Skipped   int `json:"skipped"`
	Retried   int `json:"retried"`
	Failed    int `json:"failed"`
}

type jobData struct {
	ID          string          `json:"id"`
	JobType     string          `json:"job_type"`
	Status      string          `json:"status"`
	Progress    int             `json:"progress"`
	Result      json.RawMessage `json:"result"`
	Attempts    int             `json:"attempts"`
	MaxAttempts int             `json:"max_attempts"`
}

type jobStatusData struct {
	JobID    string          `json:"job_id"`
	Status   string          `json:"status"`
	Progress int             `json:"progress"`
	Result   json.RawMessage `json:"result"`
	Error    string          `json:"error"`
}

type runSummaryData struct {
	Processed int `json:"processed"`
	Done      int `json:"done"`
	Canceled  int `json:"canceled"`
	Retried   int `json:"retried"`
	Failed    int `json:"failed"`
}

// enqueueItem enqueues one item over HTTP and returns it.
func enqueueItem(t *testing.T, client *testutil.Client, workType string, payload interface{}) queueItemData {
	t.Helper()

	resp, err := client.POST("/api/v1/queue/items", map[string]interface{}{
		"work_type": workType,
		"payload":   payload,
	})
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var result struct {
		Data queueItemData `json:"data"`
	}
	testutil.DecodeJSON(t, resp, &result)
	return result.Data
}

// dispatchQueue triggers one dispatch run and returns its summary.
func dispatchQueue(t *testing.T, client *testutil.Client, workType string) dispatchSummaryData {
	t.Helper()

	resp, err := client.POST("/api/v1/queue/dispatch", map[string]interface{}{
		"work_type": workType,
	})
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var result struct {
		Data dispatchSummaryData `json:"data"`
	}
	testutil.DecodeJSON(t, resp, &result)
	return result.Data
}

// getItem fetches one queue item over HTTP.
func getItem(t *testing.T, client *testutil.Client, id string) queueItemData {
	t.Helper()

	resp, err := client.GET("/api/v1/queue/items/" + id)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var result struct {
		Data queueItemData `json:"data"`
	}
	testutil.DecodeJSON(t, resp, &result)
	return result.Data
}

// createJob creates one job over HTTP and returns it.
func createJob(t *testing.T, client *testutil.Client, jobType string, spec interface{}) jobData {
	t.Helper()

	resp, err := client.POST("/api/v1/jobs", map[string]interface{}{
		"job_type": jobType,
		"spec":     spec,
	})
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var result struct {
		Data jobData `json:"data"`
	}
	testutil.DecodeJSON(t, resp, &result)
	return result.Data
}

// getJobStatus reads the status projection of one job.
func getJobStatus(t *testing.T, client *testutil.Client, id string) jobStatusData {
	t.Helper()

	resp, err := client.GET("/api/v1/jobs/" + id)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var result struct {
		Data jobStatusData `json:"data"`
	}
	testutil.DecodeJSON(t, resp, &result)
	return result.Data
}

// dispatchJobs triggers one runner invocation and returns its summary.
func dispatchJobs(t *testing.T, client *testutil.Client, jobType string) runSummaryData {
	t.Helper()

	resp, err := client.POST("/api/v1/jobs/dispatch", map[string]interface{}{
		"job_type": jobType,
	})
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var result struct {
		Data runSummaryData `json:"data"`
	}
	testutil.DecodeJSON(t, resp, &result)
	return result.Data
}
