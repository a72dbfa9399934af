package workerclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/fleetctl/supervm/pkg/errs"
	"github.com/fleetctl/supervm/pkg/health"
	"github.com/fleetctl/supervm/pkg/types"
)

// HTTPClient is the default WorkerClient: it speaks a small JSON protocol
// to a worker's HTTP endpoint, the way the ControlAPI itself speaks JSON to
// its callers. Workers are expected to expose POST /execute and GET /health.
type HTTPClient struct {
	client *http.Client
}

// NewHTTPClient creates an HTTPClient whose http.Client has no Timeout of
// its own; each call is bounded by the deadline or timeout the caller
// supplies.
func NewHTTPClient() *HTTPClient {
	return &HTTPClient{client: &http.Client{}}
}

type executeRequest struct {
	PartitionID string      `json:"partitionId"`
	TaskID      string      `json:"taskId"`
	Kind        string      `json:"kind"`
	Partition   interface{} `json:"partition"`
}

type executeResponse struct {
	OK      bool        `json:"ok"`
	Payload interface{} `json:"payload"`
	Error   string      `json:"error"`
}

type healthResponse struct {
	LoadPct float64 `json:"loadPct"`
	OK      bool    `json:"ok"`
}

// ExecuteTask POSTs the partition to addr + "/execute" and waits for a JSON
// response, honoring deadline. Network failures map to errs.Transport;
// a worker-reported failure maps to errs.WorkerError; exceeding deadline
// maps to errs.Timeout.
func (c *HTTPClient) ExecuteTask(ctx context.Context, addr string, partition types.Partition, deadline time.Time) (ExecuteResult, error) {
	ctx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	body, err := json.Marshal(executeRequest{
		PartitionID: partition.ID,
		TaskID:      partition.TaskID,
		Partition:   partition,
	})
	if err != nil {
		return ExecuteResult{}, errs.Wrap(errs.Transport, "encode request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, addr+"/execute", bytes.NewReader(body))
	if err != nil {
		return ExecuteResult{}, errs.Wrap(errs.Transport, "build request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return ExecuteResult{}, errs.Wrap(errs.Timeout, "execute deadline exceeded", err)
		}
		return ExecuteResult{}, errs.Wrap(errs.Transport, "execute request failed", err)
	}
	defer resp.Body.Close()

	var out executeResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return ExecuteResult{}, errs.Wrap(errs.Transport, "decode response", err)
	}

	if resp.StatusCode != http.StatusOK || !out.OK {
		msg := out.Error
		if msg == "" {
			msg = fmt.Sprintf("worker returned status %d", resp.StatusCode)
		}
		return ExecuteResult{}, errs.New(errs.WorkerError, msg)
	}

	return ExecuteResult{Payload: out.Payload}, nil
}

// Health probes addr + "/health" for reachability and decodes the worker's
// reported load. A reachability failure is not itself a scheduler error —
// HealthMonitor treats a false `ok` the same as a transport error: the node
// goes Unreachable, nothing is propagated up the call stack.
func (c *HTTPClient) Health(ctx context.Context, addr string, timeout time.Duration) (float64, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	checker := health.NewHTTPChecker(addr + "/health")
	result := checker.Check(ctx)
	if !result.Healthy {
		return 0, false, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, addr+"/health", nil)
	if err != nil {
		return 0, false, nil
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return 0, false, nil
	}
	defer resp.Body.Close()

	var out healthResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		// Reachable but body didn't parse: treat as healthy with unknown load
		// rather than flapping the node to Unreachable over a protocol quirk.
		return 0, true, nil
	}
	return out.LoadPct, out.OK, nil
}
