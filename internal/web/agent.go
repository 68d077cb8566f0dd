package web

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/superdisco-agents/moai-flow-sub005/internal/shared"
)

// RemoteAgent is an AgentHandle backed by an HTTP worker. The worker
// exposes POST /execute, POST /vote, GET /health, and POST /restart;
// vote and restart are optional (a 404 falls back to abstain / probe).
type RemoteAgent struct {
	endpoint string
	client   *http.Client
}

// NewRemoteAgent creates a handle for a worker at the given base URL.
func NewRemoteAgent(endpoint string) *RemoteAgent {
	return &RemoteAgent{
		endpoint: endpoint,
		client:   &http.Client{Timeout: 30 * time.Second},
	}
}

// Execute posts the task to the worker and decodes its result.
func (a *RemoteAgent) Execute(ctx context.Context, task shared.Task) (shared.ExecResult, error) {
	var result shared.ExecResult
	if err := a.post(ctx, "/execute", task, &result); err != nil {
		return shared.ExecResult{}, fmt.Errorf("%w: %v", shared.ErrAgentUnreachable, err)
	}
	return result, nil
}

// Probe checks the worker's health endpoint and measures latency.
func (a *RemoteAgent) Probe(ctx context.Context) (shared.Health, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.endpoint+"/health", nil)
	if err != nil {
		return shared.Health{}, err
	}

	started := time.Now()
	resp, err := a.client.Do(req)
	if err != nil {
		return shared.Health{}, fmt.Errorf("%w: %v", shared.ErrAgentUnreachable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return shared.Health{}, fmt.Errorf("%w: health returned %d", shared.ErrAgentUnreachable, resp.StatusCode)
	}
	return shared.Health{Reachable: true, LatencyMs: time.Since(started).Milliseconds()}, nil
}

// Vote asks the worker to vote on a proposal. Workers without a vote
// endpoint abstain.
func (a *RemoteAgent) Vote(ctx context.Context, proposal shared.ConsensusProposal) (shared.VoteValue, error) {
	var reply struct {
		Vote shared.VoteValue `json:"vote"`
	}
	if err := a.post(ctx, "/vote", proposal, &reply); err != nil {
		return shared.VoteAbstain, err
	}
	return reply.Vote, nil
}

// Restart asks the worker to restart itself.
func (a *RemoteAgent) Restart(ctx context.Context) error {
	return a.post(ctx, "/restart", nil, nil)
}

func (a *RemoteAgent) post(ctx context.Context, path string, body, out any) error {
	var payload bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&payload).Encode(body); err != nil {
			return err
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.endpoint+path, &payload)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("agent returned %d for %s", resp.StatusCode, path)
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}
