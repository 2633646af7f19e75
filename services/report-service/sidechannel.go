package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"civic-issue-system/pkg/middleware"
)

// sideTask is a detached best-effort call. Its outcome never reaches the
// request path that spawned it.
type sideTask struct {
	target string
	run    func(ctx context.Context) error
}

// sideChannelPool runs notary and push calls on a bounded set of workers
// with a per-task timeout. A full queue drops the task with a log line
// rather than blocking the caller.
type sideChannelPool struct {
	tasks   chan sideTask
	timeout time.Duration
	client  *http.Client
}

func newSideChannelPool(workers, queueSize int, timeout time.Duration) *sideChannelPool {
	p := &sideChannelPool{
		tasks:   make(chan sideTask, queueSize),
		timeout: timeout,
		client:  &http.Client{Timeout: timeout},
	}
	for i := 0; i < workers; i++ {
		go p.worker()
	}
	return p
}

func (p *sideChannelPool) worker() {
	for t := range p.tasks {
		ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
		if err := t.run(ctx); err != nil {
			log.Printf("[WARN] Side-channel call failed - target: %s, error: %v", t.target, err)
			middleware.CountSideChannelFailure(t.target)
		}
		cancel()
	}
}

func (p *sideChannelPool) dispatch(target string, run func(ctx context.Context) error) {
	select {
	case p.tasks <- sideTask{target: target, run: run}:
	default:
		log.Printf("[WARN] Side-channel queue full, dropping task - target: %s", target)
		middleware.CountSideChannelFailure(target)
	}
}

func (p *sideChannelPool) postJSON(ctx context.Context, url string, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("unexpected status %d from %s", resp.StatusCode, url)
	}
	return nil
}

// notarize records a lifecycle event on the external blockchain notary.
// Advisory only: the primary store stays the single source of truth.
func (p *sideChannelPool) notarize(notaryURL, reportID, action, actorID string) {
	if notaryURL == "" {
		return
	}
	p.dispatch("notary", func(ctx context.Context) error {
		return p.postJSON(ctx, notaryURL+"/notarize", map[string]interface{}{
			"reportId":  reportID,
			"action":    action,
			"actorId":   actorID,
			"timestamp": time.Now().UTC(),
		})
	})
}

// pushNotify asks the push gateway to deliver a notification to one user.
func (p *sideChannelPool) pushNotify(gatewayURL, userID, title, message string) {
	if gatewayURL == "" {
		return
	}
	p.dispatch("push", func(ctx context.Context) error {
		return p.postJSON(ctx, gatewayURL+"/send", map[string]interface{}{
			"userId":  userID,
			"title":   title,
			"message": message,
		})
	})
}
