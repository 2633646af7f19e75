package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// reputationClient awards points through the auth service's internal API.
// The at-most-once guarantee lives in the atomic status transition that
// produces the award plan, not here.
type reputationClient struct {
	baseURL string
	client  *http.Client
}

func newReputationClient(baseURL string) *reputationClient {
	return &reputationClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

type awardRequest struct {
	Awards []pointAward `json:"awards"`
}

func (c *reputationClient) award(ctx context.Context, awards []pointAward) error {
	if len(awards) == 0 {
		return nil
	}

	body, err := json.Marshal(awardRequest{Awards: awards})
	if err != nil {
		return fmt.Errorf("failed to marshal awards: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/internal/points", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("auth service returned status %d", resp.StatusCode)
	}
	return nil
}
