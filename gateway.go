package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// ModelQuerier issues one prompt to one backend. Implementations bind the
// model identifier to a concrete backend and honor the timeout exactly.
type ModelQuerier interface {
	Query(ctx context.Context, model string, prompt string, timeout time.Duration) (string, error)
}

// OpenRouterClient is the production ModelQuerier backed by the OpenRouter
// chat completions API
type OpenRouterClient struct {
	APIURL string
	APIKey string
}

// NewOpenRouterClient creates a client for the given OpenRouter endpoint
func NewOpenRouterClient(apiURL, apiKey string) *OpenRouterClient {
	return &OpenRouterClient{APIURL: apiURL, APIKey: apiKey}
}

// Query sends a single-message chat completion and returns the first
// choice's text. The timeout bounds the whole call via both the request
// context and the HTTP client.
func (c *OpenRouterClient) Query(ctx context.Context, model string, prompt string, timeout time.Duration) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	client := &http.Client{
		Timeout: timeout,
	}

	payload := OpenRouterRequest{
		Model:    model,
		Messages: []OpenRouterMessage{{Role: "user", Content: prompt}},
	}
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.APIURL, bytes.NewBuffer(payloadBytes))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+c.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("API returned status %d: %s", resp.StatusCode, string(bodyBytes))
	}

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response body: %w", err)
	}

	var apiResponse OpenRouterAPIResponse
	if err := json.Unmarshal(bodyBytes, &apiResponse); err != nil {
		return "", fmt.Errorf("failed to parse response: %w", err)
	}

	if len(apiResponse.Choices) == 0 {
		return "", fmt.Errorf("no choices in response")
	}

	return apiResponse.Choices[0].Message.Content, nil
}

// Gateway turns ModelQuerier calls into settled ParticipantResponses for
// the orchestrator. Failures are data here: every call produces a response
// and no error crosses this boundary.
type Gateway struct {
	querier ModelQuerier
}

// NewGateway wraps a ModelQuerier
func NewGateway(querier ModelQuerier) *Gateway {
	return &Gateway{querier: querier}
}

// Query issues one bounded call and settles it into a ParticipantResponse
func (g *Gateway) Query(ctx context.Context, participantID, prompt string, timeout time.Duration) ParticipantResponse {
	start := time.Now()
	text, err := g.querier.Query(ctx, participantID, prompt, timeout)
	elapsed := time.Since(start)

	if err != nil {
		kind, detail := classifyError(err)
		log.Warn().
			Str("participant", participantID).
			Str("error_kind", string(kind)).
			Dur("elapsed", elapsed).
			Msg("model call failed")
		return ParticipantResponse{
			ParticipantID: participantID,
			Succeeded:     false,
			ErrorKind:     kind,
			ErrorDetail:   detail,
			Elapsed:       elapsed,
		}
	}

	log.Debug().
		Str("participant", participantID).
		Dur("elapsed", elapsed).
		Msg("model call succeeded")
	return ParticipantResponse{
		ParticipantID: participantID,
		Text:          text,
		Succeeded:     true,
		Elapsed:       elapsed,
	}
}

// QueryAll fans the prompt out to every participant in parallel and joins:
// it returns only once all calls have settled, results in input order.
// Each goroutine writes only its own slot, so no mutex is needed.
func (g *Gateway) QueryAll(ctx context.Context, participantIDs []string, prompt string, timeout time.Duration) []ParticipantResponse {
	results := make([]ParticipantResponse, len(participantIDs))

	grp, ctx := errgroup.WithContext(ctx)
	for i, id := range participantIDs {
		i, id := i, id
		grp.Go(func() error {
			results[i] = g.Query(ctx, id, prompt, timeout)
			return nil
		})
	}

	// Workers never return errors; failures settle into their slots.
	_ = grp.Wait()

	return results
}
