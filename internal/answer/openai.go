package answer

// OpenAI-compatible chat completions provider. Works against OpenAI,
// OpenRouter, Cerebras, and anything else speaking the same API.
import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/openflux/openflux/pkg/types"
)

// OpenAIProvider implements Generator over the chat completions API.
type OpenAIProvider struct {
	client   *http.Client
	endpoint string
	apiKey   string
	model    string
	retries  int
}

// NewOpenAIProvider creates a new OpenAI-compatible provider
func NewOpenAIProvider(endpoint, apiKey, model string, timeout time.Duration) *OpenAIProvider {
	if endpoint == "" {
		endpoint = "https://api.openai.com/v1/chat/completions"
	}
	if model == "" {
		model = "gpt-4o-mini"
	}
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	client := &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			MaxIdleConns:        10,
			IdleConnTimeout:     30 * time.Second,
			TLSHandshakeTimeout: 10 * time.Second,
		},
	}

	return &OpenAIProvider{
		client:   client,
		endpoint: endpoint,
		apiKey:   apiKey,
		model:    model,
		retries:  3,
	}
}

// Generate answers the question from the given excerpts.
func (p *OpenAIProvider) Generate(ctx context.Context, question string, evidence []types.SearchMatch) (string, error) {
	requestBody := map[string]interface{}{
		"model": p.model,
		"messages": []map[string]string{
			{"role": "system", "content": systemPrompt},
			{"role": "user", "content": buildUserPrompt(question, evidence)},
		},
		"temperature": 0.2,
		"stream":      false,
	}

	bodyJSON, err := json.Marshal(requestBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	var respBody []byte
	for i := 0; i < p.retries; i++ {
		req, err := http.NewRequestWithContext(ctx, "POST", p.endpoint, bytes.NewBuffer(bodyJSON))
		if err != nil {
			return "", fmt.Errorf("failed to create request: %w", err)
		}

		req.Header.Set("Content-Type", "application/json")
		if p.apiKey != "" {
			req.Header.Set("Authorization", "Bearer "+p.apiKey)
		}

		resp, err := p.client.Do(req)
		if err != nil {
			log.Warn().Err(err).Int("attempt", i+1).Msg("Chat completions request failed, retrying")
			if sleepErr := sleepCtx(ctx, time.Duration(i+1)*time.Second); sleepErr != nil {
				return "", sleepErr
			}
			continue
		}

		respBody, err = io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return "", fmt.Errorf("failed to read response: %w", err)
		}

		if resp.StatusCode != http.StatusOK {
			log.Error().Int("status", resp.StatusCode).Str("response", string(respBody)).Msg("Chat completions API error")
			if resp.StatusCode >= 500 {
				if sleepErr := sleepCtx(ctx, time.Duration(i+1)*time.Second); sleepErr != nil {
					return "", sleepErr
				}
				continue
			}
			return "", fmt.Errorf("chat completions API error [%d]: %s", resp.StatusCode, string(respBody))
		}
		break
	}

	var completion struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
		Error *struct {
			Message string `json:"message"`
		} `json:"error"`
	}

	if err := json.Unmarshal(respBody, &completion); err != nil {
		return "", fmt.Errorf("failed to unmarshal response: %w", err)
	}

	if completion.Error != nil {
		return "", fmt.Errorf("chat completions API error: %s", completion.Error.Message)
	}

	if len(completion.Choices) == 0 {
		return "", fmt.Errorf("no choices in completion response")
	}

	return completion.Choices[0].Message.Content, nil
}

// HealthCheck makes a minimal completion request. The API has no
// dedicated health endpoint.
func (p *OpenAIProvider) HealthCheck(ctx context.Context) error {
	requestBody := map[string]interface{}{
		"model": p.model,
		"messages": []map[string]string{
			{"role": "user", "content": "ping"},
		},
		"max_tokens": 1,
	}

	bodyJSON, err := json.Marshal(requestBody)
	if err != nil {
		return fmt.Errorf("failed to marshal health check request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", p.endpoint, bytes.NewBuffer(bodyJSON))
	if err != nil {
		return fmt.Errorf("failed to create health check request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("completion server unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("completion health check failed with status: %d", resp.StatusCode)
	}

	return nil
}

// Model returns the configured model name
func (p *OpenAIProvider) Model() string {
	return p.model
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
