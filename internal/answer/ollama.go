package answer

// Local model provider using Ollama's generate API.
import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/openflux/openflux/pkg/types"
)

// OllamaProvider implements Generator against a local Ollama server.
type OllamaProvider struct {
	client   *http.Client
	endpoint string
	model    string
}

type ollamaRequest struct {
	Model   string                 `json:"model"`
	Prompt  string                 `json:"prompt"`
	System  string                 `json:"system,omitempty"`
	Stream  bool                   `json:"stream"`
	Options map[string]interface{} `json:"options,omitempty"`
}

type ollamaResponse struct {
	Model     string `json:"model"`
	CreatedAt string `json:"created_at"`
	Response  string `json:"response"`
	Done      bool   `json:"done"`
}

// NewOllamaProvider creates a new Ollama provider
func NewOllamaProvider(endpoint, model string, timeout time.Duration) *OllamaProvider {
	if endpoint == "" {
		endpoint = "http://localhost:11434"
	}
	if model == "" {
		model = "llama3.2:3b"
	}
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	return &OllamaProvider{
		client:   &http.Client{Timeout: timeout},
		endpoint: strings.TrimRight(endpoint, "/"),
		model:    model,
	}
}

// Generate answers the question from the given excerpts.
func (p *OllamaProvider) Generate(ctx context.Context, question string, evidence []types.SearchMatch) (string, error) {
	startTime := time.Now()

	reqBody := ollamaRequest{
		Model:  p.model,
		Prompt: buildUserPrompt(question, evidence),
		System: systemPrompt,
		Stream: false,
		Options: map[string]interface{}{
			"temperature": 0.2,
		},
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", p.endpoint+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("ollama returned status %d: %s", resp.StatusCode, string(bodyBytes))
	}

	var ollamaResp ollamaResponse
	if err := json.NewDecoder(resp.Body).Decode(&ollamaResp); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}

	log.Debug().
		Str("model", p.model).
		Dur("duration", time.Since(startTime)).
		Msg("Answer generated via Ollama")

	return strings.TrimSpace(ollamaResp.Response), nil
}

// HealthCheck checks if Ollama is available
func (p *OllamaProvider) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, "GET", p.endpoint+"/api/tags", nil)
	if err != nil {
		return fmt.Errorf("failed to create health check request: %w", err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("ollama not reachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("ollama health check failed with status %d", resp.StatusCode)
	}

	log.Debug().
		Str("endpoint", p.endpoint).
		Str("model", p.model).
		Msg("Ollama health check passed")

	return nil
}

// Model returns the configured model name
func (p *OllamaProvider) Model() string {
	return p.model
}
