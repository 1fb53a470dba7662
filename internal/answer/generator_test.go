package answer

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openflux/openflux/pkg/types"
)

type stubGenerator struct {
	reply string
	err   error
	calls int
	model string
}

func (s *stubGenerator) Generate(ctx context.Context, question string, evidence []types.SearchMatch) (string, error) {
	s.calls++
	return s.reply, s.err
}

func (s *stubGenerator) HealthCheck(ctx context.Context) error { return s.err }

func (s *stubGenerator) Model() string { return s.model }

func TestFromConfigEmpty(t *testing.T) {
	assert.Nil(t, FromConfig(types.LLMConfig{}))
}

func TestFromConfigUnknownProvider(t *testing.T) {
	cfg := types.LLMConfig{
		Primary: types.LLMProviderConfig{Provider: "carrier-pigeon"},
	}
	assert.Nil(t, FromConfig(cfg))
}

func TestFromConfigPrimaryOnly(t *testing.T) {
	cfg := types.LLMConfig{
		Primary: types.LLMProviderConfig{Provider: "openai", Model: "gpt-4o-mini"},
	}
	gen := FromConfig(cfg)
	require.NotNil(t, gen)
	assert.IsType(t, &OpenAIProvider{}, gen)
	assert.Equal(t, "gpt-4o-mini", gen.Model())
}

func TestFromConfigFallbackOnly(t *testing.T) {
	cfg := types.LLMConfig{
		Fallback: types.LLMProviderConfig{Provider: "ollama", Model: "llama3.2:3b"},
	}
	gen := FromConfig(cfg)
	require.NotNil(t, gen)
	assert.IsType(t, &OllamaProvider{}, gen)
}

func TestFromConfigChain(t *testing.T) {
	cfg := types.LLMConfig{
		Primary:  types.LLMProviderConfig{Provider: "openai-compatible", Endpoint: "https://example.test/v1/chat/completions"},
		Fallback: types.LLMProviderConfig{Provider: "ollama"},
	}
	gen := FromConfig(cfg)
	require.NotNil(t, gen)
	assert.IsType(t, &FallbackGenerator{}, gen)
}

func TestFromConfigInvalidTimeoutFallsBackToDefault(t *testing.T) {
	cfg := types.LLMConfig{
		Primary: types.LLMProviderConfig{Provider: "ollama", Timeout: "soonish"},
	}
	assert.NotNil(t, FromConfig(cfg))
}

func TestBuildUserPrompt(t *testing.T) {
	evidence := []types.SearchMatch{
		{FilePath: "runtime/proc.go", Snippet: "func schedule() {"},
		{FilePath: "runtime/mgc.go", Snippet: "func gcStart("},
	}
	prompt := buildUserPrompt("how does scheduling work", evidence)

	assert.Contains(t, prompt, "Question: how does scheduling work")
	assert.Contains(t, prompt, "excerpt 1 (runtime/proc.go)")
	assert.Contains(t, prompt, "excerpt 2 (runtime/mgc.go)")
	assert.Contains(t, prompt, "func gcStart(")
}

func TestFallbackGeneratorUsesPrimary(t *testing.T) {
	primary := &stubGenerator{reply: "from primary", model: "a"}
	fallback := &stubGenerator{reply: "from fallback", model: "b"}
	gen := NewFallbackGenerator(primary, fallback)

	reply, err := gen.Generate(context.Background(), "q", nil)
	require.NoError(t, err)
	assert.Equal(t, "from primary", reply)
	assert.Zero(t, fallback.calls)
	assert.Equal(t, "a", gen.Model())
}

func TestFallbackGeneratorSwitchesOver(t *testing.T) {
	primary := &stubGenerator{err: errors.New("quota exhausted"), model: "a"}
	fallback := &stubGenerator{reply: "from fallback", model: "b"}
	gen := NewFallbackGenerator(primary, fallback)

	reply, err := gen.Generate(context.Background(), "q", nil)
	require.NoError(t, err)
	assert.Equal(t, "from fallback", reply)

	// The switch is sticky: the failed primary is not retried.
	_, err = gen.Generate(context.Background(), "q", nil)
	require.NoError(t, err)
	assert.Equal(t, 1, primary.calls)
	assert.Equal(t, 2, fallback.calls)
	assert.Equal(t, "b", gen.Model())
}

// countingGenerator is safe for concurrent Generate calls.
type countingGenerator struct {
	reply string
	err   error
	model string
	calls atomic.Int64
}

func (c *countingGenerator) Generate(ctx context.Context, question string, evidence []types.SearchMatch) (string, error) {
	c.calls.Add(1)
	return c.reply, c.err
}

func (c *countingGenerator) HealthCheck(ctx context.Context) error { return c.err }

func (c *countingGenerator) Model() string { return c.model }

func TestFallbackGeneratorConcurrentSwitchOver(t *testing.T) {
	primary := &countingGenerator{err: errors.New("quota exhausted"), model: "a"}
	fallback := &countingGenerator{reply: "from fallback", model: "b"}
	gen := NewFallbackGenerator(primary, fallback)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			reply, err := gen.Generate(context.Background(), "q", nil)
			assert.NoError(t, err)
			assert.Equal(t, "from fallback", reply)
		}()
	}
	wg.Wait()

	assert.Equal(t, "b", gen.Model())
	assert.Equal(t, fallback.calls.Load(), int64(8))
}

func TestFallbackGeneratorAllFail(t *testing.T) {
	primary := &stubGenerator{err: errors.New("down")}
	gen := NewFallbackGenerator(primary, nil)

	_, err := gen.Generate(context.Background(), "q", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "all answer providers failed")
}
