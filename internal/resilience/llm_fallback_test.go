package resilience

import (
	"context"
	"errors"
	"testing"

	"github.com/MrWong99/scrivener/pkg/provider/llm"
	llmmock "github.com/MrWong99/scrivener/pkg/provider/llm/mock"
)

func TestLLMFallback_Complete(t *testing.T) {
	t.Parallel()

	primary := &llmmock.Provider{
		CompleteErr:       errors.New("primary down"),
		ModelCapabilities: llm.ModelCapabilities{ContextWindow: 8192},
	}
	secondary := &llmmock.Provider{
		CompleteResponse: &llm.CompletionResponse{Content: `{"matches":[]}`},
	}

	fb := NewLLMFallback(primary, "openai", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 3},
	})
	fb.AddFallback("ollama", secondary)

	resp, err := fb.Complete(context.Background(), llm.CompletionRequest{JSONOutput: true})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if resp.Content != `{"matches":[]}` {
		t.Errorf("content = %q", resp.Content)
	}
	if len(primary.Calls()) != 1 || len(secondary.Calls()) != 1 {
		t.Errorf("calls = (%d, %d), want (1, 1)", len(primary.Calls()), len(secondary.Calls()))
	}
	if !secondary.Calls()[0].Req.JSONOutput {
		t.Error("request was not forwarded unchanged")
	}
	if got := fb.Capabilities().ContextWindow; got != 8192 {
		t.Errorf("Capabilities().ContextWindow = %d, want the primary's", got)
	}
	if st := fb.Statuses(); len(st) != 2 || st[0].Name != "openai" {
		t.Errorf("Statuses() = %+v", st)
	}
}

func TestLLMFallback_AllFail(t *testing.T) {
	t.Parallel()
	fb := NewLLMFallback(&llmmock.Provider{CompleteErr: errTest}, "only", FallbackConfig{})
	if _, err := fb.Complete(context.Background(), llm.CompletionRequest{}); !errors.Is(err, ErrAllFailed) {
		t.Fatalf("err = %v, want ErrAllFailed", err)
	}
}
