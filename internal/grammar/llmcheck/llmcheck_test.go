package llmcheck_test

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/MrWong99/scrivener/internal/grammar"
	"github.com/MrWong99/scrivener/internal/grammar/llmcheck"
	"github.com/MrWong99/scrivener/pkg/provider/llm"
	"github.com/MrWong99/scrivener/pkg/provider/llm/mock"
)

func reply(content string) *mock.Provider {
	return &mock.Provider{CompleteResponse: &llm.CompletionResponse{Content: content}}
}

func TestChecker_Check(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		text    string
		content string
		want    []grammar.Match
	}{
		{
			name:    "valid match",
			text:    "I has a cat",
			content: `{"matches":[{"offset":2,"length":3,"original":"has","replacement":"have","message":"agreement"}]}`,
			want:    []grammar.Match{{Offset: 2, Length: 3, Replacements: []string{"have"}, Message: "agreement", RuleID: "LLM"}},
		},
		{
			name:    "markdown fences",
			text:    "I has a cat",
			content: "```json\n{\"matches\":[{\"offset\":2,\"length\":3,\"replacement\":\"have\"}]}\n```",
			want:    []grammar.Match{{Offset: 2, Length: 3, Replacements: []string{"have"}, RuleID: "LLM"}},
		},
		{
			name:    "miscounted offset dropped",
			text:    "I has a cat",
			content: `{"matches":[{"offset":3,"length":3,"original":"has","replacement":"have"}]}`,
			want:    []grammar.Match{},
		},
		{
			name:    "range past end dropped",
			text:    "I has",
			content: `{"matches":[{"offset":2,"length":9,"replacement":"have"}]}`,
			want:    []grammar.Match{},
		},
		{
			name:    "no-op replacement dropped",
			text:    "I have",
			content: `{"matches":[{"offset":2,"length":4,"replacement":"have"}]}`,
			want:    []grammar.Match{},
		},
		{
			name:    "code point offsets",
			text:    "café is good",
			content: `{"matches":[{"offset":5,"length":2,"original":"is","replacement":"was"}]}`,
			want:    []grammar.Match{{Offset: 5, Length: 2, Replacements: []string{"was"}, RuleID: "LLM"}},
		},
		{
			name:    "unparseable reply",
			text:    "I has a cat",
			content: "Sure! The sentence should read: I have a cat.",
			want:    []grammar.Match{},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			c := llmcheck.New(reply(tt.content))
			got, err := c.Check(context.Background(), tt.text, "en-US")
			if err != nil {
				t.Fatalf("Check: %v", err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("matches mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestChecker_Request(t *testing.T) {
	t.Parallel()
	p := reply(`{"matches":[]}`)
	c := llmcheck.New(p, llmcheck.WithTemperature(0.2), llmcheck.WithMaxTokens(64))

	if _, err := c.Check(context.Background(), "Tôi đi học", "vi"); err != nil {
		t.Fatalf("Check: %v", err)
	}
	calls := p.Calls()
	if len(calls) != 1 {
		t.Fatalf("calls = %d, want 1", len(calls))
	}
	req := calls[0].Req
	if !req.JSONOutput || req.Temperature != 0.2 || req.MaxTokens != 64 || req.SystemPrompt == "" {
		t.Errorf("unexpected request %+v", req)
	}
	if got := req.Messages[0].Content; got != "Language: vi\n\nText: Tôi đi học" {
		t.Errorf("user message = %q", got)
	}
}

func TestChecker_MaxTokensCappedByModel(t *testing.T) {
	t.Parallel()
	p := reply(`{"matches":[]}`)
	p.ModelCapabilities = llm.ModelCapabilities{MaxOutputTokens: 32}
	if _, err := llmcheck.New(p, llmcheck.WithMaxTokens(64)).Check(context.Background(), "I has a cat", "en"); err != nil {
		t.Fatalf("Check: %v", err)
	}
	if got := p.Calls()[0].Req.MaxTokens; got != 32 {
		t.Errorf("MaxTokens = %d, want the model limit 32", got)
	}
}

func TestChecker_BlankTextSkipsModel(t *testing.T) {
	t.Parallel()
	p := reply(`{}`)
	got, err := llmcheck.New(p).Check(context.Background(), "   ", "")
	if err != nil || len(got) != 0 {
		t.Fatalf("Check = %v, %v", got, err)
	}
	if len(p.Calls()) != 0 {
		t.Error("model should not be called for blank text")
	}
}

func TestChecker_ProviderError(t *testing.T) {
	t.Parallel()
	boom := errors.New("503")
	c := llmcheck.New(&mock.Provider{CompleteErr: boom})
	_, err := c.Check(context.Background(), "I has", "")
	if !errors.Is(err, grammar.ErrRemoteUnavailable) || !errors.Is(err, boom) {
		t.Fatalf("err = %v, want ErrRemoteUnavailable wrapping the provider error", err)
	}
}
