package llm

import "strings"

// DefaultCapabilities is reported for models no family entry matches.
var DefaultCapabilities = ModelCapabilities{ContextWindow: 128_000, MaxOutputTokens: 4_096}

// family is one row of the capability table. A model belongs to the first
// row whose prefix it starts with, or whose fragment it contains.
type family struct {
	prefix   string
	fragment string
	caps     ModelCapabilities
}

// Ordered most specific first: "gpt-4o" must win over "gpt-4".
var families = []family{
	{prefix: "gpt-4o", caps: ModelCapabilities{128_000, 16_384}},
	{prefix: "gpt-4-turbo", caps: ModelCapabilities{128_000, 4_096}},
	{prefix: "gpt-4", caps: ModelCapabilities{8_192, 4_096}},
	{prefix: "gpt-3.5-turbo", caps: ModelCapabilities{16_385, 4_096}},
	{prefix: "o1-mini", caps: ModelCapabilities{128_000, 65_536}},
	{prefix: "o1", caps: ModelCapabilities{200_000, 100_000}},
	{prefix: "o3", caps: ModelCapabilities{200_000, 100_000}},
	{fragment: "claude-3-opus", caps: ModelCapabilities{200_000, 4_096}},
	{prefix: "claude", caps: ModelCapabilities{200_000, 8_192}},
	{fragment: "gemini-1.5-pro", caps: ModelCapabilities{2_097_152, 8_192}},
	{fragment: "gemini-1.5-flash", caps: ModelCapabilities{1_048_576, 8_192}},
	{fragment: "gemini-2.0-flash", caps: ModelCapabilities{1_048_576, 8_192}},
	{prefix: "gemini", caps: ModelCapabilities{128_000, 8_192}},
	{prefix: "llama", caps: ModelCapabilities{32_768, 4_096}},
	{prefix: "mistral", caps: ModelCapabilities{32_768, 4_096}},
	{prefix: "qwen", caps: ModelCapabilities{32_768, 4_096}},
}

// LookupCapabilities returns the limits of a model by family name, ignoring
// case. Unknown models get [DefaultCapabilities].
func LookupCapabilities(model string) ModelCapabilities {
	m := strings.ToLower(model)
	for _, f := range families {
		if (f.prefix != "" && strings.HasPrefix(m, f.prefix)) ||
			(f.fragment != "" && strings.Contains(m, f.fragment)) {
			return f.caps
		}
	}
	return DefaultCapabilities
}
