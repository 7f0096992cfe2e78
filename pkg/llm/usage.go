// Package llm holds the provider-agnostic types shared by skycast agents and
// the streaming relay.
package llm

// Usage contains token accounting for a single agent interaction.
// JSON field names follow the camelCase shape emitted in the terminal
// stream frame so existing stream consumers keep working.
type Usage struct {
	PromptTokens     int `json:"promptTokens"`
	CompletionTokens int `json:"completionTokens"`
	TotalTokens      int `json:"totalTokens"`
}

// Add accumulates other into u and recomputes the total.
// Agents that run several model steps per query sum each step's usage.
func (u *Usage) Add(other Usage) {
	u.PromptTokens += other.PromptTokens
	u.CompletionTokens += other.CompletionTokens
	u.TotalTokens = u.PromptTokens + u.CompletionTokens
}

// IsZero reports whether no tokens were accounted.
func (u *Usage) IsZero() bool {
	return u == nil || (u.PromptTokens == 0 && u.CompletionTokens == 0 && u.TotalTokens == 0)
}
