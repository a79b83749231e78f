// Package usage tracks token consumption and request counts for provider
// calls. The tracker is process-wide but explicitly constructed and passed
// to the components that report into it, so tests can run independent
// instances side by side.
package usage

import (
	"fmt"
	"sync"
)

// Kind classifies a provider call for per-kind request counting.
type Kind string

const (
	KindTranslation  Kind = "translation"
	KindConversation Kind = "conversation"
)

// Usage holds the token counts reported by the provider for a single call.
type Usage struct {
	PromptTokens     int `json:"promptTokens"`
	CompletionTokens int `json:"completionTokens"`
	TotalTokens      int `json:"totalTokens"`
}

// Stats is a read-only snapshot of the tracker, in the wire shape served by
// the stats endpoint and attached to chat responses.
type Stats struct {
	TotalTokens          int    `json:"totalTokens"`
	PromptTokens         int    `json:"promptTokens"`
	CompletionTokens     int    `json:"completionTokens"`
	TranslationRequests  int    `json:"translationRequests"`
	ConversationRequests int    `json:"conversationRequests"`
	TotalRequests        int    `json:"totalRequests"`
	AvgTokensPerRequest  string `json:"avgTokensPerRequest"`
}

// Tracker accumulates usage across all connections. All methods are safe
// for concurrent use; Record is a single atomic step so Snapshot never
// observes a partially applied update.
type Tracker struct {
	mu                   sync.Mutex
	totalTokens          int
	promptTokens         int
	completionTokens     int
	translationRequests  int
	conversationRequests int
}

func NewTracker() *Tracker {
	return &Tracker{}
}

// Record adds a call's token counts to the running totals and increments
// the counter matching kind. A nil usage means the provider reported no
// usage data and is a no-op, not an error. An unrecognized kind still
// counts tokens into the totals but bumps neither request counter, keeping
// the stats wire shape identical to what known kinds produce.
func (t *Tracker) Record(u *Usage, kind Kind) {
	if t == nil || u == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.totalTokens += u.TotalTokens
	t.promptTokens += u.PromptTokens
	t.completionTokens += u.CompletionTokens
	switch kind {
	case KindTranslation:
		t.translationRequests++
	case KindConversation:
		t.conversationRequests++
	}
}

// Snapshot returns a copy of the current counters plus the derived totals.
// AvgTokensPerRequest is formatted to one decimal place and is "0" when no
// requests have been recorded yet.
func (t *Tracker) Snapshot() Stats {
	if t == nil {
		return Stats{AvgTokensPerRequest: "0"}
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	total := t.translationRequests + t.conversationRequests
	return Stats{
		TotalTokens:          t.totalTokens,
		PromptTokens:         t.promptTokens,
		CompletionTokens:     t.completionTokens,
		TranslationRequests:  t.translationRequests,
		ConversationRequests: t.conversationRequests,
		TotalRequests:        total,
		AvgTokensPerRequest:  averageTokens(t.totalTokens, total),
	}
}

// Reset zeroes all counters. Administrative only; nothing on the client
// event surface reaches it.
func (t *Tracker) Reset() {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.totalTokens = 0
	t.promptTokens = 0
	t.completionTokens = 0
	t.translationRequests = 0
	t.conversationRequests = 0
}

func averageTokens(tokens, requests int) string {
	if requests == 0 {
		return "0"
	}
	return fmt.Sprintf("%.1f", float64(tokens)/float64(requests))
}
