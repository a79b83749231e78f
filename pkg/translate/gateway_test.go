package translate

import (
	"context"
	"sync"
	"testing"

	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/require"

	"github.com/fmmr/plyglot/pkg/history"
	"github.com/fmmr/plyglot/pkg/usage"
)

type fakeCompleter struct {
	mu       sync.Mutex
	requests []openai.ChatCompletionRequest
	reply     string
	usage     openai.Usage
	err       error
	noChoices bool
}

func (f *fakeCompleter) CreateChatCompletion(_ context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()
	if f.err != nil {
		return openai.ChatCompletionResponse{}, f.err
	}
	if f.noChoices {
		return openai.ChatCompletionResponse{Usage: f.usage}, nil
	}
	return openai.ChatCompletionResponse{
		Choices: []openai.ChatCompletionChoice{
			{Message: openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: f.reply}},
		},
		Usage: f.usage,
	}, nil
}

func (f *fakeCompleter) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

func (f *fakeCompleter) lastRequest(t *testing.T) openai.ChatCompletionRequest {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	require.NotEmpty(t, f.requests)
	return f.requests[len(f.requests)-1]
}

func newTestGateway(client ChatCompleter, tracker *usage.Tracker, cfg Config) *Gateway {
	return NewGateway(client, tracker, cfg)
}

func TestTranslateNormalStyle(t *testing.T) {
	fake := &fakeCompleter{reply: " Bonjour ", usage: openai.Usage{PromptTokens: 50, CompletionTokens: 30, TotalTokens: 80}}
	tracker := usage.NewTracker()
	g := newTestGateway(fake, tracker, Config{})

	res, err := g.Translate(context.Background(), Request{Message: "Hello", TargetLanguage: "fr"})
	require.NoError(t, err)
	require.Equal(t, "Bonjour", res.Text)
	require.NotNil(t, res.Usage)
	require.Equal(t, 80, res.Usage.TotalTokens)

	req := fake.lastRequest(t)
	require.Equal(t, openai.GPT4, req.Model)
	require.InDelta(t, 0.3, float64(req.Temperature), 1e-6)
	require.Equal(t, 500, req.MaxTokens)
	require.Len(t, req.Messages, 2)
	require.Equal(t, openai.ChatMessageRoleSystem, req.Messages[0].Role)
	require.Contains(t, req.Messages[0].Content, "professional translator specializing in French")
	require.Contains(t, req.Messages[1].Content, "Translate the following text to French")
	require.Contains(t, req.Messages[1].Content, `"Hello"`)
}

func TestTranslatePoeticStyle(t *testing.T) {
	fake := &fakeCompleter{reply: "ok"}
	g := newTestGateway(fake, usage.NewTracker(), Config{})

	_, err := g.Translate(context.Background(), Request{Message: "Hello", TargetLanguage: "de", Style: StylePoetic})
	require.NoError(t, err)

	req := fake.lastRequest(t)
	require.InDelta(t, 0.7, float64(req.Temperature), 1e-6)
	require.Contains(t, req.Messages[0].Content, "poetic translator specializing in German")
	require.Contains(t, req.Messages[1].Content, "beautiful metaphors")
}

func TestTranslateValidation(t *testing.T) {
	fake := &fakeCompleter{reply: "ok"}
	g := newTestGateway(fake, usage.NewTracker(), Config{})

	_, err := g.Translate(context.Background(), Request{Message: "", TargetLanguage: "fr"})
	require.True(t, IsValidation(err))

	_, err = g.Translate(context.Background(), Request{Message: "hi", TargetLanguage: "xx"})
	require.True(t, IsValidation(err))

	// Extended codes are rejected unless enabled.
	_, err = g.Translate(context.Background(), Request{Message: "hi", TargetLanguage: "ja"})
	require.True(t, IsValidation(err))

	require.Equal(t, 0, fake.calls())
}

func TestExtendedLanguages(t *testing.T) {
	fake := &fakeCompleter{reply: "ok"}
	g := newTestGateway(fake, usage.NewTracker(), Config{ExtendedLanguages: true})

	_, err := g.Translate(context.Background(), Request{Message: "hi", TargetLanguage: "ja"})
	require.NoError(t, err)
	require.Contains(t, fake.lastRequest(t).Messages[0].Content, "Japanese")
	require.Contains(t, g.SupportedLanguages(), "ja")
}

func TestModelResolution(t *testing.T) {
	fake := &fakeCompleter{reply: "ok"}
	g := newTestGateway(fake, usage.NewTracker(), Config{TranslationModel: "gpt-4o-mini", ConversationModel: "gpt-4o"})

	_, err := g.Translate(context.Background(), Request{Message: "hi", TargetLanguage: "en"})
	require.NoError(t, err)
	require.Equal(t, "gpt-4o-mini", fake.lastRequest(t).Model)

	_, err = g.Converse(context.Background(), Request{Message: "hi", TargetLanguage: "en"}, nil)
	require.NoError(t, err)
	require.Equal(t, "gpt-4o", fake.lastRequest(t).Model)

	_, err = g.Translate(context.Background(), Request{Message: "hi", TargetLanguage: "en", Model: "gpt-3.5-turbo"})
	require.NoError(t, err)
	require.Equal(t, "gpt-3.5-turbo", fake.lastRequest(t).Model)
}

func TestConverseHistoryPassThrough(t *testing.T) {
	fake := &fakeCompleter{reply: "hei"}
	g := newTestGateway(fake, usage.NewTracker(), Config{})

	turns := []history.Turn{
		{Role: history.RoleUser, Content: "first"},
		{Role: history.RoleAssistant, Content: "second"},
		{Role: history.RoleUser, Content: "third"},
		{Role: history.RoleAssistant, Content: "fourth"},
	}
	_, err := g.Converse(context.Background(), Request{Message: "fifth", TargetLanguage: "no"}, turns)
	require.NoError(t, err)

	req := fake.lastRequest(t)
	require.Len(t, req.Messages, 6)
	require.Equal(t, openai.ChatMessageRoleSystem, req.Messages[0].Role)
	require.Contains(t, req.Messages[0].Content, "responds in Norwegian")
	require.Contains(t, req.Messages[0].Content, "regardless of the language")
	for i, want := range []string{"first", "second", "third", "fourth"} {
		require.Equal(t, want, req.Messages[i+1].Content)
	}
	require.Equal(t, openai.ChatMessageRoleUser, req.Messages[5].Role)
	require.Equal(t, "fifth", req.Messages[5].Content)
}

func TestUsageRecordedOnceOnSuccessOnly(t *testing.T) {
	tracker := usage.NewTracker()
	fake := &fakeCompleter{reply: "ok", usage: openai.Usage{PromptTokens: 5, CompletionTokens: 5, TotalTokens: 10}}
	g := newTestGateway(fake, tracker, Config{})

	_, err := g.Converse(context.Background(), Request{Message: "hi", TargetLanguage: "en"}, nil)
	require.NoError(t, err)

	got := tracker.Snapshot()
	require.Equal(t, 10, got.TotalTokens)
	require.Equal(t, 1, got.ConversationRequests)

	fake.err = context.DeadlineExceeded
	_, err = g.Converse(context.Background(), Request{Message: "hi", TargetLanguage: "en"}, nil)
	require.True(t, IsProvider(err))

	// Failed call must not touch the counters.
	require.Equal(t, tracker.Snapshot(), got)
}

func TestZeroUsageTreatedAsAbsent(t *testing.T) {
	tracker := usage.NewTracker()
	fake := &fakeCompleter{reply: "ok"}
	g := newTestGateway(fake, tracker, Config{})

	res, err := g.Translate(context.Background(), Request{Message: "hi", TargetLanguage: "en"})
	require.NoError(t, err)
	require.Nil(t, res.Usage)

	got := tracker.Snapshot()
	require.Equal(t, 0, got.TotalTokens)
	require.Equal(t, 0, got.TranslationRequests)
}

func TestProviderErrorHidesDetail(t *testing.T) {
	fake := &fakeCompleter{err: context.DeadlineExceeded}
	g := newTestGateway(fake, usage.NewTracker(), Config{})

	_, err := g.Translate(context.Background(), Request{Message: "hi", TargetLanguage: "en"})
	require.True(t, IsProvider(err))
	require.False(t, IsValidation(err))
}

func TestEmptyChoicesIsProviderError(t *testing.T) {
	tracker := usage.NewTracker()
	fake := &fakeCompleter{noChoices: true, usage: openai.Usage{TotalTokens: 7, PromptTokens: 7}}
	g := newTestGateway(fake, tracker, Config{})

	_, err := g.Translate(context.Background(), Request{Message: "hi", TargetLanguage: "en"})
	require.True(t, IsProvider(err))
	require.Equal(t, 0, tracker.Snapshot().TotalTokens)
}
