// Package translate is the completion gateway: it turns a chat request
// into a provider call, reports token usage, and maps provider failures
// into the error taxonomy the router surfaces to clients.
package translate

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	openai "github.com/sashabaranov/go-openai"

	"github.com/fmmr/plyglot/pkg/history"
	"github.com/fmmr/plyglot/pkg/usage"
)

// Style selects the response tone, independent of interaction mode.
type Style string

const (
	StyleNormal Style = "normal"
	StylePoetic Style = "poetic"
)

// Mode selects one-shot translation or multi-turn conversation.
type Mode string

const (
	ModeTranslate    Mode = "translate"
	ModeConversation Mode = "conversation"
)

// ChatCompleter is the slice of the OpenAI client the gateway needs.
// *openai.Client satisfies it; tests inject fakes.
type ChatCompleter interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// Config holds gateway tuning. Zero values fall back to the defaults the
// baseline shipped with.
type Config struct {
	TranslationModel  string
	ConversationModel string
	NormalTemperature float32
	PoeticTemperature float32
	MaxTokens         int
	ExtendedLanguages bool
}

const (
	defaultModel             = openai.GPT4
	defaultNormalTemperature = 0.3
	defaultPoeticTemperature = 0.7
	defaultMaxTokens         = 500
)

func (c Config) withDefaults() Config {
	if strings.TrimSpace(c.TranslationModel) == "" {
		c.TranslationModel = defaultModel
	}
	if strings.TrimSpace(c.ConversationModel) == "" {
		c.ConversationModel = defaultModel
	}
	if c.NormalTemperature == 0 {
		c.NormalTemperature = defaultNormalTemperature
	}
	if c.PoeticTemperature == 0 {
		c.PoeticTemperature = defaultPoeticTemperature
	}
	if c.MaxTokens == 0 {
		c.MaxTokens = defaultMaxTokens
	}
	return c
}

// Request is one inbound message to translate or converse about.
type Request struct {
	Message        string
	TargetLanguage string
	Style          Style
	// Model overrides the configured default for this call when non-empty.
	Model string
}

// Result is the provider's reply. Usage is nil when the provider reported
// no usage data.
type Result struct {
	Text  string
	Usage *usage.Usage
}

// Gateway is stateless apart from its injected collaborators and is safe
// for concurrent use.
type Gateway struct {
	client    ChatCompleter
	tracker   *usage.Tracker
	journal   *usage.Journal
	cfg       Config
	languages map[string]string
	log       zerolog.Logger
}

// GatewayOption configures optional collaborators.
type GatewayOption func(*Gateway)

// WithJournal attaches an append-only usage journal. Journal failures are
// logged, never propagated: accounting must not break the chat path.
func WithJournal(j *usage.Journal) GatewayOption {
	return func(g *Gateway) { g.journal = j }
}

// NewGateway builds a gateway over the given completion client and tracker.
func NewGateway(client ChatCompleter, tracker *usage.Tracker, cfg Config, opts ...GatewayOption) *Gateway {
	cfg = cfg.withDefaults()
	g := &Gateway{
		client:    client,
		tracker:   tracker,
		cfg:       cfg,
		languages: languageTable(cfg.ExtendedLanguages),
		log:       log.With().Str("component", "translate").Logger(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(g)
		}
	}
	return g
}

// Translate performs a one-shot translation of req.Message into the target
// language. Usage is reported to the tracker exactly once on success and
// never on failure.
func (g *Gateway) Translate(ctx context.Context, req Request) (*Result, error) {
	langName, err := g.validate(req)
	if err != nil {
		return nil, err
	}

	persona := fmt.Sprintf("You are a professional translator specializing in %s.", langName)
	extra := ""
	if req.Style == StylePoetic {
		persona = fmt.Sprintf("You are a poetic translator specializing in %s, with a flair for creative and expressive language.", langName)
		extra = "Make the translation poetic and expressive, using beautiful metaphors and elegant phrasing while maintaining the original meaning.\n"
	}
	prompt := fmt.Sprintf(
		"Translate the following text to %s.\n"+
			"Maintain the original tone, meaning, and context as accurately as possible.\n"+
			"If there are any culturally specific references, adapt them appropriately for the target language.\n"+
			"%s\nText to translate: %q\n\nTranslation:",
		langName, extra, req.Message,
	)

	messages := []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: persona},
		{Role: openai.ChatMessageRoleUser, Content: prompt},
	}
	return g.complete(ctx, g.resolveModel(req.Model, ModeTranslate), messages, req.Style, usage.KindTranslation)
}

// Converse produces a conversational reply in the target language. Prior
// turns are passed through to the provider unmodified and in order; bounding
// and trimming them is the history store's job, not the gateway's.
func (g *Gateway) Converse(ctx context.Context, req Request, turns []history.Turn) (*Result, error) {
	langName, err := g.validate(req)
	if err != nil {
		return nil, err
	}

	system := fmt.Sprintf(
		"You are a helpful, friendly AI assistant who responds in %s. Always respond in %s regardless of the language the user writes in.",
		langName, langName,
	)
	if req.Style == StylePoetic {
		system = fmt.Sprintf(
			"You are a poetic and expressive AI assistant who responds in %s with beautiful metaphors and elegant phrasing. Always respond in %s regardless of the language the user writes in.",
			langName, langName,
		)
	}

	messages := make([]openai.ChatCompletionMessage, 0, len(turns)+2)
	messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: system})
	for _, turn := range turns {
		messages = append(messages, openai.ChatCompletionMessage{Role: string(turn.Role), Content: turn.Content})
	}
	messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: req.Message})

	return g.complete(ctx, g.resolveModel(req.Model, ModeConversation), messages, req.Style, usage.KindConversation)
}

func (g *Gateway) validate(req Request) (string, error) {
	if strings.TrimSpace(req.Message) == "" {
		return "", &ValidationError{Reason: "empty message"}
	}
	langName, ok := g.languages[req.TargetLanguage]
	if !ok {
		return "", &ValidationError{Reason: "unsupported language: " + req.TargetLanguage}
	}
	return langName, nil
}

// resolveModel picks the model for a call: explicit override first, then
// the configured default for the mode. Callers never guess.
func (g *Gateway) resolveModel(override string, mode Mode) string {
	if m := strings.TrimSpace(override); m != "" {
		return m
	}
	if mode == ModeConversation {
		return g.cfg.ConversationModel
	}
	return g.cfg.TranslationModel
}

func (g *Gateway) complete(ctx context.Context, model string, messages []openai.ChatCompletionMessage, style Style, kind usage.Kind) (*Result, error) {
	temperature := g.cfg.NormalTemperature
	if style == StylePoetic {
		temperature = g.cfg.PoeticTemperature
	}

	resp, err := g.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       model,
		Messages:    messages,
		Temperature: temperature,
		MaxTokens:   g.cfg.MaxTokens,
	})
	if err != nil {
		g.log.Error().Err(err).Str("model", model).Str("kind", string(kind)).Msg("provider call failed")
		return nil, &ProviderError{Err: err}
	}
	if len(resp.Choices) == 0 {
		g.log.Error().Str("model", model).Msg("provider returned no choices")
		return nil, &ProviderError{Err: fmt.Errorf("no choices in response")}
	}

	u := usageFromResponse(resp.Usage)
	g.tracker.Record(u, kind)
	if g.journal != nil && u != nil {
		if err := g.journal.Record(ctx, usage.Entry{
			Model:            model,
			Kind:             kind,
			PromptTokens:     u.PromptTokens,
			CompletionTokens: u.CompletionTokens,
			TotalTokens:      u.TotalTokens,
		}); err != nil {
			g.log.Warn().Err(err).Msg("usage journal write failed")
		}
	}

	return &Result{
		Text:  strings.TrimSpace(resp.Choices[0].Message.Content),
		Usage: u,
	}, nil
}

// usageFromResponse maps the provider usage block, treating an all-zero
// block as absent.
func usageFromResponse(u openai.Usage) *usage.Usage {
	if u.TotalTokens == 0 && u.PromptTokens == 0 && u.CompletionTokens == 0 {
		return nil
	}
	return &usage.Usage{
		PromptTokens:     u.PromptTokens,
		CompletionTokens: u.CompletionTokens,
		TotalTokens:      u.TotalTokens,
	}
}
