// Package chat owns the lifecycle of each client connection: it binds a
// connection identity to its session history, dispatches inbound events,
// runs provider calls asynchronously, and forwards results back to the
// client over a per-connection event topic.
package chat

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/fmmr/plyglot/pkg/history"
	"github.com/fmmr/plyglot/pkg/translate"
	"github.com/fmmr/plyglot/pkg/usage"
)

// genericErrorMessage is the only error text clients ever see.
const genericErrorMessage = "Processing failed"

// Conn is the transport-side connection the router consumes. It matches
// *websocket.Conn so the HTTP layer can hand connections over directly,
// while tests substitute scripted stubs.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// Router dispatches events for all connections. Outbound frames travel
// through an in-memory pub/sub, one topic per connection, so each websocket
// has a single writer regardless of how many goroutines produce responses.
type Router struct {
	history *history.Store
	gateway *translate.Gateway
	tracker *usage.Tracker
	pubsub  *gochannel.GoChannel
	log     zerolog.Logger
}

// NewRouter wires the router to its collaborators.
func NewRouter(hist *history.Store, gateway *translate.Gateway, tracker *usage.Tracker) *Router {
	logger := log.With().Str("component", "chat").Logger()
	return &Router{
		history: hist,
		gateway: gateway,
		tracker: tracker,
		pubsub: gochannel.NewGoChannel(
			gochannel.Config{OutputChannelBuffer: 64},
			newWatermillLogger(logger),
		),
		log: logger,
	}
}

// Close shuts down the outbound pub/sub. Connections still in
// HandleConnection will observe their subscriptions closing.
func (r *Router) Close() error {
	return r.pubsub.Close()
}

func topicForConn(id string) string { return "chat:" + id }

// HandleConnection runs a connection from open to disconnect and blocks
// until the client goes away. ctx is the server lifetime: an in-flight
// provider call is deliberately not cancelled when its client disconnects,
// so its usage is still recorded; only the response delivery is dropped.
func (r *Router) HandleConnection(ctx context.Context, conn Conn) {
	id := uuid.NewString()
	connLog := r.log.With().Str("conn_id", id).Logger()

	r.history.Open(id)
	connLog.Info().Msg("client connected")

	subCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	ch, err := r.pubsub.Subscribe(subCtx, topicForConn(id))
	if err != nil {
		connLog.Error().Err(err).Msg("subscribe failed")
		r.history.Close(id)
		_ = conn.Close()
		return
	}

	var writer sync.WaitGroup
	writer.Add(1)
	go func() {
		defer writer.Done()
		for msg := range ch {
			if err := conn.WriteMessage(websocket.TextMessage, msg.Payload); err != nil {
				connLog.Debug().Err(err).Msg("write failed, stopping forwarder")
				msg.Ack()
				cancel()
				// keep draining so late publishers never block
				for late := range ch {
					late.Ack()
				}
				return
			}
			msg.Ack()
		}
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			connLog.Debug().Err(err).Msg("read loop end")
			break
		}
		r.dispatch(ctx, id, data, connLog)
	}

	// Disconnect: retire the identity. A provider call still in flight
	// finds the session gone and its append becomes a no-op.
	r.history.Close(id)
	cancel()
	writer.Wait()
	_ = conn.Close()
	connLog.Info().Msg("client disconnected")
}

func (r *Router) dispatch(ctx context.Context, id string, data []byte, connLog zerolog.Logger) {
	var f Frame
	if err := json.Unmarshal(data, &f); err != nil {
		connLog.Warn().Err(err).Msg("malformed frame")
		r.emitError(id, connLog)
		return
	}

	switch f.Event {
	case EventChatMessage:
		r.handleChatMessage(ctx, id, f.Data, connLog)
	case EventSwitchMode:
		// Informational only: history is keyed by identity, not mode, so
		// conversation continuity survives mode switches by construction.
		var p ModeSwitchPayload
		_ = json.Unmarshal(f.Data, &p)
		connLog.Info().Str("interaction_type", p.InteractionType).Msg("mode switched")
	case EventGetUsageStats:
		connLog.Debug().Msg("usage stats requested")
		r.emit(id, EventUsageStats, r.tracker.Snapshot(), connLog)
	case EventSettingsChange:
		var p SettingsPayload
		_ = json.Unmarshal(f.Data, &p)
		connLog.Info().
			Str("type", p.Type).
			Str("from", p.From).
			Str("to", p.To).
			Msg("settings changed")
	default:
		connLog.Warn().Str("event", f.Event).Msg("unknown event")
	}
}

func (r *Router) handleChatMessage(ctx context.Context, id string, raw json.RawMessage, connLog zerolog.Logger) {
	var p MessagePayload
	if err := json.Unmarshal(raw, &p); err != nil {
		connLog.Warn().Err(err).Msg("malformed chat message payload")
		r.emitError(id, connLog)
		return
	}
	if strings.TrimSpace(p.Message) == "" || strings.TrimSpace(p.TargetLang) == "" {
		connLog.Warn().Msg("chat message missing text or target language")
		r.emitError(id, connLog)
		return
	}

	style := translate.Style(p.ResponseMode)
	if style == "" {
		style = translate.StyleNormal
	}
	mode := translate.Mode(p.InteractionType)
	if mode == "" {
		mode = translate.ModeTranslate
	}
	if mode != translate.ModeTranslate && mode != translate.ModeConversation {
		connLog.Warn().Str("interaction_type", p.InteractionType).Msg("unknown interaction mode")
		r.emitError(id, connLog)
		return
	}

	connLog.Info().
		Str("target_lang", p.TargetLang).
		Str("style", string(style)).
		Str("mode", string(mode)).
		Int("message_len", len(p.Message)).
		Msg("chat message received")

	req := translate.Request{
		Message:        p.Message,
		TargetLanguage: p.TargetLang,
		Style:          style,
		Model:          p.Model,
	}

	// The history read must happen before the call so the provider sees a
	// snapshot consistent with the eventual append.
	var turns []history.Turn
	if mode == translate.ModeConversation {
		turns = r.history.Get(id)
	}

	go func() {
		start := time.Now()
		var (
			res *translate.Result
			err error
		)
		if mode == translate.ModeConversation {
			res, err = r.gateway.Converse(ctx, req, turns)
		} else {
			res, err = r.gateway.Translate(ctx, req)
		}
		if err != nil {
			connLog.Error().Err(err).Str("mode", string(mode)).Msg("message processing failed")
			r.emitError(id, connLog)
			return
		}
		connLog.Debug().Dur("duration", time.Since(start)).Msg("provider call completed")

		if mode == translate.ModeConversation {
			r.history.AppendExchange(id, p.Message, res.Text)
		}
		r.emit(id, EventChatResponse, ResponsePayload{
			Text:  res.Text,
			Usage: res.Usage,
			Stats: r.tracker.Snapshot(),
		}, connLog)
	}()
}

func (r *Router) emit(id, event string, data any, connLog zerolog.Logger) {
	b, err := marshalFrame(event, data)
	if err != nil {
		connLog.Error().Err(err).Str("event", event).Msg("marshal frame failed")
		return
	}
	msg := message.NewMessage(watermill.NewUUID(), b)
	if err := r.pubsub.Publish(topicForConn(id), msg); err != nil {
		connLog.Debug().Err(err).Str("event", event).Msg("publish failed")
	}
}

func (r *Router) emitError(id string, connLog zerolog.Logger) {
	r.emit(id, EventError, ErrorPayload{Message: genericErrorMessage}, connLog)
}
