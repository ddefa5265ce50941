package handlers

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/Perceptus-Labs/perceptus-sign-sdk/models"
	"github.com/Perceptus-Labs/perceptus-sign-sdk/utils"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const chatHistoryLimit = 20

// ResponseGenerator produces the bot's reply text for a user input.
type ResponseGenerator interface {
	GetResponseText(ctx context.Context, userInput string, history []models.ChatMessage, memories []string) (string, error)
}

// Notifier delivers an event to the connected client.
type Notifier func(msgType string, data interface{})

// AvatarHandler runs one chat turn per user input: store the message, get a
// reply, then sign the reply with the avatar.
type AvatarHandler struct {
	sessionID   string
	generator   ResponseGenerator
	synthesizer *utils.KeyframeSynthesizer
	player      *utils.AnimationPlayer
	store       *utils.ChatStore
	memory      *utils.TranscriptMemoryStore
	fallback    string
	notify      Notifier
	logger      *zap.Logger

	turnMu sync.Mutex

	// lifeMu orders every wg.Add against Close, so no Add races Wait.
	lifeMu sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

type AvatarHandlerDeps struct {
	SessionID     string
	Generator     ResponseGenerator
	Synthesizer   *utils.KeyframeSynthesizer
	Player        *utils.AnimationPlayer
	Store         *utils.ChatStore
	Memory        *utils.TranscriptMemoryStore
	FallbackReply string
	Notify        Notifier
	Logger        *zap.Logger
}

func InitAvatarHandler(deps AvatarHandlerDeps) *AvatarHandler {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Notify == nil {
		deps.Notify = func(string, interface{}) {}
	}
	deps.Logger.Info("Initializing Avatar Handler...")
	return &AvatarHandler{
		sessionID:   deps.SessionID,
		generator:   deps.Generator,
		synthesizer: deps.Synthesizer,
		player:      deps.Player,
		store:       deps.Store,
		memory:      deps.Memory,
		fallback:    deps.FallbackReply,
		notify:      deps.Notify,
		logger:      deps.Logger,
	}
}

// HandleUserInput runs one chat turn. Turns are serialized per session; a
// newer reply supersedes the animation of an older one.
func (h *AvatarHandler) HandleUserInput(ctx context.Context, text string, source models.MessageSource) *models.ChatMessage {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	h.turnMu.Lock()
	defer h.turnMu.Unlock()

	if h.isClosed() {
		return nil
	}

	history, err := h.store.Recent(ctx, h.sessionID, chatHistoryLimit)
	if err != nil {
		h.logger.Warn("Failed to load chat history", zap.Error(err))
	}

	userMsg := h.newMessage("user", source, text)
	h.appendMessage(ctx, userMsg)
	h.notify("user_message", userMsg)

	memories, err := h.memory.Recall(ctx, text)
	if err != nil {
		h.logger.Warn("Failed to recall transcript memory", zap.Error(err))
	}
	h.rememberAsync(userMsg)

	reply, err := h.generator.GetResponseText(ctx, text, history, memories)
	fallback := false
	if err != nil {
		h.logger.Error("Failed to get bot reply, using fallback", zap.Error(err))
		reply, fallback = h.fallback, true
	}

	botMsg := h.newMessage("assistant", models.SourceBot, reply)
	botMsg.Fallback = fallback
	h.appendMessage(ctx, botMsg)
	h.notify("bot_reply", botMsg)

	// The fallback text is shown but never signed.
	if !fallback {
		h.sign(ctx, reply)
	}
	return &botMsg
}

// HandleUserInputAsync runs HandleUserInput on its own goroutine, tracked
// so Close waits for it. Input arriving after Close is dropped.
func (h *AvatarHandler) HandleUserInputAsync(ctx context.Context, text string, source models.MessageSource) {
	if !h.track() {
		h.logger.Debug("Dropping user input, handler is closed", zap.String("source", string(source)))
		return
	}
	go func() {
		defer h.wg.Done()
		h.HandleUserInput(ctx, text, source)
	}()
}

// ClearHistory drops the stored chat history of the session.
func (h *AvatarHandler) ClearHistory(ctx context.Context) error {
	return h.store.Clear(ctx, h.sessionID)
}

// sign synthesizes text into an animation and plays it. Nothing is played
// once Close has started.
func (h *AvatarHandler) sign(ctx context.Context, text string) {
	h.lifeMu.Lock()
	if h.closed {
		h.lifeMu.Unlock()
		return
	}
	animation := h.synthesizer.Synthesize(text)
	playback := h.player.Play(ctx, animation)
	h.wg.Add(1)
	h.lifeMu.Unlock()

	h.notify("animation_started", map[string]interface{}{
		"name":        animation.Name,
		"duration_ms": animation.DurationMs,
		"keyframes":   len(animation.Keyframes),
	})

	go func() {
		defer h.wg.Done()
		<-playback.Done()
		h.notify("animation_finished", map[string]interface{}{
			"name":      animation.Name,
			"completed": playback.Completed(),
		})
	}()
}

func (h *AvatarHandler) newMessage(role string, source models.MessageSource, text string) models.ChatMessage {
	return models.ChatMessage{
		ID:        uuid.New().String(),
		SessionID: h.sessionID,
		Role:      role,
		Source:    source,
		Text:      text,
		Timestamp: time.Now(),
	}
}

func (h *AvatarHandler) appendMessage(ctx context.Context, msg models.ChatMessage) {
	if err := h.store.Append(ctx, msg); err != nil {
		h.logger.Warn("Failed to store chat message", zap.Error(err), zap.String("role", msg.Role))
	}
}

func (h *AvatarHandler) rememberAsync(msg models.ChatMessage) {
	if h.memory == nil || !h.track() {
		return
	}
	go func() {
		defer h.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		err := h.memory.Remember(ctx, models.TranscriptMemory{
			ID:        msg.ID,
			SessionID: msg.SessionID,
			Text:      msg.Text,
			Source:    msg.Source,
			Timestamp: msg.Timestamp,
		})
		if err != nil {
			h.logger.Warn("Failed to store transcript memory", zap.Error(err))
		}
	}()
}

// track registers one background goroutine unless the handler is closed.
func (h *AvatarHandler) track() bool {
	h.lifeMu.Lock()
	defer h.lifeMu.Unlock()
	if h.closed {
		return false
	}
	h.wg.Add(1)
	return true
}

func (h *AvatarHandler) isClosed() bool {
	h.lifeMu.Lock()
	defer h.lifeMu.Unlock()
	return h.closed
}

// Close stops the current animation and waits for in-flight turns and
// background work. Turns still running skip signing.
func (h *AvatarHandler) Close() {
	h.logger.Info("Closing Avatar Handler")
	h.lifeMu.Lock()
	h.closed = true
	h.lifeMu.Unlock()

	h.player.Stop()
	h.wg.Wait()
}
