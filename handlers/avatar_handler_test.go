package handlers

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Perceptus-Labs/perceptus-sign-sdk/models"
	"github.com/Perceptus-Labs/perceptus-sign-sdk/utils"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeGenerator struct {
	mu     sync.Mutex
	reply  string
	err    error
	inputs []string
}

func (g *fakeGenerator) GetResponseText(_ context.Context, input string, _ []models.ChatMessage, _ []string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.inputs = append(g.inputs, input)
	return g.reply, g.err
}

type eventLog struct {
	mu     sync.Mutex
	events []string
	data   []interface{}
}

func (l *eventLog) notify(msgType string, data interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, msgType)
	l.data = append(l.data, data)
}

func (l *eventLog) types() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.events...)
}

func newTestAvatarHandler(gen ResponseGenerator, clock utils.Clock, log *eventLog) (*AvatarHandler, *utils.AnimationPlayer) {
	player := utils.NewAnimationPlayer(clock, 0, nil, nil)
	h := InitAvatarHandler(AvatarHandlerDeps{
		SessionID:     "session-1",
		Generator:     gen,
		Synthesizer:   utils.NewKeyframeSynthesizer(utils.DefaultSynthesizerConfig(), utils.NewSeededSource(1), nil),
		Player:        player,
		FallbackReply: "Sorry, try again.",
		Notify:        log.notify,
	})
	return h, player
}

func TestHandleUserInput_SignsReply(t *testing.T) {
	clock := utils.NewManualClock(time.Unix(0, 0))
	gen := &fakeGenerator{reply: "hello you"}
	log := &eventLog{}
	h, player := newTestAvatarHandler(gen, clock, log)

	msg := h.HandleUserInput(context.Background(), "  hi there ", models.SourceTyped)
	require.NotNil(t, msg)
	assert.Equal(t, "hello you", msg.Text)
	assert.Equal(t, models.SourceBot, msg.Source)
	assert.False(t, msg.Fallback)
	assert.Equal(t, []string{"hi there"}, gen.inputs)

	assert.True(t, player.Active())
	assert.Equal(t, []string{"user_message", "bot_reply", "animation_started"}, log.types())

	// hello you: 500ms padding, two words, 500ms padding.
	clock.Advance(1500 * time.Millisecond)
	require.Eventually(t, func() bool { return len(log.types()) == 4 }, time.Second, time.Millisecond)
	assert.Equal(t, "animation_finished", log.types()[3])

	log.mu.Lock()
	finished := log.data[3].(map[string]interface{})
	log.mu.Unlock()
	assert.Equal(t, true, finished["completed"])

	h.Close()
}

func TestHandleUserInput_FallbackIsNotSigned(t *testing.T) {
	clock := utils.NewManualClock(time.Unix(0, 0))
	gen := &fakeGenerator{err: errors.New("upstream unavailable")}
	log := &eventLog{}
	h, player := newTestAvatarHandler(gen, clock, log)

	msg := h.HandleUserInput(context.Background(), "hi", models.SourceSigned)
	require.NotNil(t, msg)
	assert.Equal(t, "Sorry, try again.", msg.Text)
	assert.True(t, msg.Fallback)

	assert.False(t, player.Active())
	assert.Equal(t, 0, clock.Tickers())
	assert.Equal(t, []string{"user_message", "bot_reply"}, log.types())
	h.Close()
}

func TestHandleUserInput_IgnoresBlankInput(t *testing.T) {
	gen := &fakeGenerator{reply: "hello"}
	log := &eventLog{}
	h, _ := newTestAvatarHandler(gen, utils.NewManualClock(time.Unix(0, 0)), log)

	assert.Nil(t, h.HandleUserInput(context.Background(), "   ", models.SourceTyped))
	assert.Empty(t, gen.inputs)
	assert.Empty(t, log.types())
}

func TestHandleUserInput_NewReplySupersedesAnimation(t *testing.T) {
	clock := utils.NewManualClock(time.Unix(0, 0))
	gen := &fakeGenerator{reply: "thank you very much"}
	log := &eventLog{}
	h, player := newTestAvatarHandler(gen, clock, log)

	h.HandleUserInput(context.Background(), "first", models.SourceTyped)
	clock.Advance(100 * time.Millisecond)
	h.HandleUserInput(context.Background(), "second", models.SourceTyped)

	require.Eventually(t, func() bool {
		for _, e := range log.types() {
			if e == "animation_finished" {
				return true
			}
		}
		return false
	}, time.Second, time.Millisecond)

	assert.True(t, player.Active())
	assert.Equal(t, 1, clock.Tickers())

	log.mu.Lock()
	for i, e := range log.events {
		if e == "animation_finished" {
			assert.Equal(t, false, log.data[i].(map[string]interface{})["completed"])
		}
	}
	log.mu.Unlock()
	h.Close()
	assert.False(t, player.Active())
}

// gatedGenerator blocks each reply until release is closed.
type gatedGenerator struct {
	reply   string
	entered chan struct{}
	release chan struct{}
}

func (g *gatedGenerator) GetResponseText(context.Context, string, []models.ChatMessage, []string) (string, error) {
	g.entered <- struct{}{}
	<-g.release
	return g.reply, nil
}

func TestClose_DuringTurnSkipsSigning(t *testing.T) {
	clock := utils.NewManualClock(time.Unix(0, 0))
	gen := &gatedGenerator{reply: "hello", entered: make(chan struct{}, 1), release: make(chan struct{})}
	log := &eventLog{}
	h, player := newTestAvatarHandler(gen, clock, log)

	h.HandleUserInputAsync(context.Background(), "hi", models.SourceTyped)
	<-gen.entered

	closed := make(chan struct{})
	go func() {
		h.Close()
		close(closed)
	}()
	require.Eventually(t, h.isClosed, time.Second, time.Millisecond)

	select {
	case <-closed:
		t.Fatal("Close returned while a turn was still running")
	default:
	}

	close(gen.release)
	<-closed

	assert.Equal(t, []string{"user_message", "bot_reply"}, log.types())
	assert.False(t, player.Active())
	assert.Equal(t, 0, clock.Tickers())
}

func TestHandleUserInput_AfterCloseIsDropped(t *testing.T) {
	gen := &fakeGenerator{reply: "hello"}
	log := &eventLog{}
	h, _ := newTestAvatarHandler(gen, utils.NewManualClock(time.Unix(0, 0)), log)
	h.Close()

	h.HandleUserInputAsync(context.Background(), "hi", models.SourceTyped)
	assert.Nil(t, h.HandleUserInput(context.Background(), "hi", models.SourceTyped))
	h.Close()

	assert.Empty(t, gen.inputs)
	assert.Empty(t, log.types())
}

func TestClose_WaitsForConcurrentTurns(t *testing.T) {
	clock := utils.NewManualClock(time.Unix(0, 0))
	gen := &fakeGenerator{reply: "yes no"}
	log := &eventLog{}
	h, player := newTestAvatarHandler(gen, clock, log)

	for i := 0; i < 10; i++ {
		h.HandleUserInputAsync(context.Background(), "go", models.SourceVoice)
	}
	h.Close()

	events := len(log.types())
	assert.False(t, player.Active())
	assert.Equal(t, 0, clock.Tickers())
	assert.Equal(t, 0, clock.Advance(time.Second))
	assert.Equal(t, events, len(log.types()), "no events after Close returns")
}

// deletingRedis records Del calls; every other command is unused.
type deletingRedis struct {
	redis.Cmdable
	mu      sync.Mutex
	deleted []string
}

func (r *deletingRedis) Del(ctx context.Context, keys ...string) *redis.IntCmd {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deleted = append(r.deleted, keys...)
	return redis.NewIntResult(int64(len(keys)), nil)
}

func TestAvatarSession_StopClearsHistory(t *testing.T) {
	clock := utils.NewManualClock(time.Unix(0, 0))
	session := NewAvatarSession("session-9", nil, testDependencies(clock, &fakeGenerator{reply: "hi"}))
	rdb := &deletingRedis{}
	session.AvatarHandler = InitAvatarHandler(AvatarHandlerDeps{
		SessionID:   session.ID,
		Generator:   &fakeGenerator{reply: "hi"},
		Synthesizer: utils.NewKeyframeSynthesizer(utils.DefaultSynthesizerConfig(), utils.NewSeededSource(1), nil),
		Player:      session.Player,
		Store:       utils.NewChatStore(rdb, time.Hour),
	})

	assert.True(t, session.handleMessage(WebSocketMessage{Type: "stop"}))
	assert.Equal(t, []string{"chat:session-9"}, rdb.deleted)
	session.Stop()
}
