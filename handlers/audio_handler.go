// handlers/audio_handler.go

package handlers

import (
	"context"
	"strings"

	"github.com/Perceptus-Labs/perceptus-sign-sdk/models"
	"github.com/Perceptus-Labs/perceptus-sign-sdk/utils"
	"go.uber.org/zap"
)

// AudioHandler turns the user's speech into chat input through Deepgram.
type AudioHandler struct {
	session        *AvatarSession
	deepgramClient *utils.DeepgramClient
	utterance      strings.Builder
}

func InitAudioHandler(session *AvatarSession) (*AudioHandler, error) {
	session.Logger.Info("Initializing Audio Handler...")

	cfg := utils.DefaultDeepgramConfig(session.deps.Config.DeepgramAPIKey)
	deepgramClient, err := utils.InitDeepgramClient(session.Ctx, cfg, session.TranscriptionCh)
	if err != nil {
		return nil, err
	}
	if err := deepgramClient.Connect(); err != nil {
		return nil, err
	}

	audioHandler := &AudioHandler{
		session:        session,
		deepgramClient: deepgramClient,
	}

	session.Logger.Info("Audio Handler initialized and connected to Deepgram")

	go audioHandler.run(session.Ctx)

	return audioHandler, nil
}

func (h *AudioHandler) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case transcript := <-h.session.TranscriptionCh:
			if transcript == models.SESSION_END {
				h.session.Logger.Info("Audio handler received SESSION_END")
				return
			}
			if utterance, done := h.accumulate(transcript); done {
				h.session.Logger.Info("End of speech detected", zap.String("transcript", utterance))
				h.session.AvatarHandler.HandleUserInputAsync(ctx, utterance, models.SourceVoice)
			}
		}
	}
}

// accumulate adds one Deepgram message to the current utterance. It returns
// the finished utterance when msg marks the end of speech.
func (h *AudioHandler) accumulate(msg string) (string, bool) {
	if msg == models.END_OF_SPEECH {
		utterance := strings.TrimSpace(h.utterance.String())
		h.utterance.Reset()
		return utterance, utterance != ""
	}
	if text := strings.TrimSpace(msg); text != "" {
		h.utterance.WriteString(text)
		h.utterance.WriteString(" ")
	}
	return "", false
}

// ProcessAudioData streams one chunk of client audio to Deepgram.
func (h *AudioHandler) ProcessAudioData(audioData []byte) error {
	if err := h.deepgramClient.Send(audioData); err != nil {
		h.session.Logger.Error("Failed to send audio data to Deepgram", zap.Error(err))
		return err
	}
	return nil
}

func (h *AudioHandler) Close() {
	h.session.Logger.Info("Closing Audio Handler")
	if h.deepgramClient != nil {
		h.deepgramClient.Close()
	}
}
