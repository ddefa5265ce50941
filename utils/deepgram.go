package utils

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/Perceptus-Labs/perceptus-sign-sdk/models"
	msginterfaces "github.com/deepgram/deepgram-go-sdk/pkg/api/listen/v1/websocket/interfaces"
	"github.com/deepgram/deepgram-go-sdk/pkg/client/interfaces"
	"github.com/deepgram/deepgram-go-sdk/pkg/client/listen"
)

type DeepgramConfig struct {
	APIKey              string
	Language            string
	Model               string
	Encoding            string
	SampleRate          int
	ConfidenceThreshold float64
	UtteranceEndMs      int
}

func DefaultDeepgramConfig(apiKey string) DeepgramConfig {
	return DeepgramConfig{
		APIKey:              apiKey,
		Language:            "en",
		Model:               "nova-3",
		Encoding:            "linear16",
		SampleRate:          16000,
		ConfidenceThreshold: 0.3,
		UtteranceEndMs:      1000,
	}
}

// DeepgramCallback forwards final transcripts and end-of-speech markers to
// TranscriptionChannel. It never blocks the SDK: when the channel is full
// the transcript is dropped.
type DeepgramCallback struct {
	TranscriptionChannel chan string
	confidenceThreshold  float64
	useUtteranceEnd      bool
}

type DeepgramClient struct {
	dgClient            *listen.WSCallback
	callback            *DeepgramCallback
	totalAudioBytesSent int64
}

func InitDeepgramClient(ctx context.Context, cfg DeepgramConfig, transcriptionCh chan string) (*DeepgramClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("DEEPGRAM_API_KEY environment variable not set")
	}

	transcriptOptions := &interfaces.LiveTranscriptionOptions{
		Language:       cfg.Language,
		Encoding:       cfg.Encoding,
		SampleRate:     cfg.SampleRate,
		Channels:       1,
		Endpointing:    "300",
		InterimResults: true,
		Model:          cfg.Model,
	}
	if cfg.UtteranceEndMs > 0 {
		transcriptOptions.UtteranceEndMs = strconv.Itoa(cfg.UtteranceEndMs)
	}

	callback := &DeepgramCallback{
		TranscriptionChannel: transcriptionCh,
		confidenceThreshold:  cfg.ConfidenceThreshold,
		useUtteranceEnd:      cfg.UtteranceEndMs > 0,
	}

	clientOptions := &interfaces.ClientOptions{
		EnableKeepAlive: true,
	}

	dgClient, err := listen.NewWebSocketUsingCallback(ctx, cfg.APIKey, clientOptions, transcriptOptions, callback)
	if err != nil {
		return nil, fmt.Errorf("failed to create live transcription connection: %w", err)
	}

	log.Info("Deepgram client created, model: ", cfg.Model, ", confidence threshold: ", cfg.ConfidenceThreshold)
	return &DeepgramClient{dgClient: dgClient, callback: callback}, nil
}

func (d *DeepgramClient) Connect() error {
	if !d.dgClient.Connect() {
		return fmt.Errorf("failed to connect to Deepgram websocket")
	}
	return nil
}

func (d *DeepgramClient) Send(data []byte) error {
	reader := bufio.NewReader(bytes.NewReader(data))
	if err := d.dgClient.Stream(reader); err != nil && err != io.EOF {
		return fmt.Errorf("failed to stream audio to Deepgram: %w", err)
	}
	d.totalAudioBytesSent += int64(len(data))
	return nil
}

func (d *DeepgramClient) Close() {
	log.Info("Closing Deepgram client, audio bytes sent: ", d.totalAudioBytesSent)
	d.dgClient.Stop()
}

func (c *DeepgramCallback) emit(msg string) {
	select {
	case c.TranscriptionChannel <- msg:
	default:
		log.Warn("Transcription channel full, dropping: ", msg)
	}
}

func (c *DeepgramCallback) Open(or *msginterfaces.OpenResponse) error {
	log.Info("Deepgram socket connection opened")
	return nil
}

func (c *DeepgramCallback) Message(mr *msginterfaces.MessageResponse) error {
	if len(mr.Channel.Alternatives) == 0 {
		return nil
	}

	alternative := mr.Channel.Alternatives[0]
	transcript := strings.TrimSpace(alternative.Transcript)

	if transcript != "" && mr.IsFinal {
		if alternative.Confidence < c.confidenceThreshold {
			log.Debug("Discarding low confidence transcript: ", transcript)
		} else {
			log.Debug("Final transcript: ", transcript)
			c.emit(transcript)
		}
	}

	if !c.useUtteranceEnd && mr.SpeechFinal {
		c.emit(models.END_OF_SPEECH)
	}
	return nil
}

func (c *DeepgramCallback) Metadata(md *msginterfaces.MetadataResponse) error {
	log.Debug("Received metadata: ", md)
	return nil
}

func (c *DeepgramCallback) SpeechStarted(ssr *msginterfaces.SpeechStartedResponse) error {
	log.Debug("Speech started")
	return nil
}

func (c *DeepgramCallback) UtteranceEnd(ur *msginterfaces.UtteranceEndResponse) error {
	log.Debug("Utterance ended")
	c.emit(models.END_OF_SPEECH)
	return nil
}

func (c *DeepgramCallback) Close(cr *msginterfaces.CloseResponse) error {
	log.Info("Deepgram websocket connection closed")
	return nil
}

func (c *DeepgramCallback) Error(er *msginterfaces.ErrorResponse) error {
	log.Error("Deepgram websocket error: ", er)
	return nil
}

func (c *DeepgramCallback) UnhandledEvent(byData []byte) error {
	log.Warn("Unhandled Deepgram event: ", string(byData))
	return nil
}
