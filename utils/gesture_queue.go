package utils

import (
	"strings"
	"sync"

	"github.com/Perceptus-Labs/perceptus-sign-sdk/models"
	"go.uber.org/zap"
)

const DefaultConfidenceThreshold = 0.7

var DefaultGestureDisplayText = map[string]string{
	"hello":      "Hello",
	"thank_you":  "Thank you",
	"yes":        "Yes",
	"no":         "No",
	"please":     "Please",
	"help":       "Help",
	"i_love_you": "I love you",
}

type GestureQueueConfig struct {
	ConfidenceThreshold float64
	DisplayText         map[string]string
}

func DefaultGestureQueueConfig() GestureQueueConfig {
	return GestureQueueConfig{
		ConfidenceThreshold: DefaultConfidenceThreshold,
		DisplayText:         DefaultGestureDisplayText,
	}
}

// GestureQueueManager buffers the gesture tokens of one recording session.
// Samples below the confidence threshold are dropped and a token equal to
// the last queued one is never appended twice in a row.
type GestureQueueManager struct {
	config GestureQueueConfig
	logger *zap.Logger

	mu     sync.Mutex
	tokens []string
}

func NewGestureQueueManager(config GestureQueueConfig, logger *zap.Logger) *GestureQueueManager {
	if config.DisplayText == nil {
		config.DisplayText = DefaultGestureDisplayText
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GestureQueueManager{config: config, logger: logger}
}

// Start resets the queue for a new recording session.
func (m *GestureQueueManager) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tokens = nil
}

// Submit offers one sample to the queue and reports whether it was appended.
func (m *GestureQueueManager) Submit(sample *models.GestureSample) bool {
	if sample == nil || sample.Confidence < m.config.ConfidenceThreshold {
		return false
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if n := len(m.tokens); n > 0 && m.tokens[n-1] == sample.Label {
		return false
	}
	m.tokens = append(m.tokens, sample.Label)
	m.logger.Debug("Gesture queued",
		zap.String("label", sample.Label),
		zap.Float64("confidence", sample.Confidence),
		zap.Int("queue_length", len(m.tokens)))
	return true
}

// Tokens returns a copy of the queued tokens.
func (m *GestureQueueManager) Tokens() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.tokens))
	copy(out, m.tokens)
	return out
}

// Stop drains the queue into display text joined by single spaces.
// Tokens without a display mapping pass through unchanged.
func (m *GestureQueueManager) Stop() string {
	m.mu.Lock()
	tokens := m.tokens
	m.tokens = nil
	m.mu.Unlock()

	phrases := make([]string, 0, len(tokens))
	for _, token := range tokens {
		if text, ok := m.config.DisplayText[token]; ok {
			phrases = append(phrases, text)
		} else {
			phrases = append(phrases, token)
		}
	}
	return strings.Join(phrases, " ")
}
