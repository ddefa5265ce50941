package handlers

import (
	"testing"

	"github.com/Perceptus-Labs/perceptus-sign-sdk/models"
	"github.com/stretchr/testify/assert"
)

func TestAudioHandler_Accumulate(t *testing.T) {
	h := &AudioHandler{}

	for _, part := range []string{"hello", "  ", "how are", "you"} {
		utterance, done := h.accumulate(part)
		assert.False(t, done)
		assert.Empty(t, utterance)
	}

	utterance, done := h.accumulate(models.END_OF_SPEECH)
	assert.True(t, done)
	assert.Equal(t, "hello how are you", utterance)

	utterance, done = h.accumulate(models.END_OF_SPEECH)
	assert.False(t, done, "end of speech with nothing said")
	assert.Empty(t, utterance)
}
