package utils

import (
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/Perceptus-Labs/perceptus-sign-sdk/models"
	"go.uber.org/zap"
)

// RandomSource is the pseudo-random capability used for out-of-vocabulary
// fallbacks. *rand.Rand satisfies it.
type RandomSource interface {
	Float64() float64
	Intn(n int) int
}

// NewSeededSource returns a deterministic RandomSource.
func NewSeededSource(seed int64) RandomSource {
	return rand.New(rand.NewSource(seed))
}

// Range is a closed interval for randomized pose components.
type Range struct {
	Min float64
	Max float64
}

func (r Range) sample(src RandomSource) float64 {
	return r.Min + src.Float64()*(r.Max-r.Min)
}

type SynthesizerConfig struct {
	WordDuration time.Duration
	RestPadding  time.Duration

	// WordPoses maps a vocabulary word to its signed pose. Expression is
	// ignored here; it comes from the word sets below.
	WordPoses     map[string]models.Pose
	PositiveWords map[string]bool
	QuestionWords map[string]bool

	OffsetRange   Range
	RotationRange Range
	HeadRange     Range
}

func DefaultSynthesizerConfig() SynthesizerConfig {
	return SynthesizerConfig{
		WordDuration: 500 * time.Millisecond,
		RestPadding:  500 * time.Millisecond,
		WordPoses: map[string]models.Pose{
			"hello": {
				LeftArm:  models.PoseComponent{X: 0, Y: 0, Rotation: 0},
				RightArm: models.PoseComponent{X: 20, Y: -40, Rotation: -45},
				Head:     models.HeadPose{Rotation: 5},
			},
			"help": {
				LeftArm:  models.PoseComponent{X: 10, Y: -20, Rotation: 30},
				RightArm: models.PoseComponent{X: -10, Y: -25, Rotation: -30},
				Head:     models.HeadPose{Rotation: 0},
			},
			"thank": {
				LeftArm:  models.PoseComponent{X: 0, Y: 0, Rotation: 0},
				RightArm: models.PoseComponent{X: 5, Y: -30, Rotation: -20},
				Head:     models.HeadPose{Rotation: -10},
			},
			"you": {
				LeftArm:  models.PoseComponent{X: 0, Y: 0, Rotation: 0},
				RightArm: models.PoseComponent{X: 30, Y: -10, Rotation: -60},
				Head:     models.HeadPose{Rotation: 0},
			},
			"good": {
				LeftArm:  models.PoseComponent{X: -5, Y: -10, Rotation: 15},
				RightArm: models.PoseComponent{X: 15, Y: -35, Rotation: -30},
				Head:     models.HeadPose{Rotation: 8},
			},
			"yes": {
				LeftArm:  models.PoseComponent{X: 0, Y: 0, Rotation: 0},
				RightArm: models.PoseComponent{X: 10, Y: -20, Rotation: -90},
				Head:     models.HeadPose{Rotation: 10},
			},
			"no": {
				LeftArm:  models.PoseComponent{X: 0, Y: 0, Rotation: 0},
				RightArm: models.PoseComponent{X: 25, Y: -20, Rotation: 20},
				Head:     models.HeadPose{Rotation: -15},
			},
		},
		PositiveWords: wordSet("hello", "thank", "thanks", "good", "great", "yes", "love", "welcome", "happy", "glad"),
		QuestionWords: wordSet("?", "what", "why", "how", "when", "where", "who", "which"),
		OffsetRange:   Range{Min: -30, Max: 30},
		RotationRange: Range{Min: -45, Max: 45},
		HeadRange:     Range{Min: -10, Max: 10},
	}
}

func wordSet(words ...string) map[string]bool {
	set := make(map[string]bool, len(words))
	for _, w := range words {
		set[w] = true
	}
	return set
}

// KeyframeSynthesizer turns response text into a signing animation. It is
// safe for concurrent use.
type KeyframeSynthesizer struct {
	config SynthesizerConfig
	logger *zap.Logger

	rngMu sync.Mutex
	rng   RandomSource
}

func NewKeyframeSynthesizer(config SynthesizerConfig, rng RandomSource, logger *zap.Logger) *KeyframeSynthesizer {
	if rng == nil {
		rng = NewSeededSource(time.Now().UnixNano())
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &KeyframeSynthesizer{config: config, rng: rng, logger: logger}
}

// Synthesize emits a rest keyframe at 0, one keyframe per word and a closing
// rest keyframe. The first word lands at RestPadding, each following word
// WordDuration later, and the closing rest RestPadding after the last word.
// It never fails: unknown words get a bounded random pose.
func (s *KeyframeSynthesizer) Synthesize(text string) *models.Animation {
	words := strings.Fields(strings.ToLower(text))

	keyframes := make([]models.Keyframe, 0, len(words)+2)
	keyframes = append(keyframes, models.Keyframe{TimestampMs: 0, Pose: models.RestPose})

	wordMs := s.config.WordDuration.Milliseconds()
	padMs := s.config.RestPadding.Milliseconds()

	var t int64
	unknown := 0
	for i, word := range words {
		if i == 0 {
			t += padMs
		} else {
			t += wordMs
		}
		pose, ok := s.config.WordPoses[word]
		if !ok {
			pose = s.randomPose()
			unknown++
		}
		pose.Expression = s.expressionFor(word)
		keyframes = append(keyframes, models.Keyframe{TimestampMs: t, Pose: pose})
	}
	t += padMs
	keyframes = append(keyframes, models.Keyframe{TimestampMs: t, Pose: models.RestPose})

	s.logger.Debug("Synthesized animation",
		zap.Int("words", len(words)),
		zap.Int("unknown_words", unknown),
		zap.Int64("duration_ms", t))

	return &models.Animation{
		Name:       animationName(words),
		Keyframes:  keyframes,
		DurationMs: t,
	}
}

func (s *KeyframeSynthesizer) randomPose() models.Pose {
	s.rngMu.Lock()
	defer s.rngMu.Unlock()
	return models.Pose{
		LeftArm: models.PoseComponent{
			X:        s.config.OffsetRange.sample(s.rng),
			Y:        s.config.OffsetRange.sample(s.rng),
			Rotation: s.config.RotationRange.sample(s.rng),
		},
		RightArm: models.PoseComponent{
			X:        s.config.OffsetRange.sample(s.rng),
			Y:        s.config.OffsetRange.sample(s.rng),
			Rotation: s.config.RotationRange.sample(s.rng),
		},
		Head: models.HeadPose{Rotation: s.config.HeadRange.sample(s.rng)},
	}
}

func (s *KeyframeSynthesizer) expressionFor(word string) models.Expression {
	switch {
	case s.config.PositiveWords[word]:
		return models.ExpressionHappy
	case s.config.QuestionWords[word]:
		return models.ExpressionQuestioning
	default:
		return models.ExpressionNeutral
	}
}

func animationName(words []string) string {
	if len(words) == 0 {
		return "rest"
	}
	if len(words) > 3 {
		words = words[:3]
	}
	return "sign:" + strings.Join(words, "-")
}
