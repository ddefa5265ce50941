package handlers

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/Perceptus-Labs/perceptus-sign-sdk/models"
	"github.com/Perceptus-Labs/perceptus-sign-sdk/utils"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Dependencies are shared by every avatar session of the process.
type Dependencies struct {
	Config      *utils.Config
	RedisClient *redis.Client
	Generator   ResponseGenerator
	Embedder    utils.Embedder
	Clock       utils.Clock

	// SharedFrames is set when the server owns the camera. When nil each
	// session uses the frames its client pushes.
	SharedFrames utils.FrameSource
}

type AvatarSession struct {
	ID         string
	Ctx        context.Context
	Cancel     context.CancelFunc
	Connection *websocket.Conn
	Logger     *zap.Logger

	deps    *Dependencies
	writeMu sync.Mutex

	TranscriptionCh chan string

	StartTime time.Time

	activityMu   sync.Mutex
	lastActivity time.Time

	Frames     *utils.LatestFrameBuffer
	Player     *utils.AnimationPlayer
	Classifier utils.GestureClassifier

	recordingMu sync.Mutex
	recording   *RecordingSession

	AvatarHandler *AvatarHandler
	AudioHandler  *AudioHandler

	stopOnce sync.Once
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow connections from any origin
	},
}

func NewAvatarSession(id string, conn *websocket.Conn, deps *Dependencies) *AvatarSession {
	ctx, cancel := context.WithCancel(context.Background())

	logger := zap.L().With(zap.String("session_id", id))

	session := &AvatarSession{
		ID:              id,
		Ctx:             ctx,
		Cancel:          cancel,
		Connection:      conn,
		Logger:          logger,
		deps:            deps,
		TranscriptionCh: make(chan string, 100),
		StartTime:       time.Now(),
		lastActivity:    time.Now(),
		Frames:          utils.NewLatestFrameBuffer(),
	}

	cfg := deps.Config
	session.Player = utils.NewAnimationPlayer(deps.Clock, cfg.FrameInterval, session.renderPose, logger)
	session.Classifier = utils.NewSyntheticClassifier(utils.DefaultSyntheticClassifierConfig(), deps.Clock, nil, logger)

	var memory *utils.TranscriptMemoryStore
	if cfg.PineconeIndex != "" {
		idx, err := utils.GetPineconeIndex(ctx, cfg.PineconeAPIKey, cfg.PineconeIndex, id)
		if err != nil {
			// Continue without Pinecone, replies just lose the recalled context
			logger.Warn("Failed to initialize Pinecone connection", zap.Error(err))
		} else {
			memory = utils.NewTranscriptMemoryStore(idx, deps.Embedder, 5, logger)
		}
	}

	var store *utils.ChatStore
	if deps.RedisClient != nil {
		store = utils.NewChatStore(deps.RedisClient, cfg.ChatHistoryTTL)
	}

	session.AvatarHandler = InitAvatarHandler(AvatarHandlerDeps{
		SessionID:     id,
		Generator:     deps.Generator,
		Synthesizer:   utils.NewKeyframeSynthesizer(cfg.SynthesizerConfig(), nil, logger),
		Player:        session.Player,
		Store:         store,
		Memory:        memory,
		FallbackReply: cfg.FallbackReply,
		Notify:        session.sendWebSocketMessage,
		Logger:        logger,
	})

	return session
}

func (s *AvatarSession) frameSource() utils.FrameSource {
	if s.deps.SharedFrames != nil {
		return s.deps.SharedFrames
	}
	return s.Frames
}

func (s *AvatarSession) renderPose(pose models.Pose, canvasWidth, canvasHeight int) {
	s.sendWebSocketMessage("pose", map[string]interface{}{
		"pose":          pose,
		"canvas_width":  canvasWidth,
		"canvas_height": canvasHeight,
	})
}

// initClassifier warms the classifier up so the first recording starts
// without delay. Failure disables recording until a later Init succeeds.
func (s *AvatarSession) initClassifier() {
	ctx, cancel := context.WithTimeout(s.Ctx, 30*time.Second)
	defer cancel()
	if err := s.Classifier.Init(ctx); err != nil {
		s.sendWebSocketMessage("recording_disabled", map[string]string{"error": err.Error()})
	}
}

func (s *AvatarSession) startRecording() {
	s.recordingMu.Lock()
	defer s.recordingMu.Unlock()

	if s.recording != nil {
		s.Logger.Info("Discarding previous recording", zap.String("recording_id", s.recording.ID))
		s.recording.Stop()
		s.recording = nil
	}

	rs, err := StartRecording(s.Ctx, RecordingDeps{
		Classifier:  s.Classifier,
		Source:      s.frameSource(),
		Clock:       s.deps.Clock,
		Interval:    s.deps.Config.SampleInterval,
		QueueConfig: s.deps.Config.GestureQueueConfig(),
		Logger:      s.Logger,
		OnToken: func(label string) {
			s.sendWebSocketMessage("gesture_detected", map[string]string{"label": label})
		},
		OnError: func(err error) {
			s.sendWebSocketMessage("recording_error", map[string]string{"error": err.Error()})
		},
	})
	if err != nil {
		var initErr *models.InitializationError
		if errors.As(err, &initErr) {
			s.Logger.Error("Recording unavailable, classifier failed to initialize", zap.Error(err))
		}
		s.sendWebSocketMessage("recording_disabled", map[string]string{"error": err.Error()})
		return
	}

	s.recording = rs
	s.sendWebSocketMessage("recording_started", map[string]string{"recording_id": rs.ID})
}

// stopRecording drains the active recording into transcript text. It
// returns "" when nothing is recording.
func (s *AvatarSession) stopRecording() string {
	s.recordingMu.Lock()
	rs := s.recording
	s.recording = nil
	s.recordingMu.Unlock()

	if rs == nil {
		return ""
	}
	transcript := rs.Stop()
	s.sendWebSocketMessage("transcript_final", map[string]string{
		"recording_id": rs.ID,
		"transcript":   transcript,
	})
	return transcript
}

func (s *AvatarSession) Stop() {
	s.stopOnce.Do(func() {
		s.Logger.Info("Stopping session")

		select {
		case s.TranscriptionCh <- models.SESSION_END:
		default:
		}

		s.stopRecording()
		s.Cancel()
		s.AvatarHandler.Close()
		if s.AudioHandler != nil {
			s.AudioHandler.Close()
		}

		if s.Connection != nil {
			s.Connection.Close()
		}
	})
}

type WebSocketMessage struct {
	Type      string          `json:"type"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

type outgoingMessage struct {
	Type      string      `json:"type"`
	Data      interface{} `json:"data"`
	Timestamp time.Time   `json:"timestamp"`
}

type configPayload struct {
	CanvasWidth  int `json:"canvas_width"`
	CanvasHeight int `json:"canvas_height"`
}

type videoFramePayload struct {
	Data   string `json:"data"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

type chatPayload struct {
	Text string `json:"text"`
}

type audioPayload struct {
	Audio string `json:"audio"`
}

func HandleAvatarSession(w http.ResponseWriter, r *http.Request, deps *Dependencies) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		zap.L().Error("Failed to upgrade to websocket", zap.Error(err))
		return
	}

	sessionID := uuid.New().String()
	session := NewAvatarSession(sessionID, conn, deps)
	session.Logger.Info("New avatar session started")
	defer session.Stop()

	go session.initClassifier()

	if deps.Config.DeepgramAPIKey != "" {
		audioHandler, err := InitAudioHandler(session)
		if err != nil {
			session.Logger.Warn("Voice input unavailable", zap.Error(err))
		} else {
			session.AudioHandler = audioHandler
		}
	}

	go session.heartbeat(deps.Config.HeartbeatInterval)

	session.listenWebsocketMessages()
	session.Logger.Info("Avatar session ended")
}

func (s *AvatarSession) listenWebsocketMessages() {
	for {
		var msg WebSocketMessage
		if err := s.Connection.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				s.Logger.Error("WebSocket error", zap.Error(err))
			}
			return
		}
		s.touch()

		if s.handleMessage(msg) {
			return
		}
	}
}

// handleMessage dispatches one client message. It returns true when the
// client asked to end the session.
func (s *AvatarSession) handleMessage(msg WebSocketMessage) bool {
	switch msg.Type {
	case "config":
		var cfg configPayload
		if err := json.Unmarshal(msg.Data, &cfg); err != nil {
			s.Logger.Error("Invalid config data format", zap.Error(err))
			return false
		}
		s.Player.SetCanvasSize(cfg.CanvasWidth, cfg.CanvasHeight)
		s.sendWebSocketMessage("config_updated", cfg)
	case "video_frame":
		var frame videoFramePayload
		if err := json.Unmarshal(msg.Data, &frame); err != nil {
			s.Logger.Error("Invalid video frame", zap.Error(err))
			return false
		}
		if frame.Data == "" {
			s.Frames.Clear()
			return false
		}
		if err := s.Frames.PushBase64(frame.Data, frame.Width, frame.Height); err != nil {
			s.Logger.Warn("Dropping unreadable video frame", zap.Error(err))
		}
	case "start_recording":
		s.startRecording()
	case "stop_recording":
		if transcript := s.stopRecording(); transcript != "" {
			s.AvatarHandler.HandleUserInputAsync(s.Ctx, transcript, models.SourceSigned)
		}
	case "chat":
		var chat chatPayload
		if err := json.Unmarshal(msg.Data, &chat); err != nil {
			s.Logger.Error("Invalid chat message", zap.Error(err))
			return false
		}
		s.AvatarHandler.HandleUserInputAsync(s.Ctx, chat.Text, models.SourceTyped)
	case "audio_data":
		s.handleAudioData(msg.Data)
	case "stop_animation":
		s.Player.Stop()
	case "ping":
		s.sendWebSocketMessage("pong", nil)
	case "stop":
		s.Logger.Info("Received stop command from client")
		if err := s.AvatarHandler.ClearHistory(s.Ctx); err != nil {
			s.Logger.Warn("Failed to clear chat history", zap.Error(err))
		}
		s.sendWebSocketMessage("stop_confirmation", map[string]interface{}{
			"session_id": s.ID,
			"message":    "Session stopped successfully",
		})
		return true
	default:
		s.Logger.Warn("Unknown message type", zap.String("type", msg.Type))
	}
	return false
}

func (s *AvatarSession) handleAudioData(data json.RawMessage) {
	if s.AudioHandler == nil {
		s.Logger.Debug("Ignoring audio data, voice input is not configured")
		return
	}
	var payload audioPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		s.Logger.Error("Invalid audio data", zap.Error(err))
		return
	}
	audioBytes, err := base64.StdEncoding.DecodeString(payload.Audio)
	if err != nil {
		s.Logger.Error("Failed to decode audio data", zap.Error(err))
		return
	}
	if err := s.AudioHandler.ProcessAudioData(audioBytes); err != nil {
		s.Logger.Error("Failed to process audio data", zap.Error(err))
	}
}

func (s *AvatarSession) touch() {
	s.activityMu.Lock()
	s.lastActivity = time.Now()
	s.activityMu.Unlock()
}

// IdleFor returns how long ago the client last sent a message.
func (s *AvatarSession) IdleFor() time.Duration {
	s.activityMu.Lock()
	defer s.activityMu.Unlock()
	return time.Since(s.lastActivity)
}

func (s *AvatarSession) heartbeat(interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.Ctx.Done():
			return
		case <-ticker.C:
			s.Logger.Debug("Session heartbeat")
			s.sendWebSocketMessage("heartbeat", map[string]interface{}{
				"session_id": s.ID,
				"uptime":     time.Since(s.StartTime).String(),
				"idle":       s.IdleFor().String(),
				"animating":  s.Player.Active(),
			})
		}
	}
}

func (s *AvatarSession) sendWebSocketMessage(msgType string, data interface{}) {
	if s.Connection == nil {
		return
	}
	msg := outgoingMessage{
		Type:      msgType,
		Data:      data,
		Timestamp: time.Now(),
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := s.Connection.WriteJSON(msg); err != nil {
		s.Logger.Error("Failed to send websocket message", zap.Error(err), zap.String("type", msgType))
	}
}
