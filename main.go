package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Perceptus-Labs/perceptus-sign-sdk/handlers"
	"github.com/Perceptus-Labs/perceptus-sign-sdk/utils"
	"github.com/lpernett/godotenv"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
	"go.uber.org/zap"
)

// Load environment variables from .env file
func init() {
	log.Info("Loading environment variables")
	err := godotenv.Load()
	if err != nil {
		log.Warn("Error loading .env file")
	}
}

func main() {
	cfg := utils.LoadConfig()

	log.SetLevel(log.DebugLevel)
	if level, err := log.ParseLevel(cfg.LogLevel); err == nil {
		log.SetLevel(level)
	}
	log.SetFormatter(&log.TextFormatter{
		ForceColors:   true,
		FullTimestamp: true,
	})

	logger, err := utils.NewLogger(cfg.LogLevel)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer logger.Sync()
	zap.ReplaceGlobals(logger)

	log.Info("Server Version: Signing Avatar V1")

	redisClient := redis.NewClient(&redis.Options{
		Addr:        cfg.RedisHost,
		Password:    cfg.RedisPassword,
		DB:          0,
		DialTimeout: 20 * time.Second, // initial connection timeout
	})

	redisCtx, cancelRedis := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelRedis()

	if _, err := redisClient.Ping(redisCtx).Result(); err != nil {
		log.Warnf("Failed to connect to Redis, chat history disabled: %v", err)
		redisClient.Close()
		redisClient = nil
	} else {
		log.Info("Successfully connected to Redis")
	}

	ctx, cancelServer := context.WithCancel(context.Background())
	defer cancelServer()

	openaiClient := utils.NewOpenAIClient(cfg.OpenAIAPIKey, cfg.OpenAIModel)
	deps := &handlers.Dependencies{
		Config:      cfg,
		RedisClient: redisClient,
		Generator:   openaiClient,
		Embedder:    openaiClient,
		Clock:       utils.NewFrameClock(),
	}

	if cfg.CaptureSource == "camera" {
		frames := utils.NewLatestFrameBuffer()
		camera := utils.NewCameraCapture(cfg.CameraDevice)
		go camera.Run(ctx, cfg.CameraInterval, frames, logger.With(zap.String("component", "camera")))
		deps.SharedFrames = frames
	}

	http.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	http.HandleFunc("/avatar", func(w http.ResponseWriter, r *http.Request) {
		handlers.HandleAvatarSession(w, r, deps)
	})

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	server := &http.Server{Addr: ":" + cfg.Port}
	serverExit := make(chan struct{})

	go func() {
		log.Info("Starting server on ", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("Server error: ", err)
		}
		close(serverExit)
	}()

	select {
	case <-stop:
		log.Info("Shutting down server...")
	case <-serverExit:
		log.Info("Server exited unexpectedly...")
	}

	cancelServer()

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("Server shutdown error: ", err)
	}
	if redisClient != nil {
		redisClient.Close()
	}

	log.Info("Server shut down gracefully")
}
