package utils

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Perceptus-Labs/perceptus-sign-sdk/models"
	"github.com/redis/go-redis/v9"
)

// ChatStore keeps each session's chat history as a Redis list of JSON messages.
type ChatStore struct {
	client redis.Cmdable
	ttl    time.Duration
}

func NewChatStore(client redis.Cmdable, ttl time.Duration) *ChatStore {
	return &ChatStore{client: client, ttl: ttl}
}

func chatKey(sessionID string) string {
	return "chat:" + sessionID
}

func (s *ChatStore) Append(ctx context.Context, msg models.ChatMessage) error {
	if s == nil || s.client == nil {
		return nil
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal chat message: %w", err)
	}

	key := chatKey(msg.SessionID)
	pipe := s.client.TxPipeline()
	pipe.RPush(ctx, key, payload)
	if s.ttl > 0 {
		pipe.Expire(ctx, key, s.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to store chat message: %w", err)
	}
	return nil
}

// Recent returns up to limit of the newest messages, oldest first.
func (s *ChatStore) Recent(ctx context.Context, sessionID string, limit int) ([]models.ChatMessage, error) {
	if s == nil || s.client == nil {
		return nil, nil
	}
	start := int64(0)
	if limit > 0 {
		start = -int64(limit)
	}
	raw, err := s.client.LRange(ctx, chatKey(sessionID), start, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load chat history: %w", err)
	}
	return decodeChatMessages(raw)
}

func (s *ChatStore) Clear(ctx context.Context, sessionID string) error {
	if s == nil || s.client == nil {
		return nil
	}
	if err := s.client.Del(ctx, chatKey(sessionID)).Err(); err != nil {
		return fmt.Errorf("failed to clear chat history: %w", err)
	}
	return nil
}

func decodeChatMessages(raw []string) ([]models.ChatMessage, error) {
	messages := make([]models.ChatMessage, 0, len(raw))
	for _, item := range raw {
		var msg models.ChatMessage
		if err := json.Unmarshal([]byte(item), &msg); err != nil {
			return nil, fmt.Errorf("failed to decode chat message: %w", err)
		}
		messages = append(messages, msg)
	}
	return messages, nil
}
