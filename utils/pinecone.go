package utils

import (
	"context"
	"fmt"

	"github.com/Perceptus-Labs/perceptus-sign-sdk/models"
	"github.com/pinecone-io/go-pinecone/pinecone"
	"go.uber.org/zap"
	"google.golang.org/protobuf/types/known/structpb"
)

// Embedder turns text into an embedding vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

func GetPineconeIndex(ctx context.Context, apiKey, indexName, sessionID string) (*pinecone.IndexConnection, error) {
	if indexName == "" {
		return nil, fmt.Errorf("PINECONE_INDEX environment variable is not set")
	}
	if apiKey == "" {
		return nil, fmt.Errorf("PINECONE_API_KEY environment variable is not set")
	}

	client, err := pinecone.NewClient(pinecone.NewClientParams{ApiKey: apiKey})
	if err != nil {
		return nil, fmt.Errorf("failed to create Pinecone client: %w", err)
	}

	idx, err := client.DescribeIndex(ctx, indexName)
	if err != nil {
		return nil, fmt.Errorf("failed to describe index %q: %w", indexName, err)
	}

	namespace := fmt.Sprintf("signbridge-%s", sessionID)
	idxConnection, err := client.Index(pinecone.NewIndexConnParams{Host: idx.Host, Namespace: namespace})
	if err != nil {
		return nil, fmt.Errorf("failed to create IndexConnection for Host %v: %w", idx.Host, err)
	}
	return idxConnection, nil
}

// TranscriptMemoryStore keeps past user inputs in Pinecone and recalls the
// most similar ones for a new input. A nil store is valid and does nothing.
type TranscriptMemoryStore struct {
	idx      *pinecone.IndexConnection
	embedder Embedder
	topK     int
	logger   *zap.Logger
}

func NewTranscriptMemoryStore(idx *pinecone.IndexConnection, embedder Embedder, topK int, logger *zap.Logger) *TranscriptMemoryStore {
	if idx == nil || embedder == nil {
		return nil
	}
	if topK <= 0 {
		topK = 5
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TranscriptMemoryStore{idx: idx, embedder: embedder, topK: topK, logger: logger}
}

func (s *TranscriptMemoryStore) Remember(ctx context.Context, memory models.TranscriptMemory) error {
	if s == nil {
		return nil
	}

	embedding, err := s.embedder.Embed(ctx, memory.Text)
	if err != nil {
		return fmt.Errorf("failed to create embedding: %w", err)
	}

	metadata, err := structpb.NewStruct(memoryMetadata(memory))
	if err != nil {
		return fmt.Errorf("failed to build metadata: %w", err)
	}

	_, err = s.idx.UpsertVectors(ctx, []*pinecone.Vector{{
		Id:       memory.ID,
		Values:   embedding,
		Metadata: metadata,
	}})
	if err != nil {
		return fmt.Errorf("failed to upsert to Pinecone: %w", err)
	}
	s.logger.Debug("Transcript stored in Pinecone", zap.String("vector_id", memory.ID))
	return nil
}

func (s *TranscriptMemoryStore) Recall(ctx context.Context, text string) ([]string, error) {
	if s == nil {
		return nil, nil
	}

	embedding, err := s.embedder.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedding: %w", err)
	}

	queryResponse, err := s.idx.QueryByVectorValues(ctx, &pinecone.QueryByVectorValuesRequest{
		Vector:          embedding,
		TopK:            uint32(s.topK),
		IncludeValues:   false,
		IncludeMetadata: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query Pinecone: %w", err)
	}

	var matches []string
	for _, match := range queryResponse.Matches {
		if match.Vector == nil || match.Vector.Metadata == nil {
			continue
		}
		if value, ok := match.Vector.Metadata.Fields["text"]; ok {
			if t := value.GetStringValue(); t != "" && t != text {
				matches = append(matches, t)
			}
		}
	}
	return matches, nil
}

func memoryMetadata(memory models.TranscriptMemory) map[string]interface{} {
	return map[string]interface{}{
		"text":       memory.Text,
		"source":     string(memory.Source),
		"session_id": memory.SessionID,
		"timestamp":  float64(memory.Timestamp.Unix()),
		"type":       "transcript",
	}
}
