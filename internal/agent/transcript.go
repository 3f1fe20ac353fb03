package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

const (
	transcriptKeyPrefix = "voice_transcript:"
	transcriptTTL       = 24 * time.Hour
)

// TranscriptEvent is one observable conversation event: a state
// transition, a tool call, or a field merge.
type TranscriptEvent struct {
	ID        string            `json:"id"`
	Kind      string            `json:"kind"` // "transition", "tool", "merge"
	From      string            `json:"from,omitempty"`
	To        string            `json:"to,omitempty"`
	Tool      string            `json:"tool,omitempty"`
	Detail    string            `json:"detail,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}

// Transcript records conversation events per session in Redis. It is
// observability only; the conversation engine never reads it back.
type Transcript struct {
	redis     *redis.Client
	tracer    trace.Tracer
	maxEvents int64
}

func NewTranscript(redisClient *redis.Client) *Transcript {
	if redisClient == nil {
		return nil
	}
	return &Transcript{
		redis:     redisClient,
		tracer:    otel.Tracer("salon.internal.agent.transcript"),
		maxEvents: 250,
	}
}

func (t *Transcript) Append(ctx context.Context, sessionID string, evt TranscriptEvent) error {
	if t == nil || t.redis == nil {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if sessionID == "" {
		return errors.New("agent: transcript sessionID required")
	}

	if evt.ID == "" {
		evt.ID = uuid.NewString()
	}
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now().UTC()
	}

	data, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("agent: marshal transcript event: %w", err)
	}

	ctx, span := t.tracer.Start(ctx, "agent.transcript.append")
	defer span.End()

	key := transcriptKey(sessionID)
	pipe := t.redis.TxPipeline()
	pipe.RPush(ctx, key, data)
	pipe.Expire(ctx, key, transcriptTTL)
	if t.maxEvents > 0 {
		pipe.LTrim(ctx, key, -t.maxEvents, -1)
	}
	_, err = pipe.Exec(ctx)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("agent: append transcript event: %w", err)
	}
	return nil
}

func (t *Transcript) List(ctx context.Context, sessionID string, limit int64) ([]TranscriptEvent, error) {
	if t == nil || t.redis == nil {
		return nil, nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if sessionID == "" {
		return nil, errors.New("agent: transcript sessionID required")
	}

	ctx, span := t.tracer.Start(ctx, "agent.transcript.list")
	defer span.End()

	start := int64(0)
	end := int64(-1)
	if limit > 0 {
		start = -limit
	}

	key := transcriptKey(sessionID)
	raw, err := t.redis.LRange(ctx, key, start, end).Result()
	if err != nil {
		span.RecordError(err)
		if err == redis.Nil {
			return []TranscriptEvent{}, nil
		}
		return nil, fmt.Errorf("agent: list transcript: %w", err)
	}

	out := make([]TranscriptEvent, 0, len(raw))
	for _, item := range raw {
		var evt TranscriptEvent
		if err := json.Unmarshal([]byte(item), &evt); err != nil {
			span.RecordError(err)
			continue
		}
		out = append(out, evt)
	}
	return out, nil
}

func transcriptKey(sessionID string) string {
	return transcriptKeyPrefix + sessionID
}
