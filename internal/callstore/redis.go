package callstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps call records in a Redis hash per call, so transcripts and
// outcomes survive a process restart and can be read by other instances.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

// NewRedisClient connects to Redis and verifies the connection.
func NewRedisClient(addr, username, password string) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         addr,
		Username:     username,
		Password:     password,
		DB:           0,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
		PoolSize:     10,
		MinIdleConns: 1,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return rdb, nil
}

func callKey(callSID string) string {
	return "call:" + callSID
}

func (s *RedisStore) Create(ctx context.Context, rec Record) error {
	key := callKey(rec.CallSID)

	transcript, err := json.Marshal(rec.Transcript)
	if err != nil {
		return fmt.Errorf("marshal transcript: %w", err)
	}

	fields := map[string]any{
		"call_sid":       rec.CallSID,
		"to":             rec.To,
		"status":         rec.Status,
		"appointment_id": rec.AppointmentID,
		"transcript":     string(transcript),
		"outcome":        string(rec.Outcome),
		"new_datetime":   "",
		"updated_at":     time.Now().Format(time.RFC3339Nano),
	}
	if rec.NewDateTime != nil {
		fields["new_datetime"] = rec.NewDateTime.Format(time.RFC3339Nano)
	}

	pipe := s.client.TxPipeline()
	pipe.Del(ctx, key)
	pipe.HSet(ctx, key, fields)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("create call record: %w", err)
	}
	return nil
}

func (s *RedisStore) SetStatus(ctx context.Context, callSID, status string) error {
	return s.setFields(ctx, callSID, map[string]any{"status": status})
}

func (s *RedisStore) SetTranscript(ctx context.Context, callSID string, turns []Turn) error {
	transcript, err := json.Marshal(turns)
	if err != nil {
		return fmt.Errorf("marshal transcript: %w", err)
	}
	return s.setFields(ctx, callSID, map[string]any{"transcript": string(transcript)})
}

func (s *RedisStore) SetOutcome(ctx context.Context, callSID string, outcome Outcome, newDateTime *time.Time) error {
	fields := map[string]any{
		"outcome":      string(outcome),
		"new_datetime": "",
	}
	if newDateTime != nil {
		fields["new_datetime"] = newDateTime.Format(time.RFC3339Nano)
	}
	return s.setFields(ctx, callSID, fields)
}

func (s *RedisStore) setFields(ctx context.Context, callSID string, fields map[string]any) error {
	key := callKey(callSID)

	exists, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("check call record: %w", err)
	}
	if exists == 0 {
		return ErrCallNotFound
	}

	fields["updated_at"] = time.Now().Format(time.RFC3339Nano)
	if err := s.client.HSet(ctx, key, fields).Err(); err != nil {
		return fmt.Errorf("update call record: %w", err)
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, callSID string) (*Record, error) {
	vals, err := s.client.HGetAll(ctx, callKey(callSID)).Result()
	if err != nil {
		return nil, fmt.Errorf("load call record: %w", err)
	}
	if len(vals) == 0 {
		return nil, ErrCallNotFound
	}

	rec := &Record{
		CallSID:       vals["call_sid"],
		To:            vals["to"],
		Status:        vals["status"],
		AppointmentID: vals["appointment_id"],
		Outcome:       Outcome(vals["outcome"]),
	}

	if raw := vals["transcript"]; raw != "" {
		if err := json.Unmarshal([]byte(raw), &rec.Transcript); err != nil {
			return nil, fmt.Errorf("unmarshal transcript: %w", err)
		}
	}
	if raw := vals["new_datetime"]; raw != "" {
		t, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			return nil, fmt.Errorf("parse new_datetime: %w", err)
		}
		rec.NewDateTime = &t
	}
	if raw := vals["updated_at"]; raw != "" {
		if t, err := time.Parse(time.RFC3339Nano, raw); err == nil {
			rec.UpdatedAt = t
		}
	}

	return rec, nil
}
