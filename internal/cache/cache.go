// internal/cache/cache.go
package cache

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// DefaultStreamLen caps each table's action stream.
const DefaultStreamLen = 10000

// TableActionRecord is one entry in a table's action history.
type TableActionRecord struct {
	TableID       uuid.UUID              `json:"tableId"`
	ActionIndex   int                    `json:"actionIndex"`
	ActorID       uuid.UUID              `json:"actorId"` // Nil for table events
	ActionType    string                 `json:"actionType"`
	ActionPayload map[string]interface{} `json:"actionPayload"`
	Timestamp     int64                  `json:"timestamp"` // unix millis
}

// Connect parses a redis:// URL and verifies the server answers.
func Connect(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	logrus.Infof("Connected to Redis at %s", opts.Addr)
	return rdb, nil
}

// Historian appends table actions to per-table Redis streams.
type Historian struct {
	rdb    *redis.Client
	MaxLen int64
}

// NewHistorian wraps an open client.
func NewHistorian(rdb *redis.Client) *Historian {
	return &Historian{rdb: rdb, MaxLen: DefaultStreamLen}
}

// StreamKey is the Redis stream holding a table's actions.
func StreamKey(tableID uuid.UUID) string {
	return "table:" + tableID.String() + ":actions"
}

// PublishTableAction appends rec to its table's stream.
func (h *Historian) PublishTableAction(ctx context.Context, rec TableActionRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal action record: %w", err)
	}
	return h.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: StreamKey(rec.TableID),
		MaxLen: h.MaxLen,
		Approx: true,
		Values: map[string]interface{}{"record": data},
	}).Err()
}

// TableActions returns up to count of a table's oldest recorded actions.
func (h *Historian) TableActions(ctx context.Context, tableID uuid.UUID, count int64) ([]TableActionRecord, error) {
	msgs, err := h.rdb.XRangeN(ctx, StreamKey(tableID), "-", "+", count).Result()
	if err != nil {
		return nil, fmt.Errorf("read action stream: %w", err)
	}
	out := make([]TableActionRecord, 0, len(msgs))
	for _, m := range msgs {
		rec, err := decodeRecord(m.Values)
		if err != nil {
			logrus.Warnf("Skipping malformed action %s for table %s: %v", m.ID, tableID, err)
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

// Drop deletes a table's stream.
func (h *Historian) Drop(ctx context.Context, tableID uuid.UUID) error {
	return h.rdb.Del(ctx, StreamKey(tableID)).Err()
}

func decodeRecord(values map[string]interface{}) (TableActionRecord, error) {
	var rec TableActionRecord
	raw, ok := values["record"]
	if !ok {
		return rec, fmt.Errorf("missing record field")
	}
	var data []byte
	switch v := raw.(type) {
	case string:
		data = []byte(v)
	case []byte:
		data = v
	default:
		return rec, fmt.Errorf("unexpected record type %T", raw)
	}
	if err := json.Unmarshal(data, &rec); err != nil {
		return rec, fmt.Errorf("unmarshal action record: %w", err)
	}
	return rec, nil
}
