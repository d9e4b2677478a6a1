// internal/database/database.go
package database

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jason-s-yu/cgs/internal/table"
	"github.com/sirupsen/logrus"
)

//go:embed schema.sql
var schema embed.FS

// ErrNoSnapshot is returned when a table has never been snapshotted.
var ErrNoSnapshot = errors.New("no snapshot for table")

// Store persists table snapshots and imported cards in Postgres.
type Store struct {
	pool *pgxpool.Pool
}

// Open connects to dsn and verifies the connection.
func Open(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	logrus.Info("Connected to Postgres")
	return &Store{pool: pool}, nil
}

func (s *Store) Close() { s.pool.Close() }

// Migrate applies the embedded schema. It is idempotent.
func (s *Store) Migrate(ctx context.Context) error {
	sqlBytes, err := schema.ReadFile("schema.sql")
	if err != nil {
		return err
	}
	if _, err := s.pool.Exec(ctx, string(sqlBytes)); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

// SaveSnapshot stores snap. It satisfies table.SnapshotStore.
func (s *Store) SaveSnapshot(ctx context.Context, snap table.Snapshot) error {
	objects, err := json.Marshal(snap.Objects)
	if err != nil {
		return fmt.Errorf("marshal snapshot objects: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO table_snapshots(table_id, game_id, reason, taken_at, objects)
		VALUES ($1, $2, $3, $4, $5)
	`, snap.TableID, snap.GameID, snap.Reason, snap.TakenAt, objects)
	if err != nil {
		return fmt.Errorf("insert snapshot: %w", err)
	}
	return nil
}

// LatestSnapshot loads the most recent snapshot of a table.
func (s *Store) LatestSnapshot(ctx context.Context, tableID uuid.UUID) (table.Snapshot, error) {
	snap := table.Snapshot{TableID: tableID}
	var objects []byte
	err := s.pool.QueryRow(ctx, `
		SELECT game_id, reason, taken_at, objects
		  FROM table_snapshots
		 WHERE table_id = $1
		 ORDER BY taken_at DESC, id DESC
		 LIMIT 1
	`, tableID).Scan(&snap.GameID, &snap.Reason, &snap.TakenAt, &objects)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return table.Snapshot{}, ErrNoSnapshot
		}
		return table.Snapshot{}, fmt.Errorf("load snapshot: %w", err)
	}
	if err := json.Unmarshal(objects, &snap.Objects); err != nil {
		return table.Snapshot{}, fmt.Errorf("unmarshal snapshot objects: %w", err)
	}
	return snap, nil
}

// CustomCard is an imported card as persisted.
type CustomCard struct {
	GameID     string
	CardID     string
	Name       string
	SetCode    string
	Properties map[string]string
}

// UpsertCustomCard records an imported card, replacing an earlier import
// with the same id.
func (s *Store) UpsertCustomCard(ctx context.Context, c CustomCard) error {
	props, err := json.Marshal(c.Properties)
	if err != nil {
		return fmt.Errorf("marshal card properties: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO custom_cards(game_id, card_id, name, set_code, properties)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (game_id, card_id) DO UPDATE
		   SET name = EXCLUDED.name,
		       set_code = EXCLUDED.set_code,
		       properties = EXCLUDED.properties,
		       imported_at = now()
	`, c.GameID, c.CardID, c.Name, c.SetCode, props)
	if err != nil {
		return fmt.Errorf("upsert custom card: %w", err)
	}
	return nil
}

// CustomCards returns a game's imported cards in import order.
func (s *Store) CustomCards(ctx context.Context, gameID string) ([]CustomCard, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT card_id, name, set_code, properties
		  FROM custom_cards
		 WHERE game_id = $1
		 ORDER BY imported_at, card_id
	`, gameID)
	if err != nil {
		return nil, fmt.Errorf("query custom cards: %w", err)
	}
	defer rows.Close()

	var out []CustomCard
	for rows.Next() {
		c := CustomCard{GameID: gameID}
		var props []byte
		if err := rows.Scan(&c.CardID, &c.Name, &c.SetCode, &props); err != nil {
			return nil, fmt.Errorf("scan custom card: %w", err)
		}
		if err := json.Unmarshal(props, &c.Properties); err != nil {
			return nil, fmt.Errorf("unmarshal card properties: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
