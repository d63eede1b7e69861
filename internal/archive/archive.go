package archive

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nidhogg/mnemo/internal/memory"
	"go.uber.org/zap"
)

// Store persists memory snapshots in PostgreSQL so the service can
// survive restarts. It is a pure collaborator: the in-process
// collections stay authoritative and the archive only ever holds the
// latest snapshot.
type Store struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

// New creates a Store with a pgx connection pool.
func New(dsn string, logger *zap.Logger) (*Store, error) {
	pool, err := pgxpool.New(context.Background(), dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(context.Background()); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	logger.Info("PostgreSQL connected")
	return &Store{db: pool, logger: logger}, nil
}

// Migrate reads and executes all .up.sql files from the migrations directory.
func (s *Store) Migrate(ctx context.Context, migrationsDir string) error {
	entries, err := os.ReadDir(migrationsDir)
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}

	var files []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".up.sql") {
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)

	for _, f := range files {
		data, err := os.ReadFile(filepath.Join(migrationsDir, f))
		if err != nil {
			return fmt.Errorf("read migration %s: %w", f, err)
		}
		if _, err := s.db.Exec(ctx, string(data)); err != nil {
			return fmt.Errorf("exec migration %s: %w", f, err)
		}
		s.logger.Info("Migration applied", zap.String("file", f))
	}
	return nil
}

// Save replaces the archived snapshot with the given one. The whole
// write runs in a single transaction so a crash never leaves a
// half-written snapshot behind.
func (s *Store) Save(ctx context.Context, snap *memory.Snapshot) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin snapshot tx: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, table := range []string{"memory_items", "memory_episodes", "memory_concepts", "memory_strategies"} {
		if _, err := tx.Exec(ctx, "TRUNCATE "+table); err != nil {
			return fmt.Errorf("truncate %s: %w", table, err)
		}
	}

	for _, item := range snap.Items {
		embedding, err := json.Marshal(item.Embedding)
		if err != nil {
			return fmt.Errorf("encode embedding %s: %w", item.ID, err)
		}
		associations, err := json.Marshal(item.Associations)
		if err != nil {
			return fmt.Errorf("encode associations %s: %w", item.ID, err)
		}
		itemCtx, err := json.Marshal(item.Context)
		if err != nil {
			return fmt.Errorf("encode context %s: %w", item.ID, err)
		}
		_, err = tx.Exec(ctx,
			`INSERT INTO memory_items
			 (id, content, kind, importance, embedding, access_count, last_accessed,
			  created_at, decay_factor, decayed_at, associations, context, companion_id)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
			item.ID, item.Content, string(item.Kind), int(item.Importance), embedding,
			item.AccessCount, item.LastAccessed, item.CreatedAt, item.DecayFactor,
			item.DecayedAt, associations, itemCtx, item.CompanionID)
		if err != nil {
			return fmt.Errorf("insert item %s: %w", item.ID, err)
		}
	}

	if err := insertRecords(ctx, tx, "memory_episodes", snap.Episodes, func(e *memory.EpisodicMemory) (string, string) {
		return e.EpisodeID, e.MemoryID
	}); err != nil {
		return err
	}
	if err := insertRecords(ctx, tx, "memory_concepts", snap.Concepts, func(c *memory.SemanticMemory) (string, string) {
		return c.ConceptID, c.MemoryID
	}); err != nil {
		return err
	}
	if err := insertRecords(ctx, tx, "memory_strategies", snap.Strategies, func(m *memory.MetaMemory) (string, string) {
		return m.StrategyID, m.MemoryID
	}); err != nil {
		return err
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO memory_snapshot_meta (id, taken_at) VALUES (1, $1)
		 ON CONFLICT (id) DO UPDATE SET taken_at = EXCLUDED.taken_at`,
		snap.TakenAt)
	if err != nil {
		return fmt.Errorf("record snapshot time: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit snapshot: %w", err)
	}
	s.logger.Debug("snapshot archived",
		zap.Int("items", len(snap.Items)),
		zap.Int("episodes", len(snap.Episodes)))
	return nil
}

// insertRecords archives one specialized collection. Each record is a
// jsonb blob keyed by its own id plus the companion item id.
func insertRecords[T any](ctx context.Context, tx pgx.Tx, table string, records []T, ids func(T) (string, string)) error {
	for _, r := range records {
		data, err := json.Marshal(r)
		if err != nil {
			return fmt.Errorf("encode %s record: %w", table, err)
		}
		id, memoryID := ids(r)
		if _, err := tx.Exec(ctx,
			"INSERT INTO "+table+" (id, memory_id, data) VALUES ($1, $2, $3)",
			id, memoryID, data); err != nil {
			return fmt.Errorf("insert into %s: %w", table, err)
		}
	}
	return nil
}

// Load reads the archived snapshot. An empty archive yields an empty
// snapshot, not an error.
func (s *Store) Load(ctx context.Context) (*memory.Snapshot, error) {
	snap := &memory.Snapshot{}

	err := s.db.QueryRow(ctx, "SELECT taken_at FROM memory_snapshot_meta WHERE id = 1").Scan(&snap.TakenAt)
	if err != nil {
		// No row means nothing was ever archived.
		return snap, nil
	}

	rows, err := s.db.Query(ctx,
		`SELECT id, content, kind, importance, embedding, access_count, last_accessed,
		        created_at, decay_factor, decayed_at, associations, context, companion_id
		 FROM memory_items`)
	if err != nil {
		return nil, fmt.Errorf("query items: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			item                            memory.MemoryItem
			kind                            string
			importance                      int
			embedding, associations, itemCtx []byte
		)
		if err := rows.Scan(&item.ID, &item.Content, &kind, &importance, &embedding,
			&item.AccessCount, &item.LastAccessed, &item.CreatedAt, &item.DecayFactor,
			&item.DecayedAt, &associations, &itemCtx, &item.CompanionID); err != nil {
			return nil, fmt.Errorf("scan item: %w", err)
		}
		item.Kind = memory.Kind(kind)
		item.Importance = memory.Importance(importance)
		if err := json.Unmarshal(embedding, &item.Embedding); err != nil {
			return nil, fmt.Errorf("decode embedding %s: %w", item.ID, err)
		}
		if err := json.Unmarshal(associations, &item.Associations); err != nil {
			return nil, fmt.Errorf("decode associations %s: %w", item.ID, err)
		}
		if err := json.Unmarshal(itemCtx, &item.Context); err != nil {
			return nil, fmt.Errorf("decode context %s: %w", item.ID, err)
		}
		snap.Items = append(snap.Items, &item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate items: %w", err)
	}

	if err := loadRecords(ctx, s.db, "memory_episodes", &snap.Episodes); err != nil {
		return nil, err
	}
	if err := loadRecords(ctx, s.db, "memory_concepts", &snap.Concepts); err != nil {
		return nil, err
	}
	if err := loadRecords(ctx, s.db, "memory_strategies", &snap.Strategies); err != nil {
		return nil, err
	}
	return snap, nil
}

func loadRecords[T any](ctx context.Context, db *pgxpool.Pool, table string, out *[]*T) error {
	rows, err := db.Query(ctx, "SELECT data FROM "+table)
	if err != nil {
		return fmt.Errorf("query %s: %w", table, err)
	}
	defer rows.Close()
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return fmt.Errorf("scan %s: %w", table, err)
		}
		record := new(T)
		if err := json.Unmarshal(data, record); err != nil {
			return fmt.Errorf("decode %s record: %w", table, err)
		}
		*out = append(*out, record)
	}
	return rows.Err()
}

// Close shuts down the connection pool.
func (s *Store) Close() {
	s.db.Close()
}
