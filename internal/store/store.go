package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"cantina/pkg/models"

	"github.com/mattn/go-sqlite3"
	"github.com/sirupsen/logrus"
)

// IsUniqueConstraint reports whether err is a sqlite UNIQUE (or primary key)
// constraint violation. Engines map these to validation errors when an
// existence pre-check raced with a concurrent writer.
func IsUniqueConstraint(err error) bool {
	var sqliteErr sqlite3.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
		sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
}

// Querier is satisfied by both *sql.DB and *sql.Tx so the same query
// helpers can run standalone or inside a transaction.
type Querier interface {
	Exec(query string, args ...interface{}) (sql.Result, error)
	Query(query string, args ...interface{}) (*sql.Rows, error)
	QueryRow(query string, args ...interface{}) *sql.Row
}

// Store wraps a *sql.DB providing higher-level helper methods for the
// jukebox's persistent records: albums, tracks, collections, memberships,
// queue items, playback state and settings. It is safe for concurrent use
// because the underlying *sql.DB is concurrency-safe; callers that mutate a
// collection's ordering or queue must additionally serialize per collection.
type Store struct {
	conn   *sql.DB
	logger *logrus.Logger

	// Prepared statements for hot read paths
	getTrackStmt    *sql.Stmt
	getAlbumStmt    *sql.Stmt
	albumTracksStmt *sql.Stmt
}

// NewStore opens (or creates) a SQLite database at the provided path and
// ensures all required tables and indices exist. It also applies lightweight
// performance-oriented pragmas (WAL, cache sizing) and seeds the virtual
// "all" collection row. Caller should Close() it when finished.
func NewStore(dbPath string, logger *logrus.Logger) (*Store, error) {
	if logger == nil {
		logger = logrus.New()
		logger.SetFormatter(&logrus.JSONFormatter{})
	}

	conn, err := sql.Open("sqlite3", dbPath+"?cache=shared&mode=rwc")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite works better with fewer connections
	conn.SetMaxOpenConns(5)
	conn.SetMaxIdleConns(2)
	conn.SetConnMaxLifetime(15 * time.Minute)

	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA cache_size=2000;",
		"PRAGMA temp_store=memory;",
		"PRAGMA foreign_keys=ON;",
		"PRAGMA busy_timeout=5000;",
	}

	for _, pragma := range pragmas {
		if _, err := conn.Exec(pragma); err != nil {
			logger.WithError(err).WithField("pragma", pragma).Warn("Failed to set pragma")
		}
	}

	s := &Store{
		conn:   conn,
		logger: logger,
	}

	if err := s.createTables(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	if err := s.seedVirtualCollection(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to seed virtual collection: %w", err)
	}

	if err := s.prepareStatements(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to prepare statements: %w", err)
	}

	logger.WithField("db_path", dbPath).Info("Store initialized successfully")
	return s, nil
}

// createTables creates tables and indices if they do not already exist.
// This is idempotent and safe to call multiple times.
func (s *Store) createTables() error {
	albumsTable := `
	CREATE TABLE IF NOT EXISTS albums (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		artist TEXT NOT NULL,
		year INTEGER DEFAULT 0,
		total_tracks INTEGER DEFAULT 0,
		has_multi_disc BOOLEAN DEFAULT FALSE,
		cover_art_path TEXT,
		archived BOOLEAN NOT NULL DEFAULT FALSE,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);`

	tracksTable := `
	CREATE TABLE IF NOT EXISTS tracks (
		id TEXT PRIMARY KEY,
		album_id TEXT NOT NULL,
		disc_number INTEGER NOT NULL DEFAULT 1,
		track_number INTEGER NOT NULL,
		title TEXT NOT NULL,
		artist TEXT NOT NULL,
		duration_ms INTEGER DEFAULT 0,
		enabled BOOLEAN NOT NULL DEFAULT TRUE,
		replaygain_track_db REAL,
		replaygain_album_db REAL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY (album_id) REFERENCES albums(id) ON DELETE CASCADE
	);`

	collectionsTable := `
	CREATE TABLE IF NOT EXISTS collections (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL UNIQUE,
		slug TEXT NOT NULL UNIQUE,
		description TEXT,
		sections_enabled BOOLEAN NOT NULL DEFAULT FALSE,
		sections TEXT,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);`

	collectionAlbumsTable := `
	CREATE TABLE IF NOT EXISTS collection_albums (
		id TEXT PRIMARY KEY,
		collection_id TEXT NOT NULL,
		album_id TEXT NOT NULL,
		sort_order INTEGER NOT NULL,
		display_number INTEGER NOT NULL,
		enabled_track_ids TEXT NOT NULL DEFAULT '[]',
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY (collection_id) REFERENCES collections(id) ON DELETE CASCADE,
		FOREIGN KEY (album_id) REFERENCES albums(id) ON DELETE CASCADE,
		UNIQUE (collection_id, album_id)
	);`

	queueTable := `
	CREATE TABLE IF NOT EXISTS queue (
		id TEXT PRIMARY KEY,
		collection_id TEXT NOT NULL,
		track_id TEXT NOT NULL,
		position INTEGER NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending',
		queued_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		played_at DATETIME,
		FOREIGN KEY (collection_id) REFERENCES collections(id) ON DELETE CASCADE,
		FOREIGN KEY (track_id) REFERENCES tracks(id) ON DELETE CASCADE
	);`

	playbackStateTable := `
	CREATE TABLE IF NOT EXISTS playback_state (
		id TEXT PRIMARY KEY,
		collection_id TEXT NOT NULL UNIQUE,
		current_track_id TEXT,
		is_playing BOOLEAN NOT NULL DEFAULT FALSE,
		current_position_ms INTEGER NOT NULL DEFAULT 0,
		volume INTEGER NOT NULL DEFAULT 70,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY (collection_id) REFERENCES collections(id) ON DELETE CASCADE,
		FOREIGN KEY (current_track_id) REFERENCES tracks(id) ON DELETE SET NULL
	);`

	settingsTable := `
	CREATE TABLE IF NOT EXISTS settings (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL DEFAULT ''
	);`

	indices := []string{
		"CREATE INDEX IF NOT EXISTS idx_albums_artist_title ON albums(artist, title);",
		"CREATE INDEX IF NOT EXISTS idx_tracks_album ON tracks(album_id, disc_number, track_number);",
		"CREATE INDEX IF NOT EXISTS idx_collection_albums_collection ON collection_albums(collection_id, sort_order);",
		"CREATE INDEX IF NOT EXISTS idx_queue_collection ON queue(collection_id, status, position);",
		"CREATE INDEX IF NOT EXISTS idx_queue_track ON queue(collection_id, track_id);",
	}

	tables := []string{
		albumsTable, tracksTable, collectionsTable,
		collectionAlbumsTable, queueTable, playbackStateTable, settingsTable,
	}
	for _, table := range tables {
		if _, err := s.conn.Exec(table); err != nil {
			return err
		}
	}

	for _, index := range indices {
		if _, err := s.conn.Exec(index); err != nil {
			return err
		}
	}

	return nil
}

// seedVirtualCollection ensures the sentinel "all" collection row exists so
// queue items and playback state can reference it. Its album list is never
// stored; it is computed on read from the non-archived albums.
func (s *Store) seedVirtualCollection() error {
	_, err := s.conn.Exec(`
		INSERT INTO collections (id, name, slug, description)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING`,
		models.VirtualAllID, "All Albums", models.VirtualAllSlug,
		"Virtual collection containing all albums")
	return err
}

// prepareStatements prepares commonly used SQL statements for better performance
func (s *Store) prepareStatements() error {
	var err error

	s.getTrackStmt, err = s.conn.Prepare(`
		SELECT id, album_id, disc_number, track_number, title, artist, duration_ms,
		       enabled, replaygain_track_db, replaygain_album_db, created_at
		FROM tracks WHERE id = ?`)
	if err != nil {
		return fmt.Errorf("failed to prepare get track statement: %w", err)
	}

	s.getAlbumStmt, err = s.conn.Prepare(`
		SELECT id, title, artist, year, total_tracks, has_multi_disc,
		       cover_art_path, archived, created_at
		FROM albums WHERE id = ?`)
	if err != nil {
		return fmt.Errorf("failed to prepare get album statement: %w", err)
	}

	s.albumTracksStmt, err = s.conn.Prepare(`
		SELECT id, album_id, disc_number, track_number, title, artist, duration_ms,
		       enabled, replaygain_track_db, replaygain_album_db, created_at
		FROM tracks
		WHERE album_id = ?
		ORDER BY disc_number, track_number`)
	if err != nil {
		return fmt.Errorf("failed to prepare album tracks statement: %w", err)
	}

	return nil
}

// DB exposes the underlying connection as a Querier for helpers that run
// outside an explicit transaction.
func (s *Store) DB() Querier {
	return s.conn
}

// WithTx runs fn inside a transaction. The transaction commits when fn
// returns nil and rolls back otherwise, so a failing operation leaves no
// partial writes visible to other readers.
func (s *Store) WithTx(fn func(tx *sql.Tx) error) error {
	tx, err := s.conn.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			s.logger.WithError(rbErr).Error("Failed to roll back transaction")
		}
		return err
	}

	return tx.Commit()
}

// Close closes the underlying database connection and prepared statements.
func (s *Store) Close() error {
	statements := []*sql.Stmt{
		s.getTrackStmt,
		s.getAlbumStmt,
		s.albumTracksStmt,
	}

	for _, stmt := range statements {
		if stmt != nil {
			if err := stmt.Close(); err != nil {
				s.logger.WithError(err).Error("Failed to close prepared statement")
			}
		}
	}

	if s.conn != nil {
		return s.conn.Close()
	}
	return nil
}

// Ping verifies database connectivity for health checks.
func (s *Store) Ping() error {
	return s.conn.Ping()
}
