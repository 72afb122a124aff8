package state

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/glebarez/sqlite"
)

// DB indexes the layers the local engine has stored on disk.
type DB struct {
	SQL  *sql.DB
	Path string
}

// Open creates or opens dataRoot/state.db.
func Open(dataRoot string) (*DB, error) {
	if dataRoot == "" {
		return nil, errors.New("engine.data_root required")
	}
	if err := os.MkdirAll(dataRoot, 0o755); err != nil {
		return nil, err
	}
	path := filepath.Join(dataRoot, "state.db")
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout=5000&_pragma=journal_mode(WAL)", path)
	sqldb, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	if err := initSchema(sqldb); err != nil {
		_ = sqldb.Close()
		return nil, err
	}
	return &DB{SQL: sqldb, Path: path}, nil
}

// OpenMemory returns a private in-memory database.
func OpenMemory() (*DB, error) {
	sqldb, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		return nil, err
	}
	// every new connection would see a fresh empty database
	sqldb.SetMaxOpenConns(1)
	if err := initSchema(sqldb); err != nil {
		_ = sqldb.Close()
		return nil, err
	}
	return &DB{SQL: sqldb, Path: ":memory:"}, nil
}

func (db *DB) Close() error {
	if db == nil || db.SQL == nil {
		return nil
	}
	return db.SQL.Close()
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS layers (
			document_id TEXT NOT NULL,
			layer TEXT NOT NULL,
			status TEXT NOT NULL,
			path TEXT,
			size INTEGER,
			sha256 TEXT,
			last_error TEXT,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL,
			PRIMARY KEY(document_id, layer)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_layers_status ON layers(status)`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

// Layer statuses.
const (
	StatusDownloaded = "downloaded"
	StatusFailed     = "failed"
)

type LayerRow struct {
	DocumentID string
	Layer      string
	Status     string
	Path       string
	Size       int64
	SHA256     string
	LastError  string
	UpdatedAt  int64
}

func (db *DB) UpsertLayer(row LayerRow) error {
	now := time.Now().Unix()
	_, err := db.SQL.Exec(`INSERT INTO layers(document_id, layer, status, path, size, sha256, last_error, created_at, updated_at)
		VALUES(?,?,?,?,?,?,?,?,?)
		ON CONFLICT(document_id, layer) DO UPDATE SET status=excluded.status, path=excluded.path, size=excluded.size, sha256=excluded.sha256, last_error=excluded.last_error, updated_at=excluded.updated_at`,
		row.DocumentID, row.Layer, row.Status, row.Path, row.Size, row.SHA256, row.LastError, now, now)
	return err
}

// GetLayer returns the row for a layer and whether it exists.
func (db *DB) GetLayer(documentID, layer string) (LayerRow, bool, error) {
	r := LayerRow{DocumentID: documentID, Layer: layer}
	row := db.SQL.QueryRow(`SELECT status, COALESCE(path,''), COALESCE(size,0), COALESCE(sha256,''), COALESCE(last_error,''), updated_at
		FROM layers WHERE document_id=? AND layer=?`, documentID, layer)
	switch err := row.Scan(&r.Status, &r.Path, &r.Size, &r.SHA256, &r.LastError, &r.UpdatedAt); err {
	case sql.ErrNoRows:
		return LayerRow{}, false, nil
	case nil:
		return r, true, nil
	default:
		return LayerRow{}, false, err
	}
}

// ListLayers returns every stored layer, most recently updated first.
func (db *DB) ListLayers() ([]LayerRow, error) {
	rows, err := db.SQL.Query(`SELECT document_id, layer, status, COALESCE(path,''), COALESCE(size,0), COALESCE(sha256,''), COALESCE(last_error,''), updated_at
		FROM layers ORDER BY updated_at DESC, document_id, layer`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var out []LayerRow
	for rows.Next() {
		var r LayerRow
		if err := rows.Scan(&r.DocumentID, &r.Layer, &r.Status, &r.Path, &r.Size, &r.SHA256, &r.LastError, &r.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// DeleteLayer removes a single layer row.
func (db *DB) DeleteLayer(documentID, layer string) error {
	_, err := db.SQL.Exec(`DELETE FROM layers WHERE document_id=? AND layer=?`, documentID, layer)
	return err
}

// ClearLayers removes every layer row.
func (db *DB) ClearLayers() error {
	_, err := db.SQL.Exec(`DELETE FROM layers`)
	return err
}
