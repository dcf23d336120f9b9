package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"tattoostudio/internal/domain"
	"tattoostudio/internal/models"
	"tattoostudio/internal/repository"

	"github.com/google/uuid"
)

func encodeFields(fields models.Fields) (string, error) {
	normalized, err := repository.NormalizeFields(fields)
	if err != nil {
		return "", err
	}
	raw, err := json.Marshal(normalized)
	if err != nil {
		return "", fmt.Errorf("encode document: %w", err)
	}
	return string(raw), nil
}

func decodeFields(raw string) (models.Fields, error) {
	fields := models.Fields{}
	if err := json.Unmarshal([]byte(raw), &fields); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	return fields, nil
}

// Create inserts a document under a fresh UUID.
func (db *DB) Create(ctx context.Context, collection string, fields models.Fields) (string, error) {
	if collection == "" {
		return "", errors.New("collection name is required")
	}
	data, err := encodeFields(fields)
	if err != nil {
		return "", err
	}

	id := uuid.NewString()
	now := time.Now().UTC()
	query := `INSERT INTO documents (collection, id, data, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`
	if _, err := db.ExecContext(ctx, query, collection, id, data, now, now); err != nil {
		return "", fmt.Errorf("failed to create document in %s: %w", collection, err)
	}

	db.changed(collection)
	return id, nil
}

// Patch merges fields into an existing document.
func (db *DB) Patch(ctx context.Context, collection, id string, fields models.Fields) error {
	patch, err := repository.NormalizeFields(fields)
	if err != nil {
		return err
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	var raw string
	err = tx.QueryRowContext(ctx, `SELECT data FROM documents WHERE collection = ? AND id = ?`, collection, id).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s/%s: %w", collection, id, domain.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("failed to load document %s/%s: %w", collection, id, err)
	}

	current, err := decodeFields(raw)
	if err != nil {
		return err
	}
	for k, v := range patch {
		current[k] = v
	}
	data, err := encodeFields(current)
	if err != nil {
		return err
	}

	query := `UPDATE documents SET data = ?, updated_at = ? WHERE collection = ? AND id = ?`
	if _, err := tx.ExecContext(ctx, query, data, time.Now().UTC(), collection, id); err != nil {
		return fmt.Errorf("failed to patch document %s/%s: %w", collection, id, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit patch: %w", err)
	}

	db.changed(collection)
	return nil
}

// Delete removes a document.
func (db *DB) Delete(ctx context.Context, collection, id string) error {
	res, err := db.ExecContext(ctx, `DELETE FROM documents WHERE collection = ? AND id = ?`, collection, id)
	if err != nil {
		return fmt.Errorf("failed to delete document %s/%s: %w", collection, id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%s/%s: %w", collection, id, domain.ErrNotFound)
	}

	db.changed(collection)
	return nil
}

// sqlValue maps a normalized JSON value to what json_extract yields for it.
func sqlValue(v interface{}) interface{} {
	if b, ok := v.(bool); ok {
		if b {
			return 1
		}
		return 0
	}
	return v
}

func buildListQuery(collection string, q models.Query) (string, []interface{}, error) {
	if err := q.Validate(); err != nil {
		return "", nil, err
	}

	var sb strings.Builder
	args := []interface{}{collection}
	sb.WriteString(`SELECT id, data FROM documents WHERE collection = ?`)

	for _, f := range q.Where {
		value, err := repository.NormalizeValue(f.Value)
		if err != nil {
			return "", nil, err
		}
		// Field names are validated identifiers, safe to inline in the JSON path.
		fmt.Fprintf(&sb, ` AND json_extract(data, '$.%s') %s ?`, f.Field, sqlOperator(f.Op))
		args = append(args, sqlValue(value))
	}

	if q.OrderBy != "" {
		fmt.Fprintf(&sb, ` AND json_type(data, '$.%s') IS NOT NULL`, q.OrderBy)
		dir := "ASC"
		if q.Direction == models.Desc {
			dir = "DESC"
		}
		fmt.Fprintf(&sb, ` ORDER BY json_extract(data, '$.%s') %s, rowid ASC`, q.OrderBy, dir)
	} else {
		sb.WriteString(` ORDER BY rowid ASC`)
	}

	return sb.String(), args, nil
}

func sqlOperator(op string) string {
	switch op {
	case models.OpEqual:
		return "="
	case models.OpNotEqual:
		return "<>"
	default:
		return op
	}
}

// List returns the documents of collection matching q.
func (db *DB) List(ctx context.Context, collection string, q models.Query) ([]models.Document, error) {
	query, args, err := buildListQuery(collection, q)
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", collection, err)
	}
	defer rows.Close()

	docs := []models.Document{}
	for rows.Next() {
		var id, raw string
		if err := rows.Scan(&id, &raw); err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		fields, err := decodeFields(raw)
		if err != nil {
			return nil, err
		}
		docs = append(docs, models.Document{ID: id, Fields: fields})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate %s: %w", collection, err)
	}
	return docs, nil
}

// Watch streams snapshots of q. Changes made by other processes arrive only
// when the change feed is bridged between them.
func (db *DB) Watch(ctx context.Context, collection string, q models.Query, onSnapshot domain.SnapshotFunc) (func(), error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	return repository.WatchCollection(ctx, db.feed, collection, func(ctx context.Context) ([]models.Document, error) {
		return db.List(ctx, collection, q)
	}, onSnapshot)
}
