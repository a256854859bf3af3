package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ethpandaops/specsync/pkg/spec"
)

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func encodeResult(result map[string]any) (sql.NullString, error) {
	if result == nil {
		return sql.NullString{}, nil
	}

	data, err := json.Marshal(result)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("marshaling result: %w", err)
	}

	return sql.NullString{String: string(data), Valid: true}, nil
}

func decodeResult(raw sql.NullString) (map[string]any, error) {
	if !raw.Valid || raw.String == "" {
		return nil, nil
	}

	var result map[string]any
	if err := json.Unmarshal([]byte(raw.String), &result); err != nil {
		return nil, fmt.Errorf("unmarshaling result: %w", err)
	}

	return result, nil
}

func encodeSpec(doc spec.Document) (string, error) {
	data, err := doc.Marshal()
	if err != nil {
		return "", fmt.Errorf("marshaling spec: %w", err)
	}

	return string(data), nil
}

func decodeSpec(raw string) (spec.Document, error) {
	doc, err := spec.Parse([]byte(raw))
	if err != nil {
		return nil, fmt.Errorf("unmarshaling spec: %w", err)
	}

	return doc, nil
}

func nullTime(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}

	v := t.Time

	return &v
}
