package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/roach88/tripwire/internal/predicate"
	"github.com/roach88/tripwire/internal/value"
)

// marshalData converts schedule data to canonical JSON TEXT for storage.
func marshalData(v value.Value) (string, error) {
	data, err := value.MarshalCanonical(v)
	if err != nil {
		return "", fmt.Errorf("marshal data: %w", err)
	}
	return string(data), nil
}

// unmarshalData parses stored schedule data.
func unmarshalData(data string) (value.Value, error) {
	v, err := value.Parse([]byte(data))
	if err != nil {
		return nil, fmt.Errorf("unmarshal data: %w", err)
	}
	return v, nil
}

// marshalPredicate stores a nil predicate as NULL.
func marshalPredicate(p *predicate.Predicate) (sql.NullString, error) {
	if p == nil {
		return sql.NullString{}, nil
	}
	data, err := p.MarshalJSON()
	if err != nil {
		return sql.NullString{}, fmt.Errorf("marshal predicate: %w", err)
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

func unmarshalPredicate(ns sql.NullString) (*predicate.Predicate, error) {
	if !ns.Valid {
		return nil, nil
	}
	p, err := predicate.Parse([]byte(ns.String))
	if err != nil {
		return nil, fmt.Errorf("unmarshal predicate: %w", err)
	}
	return p, nil
}

// Timestamps are stored as epoch milliseconds; the zero time is NULL.
func timeToMillis(t time.Time) sql.NullInt64 {
	if t.IsZero() {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UnixMilli(), Valid: true}
}

func millisToTime(ms sql.NullInt64) time.Time {
	if !ms.Valid {
		return time.Time{}
	}
	return time.UnixMilli(ms.Int64).UTC()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
