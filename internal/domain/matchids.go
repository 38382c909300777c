package domain

import (
	"database/sql/driver"
	"fmt"
	"strings"
)

// MatchIDs is a list of registration IDs stored as a single comma-separated
// text column. SQLite has no native array type; CSV keeps the schema flat
// and the values are UUIDs, which never contain commas.
type MatchIDs []string

// Value implements driver.Valuer.
func (m MatchIDs) Value() (driver.Value, error) {
	if len(m) == 0 {
		return "", nil
	}
	return strings.Join(m, ","), nil
}

// Scan implements sql.Scanner.
func (m *MatchIDs) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*m = nil
	case string:
		*m = splitIDs(v)
	case []byte:
		*m = splitIDs(string(v))
	default:
		return fmt.Errorf("matchids: cannot scan %T", src)
	}
	return nil
}

func splitIDs(s string) MatchIDs {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make(MatchIDs, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
