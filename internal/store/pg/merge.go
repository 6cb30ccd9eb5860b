package pg

import (
	"encoding/json"

	"github.com/nextlevelbuilder/archon/internal/store"
)

// marshalMetadata serializes a Metadata bag to jsonb bytes, defaulting to an
// empty object so INSERT never stores a SQL NULL for the column.
func marshalMetadata(m store.Metadata) ([]byte, error) {
	if m == nil {
		m = store.Metadata{}
	}
	return json.Marshal(m)
}

func nilStr(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func derefStr(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
