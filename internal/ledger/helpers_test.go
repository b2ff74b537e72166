package ledger

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func mustField(t *testing.T, raw []byte, field string) string {
	t.Helper()
	var m map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(raw, &m))
	v, ok := m[field]
	require.True(t, ok, "field %s missing", field)
	return string(v)
}
