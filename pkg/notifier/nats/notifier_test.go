package nats

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncode(t *testing.T) {
	now = func() time.Time { return time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC) }
	defer func() { now = time.Now }()

	b, err := Encode("[FAILURE] publish", map[string]string{"error": "boom"})
	require.NoError(t, err)

	var env map[string]interface{}
	require.NoError(t, json.Unmarshal(b, &env))
	assert.Equal(t, "[FAILURE] publish", env["subject"])
	assert.Equal(t, "2024-05-06T07:08:09Z", env["sent_at"])
	assert.Equal(t, map[string]interface{}{"error": "boom"}, env["payload"])
}
