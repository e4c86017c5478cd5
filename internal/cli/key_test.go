package cli

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/partd/internal/types"
)

func TestKeyText(t *testing.T) {
	out, err := execute(t, "key", "cart", "user-42", "--partitions", "1")
	require.NoError(t, err)

	assert.Contains(t, out, `cart["user-42"]`)
	assert.Contains(t, out, "partition:     0")
	assert.Contains(t, out, "owner:         node-1")
}

func TestKeyJSON(t *testing.T) {
	out, err := execute(t, "--format", "json", "key", "cart", "user-42", "--partitions", "8")
	require.NoError(t, err)

	var resp struct {
		Status string    `json:"status"`
		Data   KeyResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "cart", resp.Data.Service)
	assert.Equal(t, uint64(types.PartitionKeyOf([]byte("user-42"))), resp.Data.PartitionKey)
	assert.Less(t, resp.Data.Partition, uint64(8))
	assert.Equal(t, "node-1", resp.Data.Owner)
}

func TestKeyIsStable(t *testing.T) {
	first, err := execute(t, "key", "cart", "user-42")
	require.NoError(t, err)
	second, err := execute(t, "key", "cart", "user-42")
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestKeyMissingConfig(t *testing.T) {
	_, err := execute(t, "--config", "/nonexistent/node.yaml", "key", "cart", "user-42")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "failed to load config")
}
