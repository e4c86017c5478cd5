package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/partd/internal/codec"
)

func TestLoad_Full(t *testing.T) {
	cfg, err := Load(filepath.Join("testdata", "node.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "node-a", cfg.NodeName)
	assert.Equal(t, "dev", cfg.ClusterName)
	assert.Equal(t, uint64(8), cfg.Partitions)
	assert.Equal(t, 30*time.Second, cfg.ShutdownTimeout)
	assert.Equal(t, 250*time.Millisecond, cfg.OutboxRetryInterval)
	assert.Equal(t, "/var/lib/partd/partd.db", cfg.DatabasePath())
	assert.Equal(t, slog.LevelDebug, cfg.Level())
	assert.ElementsMatch(t, []string{"node-a", "node-b"}, cfg.ClusterNodes())

	comp, err := cfg.Compressor()
	require.NoError(t, err)
	assert.Equal(t, codec.Compressor{Algorithm: codec.CompressionZstd, Threshold: 1024}, comp)
}

func TestParse_Defaults(t *testing.T) {
	cfg, err := Parse([]byte("node_name: solo\n"))
	require.NoError(t, err)

	want := Default()
	want.NodeName = "solo"
	assert.Equal(t, want, cfg)

	cfg, err = Parse(nil)
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestParse_SchemaViolations(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"zero partitions", "partitions: 0\n", "partitions"},
		{"too many partitions", "partitions: 70000\n", "partitions"},
		{"bad log level", "log_level: loud\n", "log_level"},
		{"bad duration", "shutdown_timeout: soon\n", "shutdown_timeout"},
		{"bad compression", "payload_compression: gzip\n", "payload_compression"},
		{"peer without scheme", "nodes:\n  node-b: 10.0.0.2:7070\n", "nodes"},
		{"unknown field", "colour: blue\n", "colour"},
		{"bad node name", "node_name: \"-x\"\n", "node_name"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			require.Error(t, err)
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Contains(t, verr.Error(), tt.want)
		})
	}
}

func TestParse_CollectsAllProblems(t *testing.T) {
	err := Validate([]byte("partitions: 0\nlog_format: xml\n"))
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.GreaterOrEqual(t, len(verr.Problems), 2)
}

func TestParse_Malformed(t *testing.T) {
	_, err := Parse([]byte("node_name: [unclosed\n"))
	assert.Error(t, err)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestDatabasePath(t *testing.T) {
	cfg := Default()
	cfg.BaseDir = "/data"
	cfg.Database = "custom.db"
	assert.Equal(t, "/data/custom.db", cfg.DatabasePath())
	cfg.Database = "/abs/x.db"
	assert.Equal(t, "/abs/x.db", cfg.DatabasePath())
}
