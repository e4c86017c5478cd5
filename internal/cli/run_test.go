package cli

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/partd/internal/node"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "node.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func TestRunStartsAndStops(t *testing.T) {
	baseDir := filepath.Join(t.TempDir(), "data")
	cfgPath := writeConfig(t, "node_name: node-a\nbase_dir: "+baseDir+"\npartitions: 3\nlog_level: error\n")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var partitions int
	opts := &RunOptions{
		RootOptions: &RootOptions{Format: "text", ConfigPath: cfgPath},
		Started: func(n *node.Node) {
			partitions = len(n.Partitions())
			cancel()
		},
	}
	out := &bytes.Buffer{}
	cmd := &cobra.Command{}
	cmd.SetContext(ctx)
	cmd.SetOut(out)
	cmd.SetErr(&bytes.Buffer{})

	require.NoError(t, runNode(opts, cmd))

	assert.Equal(t, 3, partitions)
	assert.Contains(t, out.String(), "Node node-a started with partitions")
	assert.FileExists(t, filepath.Join(baseDir, "partd.db"))
}

func TestRunDatabaseOverride(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "override.db")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	opts := &RunOptions{
		RootOptions: &RootOptions{Format: "text"},
		Database:    dbPath,
		Started:     func(*node.Node) { cancel() },
	}
	cmd := &cobra.Command{}
	cmd.SetContext(ctx)
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})

	require.NoError(t, runNode(opts, cmd))
	assert.FileExists(t, dbPath)
}

func TestRunInvalidConfig(t *testing.T) {
	cfgPath := writeConfig(t, "node_name: node-a\npartitions: 0\n")

	_, err := execute(t, "--config", cfgPath, "run")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}
