// Package config loads the partd node configuration.
//
// The file is YAML. It is checked against an embedded CUE schema first,
// which reports every violation with its path, then decoded strictly:
// unknown fields are rejected.
package config

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"gopkg.in/yaml.v3"

	"github.com/roach88/partd/internal/codec"
)

//go:embed schema.cue
var schemaSource string

// Config is the configuration of one node.
type Config struct {
	NodeName    string `yaml:"node_name"`
	ClusterName string `yaml:"cluster_name"`
	BaseDir     string `yaml:"base_dir"`
	// Database is the SQLite file. Relative paths are resolved against
	// BaseDir; empty means BaseDir/partd.db.
	Database string `yaml:"database"`

	Partitions uint64 `yaml:"partitions"`
	// Listen is the address envelopes are served on. Empty disables the
	// HTTP transport: all partitions then run in this process.
	Listen string            `yaml:"listen"`
	Nodes  map[string]string `yaml:"nodes"`

	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`

	ShutdownTimeout     time.Duration `yaml:"shutdown_timeout"`
	OutboxRetryInterval time.Duration `yaml:"outbox_retry_interval"`

	PayloadCompression   string `yaml:"payload_compression"`
	CompressionThreshold int    `yaml:"compression_threshold"`
}

// Default returns the configuration used for fields a file leaves unset.
func Default() Config {
	return Config{
		NodeName:             "node-1",
		ClusterName:          "localcluster",
		BaseDir:              "partd-data",
		Partitions:           4,
		LogLevel:             "info",
		LogFormat:            "text",
		ShutdownTimeout:      10 * time.Second,
		OutboxRetryInterval:  500 * time.Millisecond,
		PayloadCompression:   "none",
		CompressionThreshold: 256,
	}
}

// Load reads and validates the file at path.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse validates data and decodes it over Default.
func Parse(data []byte) (Config, error) {
	if err := Validate(data); err != nil {
		return Config{}, err
	}

	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	return cfg, nil
}

// ValidationError lists every schema violation of a config file.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return "invalid config: " + strings.Join(e.Problems, "; ")
}

// Validate checks data against the configuration schema.
func Validate(data []byte) error {
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("parse config: %w", err)
	}
	if raw == nil {
		raw = map[string]any{}
	}
	// Defaults satisfy the schema; only the node name is required.
	if _, ok := raw["node_name"]; !ok {
		raw["node_name"] = Default().NodeName
	}

	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaSource, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return fmt.Errorf("compile config schema: %w", err)
	}
	def := schema.LookupPath(cue.ParsePath("#Config"))

	value := ctx.Encode(raw)
	if err := value.Err(); err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	if err := def.Unify(value).Validate(cue.Concrete(true)); err != nil {
		var problems []string
		for _, e := range cueerrors.Errors(err) {
			problems = append(problems, strings.TrimSpace(cueerrors.Details(e, nil)))
		}
		return &ValidationError{Problems: problems}
	}
	return nil
}

// DatabasePath returns the resolved SQLite path.
func (c Config) DatabasePath() string {
	switch {
	case c.Database == "":
		return filepath.Join(c.BaseDir, "partd.db")
	case filepath.IsAbs(c.Database):
		return c.Database
	default:
		return filepath.Join(c.BaseDir, c.Database)
	}
}

// Compressor returns the journal payload compressor.
func (c Config) Compressor() (codec.Compressor, error) {
	alg, err := codec.ParseCompression(c.PayloadCompression)
	if err != nil {
		return codec.Compressor{}, err
	}
	return codec.Compressor{Algorithm: alg, Threshold: c.CompressionThreshold}, nil
}

// ClusterNodes returns the names of all cluster members: this node and its
// peers.
func (c Config) ClusterNodes() []string {
	nodes := []string{c.NodeName}
	for name := range c.Nodes {
		if name != c.NodeName {
			nodes = append(nodes, name)
		}
	}
	return nodes
}

// Level returns the slog level of LogLevel.
func (c Config) Level() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return level
}
