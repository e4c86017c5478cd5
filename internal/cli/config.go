package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/roach88/partd/internal/config"
)

// ConfigValidation is the result of checking a config file.
type ConfigValidation struct {
	File     string   `json:"file"`
	Valid    bool     `json:"valid"`
	Problems []string `json:"problems,omitempty"`
}

// effectiveConfig renders the resolved configuration as YAML in text mode.
type effectiveConfig struct {
	config.Config
}

func (c effectiveConfig) renderText(w io.Writer) {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(c.Config); err != nil {
		fmt.Fprintf(w, "# failed to render config: %v\n", err)
	}
	_ = enc.Close()
}

// NewConfigCommand creates the config command and its subcommands.
func NewConfigCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "config",
		Short:         "Check and display node configuration",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "validate <file>",
		Short: "Validate a node config file",
		Long: `Check a node config file against the configuration schema and report
every problem found.

Exit codes:
  0 - Config is valid
  1 - Config has schema violations
  2 - Command error (file not found, not YAML)`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigValidate(rootOpts, args[0], cmd)
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:           "show",
		Short:         "Print the effective configuration",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(rootOpts)
			if err != nil {
				return err
			}
			return newFormatter(rootOpts, cmd.OutOrStdout(), cmd.ErrOrStderr()).Success(effectiveConfig{cfg})
		},
	})

	return cmd
}

func runConfigValidate(opts *RootOptions, path string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd.OutOrStdout(), cmd.ErrOrStderr())

	data, err := os.ReadFile(path)
	if err != nil {
		_ = formatter.Error(ErrCodeNotFound, fmt.Sprintf("config file not found: %s", path), nil)
		return WrapExitError(ExitCommandError, "failed to read config", err)
	}

	err = config.Validate(data)
	var verr *config.ValidationError
	switch {
	case err == nil:
		if _, err := config.Parse(data); err != nil {
			return outputConfigProblems(formatter, path, []string{err.Error()})
		}
	case errors.As(err, &verr):
		return outputConfigProblems(formatter, path, verr.Problems)
	default:
		_ = formatter.Error(ErrCodeInvalid, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to parse config", err)
	}

	if formatter.Format == "json" {
		return formatter.Success(ConfigValidation{File: path, Valid: true})
	}
	fmt.Fprintf(formatter.Writer, "✓ %s is valid\n", path)
	return nil
}

func outputConfigProblems(formatter *OutputFormatter, path string, problems []string) error {
	if formatter.Format == "json" {
		encoder := json.NewEncoder(formatter.Writer)
		encoder.SetIndent("", "  ")
		if err := encoder.Encode(CLIResponse{
			Status: "error",
			Data:   ConfigValidation{File: path, Valid: false, Problems: problems},
			Error:  &CLIError{Code: ErrCodeInvalid, Message: problems[0]},
		}); err != nil {
			return err
		}
		return NewExitError(ExitFailure, fmt.Sprintf("config has %d problem(s)", len(problems)))
	}

	fmt.Fprintf(formatter.Writer, "✗ %s is invalid\n", path)
	for _, p := range problems {
		fmt.Fprintf(formatter.Writer, "  %s\n", p)
	}
	return NewExitError(ExitFailure, fmt.Sprintf("config has %d problem(s)", len(problems)))
}
