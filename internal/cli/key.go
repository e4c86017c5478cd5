package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/partd/internal/types"
)

// KeyOptions holds flags for the key command.
type KeyOptions struct {
	*RootOptions
	Partitions uint64
}

// KeyResult locates a service instance in the cluster.
type KeyResult struct {
	Service      string `json:"service"`
	Key          string `json:"key"`
	PartitionKey uint64 `json:"partition_key"`
	Partition    uint64 `json:"partition"`
	Owner        string `json:"owner"`
}

func (r KeyResult) renderText(w io.Writer) {
	sid := types.NewServiceID(r.Service, []byte(r.Key))
	fmt.Fprintf(w, "%s\n", sid)
	fmt.Fprintf(w, "  partition key: %#016x\n", r.PartitionKey)
	fmt.Fprintf(w, "  partition:     %d\n", r.Partition)
	fmt.Fprintf(w, "  owner:         %s\n", r.Owner)
}

// NewKeyCommand creates the key command.
func NewKeyCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &KeyOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "key <service> <key>",
		Short: "Show the partition of a service instance",
		Long: `Compute the partition key of a service instance and the partition and
node that own it under the configured cluster layout.

Examples:
  partd key cart user-42
  partd key cart user-42 --partitions 16 --format json`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runKey(opts, args[0], args[1], cmd)
		},
	}

	cmd.Flags().Uint64Var(&opts.Partitions, "partitions", 0, "number of partitions (overrides config)")

	return cmd
}

func runKey(opts *KeyOptions, service, key string, cmd *cobra.Command) error {
	cfg, err := loadConfig(opts.RootOptions)
	if err != nil {
		return err
	}
	if opts.Partitions > 0 {
		cfg.Partitions = opts.Partitions
	}

	registry, err := buildRegistry(cfg)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to build partition layout", err)
	}

	sid := types.NewServiceID(service, []byte(key))
	pk := sid.PartitionKey()
	pid := registry.Table().FindPartition(pk)
	owner, _ := registry.Owner(pid)

	return newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr()).Success(KeyResult{
		Service:      sid.ServiceName,
		Key:          key,
		PartitionKey: uint64(pk),
		Partition:    uint64(pid),
		Owner:        owner.Node,
	})
}
