package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/linkage/internal/config"
)

// NewConfigCommand creates the config command and its get/list subcommands.
func NewConfigCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show effective configuration",
	}

	cmd.AddCommand(&cobra.Command{
		Use:           "get <key>",
		Short:         "Print the effective value of a config key",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := newFormatter(rootOpts, cmd)
			v, err := rootOpts.Config.Get(args[0])
			if errors.Is(err, config.ErrUnknownKey) {
				_ = formatter.Error("UNKNOWN_KEY", err.Error(), config.Keys())
				return WrapExitError(ExitCommandError, "config get", err)
			}
			if formatter.IsJSON() {
				return formatter.Success(map[string]string{args[0]: v})
			}
			return formatter.Success(v)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:           "list",
		Short:         "Print every config key with its effective value",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := newFormatter(rootOpts, cmd)
			values := make(map[string]string, len(config.Keys()))
			for _, key := range config.Keys() {
				v, err := rootOpts.Config.Get(key)
				if err != nil {
					return err
				}
				values[key] = v
				if !formatter.IsJSON() {
					fmt.Fprintf(formatter.Writer, "%s = %s\n", key, v)
				}
			}
			if formatter.IsJSON() {
				return formatter.Success(values)
			}
			return nil
		},
	})

	return cmd
}
