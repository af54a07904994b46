package main

import (
	"encoding/json"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	flowerr "github.com/coffersTech/nanoflow/pkg/errors"
)

func newSequencesCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sequences <log.csv>...",
		Short: "Print the distinct statement sequence of every session",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := a.transformOptions(cmd)
			if err != nil {
				return err
			}
			res, err := a.transformFiles(cmd, args, opts)
			if err != nil {
				return err
			}
			format, _ := cmd.Flags().GetString("format")
			return render(cmd, format, res.Sequences)
		},
	}
	cmd.Flags().StringP("format", "f", "yaml", "output format: yaml or json")
	addTransformFlags(cmd)
	return cmd
}

// render writes v to stdout as YAML or indented JSON.
func render(cmd *cobra.Command, format string, v any) error {
	out := cmd.OutOrStdout()
	switch format {
	case "yaml", "":
		enc := yaml.NewEncoder(out)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	case "json":
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	default:
		return flowerr.Errorf(flowerr.CodeCLIInputInvalid, "unknown format %q", format)
	}
}
