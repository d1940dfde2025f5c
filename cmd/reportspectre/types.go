package main

import (
	"fmt"
	"strings"

	"github.com/ppiankov/reportspectre/internal/reporttype"
	"github.com/ppiankov/reportspectre/pkg/config"
	"github.com/spf13/cobra"
)

// NewTypesCmd creates the types command, which validates and lists report types.
func NewTypesCmd() *cobra.Command {
	dir := config.DefaultConfig().ConfigDir

	cmd := &cobra.Command{
		Use:   "types",
		Short: "Validate and list report types",
		RunE: func(cmd *cobra.Command, args []string) error {
			registry, err := reporttype.LoadDir(dir)
			if err != nil {
				return fmt.Errorf("failed to load report types: %w", err)
			}

			cmd.Printf("%-24s %-8s %-18s %s\n", "ID", "ENABLED", "ANALYZER", "NAME")
			for _, rt := range registry.All() {
				enabled := "no"
				if rt.IsEnabled() {
					enabled = "yes"
				}
				cmd.Printf("%-24s %-8s %-18s %s\n", rt.ID(), enabled, rt.AnalyzerName(), strings.TrimSpace(rt.Name()))
			}
			cmd.Printf("\n%d report types in %s\n", registry.Len(), dir)
			return nil
		},
	}

	cmd.Flags().StringVar(&dir, "config-dir", dir, "Directory of report type YAML files")
	return cmd
}
