package main

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/chazu/viable/schema"
)

var importCmd = &cobra.Command{
	Use:   "import <file.toml>...",
	Short: "Store schema files in the project cache",
	Long:  "Validate schema files and store them in the [cache] database, where every later run loads them from.",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		b, err := openProject(cmd.Context())
		if err != nil {
			return err
		}
		defer b.Close()

		for _, path := range args {
			doc, err := schema.LoadFile(path)
			if err != nil {
				return err
			}
			name := strings.TrimSuffix(filepath.Base(path), schema.FileExt)
			changed, err := b.Import(cmd.Context(), name, doc)
			if err != nil {
				return fmt.Errorf("%s: %w", path, err)
			}
			status := "unchanged"
			if changed {
				status = "imported"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%-9s %s (%d interfaces, %d factories)\n", status, name, len(doc.Interfaces), len(doc.Factories))
		}
		return nil
	},
}
