package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var layoutCmd = &cobra.Command{
	Use:   "layout <Type>",
	Short: "Print the vtable slots and data member offsets of a type",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		b, err := openProject(cmd.Context())
		if err != nil {
			return err
		}
		defer b.Close()

		l, err := b.Layout(args[0])
		if err != nil {
			return err
		}
		fields, err := b.Fields(args[0])
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintf(w, "%s (%s)\n", args[0], b.Convention().Name())
		fmt.Fprintln(w, "SLOT\tMETHOD\tDECLARED\tIMPLEMENTED")
		for _, s := range l.Slots {
			if s.Reserved() {
				fmt.Fprintf(w, "%d\t(reserved)\t%s\t\n", s.Index, s.DeclaredBy.Name)
				continue
			}
			fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", s.Index, s.Method, s.DeclaredBy.Name, s.Implementer.Name)
		}
		if len(fields.Fields) > 0 {
			fmt.Fprintln(w, "\nOFFSET\tFIELD\tTYPE\tOWNER")
			for _, f := range fields.Fields {
				fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", f.Offset, f.Field.Name, f.Field.Type, f.Owner.Name)
			}
			fmt.Fprintf(w, "size %d\n", fields.Size)
		}
		return w.Flush()
	},
}
