package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Load every schema and report the invalid ones",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		b, err := openProject(cmd.Context())
		if err != nil {
			return err
		}
		defer b.Close()

		out := cmd.OutOrStdout()
		reg := b.Registry()
		for _, name := range reg.Names() {
			l, err := b.Layout(name)
			if err != nil {
				return err
			}
			iface, _ := reg.Lookup(name)
			chain, _ := iface.Chain()
			suffix := ""
			if f, ok := reg.FactoryFor(name); ok {
				suffix = " via " + f.Symbol
			}
			fmt.Fprintf(out, "ok    %s (%d slots, %d levels)%s\n", name, l.Len(), len(chain), suffix)
		}

		problems := b.Problems()
		if problems == nil {
			return nil
		}
		n := 1
		if joined, ok := problems.(interface{ Unwrap() []error }); ok {
			n = len(joined.Unwrap())
			for _, err := range joined.Unwrap() {
				fmt.Fprintf(out, "FAIL  %v\n", err)
			}
		} else {
			fmt.Fprintf(out, "FAIL  %v\n", problems)
		}
		return exitError{code: 2, err: fmt.Errorf("%d schema error(s)", n)}
	},
}
