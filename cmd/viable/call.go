package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/chazu/viable/bridge"
)

var (
	callOpts = struct {
		ctorArgs []string
		fields   []string
	}{}

	callCmd = &cobra.Command{
		Use:   "call <Type> <method> [args...]",
		Short: "Construct an object through its factory and call a virtual method",
		Example: `  viable call MyEngine add2 2 3 --new 5
  viable call Pug name --new Rex,4 --field theage`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			typeName, method := args[0], args[1]

			b, err := openProject(cmd.Context())
			if err != nil {
				return err
			}
			defer b.Close()

			iface, err := b.Lookup(typeName)
			if err != nil {
				return err
			}
			slot, err := b.Invoker().Resolver().Resolve(iface, method)
			if err != nil {
				return err
			}
			f, ok := b.Registry().FactoryFor(typeName)
			if !ok {
				return fmt.Errorf("%w for %s", bridge.ErrNoFactory, typeName)
			}

			ctorArgs, freeCtor, err := bridge.ParseArgs(f.Params, callOpts.ctorArgs)
			if err != nil {
				return fmt.Errorf("%s: %w", f.Symbol, err)
			}
			defer freeCtor()
			callArgs, freeCall, err := bridge.ParseArgs(slot.Method.Params, args[2:])
			if err != nil {
				return fmt.Errorf("%s: %w", method, err)
			}
			defer freeCall()

			h, err := b.New(typeName, ctorArgs...)
			if err != nil {
				return err
			}
			result, err := b.Call(h, method, callArgs...)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, bridge.Format(result))
			for _, name := range callOpts.fields {
				v, err := b.Field(h, name)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "%s = %s\n", name, bridge.Format(v))
			}
			return nil
		},
	}
)

func init() {
	callCmd.Flags().StringSliceVar(&callOpts.ctorArgs, "new", nil, "factory arguments, comma separated")
	callCmd.Flags().StringSliceVar(&callOpts.fields, "field", nil, "data members to print after the call")
}
