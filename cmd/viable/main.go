// Command viable inspects schemas and calls virtual methods on native
// objects described by them.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"

	"github.com/chazu/viable/bridge"
	"github.com/chazu/viable/manifest"
)

var (
	rootOpts = struct {
		dir       string
		verbosity int
		logFile   string
	}{}

	rootCmd = &cobra.Command{
		Use:           "viable",
		Short:         "Call C++ virtual methods through vtable schemas",
		Long:          "viable resolves vtable slots from declarative interface schemas and invokes methods on objects returned by a library's factories.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
)

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&rootOpts.dir, "dir", "C", ".", "project directory (viable.toml is searched upward from here)")
	flags.CountVarP(&rootOpts.verbosity, "verbose", "v", "increase log verbosity (repeatable)")
	flags.StringVar(&rootOpts.logFile, "log", "", "log file (default: [log] file, else stderr)")

	rootCmd.AddCommand(checkCmd, layoutCmd, importCmd, callCmd)
}

// openProject finds the manifest, configures logging from it and the
// flags, and opens the project.
func openProject(ctx context.Context) (*bridge.Bridge, error) {
	m, err := manifest.FindAndLoad(rootOpts.dir)
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, fmt.Errorf("no %s found in %s or its parents", manifest.FileName, rootOpts.dir)
	}

	verbosity := max(rootOpts.verbosity, m.Log.Verbosity)
	var path *string
	if rootOpts.logFile != "" {
		path = &rootOpts.logFile
	} else if p := m.LogPath(); p != "" {
		path = &p
	}
	commonlog.Configure(verbosity, path)

	return bridge.Open(ctx, m)
}

func run(ctx context.Context, args []string) error {
	rootCmd.SetArgs(args)
	return rootCmd.ExecuteContext(ctx)
}

func main() {
	if err := run(context.Background(), os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "viable: %v\n", err)
		var exit exitError
		if errors.As(err, &exit) {
			os.Exit(exit.code)
		}
		os.Exit(1)
	}
}

// exitError carries a specific exit status.
type exitError struct {
	code int
	err  error
}

func (e exitError) Error() string { return e.err.Error() }
func (e exitError) Unwrap() error { return e.err }
