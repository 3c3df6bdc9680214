package cli

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const version = "0.1.0"

// Exit codes
const (
	ExitSuccess      = 0
	ExitNotFound     = 1
	ExitUsageError   = 2
	ExitRuntimeError = 4
)

var errNotFound = errors.New("entry not found")

type options struct {
	configPath string
	driver     string
	prefix     string
	fileDir    string
	redisAddr  string
	timeout    time.Duration
	verbose    bool

	out io.Writer
	log *zap.Logger
}

// Run executes spotctl with args and returns the process exit code.
func Run(args []string, stdout, stderr io.Writer) int {
	cmd := newRootCmd(stdout)
	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	err := cmd.ExecuteContext(context.Background())
	switch {
	case err == nil:
		return ExitSuccess
	case errors.Is(err, errNotFound):
		return ExitNotFound
	case errors.Is(err, errUsage):
		return ExitUsageError
	default:
		return ExitRuntimeError
	}
}

var errUsage = errors.New("usage error")

func newRootCmd(out io.Writer) *cobra.Command {
	opts := &options{out: out, log: zap.NewNop()}
	root := &cobra.Command{
		Use:           "spotctl",
		Short:         "Inspect and clear memoized results",
		Long:          "spotctl reads and deletes entries in the store a spot memoization layer writes to.",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !opts.verbose {
				return nil
			}
			logger, err := zap.NewDevelopment()
			if err != nil {
				return err
			}
			opts.log = logger
			return nil
		},
	}
	root.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return errors.Mark(err, errUsage)
	})

	flags := root.PersistentFlags()
	flags.StringVar(&opts.configPath, "config", "", "YAML store configuration file")
	flags.StringVar(&opts.driver, "driver", "", "store driver (memory, file, redis, memcached, sql, dynamodb, nats)")
	flags.StringVar(&opts.prefix, "prefix", "", "key prefix used by shared backends")
	flags.StringVar(&opts.fileDir, "file-dir", "", "directory used by the file driver")
	flags.StringVar(&opts.redisAddr, "redis-addr", "", "redis address")
	flags.DurationVar(&opts.timeout, "timeout", 10*time.Second, "timeout for each store operation")
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "log store activity to stderr")

	root.AddCommand(
		newInspectCmd(opts),
		newDeleteCmd(opts),
		newFlushCmd(opts),
		newVersionCmd(opts),
	)
	return root
}

func newVersionCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print spotctl version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(opts.out, "spotctl version %s\n", version)
		},
	}
}

func usageArgs(check cobra.PositionalArgs) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := check(cmd, args); err != nil {
			return errors.Mark(err, errUsage)
		}
		return nil
	}
}
