package cli

import (
	"fmt"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"

	"github.com/goforj/spot/serializer"
)

func newInspectCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "inspect <fingerprint>",
		Short: "Describe a stored entry",
		Long: `Print the driver, size and type code of the entry stored under fingerprint.
When the body parses with a built-in serializer its name and schema version are printed too.`,
		Args: usageArgs(cobra.ExactArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, done, err := opts.openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer done()

			ctx, cancel := opts.withTimeout(cmd.Context())
			defer cancel()
			key := args[0]
			body, ok, err := store.Get(ctx, key)
			if err != nil {
				return errors.Wrapf(err, "read %s", key)
			}
			if !ok {
				return errors.Wrapf(errNotFound, "%s", key)
			}

			fmt.Fprintf(opts.out, "fingerprint: %s\n", key)
			fmt.Fprintf(opts.out, "driver:      %s\n", store.Driver())
			fmt.Fprintf(opts.out, "size:        %d bytes\n", len(body))
			code, err := serializer.PeekCode(body)
			if err != nil {
				fmt.Fprintf(opts.out, "type code:   unreadable (%v)\n", err)
				return nil
			}
			fmt.Fprintf(opts.out, "type code:   %d\n", code)
			name, version, ok := describeBody(body)
			if !ok {
				fmt.Fprintln(opts.out, "serializer:  unknown")
				return nil
			}
			fmt.Fprintf(opts.out, "serializer:  %s\n", name)
			fmt.Fprintf(opts.out, "version:     %s\n", version)
			return nil
		},
	}
}

// describeBody tries each built-in serializer in turn. JSON is tried first
// since a msgpack body never starts with '{'.
func describeBody(b []byte) (name, version string, ok bool) {
	for _, ser := range []serializer.Serializer{serializer.JSON(), serializer.MsgPack()} {
		env, err := ser.Deserialize(b)
		if err != nil {
			return "", "", false
		}
		v, _, err := ser.UnmarshalBody(env.Payload)
		if err == nil {
			return ser.Name(), v, true
		}
	}
	return "", "", false
}

func newDeleteCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <fingerprint>...",
		Short: "Delete stored entries",
		Args:  usageArgs(cobra.MinimumNArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, done, err := opts.openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer done()

			ctx, cancel := opts.withTimeout(cmd.Context())
			defer cancel()
			if err := store.DeleteMany(ctx, args...); err != nil {
				return errors.Wrapf(err, "delete %d entries", len(args))
			}
			fmt.Fprintf(opts.out, "deleted %d entries\n", len(args))
			return nil
		},
	}
}

func newFlushCmd(opts *options) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "flush",
		Short: "Remove every entry under the configured prefix",
		Long: `Remove every entry the store holds under the configured prefix.
The memcached driver has no prefix scan and clears the whole server.`,
		Args: usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return errors.Mark(errors.New("flush is destructive; pass --yes to confirm"), errUsage)
			}
			store, done, err := opts.openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer done()

			ctx, cancel := opts.withTimeout(cmd.Context())
			defer cancel()
			if err := store.Flush(ctx); err != nil {
				return errors.Wrap(err, "flush")
			}
			fmt.Fprintf(opts.out, "flushed %s store\n", store.Driver())
			return nil
		},
	}
	cmd.Flags().BoolVar(&yes, "yes", false, "confirm the flush")
	return cmd
}
