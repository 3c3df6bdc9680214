package spot

import (
	"context"

	"github.com/cockroachdb/errors"
)

// deleteEach deletes keys one at a time for backends without a bulk delete.
// It keeps going past individual failures and reports them together.
func deleteEach(ctx context.Context, keys []string, del func(context.Context, string) error) error {
	var errs error
	for _, key := range keys {
		if err := ctx.Err(); err != nil {
			return errors.CombineErrors(errs, err)
		}
		if err := del(ctx, key); err != nil {
			errs = errors.CombineErrors(errs, errors.Wrapf(err, "delete %s", key))
		}
	}
	return errs
}

// scopedKeys applies a store's key prefixing to every key.
func scopedKeys(keys []string, scope func(string) string) []string {
	out := make([]string, len(keys))
	for i, key := range keys {
		out[i] = scope(key)
	}
	return out
}
