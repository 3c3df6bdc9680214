// Package cachetest provides a reusable contract suite for spot.Store
// implementations, so a custom driver can be checked against the same
// expectations as the built-in ones.
//
// Example:
//
//	func TestRedisStoreContract(t *testing.T) {
//		store, err := spot.NewRedisStore(ctx, client, spot.WithPrefix("test"))
//		if err != nil {
//			t.Fatalf("new redis store: %v", err)
//		}
//
//		// Namespace keys per test and tune TTL waits for backend semantics as needed.
//		cachetest.RunStoreContract(t, store, cachetest.Options{
//			CaseName: t.Name(),
//			TTL:      time.Second,
//			TTLWait:  1500 * time.Millisecond,
//		})
//	}
package cachetest
