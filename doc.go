// Package spot memoizes expensive calls, such as LLM requests, in a shared
// store so repeated calls with the same inputs are answered without running
// the function again.
//
// A Spot owns a codec registry and a store. Result types are registered under
// stable numeric codes, then functions are marked:
//
//	s, _ := spot.New("myproject", spot.WithDefaultVersion("v0.1.1"),
//		spot.WithStoreConfig(spot.StoreConfig{Driver: spot.DriverFile, FileDir: ".spot"}))
//	_ = s.Register(10, codec.Struct[UserList]("v1"))
//	getUsers, _ := spot.Mark(s, "get_test_users", fetchUsers,
//		spot.WithKeys(keygen.Map{"Client": keygen.Ignore}))
//	users, err := getUsers.Call(ctx, args)
//
// The fingerprint of a call covers the namespace, function name, version,
// result code and every argument not ignored. Bumping the version invalidates
// prior entries without deleting them.
//
// Store failures, timeouts and unreadable entries are logged and treated as
// misses; only errors from hashing arguments or from the wrapped function
// reach the caller.
package spot
