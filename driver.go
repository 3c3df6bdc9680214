package spot

import "github.com/goforj/spot/cachecore"

// Store is the byte-blob persistence contract used for cached results.
type Store = cachecore.Store

// Driver identifies cache backend.
type Driver = cachecore.Driver

const (
	DriverNull      = cachecore.DriverNull
	DriverFile      = cachecore.DriverFile
	DriverMemory    = cachecore.DriverMemory
	DriverMemcached = cachecore.DriverMemcached
	DriverDynamo    = cachecore.DriverDynamo
	DriverSQL       = cachecore.DriverSQL
	DriverRedis     = cachecore.DriverRedis
	DriverNATS      = cachecore.DriverNATS
)
