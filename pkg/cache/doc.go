// Package cache provides a tiered read cache for federation lookups on the
// authentication hot path. The first tier is an in-process expirable LRU; a
// Redis tier can be layered behind it so replicas share warm entries.
package cache
