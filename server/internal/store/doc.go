// Package store tracks recently active publish streams: per (topic, stream)
// message counts and first/last seen times, with TTL eviction.
package store
