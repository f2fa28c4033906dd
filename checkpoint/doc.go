// Package checkpoint provides core.CheckpointStore implementations that
// persist execution state per session: in memory, Redis, PostgreSQL and
// MongoDB.
//
// All backends store the state as its JSON encoding, so a loaded state holds
// JSON types (numbers come back as float64).
package checkpoint
