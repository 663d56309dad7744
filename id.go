package hangfire

import "github.com/Pearl2B/Hangfire/id"

// ID is the primary identifier type for all Hangfire entities.
type ID = id.ID

// Prefix identifies the entity type encoded in an ID.
type Prefix = id.Prefix
