package redis

// Redis key naming conventions. Every key starts with the store prefix,
// "hangfire:" unless WithKeyPrefix says otherwise.

const defaultKeyPrefix = "hangfire:"

// Job hash fields.
const (
	fieldID        = "id"
	fieldType      = "type"
	fieldState     = "state"
	fieldCreatedAt = "created_at"
	fieldUpdatedAt = "updated_at"
	fieldExpireAt  = "expire_at"
)

// State record hash fields.
const (
	fieldStateName      = "name"
	fieldStateReason    = "reason"
	fieldStateCreatedAt = "created_at"
)

// jobKey returns the Hash key of a job: hangfire:job:{id}
func (s *Store) jobKey(id string) string { return s.prefix + "job:" + id }

// paramsKey returns the Hash of stored job parameters.
func (s *Store) paramsKey(id string) string { return s.prefix + "job:" + id + ":parameters" }

// stateKey returns the Hash holding the current state record.
func (s *Store) stateKey(id string) string { return s.prefix + "job:" + id + ":state" }

// stateDataKey returns the Hash holding the current state's data.
func (s *Store) stateDataKey(id string) string { return s.prefix + "job:" + id + ":state:data" }

// historyKey returns the List of msgpack-encoded state records.
func (s *Store) historyKey(id string) string { return s.prefix + "job:" + id + ":history" }

// jobKeys returns every key owned by a job, for expiration.
func (s *Store) jobKeys(id string) []string {
	return []string{s.jobKey(id), s.paramsKey(id), s.stateKey(id), s.stateDataKey(id), s.historyKey(id)}
}

// queueKey returns the List key of a queue: hangfire:queue:{name}
func (s *Store) queueKey(name string) string { return s.prefix + "queue:" + name }

// setKey returns the Sorted Set key: hangfire:set:{key}
func (s *Store) setKey(key string) string { return s.prefix + "set:" + key }

// counterKey returns the integer key of a counter: hangfire:counter:{key}
func (s *Store) counterKey(key string) string { return s.prefix + "counter:" + key }
