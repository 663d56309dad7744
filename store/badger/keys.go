package badger

import "encoding/binary"

// sep separates key segments. Queue names, set keys and parameter names
// may contain ':' so a NUL byte is used instead.
const sep = "\x00"

const (
	prefixJob      = "job" + sep
	prefixParam    = "param" + sep
	prefixHistory  = "hist" + sep
	prefixQueue    = "queue" + sep
	prefixQueueIdx = "qidx" + sep
	prefixSet      = "set" + sep
	prefixCounter  = "counter" + sep

	queueSequenceKey = "seq" + sep + "queue"
)

func jobKey(jobID string) []byte { return []byte(prefixJob + jobID) }

func paramPrefix(jobID string) []byte { return []byte(prefixParam + jobID + sep) }

func paramKey(jobID, name string) []byte { return append(paramPrefix(jobID), name...) }

func historyPrefix(jobID string) []byte { return []byte(prefixHistory + jobID + sep) }

// historyKey orders entries by index so prefix iteration yields them
// oldest first.
func historyKey(jobID string, n uint64) []byte {
	return binary.BigEndian.AppendUint64(historyPrefix(jobID), n)
}

func queuePrefix(name string) []byte { return []byte(prefixQueue + name + sep) }

func queueKey(name string, seq uint64) []byte {
	return binary.BigEndian.AppendUint64(queuePrefix(name), seq)
}

// queueIndexKey maps a queue member back to its queue key for removal
// and de-duplication.
func queueIndexKey(name, jobID string) []byte {
	return []byte(prefixQueueIdx + name + sep + jobID)
}

func setKey(key, value string) []byte { return []byte(prefixSet + key + sep + value) }

func counterKey(key string) []byte { return []byte(prefixCounter + key) }
