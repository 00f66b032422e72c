package redis

// Redis key naming conventions. All keys are prefixed with "jobmill:"
// to avoid collisions.

const keyPrefix = "jobmill:"

// jobKey returns the Hash key for a record: jobmill:job:{id}
func jobKey(id string) string { return keyPrefix + "job:" + id }

// pendingKey is the Sorted Set ordering pending records for claims.
// Lower score dispatches first.
const pendingKey = keyPrefix + "pending"

// jobIDsKey is the Set tracking all record IDs for enumeration.
const jobIDsKey = keyPrefix + "job_ids"
