package redis

import "github.com/shcorya/distributed-workers/internal/domain"

// Redis key layout, all under the configured prefix:
//
//	{prefix}seq        counter handing out job ids
//	{prefix}ready      list of ready job ids, oldest first
//	{prefix}reserved   sorted set of reserved ids scored by deadline (unix ms)
//	{prefix}job:{id}   hash holding the job

type keys struct {
	prefix string
}

func (k keys) seq() string      { return k.prefix + "seq" }
func (k keys) ready() string    { return k.prefix + "ready" }
func (k keys) reserved() string { return k.prefix + "reserved" }
func (k keys) jobPrefix() string {
	return k.prefix + "job:"
}
func (k keys) job(id domain.JobID) string {
	return k.jobPrefix() + id.String()
}

// Hash fields of a job.
const (
	fieldPayload   = "payload"
	fieldState     = "state"
	fieldCreatedAt = "created_at"
	fieldTTR       = "ttr"
	fieldDeadline  = "deadline"
	fieldReserves  = "reserves"
	fieldTimeouts  = "timeouts"
	fieldReleases  = "releases"
	fieldBuries    = "buries"
)
