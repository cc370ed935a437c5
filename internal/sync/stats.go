package sync

import "sync/atomic"

// Stats holds in-process counters for the engine. Counters only ever grow;
// they reset with the process.
type Stats struct {
	passes         atomic.Int64
	applied        atomic.Int64
	retried        atomic.Int64
	deadLettered   atomic.Int64
	dropped        atomic.Int64
	photosUploaded atomic.Int64
	photosFailed   atomic.Int64
}

// StatsSnapshot is a point-in-time copy of the engine counters.
type StatsSnapshot struct {
	Passes         int64 `json:"passes"`
	Applied        int64 `json:"applied"`
	Retried        int64 `json:"retried"`
	DeadLettered   int64 `json:"dead_lettered"`
	Dropped        int64 `json:"dropped"`
	PhotosUploaded int64 `json:"photos_uploaded"`
	PhotosFailed   int64 `json:"photos_failed"`
}

// Stats returns a snapshot of the engine counters.
func (e *Engine) Stats() StatsSnapshot {
	return StatsSnapshot{
		Passes:         e.stats.passes.Load(),
		Applied:        e.stats.applied.Load(),
		Retried:        e.stats.retried.Load(),
		DeadLettered:   e.stats.deadLettered.Load(),
		Dropped:        e.stats.dropped.Load(),
		PhotosUploaded: e.stats.photosUploaded.Load(),
		PhotosFailed:   e.stats.photosFailed.Load(),
	}
}
