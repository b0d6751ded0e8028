package store

import "time"

// nowMillis is the wall-clock source for latest_per_entity.updated_at
// bookkeeping. Kept as a var so tests can pin it.
var nowMillis = func() int64 {
	return time.Now().UnixMilli()
}
