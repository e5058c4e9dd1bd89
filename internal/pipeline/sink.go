package pipeline

import (
	"sync"

	"github.com/banshee-data/opticalflow/internal/accumulator"
)

// LatestRecord is a RecordSink keeping the most recent FrameRecord for
// readers on other goroutines.
type LatestRecord struct {
	mu     sync.RWMutex
	record accumulator.FrameRecord
	seq    uint64
}

func (l *LatestRecord) PublishRecord(r accumulator.FrameRecord) {
	l.mu.Lock()
	l.record = r
	l.seq++
	l.mu.Unlock()
}

// Load returns the latest record and how many have been published.
func (l *LatestRecord) Load() (accumulator.FrameRecord, uint64) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.record, l.seq
}
