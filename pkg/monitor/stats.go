package monitor

import (
	"sync/atomic"
)

// WorkloadStats counts catalog reads, reads that found something, and writes.
type WorkloadStats struct {
	ReadCount  uint64
	WriteCount uint64
	HitCount   uint64
}

// Snapshot is a point-in-time copy of WorkloadStats.
type Snapshot struct {
	Reads  uint64  `json:"reads"`
	Writes uint64  `json:"writes"`
	Hits   uint64  `json:"hits"`
	RWRate float64 `json:"rw_ratio"`
}

func NewWorkloadStats() *WorkloadStats {
	return &WorkloadStats{}
}

func (ws *WorkloadStats) RecordRead() {
	atomic.AddUint64(&ws.ReadCount, 1)
}

func (ws *WorkloadStats) RecordWrite() {
	atomic.AddUint64(&ws.WriteCount, 1)
}

func (ws *WorkloadStats) RecordHit() {
	atomic.AddUint64(&ws.HitCount, 1)
}

func (ws *WorkloadStats) GetReadWriteRatio() float64 {
	reads := atomic.LoadUint64(&ws.ReadCount)
	writes := atomic.LoadUint64(&ws.WriteCount)

	if writes == 0 {
		if reads > 0 {
			return 100.0
		}
		return 0.0
	}
	return float64(reads) / float64(writes)
}

// HitRate is the share of reads that returned at least one record.
func (ws *WorkloadStats) HitRate() float64 {
	reads := atomic.LoadUint64(&ws.ReadCount)
	if reads == 0 {
		return 0
	}
	return float64(atomic.LoadUint64(&ws.HitCount)) / float64(reads)
}

func (ws *WorkloadStats) Snapshot() Snapshot {
	return Snapshot{
		Reads:  atomic.LoadUint64(&ws.ReadCount),
		Writes: atomic.LoadUint64(&ws.WriteCount),
		Hits:   atomic.LoadUint64(&ws.HitCount),
		RWRate: ws.GetReadWriteRatio(),
	}
}

func (ws *WorkloadStats) Reset() {
	atomic.StoreUint64(&ws.ReadCount, 0)
	atomic.StoreUint64(&ws.WriteCount, 0)
	atomic.StoreUint64(&ws.HitCount, 0)
}
