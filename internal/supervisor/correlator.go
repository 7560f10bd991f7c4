package supervisor

import (
	"github.com/ericcug/streamcanary/internal/canon"
	"github.com/ericcug/streamcanary/internal/correlate"
	"github.com/ericcug/streamcanary/internal/logger"
)

// correlatorHandle owns a correlate.Bucket's lifecycle for one endpoint's
// premonitor run: started alongside the endpoint's Monitors, stopped when
// they all exit.
type correlatorHandle struct {
	bucket *correlate.Bucket
}

func newCorrelatorHandle(log logger.Logger, renditions []canon.Rendition, cfg Config, overflow func()) *correlatorHandle {
	maxLen := cfg.CorrelationMax
	if maxLen <= 0 {
		maxLen = 3 * len(renditions)
	}
	h := &correlatorHandle{}
	h.bucket = correlate.New(log, len(renditions), maxLen, overflow)
	h.bucket.Start(cfg.Monitor.Frequency)
	return h
}

func (h *correlatorHandle) Stop() {
	if h != nil && h.bucket != nil {
		h.bucket.Stop()
	}
}
