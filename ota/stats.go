package ota

import (
	"sync"
	"time"
)

// Stats is an immutable point-in-time view of the uploader counters.
// Returned by Uploader.Stats(). Safe to read concurrently after creation.
type Stats struct {
	// Upload lifecycle
	UploadsStarted   int64
	UploadsCompleted int64
	UploadsAborted   int64

	// Outbound traffic
	FramesSent  int64
	PiecesSent  int64
	PartsSent   int64
	PartsResent int64
	BytesSent   int64

	// Inbound traffic
	FramesReceived int64
	FramesIgnored  int64

	// Link interruptions
	Suspensions int64
	Resumes     int64

	// LastUploadDuration is the wall time of the most recent completed upload
	LastUploadDuration time.Duration
}

// collector accumulates counters for one uploader.
// Thread-safe via sync.Mutex. All methods are nil-receiver safe.
type collector struct {
	mu sync.Mutex
	s  Stats
}

func (c *collector) add(f func(s *Stats)) {
	if c == nil {
		return
	}
	c.mu.Lock()
	f(&c.s)
	c.mu.Unlock()
}

func (c *collector) incUploadStarted() { c.add(func(s *Stats) { s.UploadsStarted++ }) }
func (c *collector) incUploadAborted() { c.add(func(s *Stats) { s.UploadsAborted++ }) }
func (c *collector) incFrameReceived() { c.add(func(s *Stats) { s.FramesReceived++ }) }
func (c *collector) incFrameIgnored() { c.add(func(s *Stats) { s.FramesIgnored++ }) }
func (c *collector) incSuspension() { c.add(func(s *Stats) { s.Suspensions++ }) }
func (c *collector) incResume() { c.add(func(s *Stats) { s.Resumes++ }) }
func (c *collector) incFrameSent() { c.add(func(s *Stats) { s.FramesSent++ }) }

func (c *collector) incUploadCompleted(elapsed time.Duration) {
	c.add(func(s *Stats) {
		s.UploadsCompleted++
		s.LastUploadDuration = elapsed
	})
}

func (c *collector) addPiece(n int) {
	c.add(func(s *Stats) {
		s.PiecesSent++
		s.BytesSent += int64(n)
	})
}

func (c *collector) incPartSent(resend bool) {
	c.add(func(s *Stats) {
		s.PartsSent++
		if resend {
			s.PartsResent++
		}
	})
}

// snapshot returns a copy of the current counters.
func (c *collector) snapshot() Stats {
	if c == nil {
		return Stats{}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.s
}
