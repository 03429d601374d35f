package contest

import (
	"math"
	"sync"
	"time"
)

// TimerHandle is the countdown owned by a session while it is Running
type TimerHandle struct {
	StartTime time.Time
	EndTime   time.Time
	TimeLimit time.Duration

	stop     chan struct{}
	stopOnce sync.Once
}

func newTimerHandle(start time.Time, limit time.Duration) *TimerHandle {
	return &TimerHandle{
		StartTime: start,
		EndTime:   start.Add(limit),
		TimeLimit: limit,
		stop:      make(chan struct{}),
	}
}

// Remaining returns the time left at now, never negative
func (h *TimerHandle) Remaining(now time.Time) time.Duration {
	left := h.EndTime.Sub(now)
	if left < 0 {
		return 0
	}
	return left
}

// RemainingSeconds rounds the time left up to whole seconds
func (h *TimerHandle) RemainingSeconds(now time.Time) int {
	return int(math.Ceil(h.Remaining(now).Seconds()))
}

// Info returns the client-facing view of the timer
func (h *TimerHandle) Info(now time.Time) *TimerInfo {
	return &TimerInfo{
		StartTime: h.StartTime,
		EndTime:   h.EndTime,
		TimeLimit: int(h.TimeLimit / time.Second),
		Remaining: h.RemainingSeconds(now),
	}
}

func (h *TimerHandle) halt() {
	h.stopOnce.Do(func() { close(h.stop) })
}

// TimerInfo describes a running timer
type TimerInfo struct {
	StartTime time.Time `json:"startTime"`
	EndTime   time.Time `json:"endTime"`
	TimeLimit int       `json:"timeLimit"` // seconds
	Remaining int       `json:"remainingTime"`
}
