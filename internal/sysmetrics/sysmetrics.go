// Package sysmetrics samples process-level CPU and memory usage.
package sysmetrics

import (
	"runtime"
	"sync"
	"syscall"
	"time"
)

// Sampler measures process CPU usage between calls.
type Sampler struct {
	mu       sync.Mutex
	lastWall time.Time
	lastUser time.Duration
	lastSys  time.Duration
	lastCPU  float64
}

// NewSampler returns a Sampler primed at the current usage, so the
// first CPUPercent call measures from now.
func NewSampler() *Sampler {
	user, sys := getrusageTimes()
	return &Sampler{
		lastWall: time.Now(),
		lastUser: user,
		lastSys:  sys,
	}
}

// CPUPercent returns the process CPU usage as a percentage since the
// previous call. Multi-core processes can exceed 100.
func (s *Sampler) CPUPercent() float64 {
	now := time.Now()
	utime, stime := getrusageTimes()

	s.mu.Lock()
	defer s.mu.Unlock()

	wall := now.Sub(s.lastWall)
	if wall <= 0 {
		return s.lastCPU
	}

	cpuDelta := (utime - s.lastUser) + (stime - s.lastSys)
	pct := float64(cpuDelta) / float64(wall) * 100.0

	s.lastWall = now
	s.lastUser = utime
	s.lastSys = stime
	s.lastCPU = pct

	return pct
}

// MemoryInuse returns the memory actively in use by the Go runtime, in
// bytes. This is HeapInuse (live heap spans) plus StackInuse (goroutine
// stacks), excluding virtual address space reserved but not committed.
func MemoryInuse() int64 {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	return int64(m.HeapInuse + m.StackInuse)
}

func getrusageTimes() (user, sys time.Duration) {
	var rusage syscall.Rusage
	if err := syscall.Getrusage(syscall.RUSAGE_SELF, &rusage); err != nil {
		return 0, 0
	}
	user = time.Duration(rusage.Utime.Nano())
	sys = time.Duration(rusage.Stime.Nano())
	return user, sys
}
