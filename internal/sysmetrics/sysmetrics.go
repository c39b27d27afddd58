// Package sysmetrics measures process CPU time and memory for a batch run.
package sysmetrics

import (
	"runtime"
	"syscall"
	"time"
)

// Usage is the resource consumption observed by a Meter.
type Usage struct {
	Elapsed time.Duration
	User    time.Duration
	Sys     time.Duration

	// MemoryInuse is HeapInuse plus StackInuse at sample time, in bytes.
	MemoryInuse int64
	// PeakRSS is the process high-water resident set size, in bytes.
	PeakRSS int64
}

// CPUPercent returns user plus system time as a percentage of elapsed
// wall time. Multi-core processes can exceed 100.
func (u Usage) CPUPercent() float64 {
	if u.Elapsed <= 0 {
		return 0
	}
	return float64(u.User+u.Sys) / float64(u.Elapsed) * 100.0
}

// Meter samples usage relative to the moment it was started.
type Meter struct {
	start time.Time
	user  time.Duration
	sys   time.Duration
}

// Start returns a Meter anchored at the current wall and CPU times.
func Start() *Meter {
	user, sys, _ := getrusage()
	return &Meter{start: time.Now(), user: user, sys: sys}
}

// Sample returns the usage since Start.
func (m *Meter) Sample() Usage {
	user, sys, maxRSS := getrusage()
	return Usage{
		Elapsed:     time.Since(m.start),
		User:        user - m.user,
		Sys:         sys - m.sys,
		MemoryInuse: MemoryInuse(),
		PeakRSS:     maxRSS,
	}
}

// MemoryInuse returns the memory actively in use by the Go runtime, in
// bytes, excluding reserved but uncommitted address space.
func MemoryInuse() int64 {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	return int64(m.HeapInuse + m.StackInuse) //nolint:gosec // G115: heap size fits int64
}

func getrusage() (user, sys time.Duration, maxRSS int64) {
	var rusage syscall.Rusage
	if err := syscall.Getrusage(syscall.RUSAGE_SELF, &rusage); err != nil {
		return 0, 0, 0
	}
	// Linux reports ru_maxrss in kilobytes.
	return time.Duration(rusage.Utime.Nano()), time.Duration(rusage.Stime.Nano()), rusage.Maxrss * 1024
}
