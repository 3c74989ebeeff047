// Package health implements admission control: a lightweight resource guard
// that refuses new connections once configured limits are exceeded.
//
// Grounded on the teacher's internal/shared/limits/resource_guard.go, pared
// down from its dynamic-capacity variant to the static-limit philosophy it
// documents: enforce configured limits strictly, no auto-calculation.
package health

import (
	"sync/atomic"

	"github.com/shirou/gopsutil/v3/cpu"
)

// Guard decides whether a new connection may be admitted.
type Guard struct {
	maxConnections     int64
	cpuRejectThreshold float64 // 0 disables the CPU check

	current atomic.Int64
}

// New constructs a Guard. cpuRejectThreshold of 0 disables CPU-based
// rejection entirely (the default), since sampling host CPU is a poor
// proxy for load in a shared/CI environment and the spec does not require
// it — this is purely an ambient safety valve modeled on the teacher.
func New(maxConnections int, cpuRejectThreshold float64) *Guard {
	return &Guard{
		maxConnections:     int64(maxConnections),
		cpuRejectThreshold: cpuRejectThreshold,
	}
}

// Admit attempts to reserve a connection slot. Call Release when the
// connection closes.
func (g *Guard) Admit() (ok bool, reason string) {
	if g.current.Load() >= g.maxConnections {
		return false, "max connections reached"
	}
	if g.cpuRejectThreshold > 0 {
		if pct, err := currentCPUPercent(); err == nil && pct >= g.cpuRejectThreshold {
			return false, "server overloaded"
		}
	}
	g.current.Add(1)
	return true, ""
}

// Release returns a connection slot to the pool.
func (g *Guard) Release() {
	g.current.Add(-1)
}

// Current returns the number of admitted, not-yet-released connections.
func (g *Guard) Current() int64 {
	return g.current.Load()
}

var currentCPUPercent = func() (float64, error) {
	percentages, err := cpu.Percent(0, false)
	if err != nil || len(percentages) == 0 {
		return 0, err
	}
	return percentages[0], nil
}
