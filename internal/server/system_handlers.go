package server

import (
	"net/http"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/aristath/systemicrisk/internal/scheduler"
)

// SystemStatusResponse is the body of GET /api/system/status
type SystemStatusResponse struct {
	Status        string            `json:"status"`
	UptimeSeconds float64           `json:"uptime_seconds"`
	CPUPercent    float64           `json:"cpu_percent"`
	MemoryPercent float64           `json:"memory_percent"`
	Goroutines    int               `json:"goroutines"`
	Snapshot      *SnapshotStatus   `json:"snapshot,omitempty"`
	Jobs          []scheduler.Entry `json:"jobs"`
}

// SnapshotStatus describes the age of the latest snapshot
type SnapshotStatus struct {
	ID         string    `json:"id"`
	CreatedAt  time.Time `json:"created_at"`
	AgeSeconds float64   `json:"age_seconds"`
	Datasets   int       `json:"datasets"`
	Failed     int       `json:"failed"`
}

// handleSystemStatus reports host load, jobs and snapshot freshness
// GET /api/system/status
func (s *Server) handleSystemStatus(w http.ResponseWriter, r *http.Request) {
	cpuPercent, memPercent := s.getSystemStats()

	response := SystemStatusResponse{
		Status:        "healthy",
		UptimeSeconds: time.Since(s.startedAt).Seconds(),
		CPUPercent:    cpuPercent,
		MemoryPercent: memPercent,
		Goroutines:    runtime.NumGoroutine(),
		Jobs:          []scheduler.Entry{},
	}
	if s.scheduler != nil {
		response.Jobs = s.scheduler.Entries()
	}

	if snap, err := s.service.Latest(); err == nil {
		response.Snapshot = &SnapshotStatus{
			ID:         snap.ID.String(),
			CreatedAt:  snap.CreatedAt,
			AgeSeconds: time.Since(snap.CreatedAt).Seconds(),
			Datasets:   len(snap.Datasets),
			Failed:     len(snap.Errors),
		}
		if len(snap.Errors) > 0 {
			response.Status = "degraded"
		}
	} else {
		response.Status = "warming_up"
	}

	s.writeJSON(w, r, http.StatusOK, response)
}

// getSystemStats calculates CPU and RAM usage percentages
func (s *Server) getSystemStats() (float64, float64) {
	// 100ms sample keeps the endpoint responsive
	cpuPercent, err := cpu.Percent(100*time.Millisecond, false)
	if err != nil {
		s.log.Warn().Err(err).Msg("Failed to get CPU percentage")
		cpuPercent = []float64{0}
	}

	memStat, err := mem.VirtualMemory()
	if err != nil {
		s.log.Warn().Err(err).Msg("Failed to get memory statistics")
		return 0, 0
	}

	cpuAvg := 0.0
	if len(cpuPercent) > 0 {
		cpuAvg = cpuPercent[0]
	}

	return cpuAvg, memStat.UsedPercent
}
