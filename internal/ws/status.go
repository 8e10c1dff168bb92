package ws

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/proctorhub/backend/internal/relay"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

type hostStatus struct {
	CPUPercent     float64 `json:"cpuPercent"`
	MemUsedPercent float64 `json:"memUsedPercent"`
}

type statusResponse struct {
	UptimeSeconds float64      `json:"uptimeSeconds"`
	Connections   int          `json:"connections"`
	Sessions      int          `json:"sessions"`
	Relay         relay.Status `json:"relay"`
	Host          hostStatus   `json:"host"`
}

// handleStatus reports relay counters (including the persistence mode, so a
// degraded store is visible to operators) plus coarse host utilisation.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if !s.authorize(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	resp := statusResponse{
		UptimeSeconds: time.Since(s.startedAt).Seconds(),
		Connections:   s.connCount(),
		Sessions:      s.registry.SessionCount(),
		Relay:         s.engine.Status(),
	}

	// Host metrics are advisory; failures leave the fields at zero.
	if percents, err := cpu.Percent(0, false); err == nil && len(percents) > 0 {
		resp.Host.CPUPercent = percents[0]
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		resp.Host.MemUsedPercent = vm.UsedPercent
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}
