package system

import (
	"context"
	"fmt"
	"runtime"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

// HostStats is a snapshot of the machine an export ran on.
type HostStats struct {
	CPUModel    string
	LogicalCPUs int
	CPUPercent  float64
	MemUsedMB   uint64
	MemTotalMB  uint64
	MemPercent  float64
	GoHeapMB    uint64
	GoRoutines  int
}

// CollectHostStats gathers what gopsutil can read; missing values stay zero.
func CollectHostStats(ctx context.Context) HostStats {
	s := HostStats{LogicalCPUs: runtime.NumCPU(), GoRoutines: runtime.NumGoroutine()}

	if infos, err := cpu.InfoWithContext(ctx); err == nil && len(infos) > 0 {
		s.CPUModel = infos[0].ModelName
	}
	if pct, err := cpu.PercentWithContext(ctx, 0, false); err == nil && len(pct) > 0 {
		s.CPUPercent = pct[0]
	}
	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		s.MemUsedMB = vm.Used / 1024 / 1024
		s.MemTotalMB = vm.Total / 1024 / 1024
		s.MemPercent = vm.UsedPercent
	}

	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	s.GoHeapMB = ms.HeapAlloc / 1024 / 1024
	return s
}

func (s HostStats) String() string {
	return fmt.Sprintf("CPU: %s x%d (%.0f%%) | RAM: %d/%d MB (%.0f%%) | Go heap: %d MB",
		s.CPUModel, s.LogicalCPUs, s.CPUPercent, s.MemUsedMB, s.MemTotalMB, s.MemPercent, s.GoHeapMB)
}
