package telemetry

import (
	"context"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/stressforge/harness-go/pkg/log"
)

const gb = 1024 * 1024 * 1024

// MemoryStats is a point-in-time view of system memory
type MemoryStats struct {
	TotalGB     float64 `json:"total_gb"`
	AvailableGB float64 `json:"available_gb"`
	UsedGB      float64 `json:"used_gb"`
	Percent     float64 `json:"percent"`
}

// CPUStats is a point-in-time view of processor load
type CPUStats struct {
	Percent float64 `json:"percent"`
	Count   int     `json:"count"`
}

// DiskStats is a point-in-time view of root filesystem usage
type DiskStats struct {
	TotalGB float64 `json:"total_gb"`
	UsedGB  float64 `json:"used_gb"`
	FreeGB  float64 `json:"free_gb"`
	Percent float64 `json:"percent"`
}

// SystemStats is the telemetry snapshot taken before and after every fault
// injection and on each campaign tick.
type SystemStats struct {
	Time   time.Time   `json:"time"`
	Memory MemoryStats `json:"memory"`
	CPU    CPUStats    `json:"cpu"`
	Disk   DiskStats   `json:"disk"`
}

// CollectSystemStats gathers a best-effort snapshot of memory, cpu and disk
// telemetry. Collection failures are logged and leave the section zeroed so
// a flaky probe never fails the campaign.
func CollectSystemStats(ctx context.Context) SystemStats {
	stats := SystemStats{Time: time.Now()}

	if vm, err := mem.VirtualMemoryWithContext(ctx); err != nil {
		log.Warnf("unable to collect memory telemetry, err: %v", err)
	} else {
		stats.Memory = MemoryStats{
			TotalGB:     float64(vm.Total) / gb,
			AvailableGB: float64(vm.Available) / gb,
			UsedGB:      float64(vm.Used) / gb,
			Percent:     vm.UsedPercent,
		}
	}

	if percents, err := cpu.PercentWithContext(ctx, 100*time.Millisecond, false); err != nil || len(percents) == 0 {
		log.Warnf("unable to collect cpu telemetry, err: %v", err)
	} else {
		stats.CPU.Percent = percents[0]
	}
	if count, err := cpu.CountsWithContext(ctx, true); err == nil {
		stats.CPU.Count = count
	}

	if usage, err := disk.UsageWithContext(ctx, "/"); err != nil {
		log.Warnf("unable to collect disk telemetry, err: %v", err)
	} else {
		stats.Disk = DiskStats{
			TotalGB: float64(usage.Total) / gb,
			UsedGB:  float64(usage.Used) / gb,
			FreeGB:  float64(usage.Free) / gb,
			Percent: usage.UsedPercent,
		}
	}

	return stats
}

// AvailableMemory returns the current available bytes, used by the memory
// scenarios to size their allocation targets.
func AvailableMemory(ctx context.Context) (available, total uint64, err error) {
	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return 0, 0, err
	}
	return vm.Available, vm.Total, nil
}
