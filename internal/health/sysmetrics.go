package health

import (
	"context"
	"fmt"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

// highUsageThreshold is the percentage at or above which CPU or memory
// utilization degrades the system probe; spec.md names 90% as the warning
// threshold for sampled system resource pressure.
const highUsageThreshold = 90.0

// SystemResourceProbe samples process-host CPU and memory utilization via
// gopsutil and reports Warning-severity ReportedErrors (through monitor)
// whenever either crosses highUsageThreshold, alongside its ProbeResult.
// gopsutil has no source file in the retrieved example repos themselves,
// but appears as a declared dependency across multiple retrieved go.mod
// manifests for exactly this host-metrics purpose — the standard library
// has no portable per-host CPU percentage API, so this is the ecosystem's
// answer rather than a hand-rolled /proc reader.
func SystemResourceProbe(monitor *Monitor) Probe {
	return ProbeFunc(func(ctx context.Context) ProbeResult {
		cpuPct, cpuErr := cpu.PercentWithContext(ctx, 0, false)
		vm, memErr := mem.VirtualMemoryWithContext(ctx)

		if cpuErr != nil || memErr != nil {
			return Unknown("system_resources", "sampling failed")
		}

		var cpuUsed float64
		if len(cpuPct) > 0 {
			cpuUsed = cpuPct[0]
		}
		memUsed := vm.UsedPercent

		detail := fmt.Sprintf("cpu=%.1f%% mem=%.1f%%", cpuUsed, memUsed)

		if cpuUsed >= highUsageThreshold || memUsed >= highUsageThreshold {
			if monitor != nil {
				monitor.ReportError("system_resources", SeverityWarning,
					"host resource utilization exceeds threshold",
					map[string]any{"cpu_percent": cpuUsed, "mem_percent": memUsed})
			}
			return Degraded("system_resources", detail)
		}
		return ProbeResult{Name: "system_resources", Status: StatusHealthy, Detail: detail}
	})
}
