package ingestion

import (
	"runtime"
	"runtime/debug"

	"github.com/shirou/gopsutil/v3/mem"
)

// MemoryProbe reports current resident memory utilization as a fraction
// of total system memory, the signal the memory guard acts on.
type MemoryProbe interface {
	UtilizationFraction() (float64, error)
}

// SystemMemoryProbe reads actual host memory utilization via gopsutil.
type SystemMemoryProbe struct{}

func (SystemMemoryProbe) UtilizationFraction() (float64, error) {
	vm, err := mem.VirtualMemory()
	if err != nil {
		return 0, err
	}
	return vm.UsedPercent / 100.0, nil
}

// forceGC forces a full garbage collection cycle and returns memory to the
// OS, used by the memory guard before re-checking utilization and after
// each embed batch.
func forceGC() {
	runtime.GC()
	debug.FreeOSMemory()
}
