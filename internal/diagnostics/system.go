package diagnostics

import (
	"fmt"
	"os"
	"runtime"
	"strings"

	"github.com/jaypipes/ghw"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/load"
	"github.com/shirou/gopsutil/v3/mem"
)

// SystemInfo is a point-in-time snapshot of host resources. Every field is
// best-effort: collectors that fail leave their fields zero.
type SystemInfo struct {
	CPUModel   string `json:"cpu_model"`
	CPUCores   int    `json:"cpu_cores"`
	CPUThreads int    `json:"cpu_threads"`

	MemTotalMB     float64 `json:"mem_total_mb"`
	MemAvailableMB float64 `json:"mem_available_mb"`
	MemUsedPercent float64 `json:"mem_used_percent"`

	DiskTotalGB     float64 `json:"disk_total_gb"`
	DiskFreeGB      float64 `json:"disk_free_gb"`
	DiskUsedPercent float64 `json:"disk_used_percent"`

	LoadAvg1  float64 `json:"load_avg_1"`
	LoadAvg5  float64 `json:"load_avg_5"`
	LoadAvg15 float64 `json:"load_avg_15"`

	GPUs []string `json:"gpus,omitempty"`
}

// CollectSystem gathers the current host snapshot.
func CollectSystem() SystemInfo {
	var info SystemInfo
	collectCPU(&info)
	collectMemory(&info)
	collectDisk(&info)
	collectLoad(&info)
	collectGPUs(&info)
	return info
}

func collectCPU(info *SystemInfo) {
	if models, err := cpu.Info(); err == nil && len(models) > 0 {
		info.CPUModel = strings.TrimSpace(models[0].ModelName)
	}
	if cores, err := cpu.Counts(false); err == nil && cores > 0 {
		info.CPUCores = cores
	}
	if threads, err := cpu.Counts(true); err == nil && threads > 0 {
		info.CPUThreads = threads
	}
}

func collectMemory(info *SystemInfo) {
	vm, err := mem.VirtualMemory()
	if err != nil {
		return
	}
	info.MemTotalMB = float64(vm.Total) / 1024 / 1024
	info.MemAvailableMB = float64(vm.Available) / 1024 / 1024
	info.MemUsedPercent = vm.UsedPercent
}

func collectDisk(info *SystemInfo) {
	usage, err := disk.Usage(rootDiskPath())
	if err != nil {
		return
	}
	info.DiskTotalGB = float64(usage.Total) / 1024 / 1024 / 1024
	info.DiskFreeGB = float64(usage.Free) / 1024 / 1024 / 1024
	info.DiskUsedPercent = usage.UsedPercent
}

func collectLoad(info *SystemInfo) {
	avg, err := load.Avg()
	if err != nil {
		return
	}
	info.LoadAvg1 = avg.Load1
	info.LoadAvg5 = avg.Load5
	info.LoadAvg15 = avg.Load15
}

func collectGPUs(info *SystemInfo) {
	gpu, err := ghw.GPU()
	if err != nil || gpu == nil {
		return
	}
	for _, card := range gpu.GraphicsCards {
		name := ""
		if card.DeviceInfo != nil {
			switch {
			case card.DeviceInfo.Vendor != nil && card.DeviceInfo.Product != nil:
				name = strings.TrimSpace(card.DeviceInfo.Vendor.Name + " " + card.DeviceInfo.Product.Name)
			case card.DeviceInfo.Product != nil:
				name = strings.TrimSpace(card.DeviceInfo.Product.Name)
			case card.DeviceInfo.Vendor != nil:
				name = strings.TrimSpace(card.DeviceInfo.Vendor.Name)
			}
		}
		if name == "" {
			name = fmt.Sprintf("GPU %d", card.Index)
		}
		info.GPUs = append(info.GPUs, name)
	}
}

func rootDiskPath() string {
	if runtime.GOOS == "windows" {
		drive := os.Getenv("SystemDrive")
		if drive == "" {
			drive = "C:"
		}
		return drive + "\\"
	}
	return "/"
}
