// Package sysinfo describes the machine an experiment runs on.
package sysinfo

import (
	"fmt"
	"runtime"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"
)

// Info is a short host description logged with every run.
type Info struct {
	Platform string `json:"platform"`
	CPU      string `json:"cpu"`
	Cores    int    `json:"cores"`
	Memory   string `json:"memory"`
	GoArch   string `json:"goarch"`
}

// Collect gathers host information. Fields that cannot be read are left at
// their fallback values rather than failing the run.
func Collect() Info {
	info := Info{
		Platform: runtime.GOOS,
		CPU:      "unknown",
		Cores:    runtime.NumCPU(),
		Memory:   "unknown",
		GoArch:   runtime.GOARCH,
	}
	if h, err := host.Info(); err == nil && h.Platform != "" {
		info.Platform = h.Platform
	}
	if c, err := cpu.Info(); err == nil && len(c) > 0 {
		info.CPU = c[0].ModelName
	}
	if n, err := cpu.Counts(true); err == nil && n > 0 {
		info.Cores = n
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		info.Memory = fmt.Sprintf("%d GB", vm.Total/1024/1024/1024)
	}
	return info
}

// LogArgs returns the fields as slog key-value pairs.
func (i Info) LogArgs() []any {
	return []any{
		"platform", i.Platform,
		"cpu", i.CPU,
		"cores", i.Cores,
		"memory", i.Memory,
		"goarch", i.GoArch,
	}
}
