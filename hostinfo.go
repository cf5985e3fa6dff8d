package main

import (
	"runtime"

	"github.com/shirou/gopsutil/cpu"
	"github.com/shirou/gopsutil/host"
	"github.com/shirou/gopsutil/mem"
)

type SysInfo struct {
	Arch     string
	Hostname string
	Platform string
	CPUCount int
	CPUFreq  float64
	RAM      float64
}

// HostStat snapshots the host environment for logs and uploaded parameters.
// Probe failures leave zero values, they never block a batch.
func HostStat() SysInfo {
	hostStat, _ := host.Info()
	cpuStat, _ := cpu.Info()
	vmStat, _ := mem.VirtualMemory()
	info := SysInfo{Arch: runtime.GOARCH, CPUCount: len(cpuStat)}
	if hostStat != nil {
		info.Hostname = hostStat.Hostname
		info.Platform = hostStat.Platform
	}
	if len(cpuStat) > 0 {
		totalFreq := 0.0
		for _, cpuInfo := range cpuStat {
			totalFreq += cpuInfo.Mhz
		}
		info.CPUFreq = totalFreq / float64(len(cpuStat)) * 1000
	}
	if vmStat != nil {
		info.RAM = float64(vmStat.Total) / 1024 / 1024 / 1024
	}
	return info
}
