// internal/agent/collect.go
package agent

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/load"
	"github.com/shirou/gopsutil/v3/mem"
	psnet "github.com/shirou/gopsutil/v3/net"
	"github.com/shirou/gopsutil/v3/process"

	"github.com/signalnine/fleetwatch/internal/protocol"
)

// CollectFunc gathers one metric kind from the local host
type CollectFunc func(ctx context.Context) (any, error)

// cpuSample is how long overall utilisation is measured for
const cpuSample = 500 * time.Millisecond

// pseudoFS are filesystems that do not represent local storage
var pseudoFS = map[string]bool{
	"autofs": true, "binfmt_misc": true, "bpf": true, "cgroup": true, "cgroup2": true,
	"configfs": true, "debugfs": true, "devfs": true, "devtmpfs": true, "efivarfs": true,
	"fusectl": true, "hugetlbfs": true, "mqueue": true, "nsfs": true, "overlay": true,
	"proc": true, "pstore": true, "ramfs": true, "securityfs": true, "squashfs": true,
	"sysfs": true, "tmpfs": true, "tracefs": true,
}

func size(b uint64) string {
	return humanize.Bytes(b)
}

func percent(p float64) string {
	return fmt.Sprintf("%.1f%%", p)
}

func collectCPU(ctx context.Context) (any, error) {
	cores, err := cpu.CountsWithContext(ctx, false)
	if err != nil {
		return nil, fmt.Errorf("count cores: %w", err)
	}

	overall, err := cpu.PercentWithContext(ctx, cpuSample, false)
	if err != nil {
		return nil, fmt.Errorf("cpu percent: %w", err)
	}

	// Per-core is a snapshot since the previous call; not fatal
	perCore, err := cpu.PercentWithContext(ctx, 0, true)
	if err != nil {
		perCore = []float64{}
	}

	out := &protocol.CPU{Cores: cores, PerCore: perCore}
	if len(overall) > 0 {
		out.Utilization = overall[0]
	}
	if avg, err := load.AvgWithContext(ctx); err == nil {
		out.LoadAvg = [3]float64{avg.Load1, avg.Load5, avg.Load15}
	}
	return out, nil
}

func collectMemory(ctx context.Context) (any, error) {
	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("virtual memory: %w", err)
	}

	return &protocol.Memory{
		Total:     size(vm.Total),
		Available: size(vm.Available),
		Used:      size(vm.Used),
		Free:      size(vm.Free),
		Percent:   percent(vm.UsedPercent),
		Active:    size(vm.Active),
		Inactive:  size(vm.Inactive),
		Shared:    size(vm.Shared),
		Buffers:   size(vm.Buffers),
		Cached:    size(vm.Cached),
		Slab:      size(vm.Slab),
	}, nil
}

func collectDisk(ctx context.Context) (any, error) {
	parts, err := disk.PartitionsWithContext(ctx, false)
	if err != nil {
		return nil, fmt.Errorf("list partitions: %w", err)
	}

	out := &protocol.Disk{Partitions: []protocol.Partition{}}
	var total, used, free uint64
	seen := make(map[string]bool)
	for _, p := range parts {
		if pseudoFS[p.Fstype] || seen[p.Device] {
			continue
		}
		usage, err := disk.UsageWithContext(ctx, p.Mountpoint)
		if err != nil || usage.Total == 0 {
			continue
		}
		seen[p.Device] = true

		total += usage.Total
		used += usage.Used
		free += usage.Free
		out.Partitions = append(out.Partitions, protocol.Partition{
			Device:      p.Device,
			Mountpoint:  p.Mountpoint,
			FSType:      p.Fstype,
			Total:       size(usage.Total),
			Used:        size(usage.Used),
			Free:        size(usage.Free),
			UsedPercent: percent(usage.UsedPercent),
			FreePercent: percent(100 - usage.UsedPercent),
		})
	}

	out.Total = size(total)
	out.Used = size(used)
	out.Free = size(free)
	out.Available = size(free)
	if total > 0 {
		usedPct := float64(used) / float64(total) * 100
		out.UsedPercent = percent(usedPct)
		out.FreePercent = percent(100 - usedPct)
	} else {
		out.UsedPercent = percent(0)
		out.FreePercent = percent(0)
	}
	return out, nil
}

func collectNetwork(ctx context.Context) (any, error) {
	counters, err := psnet.IOCountersWithContext(ctx, true)
	if err != nil {
		return nil, fmt.Errorf("io counters: %w", err)
	}

	ifaces := make(map[string]psnet.InterfaceStat)
	if list, err := psnet.InterfacesWithContext(ctx); err == nil {
		for _, i := range list {
			ifaces[i.Name] = i
		}
	}

	out := &protocol.Network{Interfaces: []protocol.Interface{}}
	var sent, recv uint64
	for _, c := range counters {
		sent += c.BytesSent
		recv += c.BytesRecv
		out.PacketsSent += c.PacketsSent
		out.PacketsRecv += c.PacketsRecv
		out.ErrIn += c.Errin
		out.ErrOut += c.Errout

		stats := protocol.InterfaceStats{Duplex: "unknown"}
		if i, ok := ifaces[c.Name]; ok {
			stats.MTU = i.MTU
			for _, f := range i.Flags {
				if f == "up" {
					stats.IsUp = true
				}
			}
		}
		out.Interfaces = append(out.Interfaces, protocol.Interface{
			NIC:         c.Name,
			BytesSent:   size(c.BytesSent),
			BytesRecv:   size(c.BytesRecv),
			PacketsSent: c.PacketsSent,
			PacketsRecv: c.PacketsRecv,
			Stats:       stats,
		})
	}
	out.BytesSent = size(sent)
	out.BytesRecv = size(recv)
	out.NumInterfaces = len(out.Interfaces)

	// Socket listing needs privileges on some systems
	if conns, err := psnet.ConnectionsWithContext(ctx, "all"); err == nil {
		out.NumSockets = len(conns)
	}
	return out, nil
}

func collectSystem(ctx context.Context) (any, error) {
	boot, err := host.BootTimeWithContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("boot time: %w", err)
	}

	out := &protocol.System{BootTime: boot, Users: []protocol.User{}}
	if users, err := host.UsersWithContext(ctx); err == nil {
		for _, u := range users {
			out.Users = append(out.Users, protocol.User{
				Name:     u.User,
				Terminal: u.Terminal,
				Host:     u.Host,
				Started:  float64(u.Started),
			})
		}
	}
	return out, nil
}

// processCollector lists processes, busiest first, capped at top when positive
func processCollector(top int) CollectFunc {
	return func(ctx context.Context) (any, error) {
		procs, err := process.ProcessesWithContext(ctx)
		if err != nil {
			return nil, fmt.Errorf("list processes: %w", err)
		}

		// Individual processes may vanish or deny access; skip their fields
		out := make([]protocol.Process, 0, len(procs))
		for _, p := range procs {
			name, err := p.NameWithContext(ctx)
			if err != nil {
				continue
			}
			row := protocol.Process{PID: p.Pid, Name: name}
			row.Exe, _ = p.ExeWithContext(ctx)
			row.Username, _ = p.UsernameWithContext(ctx)
			row.CPUPercent, _ = p.CPUPercentWithContext(ctx)
			if memPct, err := p.MemoryPercentWithContext(ctx); err == nil {
				row.MemoryPercent = float64(memPct)
			}
			row.NumThreads, _ = p.NumThreadsWithContext(ctx)
			row.CreateTime, _ = p.CreateTimeWithContext(ctx)
			if st, err := p.StatusWithContext(ctx); err == nil && len(st) > 0 {
				row.Status = strings.ToLower(st[0])
			}
			row.IsZombie = row.Status == process.Zombie
			if mi, err := p.MemoryInfoWithContext(ctx); err == nil {
				row.RSS, row.VMS = mi.RSS, mi.VMS
			}
			if ioc, err := p.IOCountersWithContext(ctx); err == nil {
				row.Read, row.Write = size(ioc.ReadBytes), size(ioc.WriteBytes)
			}
			if conns, err := p.ConnectionsWithContext(ctx); err == nil {
				row.Connections = len(conns)
			}
			out = append(out, row)
		}

		sort.Slice(out, func(i, j int) bool { return out[i].CPUPercent > out[j].CPUPercent })
		if top > 0 && len(out) > top {
			out = out[:top]
		}
		return &out, nil
	}
}

// defaultCollectors reads every kind from the local host
func defaultCollectors(topProcesses int) map[protocol.Kind]CollectFunc {
	return map[protocol.Kind]CollectFunc{
		protocol.KindCPU:     collectCPU,
		protocol.KindMemory:  collectMemory,
		protocol.KindDisk:    collectDisk,
		protocol.KindNetwork: collectNetwork,
		protocol.KindProcess: processCollector(topProcesses),
		protocol.KindSystem:  collectSystem,
	}
}
