// internal/protocol/types.go
package protocol

import (
	"fmt"
	"strconv"
	"strings"
)

// Kind selects which agent endpoint a metric request targets
type Kind string

const (
	KindCPU     Kind = "cpu"
	KindMemory  Kind = "memory"
	KindDisk    Kind = "disk"
	KindNetwork Kind = "network"
	KindProcess Kind = "process"
	KindSystem  Kind = "system"
)

var kinds = []Kind{KindCPU, KindMemory, KindDisk, KindNetwork, KindProcess, KindSystem}

// Kinds returns every metric kind in dashboard display order
func Kinds() []Kind {
	out := make([]Kind, len(kinds))
	copy(out, kinds)
	return out
}

// ParseKind validates a kind selector taken from a URL or flag
func ParseKind(s string) (Kind, error) {
	for _, k := range kinds {
		if string(k) == s {
			return k, nil
		}
	}
	return "", fmt.Errorf("unknown metric kind %q", s)
}

// NewPayload returns a pointer to the zero payload for a kind, ready for decoding
func NewPayload(k Kind) any {
	switch k {
	case KindCPU:
		return &CPU{}
	case KindMemory:
		return &Memory{}
	case KindDisk:
		return &Disk{}
	case KindNetwork:
		return &Network{}
	case KindProcess:
		return &[]Process{}
	case KindSystem:
		return &System{}
	}
	return nil
}

// CPU is served by GET /api/v1/cpu
type CPU struct {
	Cores       int        `json:"physical_cpu_count"`
	Utilization float64    `json:"cpu_utilization"`
	PerCore     []float64  `json:"per_cpu_utilization"`
	LoadAvg     [3]float64 `json:"load_avg"` // 1, 5, 15 minutes
}

// Memory sizes are preformatted by the agent ("15.6 GB") and kept opaque
type Memory struct {
	Total     string `json:"total"`
	Available string `json:"available"`
	Used      string `json:"used"`
	Free      string `json:"free"`
	Percent   string `json:"percent"`
	Active    string `json:"active"`
	Inactive  string `json:"inactive"`
	Shared    string `json:"shared"`
	Buffers   string `json:"buffers"`
	Cached    string `json:"cached"`
	Slab      string `json:"slab"`
}

// Disk is the aggregate over all partitions
type Disk struct {
	Total       string      `json:"total"`
	Available   string      `json:"available"`
	Used        string      `json:"used"`
	Free        string      `json:"free"`
	UsedPercent string      `json:"used_percent"`
	FreePercent string      `json:"free_percent"`
	Partitions  []Partition `json:"partitions"`
}

// Partition is one mounted filesystem
type Partition struct {
	Device      string `json:"device"`
	Mountpoint  string `json:"mountpoint"`
	FSType      string `json:"fstype"`
	Total       string `json:"total"`
	Used        string `json:"used"`
	Free        string `json:"free"`
	UsedPercent string `json:"used_percent"`
	FreePercent string `json:"free_percent"`
}

// Network counters are totals since boot
type Network struct {
	BytesSent     string      `json:"bytes_sent"`
	BytesRecv     string      `json:"bytes_recv"`
	PacketsSent   uint64      `json:"packets_sent"`
	PacketsRecv   uint64      `json:"packets_recv"`
	NumSockets    int         `json:"num_sockets"`
	NumInterfaces int         `json:"num_interfaces"`
	ErrIn         uint64      `json:"errin"`
	ErrOut        uint64      `json:"errout"`
	Interfaces    []Interface `json:"interfaces"`
}

// Interface is a single NIC
type Interface struct {
	NIC         string         `json:"nic"`
	BytesSent   string         `json:"bytes_sent"`
	BytesRecv   string         `json:"bytes_recv"`
	PacketsSent uint64         `json:"packets_sent"`
	PacketsRecv uint64         `json:"packets_recv"`
	Stats       InterfaceStats `json:"stats"`
}

type InterfaceStats struct {
	IsUp   bool   `json:"isup"`
	Duplex string `json:"duplex"`
	Speed  int    `json:"speed"` // Mbit/s
	MTU    int    `json:"mtu"`
}

// System is served by GET /api/v1/system
type System struct {
	BootTime uint64 `json:"boot_time"` // epoch seconds
	Users    []User `json:"users"`
}

// User is a logged-in session
type User struct {
	Name     string  `json:"name"`
	Terminal string  `json:"terminal"`
	Host     string  `json:"host"`
	Started  float64 `json:"started"`
	PID      int32   `json:"pid"`
}

// Process is one row of GET /api/v1/process
type Process struct {
	PID           int32   `json:"pid"`
	Name          string  `json:"name"`
	Exe           string  `json:"exe"`
	Username      string  `json:"username"`
	Status        string  `json:"status"`
	CPUPercent    float64 `json:"cpu_percent"`
	MemoryPercent float64 `json:"memory_percent"`
	NumThreads    int32   `json:"num_threads"`
	CreateTime    int64   `json:"create_time"` // epoch ms
	RSS           uint64  `json:"rss"`
	VMS           uint64  `json:"vms"`
	Read          string  `json:"read"`
	Write         string  `json:"write"`
	Connections   int     `json:"connections"`
	IsZombie      bool    `json:"is_zombie"`
}

// HostRecord is one row of the host registry
type HostRecord struct {
	ID            string  `json:"id"`
	IP            string  `json:"ip"`
	Hostname      string  `json:"hostname"`
	AccessPort    int     `json:"access_port"`
	CPUPercent    float64 `json:"cpu_percent"`
	CPUCount      int     `json:"cpu_count"`
	MemoryPercent float64 `json:"memory_percent"`
	MemoryTotal   float64 `json:"memory_total"`
	DiskUsage     string  `json:"disk_usage"`
	UpdatedOn     int64   `json:"updated_on"` // epoch ms
}

// ParsePercent turns an agent percent string ("42.1%") into a number for progress bars
func ParsePercent(s string) (float64, error) {
	s = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), "%"))
	if s == "" {
		return 0, fmt.Errorf("empty percent value")
	}
	return strconv.ParseFloat(s, 64)
}

// UsageLevel buckets a CPU utilization figure for display
func UsageLevel(pct float64) string {
	switch {
	case pct > 90:
		return "high"
	case pct >= 70:
		return "optimal"
	case pct >= 40:
		return "moderate"
	default:
		return "low"
	}
}
