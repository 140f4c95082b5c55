// Package render formats registry rows and metric results for the terminal.
package render

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/dustin/go-humanize"

	"github.com/signalnine/fleetwatch/internal/protocol"
	"github.com/signalnine/fleetwatch/internal/proxy"
	"github.com/signalnine/fleetwatch/internal/status"
)

const (
	colorGreen  lipgloss.Color = "2"
	colorRed    lipgloss.Color = "1"
	colorYellow lipgloss.Color = "3"
	colorBlue   lipgloss.Color = "4"
	colorMuted  lipgloss.Color = "8"
)

const barWidth = 20

var (
	kindStyle  = lipgloss.NewStyle().Bold(true).Width(8)
	mutedStyle = lipgloss.NewStyle().Foreground(colorMuted)
	errorStyle = lipgloss.NewStyle().Foreground(colorRed)
)

func tierColor(t status.Tier) lipgloss.Color {
	switch t {
	case status.Active:
		return colorGreen
	case status.Inactive:
		return colorRed
	default:
		return colorYellow
	}
}

// Badge renders a staleness tier label
func Badge(t status.Tier) string {
	return lipgloss.NewStyle().Bold(true).Foreground(tierColor(t)).Render(t.Label())
}

func levelColor(level string) lipgloss.Color {
	switch level {
	case "high":
		return colorRed
	case "optimal":
		return colorYellow
	case "moderate":
		return colorBlue
	default:
		return colorGreen
	}
}

// Bar draws a fixed-width progress bar for pct in [0, 100]
func Bar(pct float64) string {
	if pct < 0 {
		pct = 0
	}
	if pct > 100 {
		pct = 100
	}
	filled := int(pct / 100 * barWidth)
	color := levelColor(protocol.UsageLevel(pct))
	return "[" + lipgloss.NewStyle().Foreground(color).Render(strings.Repeat("#", filled)) +
		mutedStyle.Render(strings.Repeat(".", barWidth-filled)) + "]"
}

// Result renders one widget update as a single line
func Result(kind protocol.Kind, res proxy.Result, now time.Time) string {
	head := kindStyle.Render(string(kind))

	ok, isOK := res.(proxy.OK)
	if !isOK {
		return head + errorStyle.Render(fmt.Sprintf("error %d: %s", proxy.StatusCode(res), ErrorMessage(kind, res)))
	}

	switch p := ok.Payload.(type) {
	case *protocol.CPU:
		level := protocol.UsageLevel(p.Utilization)
		return fmt.Sprintf("%s%5.1f%% %s %s  load %.2f %.2f %.2f  cores %d", head, p.Utilization, Bar(p.Utilization),
			lipgloss.NewStyle().Foreground(levelColor(level)).Render(level),
			p.LoadAvg[0], p.LoadAvg[1], p.LoadAvg[2], p.Cores)
	case *protocol.Memory:
		return fmt.Sprintf("%s%6s %s  used %s of %s, available %s", head, p.Percent, percentBar(p.Percent),
			p.Used, p.Total, p.Available)
	case *protocol.Disk:
		return fmt.Sprintf("%s%6s %s  used %s of %s, %d partitions", head, p.UsedPercent, percentBar(p.UsedPercent),
			p.Used, p.Total, len(p.Partitions))
	case *protocol.Network:
		return fmt.Sprintf("%ssent %s  recv %s  packets %s/%s  errors %d/%d  interfaces %d  sockets %d", head,
			p.BytesSent, p.BytesRecv, humanize.Comma(int64(p.PacketsSent)), humanize.Comma(int64(p.PacketsRecv)),
			p.ErrIn, p.ErrOut, p.NumInterfaces, p.NumSockets)
	case *protocol.System:
		boot := time.Unix(int64(p.BootTime), 0)
		return fmt.Sprintf("%sbooted %s (%s)  users %d", head,
			humanize.RelTime(boot, now, "ago", "from now"), boot.UTC().Format(time.RFC3339), len(p.Users))
	case *[]protocol.Process:
		return head + processSummary(*p)
	default:
		return head + mutedStyle.Render(fmt.Sprintf("%T", p))
	}
}

func percentBar(s string) string {
	pct, err := protocol.ParsePercent(s)
	if err != nil {
		return mutedStyle.Render("[" + strings.Repeat("?", barWidth) + "]")
	}
	return Bar(pct)
}

func processSummary(procs []protocol.Process) string {
	zombies := 0
	for _, p := range procs {
		if p.IsZombie {
			zombies++
		}
	}

	top := make([]string, 0, 3)
	for i := 0; i < len(procs) && i < 3; i++ {
		top = append(top, fmt.Sprintf("%s(%d) %.1f%%", procs[i].Name, procs[i].PID, procs[i].CPUPercent))
	}

	line := fmt.Sprintf("%d processes, %d zombie", len(procs), zombies)
	if len(top) > 0 {
		line += "  top: " + strings.Join(top, ", ")
	}
	return line
}

// ErrorMessage is the text the dashboard would show for a failed result
func ErrorMessage(kind protocol.Kind, res proxy.Result) string {
	switch v := res.(type) {
	case proxy.Invalid:
		msgs := make([]string, 0, len(v.Issues))
		for _, i := range v.Issues {
			msgs = append(msgs, i.Path+": "+i.Message)
		}
		return "Invalid parameters (" + strings.Join(msgs, "; ") + ")"
	case proxy.UpstreamError:
		return fmt.Sprintf("Failed to fetch %s data: %s", kind, v.Message)
	case proxy.Timeout:
		return "Request timeout"
	case proxy.TransportFailure:
		return v.Message
	default:
		return ""
	}
}

// Hosts renders a page of the fleet list as a table
func Hosts(hosts []protocol.HostRecord, page, totalPages int, now time.Time) string {
	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(mutedStyle).
		Headers("STATUS", "HOSTNAME", "IP", "PORT", "CPU", "MEMORY", "DISK", "UPDATED")

	for _, h := range hosts {
		updated := time.UnixMilli(h.UpdatedOn)
		t.Row(
			Badge(status.ClassifyAt(h.UpdatedOn, now)),
			h.Hostname,
			h.IP,
			strconv.Itoa(h.AccessPort),
			fmt.Sprintf("%.1f%% of %d", h.CPUPercent, h.CPUCount),
			fmt.Sprintf("%.1f%% of %.1f GB", h.MemoryPercent, h.MemoryTotal),
			h.DiskUsage,
			humanize.RelTime(updated, now, "ago", "from now"),
		)
	}

	footer := mutedStyle.Render(fmt.Sprintf("page %d of %d", page, totalPages))
	if len(hosts) == 0 {
		return mutedStyle.Render("no hosts found") + "\n" + footer
	}
	return t.Render() + "\n" + footer
}
