package tui

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/muurk/proxiscan/internal/device"
	"github.com/muurk/proxiscan/internal/session"
)

// RenderHeader renders a command header box. Params are listed in key order.
func RenderHeader(title, command string, params map[string]string, width int) string {
	width = clampWidth(width)

	top := lipgloss.JoinVertical(lipgloss.Left,
		TitleStyle.Render(strings.ToUpper(title)),
		CommandStyle.Render(command),
	)
	if len(params) == 0 {
		return HeaderBorderStyle(width).Render(top)
	}

	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	lines := make([]string, 0, len(keys))
	for _, k := range keys {
		lines = append(lines, ParamKeyStyle.Render(k+":")+" "+ParamValueStyle.Render(params[k]))
	}

	divider := lipgloss.NewStyle().
		Foreground(PrimaryColor).
		Render(strings.Repeat("─", max(width-6, 10)))

	content := lipgloss.JoinVertical(lipgloss.Left, top, divider, strings.Join(lines, "\n"))
	return HeaderBorderStyle(width).Render(content)
}

// RenderSummary renders the box shown after a session is saved.
func RenderSummary(s session.ScanSession, width int) string {
	width = clampWidth(width)
	lines := []string{
		SuccessTitleStyle.Render(SuccessMarker + "  SESSION SAVED  ─  " + string(s.Type) + " scan"),
		"",
		detailLine("Session", s.ID),
		detailLine("Started", s.StartTime.Local().Format("2006-01-02 15:04:05")),
		detailLine("Duration", s.FormattedDuration()),
		detailLine("Devices", s.DeviceStats()),
	}
	return SuccessBoxStyle(width).Render(strings.Join(lines, "\n"))
}

// RenderError renders a failure box with optional hints.
func RenderError(title string, err error, hints []string, width int) string {
	width = clampWidth(width)
	lines := []string{ErrorTitleStyle.Render(FailureMarker + "  FAILED  ─  " + title)}
	if err != nil {
		lines = append(lines, "", ErrorMessageStyle.Render("Error: "+err.Error()))
	}
	if len(hints) > 0 {
		lines = append(lines, "", MutedStyle.Bold(true).Render("Troubleshooting:"))
		for _, h := range hints {
			lines = append(lines, MutedStyle.Render("  • "+h))
		}
	}
	return ErrorBoxStyle(width).Render(strings.Join(lines, "\n"))
}

func detailLine(key, value string) string {
	return ResultKeyStyle.Render(key+":") + " " + ResultValueStyle.Render(value)
}

// RenderSessionTable renders the history list, one row per session.
func RenderSessionTable(sessions []session.ScanSession, width int) string {
	if len(sessions) == 0 {
		return MutedStyle.Render("  No scan sessions found.")
	}
	width = clampWidth(width)

	cols := []column{
		{"STARTED", 17},
		{"TYPE", 9},
		{"DURATION", 14},
		{"DEVICES", 22},
		{"ID", max(width-17-9-14-22-10, 8)},
	}
	rows := make([][]string, len(sessions))
	for i, s := range sessions {
		rows[i] = []string{
			s.StartTime.Local().Format("2006-01-02 15:04"),
			string(s.Type),
			s.FormattedDuration(),
			s.DeviceStats(),
			s.ID,
		}
	}
	return renderTable(cols, rows)
}

// RenderSessionDetail renders one session with its full device lists.
func RenderSessionDetail(s session.ScanSession, width int) string {
	width = clampWidth(width)

	var b strings.Builder
	b.WriteString(RenderHeader(string(s.Type)+" scan", s.ID, map[string]string{
		"Started":  s.StartTime.Local().Format(time.RFC1123),
		"Duration": s.FormattedDuration(),
		"Devices":  s.DeviceStats(),
	}, width))
	b.WriteString("\n")

	if len(s.RadioDevices) > 0 {
		b.WriteString("\n")
		b.WriteString(SectionTitleStyle.Render(fmt.Sprintf("Radio devices (%d)", len(s.RadioDevices))))
		b.WriteString("\n")
		b.WriteString(RenderRadioTable(s.RadioDevices, width, 0))
		b.WriteString("\n")
	}
	if len(s.NetworkDevices) > 0 {
		b.WriteString("\n")
		b.WriteString(SectionTitleStyle.Render(fmt.Sprintf("Network devices (%d)", len(s.NetworkDevices))))
		b.WriteString("\n")
		b.WriteString(RenderNetworkTable(s.NetworkDevices, width, 0))
		b.WriteString("\n")
	}
	return b.String()
}

// RenderRadioTable renders radio devices in the given order. A positive
// limit caps the number of rows.
func RenderRadioTable(devices []device.RadioDevice, width, limit int) string {
	width = clampWidth(width)
	cols := []column{
		{"NAME", max(width-8-9-14-14-10, 12)},
		{"RSSI", 8},
		{"SIGNAL", 9},
		{"STATUS", 14},
		{"ID", 14},
	}
	shown, more := capRows(len(devices), limit)
	rows := make([][]string, shown)
	for i := range shown {
		d := devices[i]
		rows[i] = []string{
			d.DisplayName(),
			d.FormattedRSSI(),
			signalStyle(d.SignalStrength()).Render(d.SignalStrength().String()),
			d.Status.String(),
			d.PeripheralID,
		}
	}
	return renderTable(cols, rows) + moreLine(more)
}

// RenderNetworkTable renders network devices in the given order. A positive
// limit caps the number of rows.
func RenderNetworkTable(devices []device.NetworkDevice, width, limit int) string {
	width = clampWidth(width)
	cols := []column{
		{"ADDRESS", 16},
		{"HOSTNAME", max(width-16-18-20-12-10, 12)},
		{"MAC", 18},
		{"VENDOR", 20},
		{"PORTS", 12},
	}
	shown, more := capRows(len(devices), limit)
	rows := make([][]string, shown)
	for i := range shown {
		d := devices[i]
		addr := d.IPAddress
		if d.IsLocal {
			addr += " *"
		}
		rows[i] = []string{
			addr,
			d.Hostname,
			d.MACAddress,
			d.Vendor,
			d.OpenPortsDescription(),
		}
	}
	return renderTable(cols, rows) + moreLine(more)
}

func signalStyle(s device.SignalStrength) lipgloss.Style {
	switch s {
	case device.SignalStrong:
		return lipgloss.NewStyle().Foreground(SuccessColor)
	case device.SignalMedium:
		return lipgloss.NewStyle().Foreground(WarningColor)
	case device.SignalWeak:
		return lipgloss.NewStyle().Foreground(ErrorColor)
	default:
		return MutedStyle
	}
}

type column struct {
	title string
	width int
}

func renderTable(cols []column, rows [][]string) string {
	var b strings.Builder
	b.WriteString("  ")
	for _, c := range cols {
		b.WriteString(ColumnHeaderStyle.Render(pad(c.title, c.width)))
	}
	for _, row := range rows {
		b.WriteString("\n  ")
		for i, c := range cols {
			b.WriteString(RowStyle.Render(pad(row[i], c.width)))
		}
	}
	return b.String()
}

// pad truncates or right-pads s to exactly width cells, leaving one space
// between columns.
func pad(s string, width int) string {
	w := lipgloss.Width(s)
	if w >= width {
		runes := []rune(s)
		for len(runes) > 0 && lipgloss.Width(string(runes)) > width-2 {
			runes = runes[:len(runes)-1]
		}
		return string(runes) + "… "
	}
	return s + strings.Repeat(" ", width-w)
}

func capRows(n, limit int) (shown, more int) {
	if limit <= 0 || n <= limit {
		return n, 0
	}
	return limit, n - limit
}

func moreLine(more int) string {
	if more == 0 {
		return ""
	}
	return "\n" + MutedStyle.Render(fmt.Sprintf("  … and %d more", more))
}
