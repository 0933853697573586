package output

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/tanq16/yandl/internal/utils"
)

func PrintProgressBar(current, total int64, width int) string {
	if width <= 0 {
		width = 30
	}
	if total <= 0 {
		total = 1
	}
	current = min(max(current, 0), total)
	percent := float64(current) / float64(total)
	filled := max(0, min(int(percent*float64(width)), width))
	bar := StyleSymbols["bullet"]
	bar += strings.Repeat(StyleSymbols["hline"], filled)
	bar += strings.Repeat(" ", width-filled)
	bar += StyleSymbols["bullet"]
	return debugStyle.Render(fmt.Sprintf("%s %.1f%% %s ", bar, percent*100, StyleSymbols["bullet"]))
}

// ProgressLine renders bar, percentage, speed, completed/total and
// elapsed/remaining for one transfer.
func ProgressLine(u utils.ProgressUpdate) string {
	sizes := fmt.Sprintf("%s / %s", utils.FormatBytes(uint64(max(u.Completed, 0))), utils.FormatBytes(uint64(max(u.Total, 0))))
	eta := "--"
	if u.Remaining > 0 {
		eta = formatClock(u.Remaining)
	}
	times := fmt.Sprintf("%s / %s", formatClock(u.Elapsed), eta)
	bullet := " " + StyleSymbols["bullet"] + " "
	return PrintProgressBar(u.Completed, u.Total, 30) +
		debugStyle.Render(utils.FormatSpeed(u.Speed)) + bullet +
		debugStyle.Render(sizes) + bullet +
		debugStyle.Render(times)
}

func formatClock(d time.Duration) string {
	d = d.Round(time.Second)
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%02d:%02d", m, s)
}

func styleFor(status string) lipgloss.Style {
	switch status {
	case "success":
		return successStyle
	case "error":
		return errorStyle
	case "warning":
		return warningStyle
	default:
		return pendingStyle
	}
}
