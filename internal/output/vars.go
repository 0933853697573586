package output

import (
	"fmt"
	"os"

	"github.com/charmbracelet/lipgloss"
)

var (
	successStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("37"))  // dark green
	success2Style = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))   // green
	errorStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))   // red
	warningStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))  // yellow
	pendingStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("12"))  // blue
	infoStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("14"))  // cyan
	debugStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("250")) // light grey
	detailStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("13"))  // purple
)

var StyleSymbols = map[string]string{
	"pass":    "✓",
	"fail":    "✗",
	"warning": "!",
	"pending": "◉",
	"bullet":  "•",
	"hline":   "━",
}

func PrintSuccess(text string) {
	fmt.Println(successStyle.Render(StyleSymbols["pass"] + " " + text))
}

func PrintError(text string) {
	fmt.Fprintln(os.Stderr, errorStyle.Render(StyleSymbols["fail"]+" "+text))
}

func PrintWarning(text string) {
	fmt.Println(warningStyle.Render(StyleSymbols["warning"] + " " + text))
}

func PrintInfo(text string) {
	fmt.Println(infoStyle.Render(text))
}

func PrintDetail(text string) {
	fmt.Println(detailStyle.Render("  " + text))
}
