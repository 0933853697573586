package output

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/tanq16/yandl/internal/utils"
	"golang.org/x/term"
)

type TransferOutput struct {
	ID          int
	Label       string
	Status      string
	Message     string
	Progress    utils.ProgressUpdate
	HasProgress bool
	Complete    bool
	StartTime   time.Time
	LastUpdated time.Time
	Error       error
}

type ErrorReport struct {
	Label string
	Error error
	Time  time.Time
}

// Manager draws one line per registered transfer and redraws in place while
// the display runs. Redrawing is skipped when out is not a terminal.
type Manager struct {
	outputs     map[int]*TransferOutput
	mutex       sync.RWMutex
	out         io.Writer
	live        bool
	numLines    int
	errors      []ErrorReport
	doneCh      chan struct{}
	displayTick time.Duration
	count       int
	displayWg   sync.WaitGroup
	stopOnce    sync.Once
}

func NewManager() *Manager {
	return NewManagerTo(os.Stdout, term.IsTerminal(int(os.Stdout.Fd())))
}

func NewManagerTo(out io.Writer, live bool) *Manager {
	return &Manager{
		outputs:     make(map[int]*TransferOutput),
		out:         out,
		live:        live,
		doneCh:      make(chan struct{}),
		displayTick: 200 * time.Millisecond,
	}
}

func (m *Manager) Register(label string) int {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.count++
	m.outputs[m.count] = &TransferOutput{
		ID:          m.count,
		Label:       label,
		Status:      "pending",
		StartTime:   time.Now(),
		LastUpdated: time.Now(),
	}
	return m.count
}

func (m *Manager) update(id int, fn func(info *TransferOutput)) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if info, exists := m.outputs[id]; exists {
		fn(info)
		info.LastUpdated = time.Now()
	}
}

func (m *Manager) SetLabel(id int, label string) {
	m.update(id, func(info *TransferOutput) { info.Label = label })
}

func (m *Manager) SetMessage(id int, message string) {
	m.update(id, func(info *TransferOutput) { info.Message = message })
}

func (m *Manager) SetStatus(id int, status string) {
	m.update(id, func(info *TransferOutput) { info.Status = status })
}

func (m *Manager) GetStatus(id int) string {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	if info, exists := m.outputs[id]; exists {
		return info.Status
	}
	return "unknown"
}

func (m *Manager) UpdateProgress(id int, update utils.ProgressUpdate) {
	m.update(id, func(info *TransferOutput) {
		info.Progress = update
		info.HasProgress = true
		info.Status = "active"
	})
}

func (m *Manager) Complete(id int, message string) {
	m.update(id, func(info *TransferOutput) {
		if message == "" {
			message = fmt.Sprintf("Completed %s", info.Label)
		}
		info.Message = message
		info.HasProgress = false
		info.Complete = true
		info.Status = "success"
	})
}

// Skip marks a transfer finished without counting it as a success or failure.
func (m *Manager) Skip(id int, message string) {
	m.update(id, func(info *TransferOutput) {
		info.Message = message
		info.HasProgress = false
		info.Complete = true
		info.Status = "warning"
	})
}

func (m *Manager) ReportError(id int, err error) {
	m.update(id, func(info *TransferOutput) {
		info.Complete = true
		info.HasProgress = false
		info.Status = "error"
		info.Error = err
		if info.Message == "" {
			info.Message = fmt.Sprintf("Failed %s", info.Label)
		}
		m.errors = append(m.errors, ErrorReport{Label: info.Label, Error: err, Time: time.Now()})
	})
}

// Counts returns the number of succeeded and failed transfers.
func (m *Manager) Counts() (success, failures int) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	for _, info := range m.outputs {
		switch info.Status {
		case "success":
			success++
		case "error":
			failures++
		}
	}
	return success, failures
}

func (m *Manager) GetStatusIndicator(status string) string {
	switch status {
	case "success", "pass":
		return successStyle.Render(StyleSymbols["pass"])
	case "error", "fail":
		return errorStyle.Render(StyleSymbols["fail"])
	case "warning":
		return warningStyle.Render(StyleSymbols["warning"])
	case "pending":
		return pendingStyle.Render(StyleSymbols["pending"])
	default:
		return infoStyle.Render(StyleSymbols["bullet"])
	}
}

func (m *Manager) sorted() (active, completed []*TransferOutput) {
	all := make([]*TransferOutput, 0, len(m.outputs))
	for _, info := range m.outputs {
		all = append(all, info)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID < all[j].ID })
	for _, info := range all {
		if info.Complete {
			completed = append(completed, info)
		} else {
			active = append(active, info)
		}
	}
	return active, completed
}

func (m *Manager) renderLine(info *TransferOutput) []string {
	indent := strings.Repeat(" ", 2)
	var elapsed time.Duration
	if info.Complete {
		elapsed = info.LastUpdated.Sub(info.StartTime).Round(time.Second)
	} else {
		elapsed = time.Since(info.StartTime).Round(time.Second)
	}
	message := info.Message
	if message == "" {
		message = info.Label
	}
	lines := []string{fmt.Sprintf("%s%s %s %s", indent, m.GetStatusIndicator(info.Status),
		debugStyle.Render(elapsed.String()), styleFor(info.Status).Render(message))}
	if info.HasProgress {
		lines = append(lines, indent+"    "+ProgressLine(info.Progress))
	}
	return lines
}

// render builds the frame, dropping the oldest completed lines when the
// terminal is too short.
func (m *Manager) render(availableLines int) []string {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	active, completed := m.sorted()
	var activeLines []string
	for _, info := range active {
		activeLines = append(activeLines, m.renderLine(info)...)
	}
	var completedLines []string
	if hidden := len(completed) - 8; hidden > 2 {
		completedLines = append(completedLines, infoStyle.Render(fmt.Sprintf("  %d transfers completed with varying hidden status ...", hidden)))
		completed = completed[hidden:]
	}
	for _, info := range completed {
		completedLines = append(completedLines, m.renderLine(info)...)
	}
	room := availableLines - len(activeLines)
	if room < len(completedLines) {
		completedLines = completedLines[len(completedLines)-max(room, 0):]
	}
	frame := append(completedLines, activeLines...)
	if len(frame) > availableLines {
		frame = frame[:availableLines]
	}
	return frame
}

func (m *Manager) updateDisplay() {
	_, termHeight, _ := term.GetSize(int(os.Stdout.Fd()))
	if termHeight <= 0 {
		termHeight = 24
	}
	frame := m.render(termHeight - 3)
	if m.numLines > 0 {
		fmt.Fprintf(m.out, "\033[%dA\033[J", m.numLines)
	}
	for _, line := range frame {
		fmt.Fprintln(m.out, line)
	}
	m.numLines = len(frame)
}

func (m *Manager) StartDisplay() {
	m.displayWg.Add(1)
	go func() {
		defer m.displayWg.Done()
		ticker := time.NewTicker(m.displayTick)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if m.live {
					m.updateDisplay()
				}
			case <-m.doneCh:
				if m.live {
					m.updateDisplay()
				} else {
					for _, line := range m.render(len(m.outputs) * 2) {
						fmt.Fprintln(m.out, line)
					}
				}
				m.ShowSummary()
				return
			}
		}
	}()
}

func (m *Manager) StopDisplay() {
	m.stopOnce.Do(func() { close(m.doneCh) })
	m.displayWg.Wait()
}

func (m *Manager) displayErrors() {
	if len(m.errors) == 0 {
		return
	}
	fmt.Fprintln(m.out)
	fmt.Fprintln(m.out, strings.Repeat(" ", 2)+errorStyle.Bold(true).Render("Errors:"))
	for i, err := range m.errors {
		fmt.Fprintf(m.out, "%s%s %s %s\n",
			strings.Repeat(" ", 2+2),
			errorStyle.Render(fmt.Sprintf("%d.", i+1)),
			debugStyle.Render(fmt.Sprintf("[%s]", err.Time.Format("15:04:05"))),
			errorStyle.Render(err.Label))
		fmt.Fprintf(m.out, "%s%s\n", strings.Repeat(" ", 2+4), errorStyle.Render(fmt.Sprintf("Error: %v", err.Error)))
	}
}

func (m *Manager) ShowSummary() {
	success, failures := m.Counts()
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	fmt.Fprintln(m.out)
	fmt.Fprintln(m.out, strings.Repeat(" ", 2)+success2Style.Render(fmt.Sprintf("Completed %d of %d", success, len(m.outputs))))
	if failures > 0 {
		fmt.Fprintln(m.out, strings.Repeat(" ", 2)+errorStyle.Render(fmt.Sprintf("Failed %d of %d", failures, len(m.outputs))))
	}
	m.displayErrors()
	fmt.Fprintln(m.out)
}
