// Package tui renders hookhost's terminal output: boot progress, plugin
// toasts and plugin READMEs. Rich output is only produced on a terminal.
//
// Environment Variables:
//   - NO_COLOR or HOOKHOST_NO_COLOR: Disable colors (https://no-color.org/)
//   - TERM=dumb: Disable colors
//   - HOOKHOST_QUIET: Disable progress, info and toast output
package tui

import (
	"fmt"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/dorcha-inc/hookhost/internal/events"
)

var (
	colorGreen  = lipgloss.ANSIColor(2)
	colorYellow = lipgloss.ANSIColor(3)
	colorBlue   = lipgloss.ANSIColor(4)
	colorRed    = lipgloss.ANSIColor(1)
	colorGray   = lipgloss.ANSIColor(8)
)

// UI writes status output to stderr, adapting to the terminal.
type UI struct {
	stdoutIsTTY  bool
	stderrIsTTY  bool
	enabled      bool
	colorEnabled bool

	// mu guards currentSpinner; toasts may arrive from plugin goroutines
	// while boot progress is showing.
	mu             sync.Mutex
	currentSpinner *spinnerState
}

type spinnerState struct {
	started time.Time
	ticker  clockwork.Ticker
	message string
	done    chan struct{}
}

var (
	defaultUI    *UI
	spinnerClock clockwork.Clock = clockwork.NewRealClock()

	// stderrRenderer detects color support on stderr, which stays a
	// terminal when stdout is piped.
	stderrRenderer = lipgloss.NewRenderer(os.Stderr)

	spinnerStyle = lipgloss.NewStyle().Renderer(stderrRenderer).Foreground(colorBlue)
	successStyle = lipgloss.NewStyle().Renderer(stderrRenderer).Foreground(colorGreen).Bold(true)
	failureStyle = lipgloss.NewStyle().Renderer(stderrRenderer).Foreground(colorRed).Bold(true)
	pluginStyle  = lipgloss.NewStyle().Renderer(stderrRenderer).Foreground(colorGray)
)

// Status symbols shared by progress lines, toasts and command output.
const (
	SuccessSymbol = "✓"
	FailureSymbol = "✗"
)

// toastSymbols and toastStyles are keyed by variant; unknown variants render as info.
var (
	toastSymbols = map[events.ToastVariant]string{
		events.ToastInfo:    "ℹ",
		events.ToastSuccess: SuccessSymbol,
		events.ToastWarning: "!",
		events.ToastDanger:  FailureSymbol,
	}
	toastStyles = map[events.ToastVariant]lipgloss.Style{
		events.ToastInfo:    lipgloss.NewStyle().Renderer(stderrRenderer).Foreground(colorBlue).Bold(true),
		events.ToastSuccess: successStyle,
		events.ToastWarning: lipgloss.NewStyle().Renderer(stderrRenderer).Foreground(colorYellow).Bold(true),
		events.ToastDanger:  failureStyle,
	}
)

func init() {
	defaultUI = New()
}

// New creates a UI with automatic TTY detection.
func New() *UI {
	stdoutIsTTY := IsTerminal(os.Stdout)
	stderrIsTTY := IsTerminal(os.Stderr)

	return &UI{
		stdoutIsTTY:  stdoutIsTTY,
		stderrIsTTY:  stderrIsTTY,
		enabled:      stderrIsTTY && !isDisabled(),
		colorEnabled: stderrIsTTY && !isColorDisabled(),
	}
}

// IsTerminal checks if a file descriptor is connected to a terminal
func IsTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

func isDisabled() bool {
	if val := os.Getenv("HOOKHOST_QUIET"); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
		return true
	}
	return false
}

func isColorDisabled() bool {
	return os.Getenv("NO_COLOR") != "" ||
		os.Getenv("HOOKHOST_NO_COLOR") != "" ||
		os.Getenv("TERM") == "dumb"
}

func (u *UI) Enabled() bool {
	return u.enabled
}

func (u *UI) ColorEnabled() bool {
	return u.colorEnabled
}

func (u *UI) StdoutIsTTY() bool {
	return u.stdoutIsTTY
}

func (u *UI) StderrIsTTY() bool {
	return u.stderrIsTTY
}

func (u *UI) spinnerFrame(s *spinnerState) string {
	if !u.colorEnabled {
		return "..."
	}
	elapsed := spinnerClock.Since(s.started)
	frame := int(elapsed/spinner.Line.FPS) % len(spinner.Line.Frames)
	return spinnerStyle.Render(spinner.Line.Frames[frame])
}

func (u *UI) printSpinner(s *spinnerState) {
	fmt.Fprintf(os.Stderr, "\r%s %s", u.spinnerFrame(s), s.message)
}

// stopSpinnerLocked stops the animation and clears its line.
func (u *UI) stopSpinnerLocked() *spinnerState {
	s := u.currentSpinner
	if s == nil {
		return nil
	}
	s.ticker.Stop()
	close(s.done)
	fmt.Fprint(os.Stderr, "\r", ansi.EraseLine(2))
	u.currentSpinner = nil
	return s
}

// Progress shows message next to an animated spinner until ProgressSuccess
// or ProgressFailure is called.
func (u *UI) Progress(message string) {
	if !u.enabled {
		return
	}

	u.mu.Lock()
	defer u.mu.Unlock()

	if u.currentSpinner != nil && u.currentSpinner.message == message {
		u.printSpinner(u.currentSpinner)
		return
	}
	u.stopSpinnerLocked()

	s := &spinnerState{
		started: spinnerClock.Now(),
		message: message,
		done:    make(chan struct{}),
		ticker:  spinnerClock.NewTicker(100 * time.Millisecond),
	}
	u.currentSpinner = s
	u.printSpinner(s)

	go func() {
		for {
			select {
			case <-s.ticker.Chan():
				u.mu.Lock()
				if u.currentSpinner == s {
					u.printSpinner(s)
				}
				u.mu.Unlock()
			case <-s.done:
				return
			}
		}
	}()
}

// ProgressSuccess replaces the spinner with a checkmark line.
func (u *UI) ProgressSuccess(message string) {
	u.finishProgress(SuccessSymbol, successStyle, message)
}

// ProgressFailure replaces the spinner with a cross line.
func (u *UI) ProgressFailure(message string) {
	u.finishProgress(FailureSymbol, failureStyle, message)
}

func (u *UI) finishProgress(symbol string, style lipgloss.Style, message string) {
	if !u.enabled {
		return
	}

	u.mu.Lock()
	defer u.mu.Unlock()

	s := u.stopSpinnerLocked()
	if s == nil {
		zap.L().Error("Progress finished without a spinner")
		return
	}
	if message == "" {
		message = s.message
	}
	if u.colorEnabled {
		symbol = style.Render(symbol)
	}
	fmt.Fprintf(os.Stderr, "%s %s\n", symbol, message)
}

// Info prints an informational message to stderr, even when it is not a
// terminal. HOOKHOST_QUIET silences it.
func (u *UI) Info(format string, args ...any) {
	if isDisabled() {
		return
	}
	fmt.Fprintf(os.Stderr, format, args...)
}

// FormatToast renders a plugin toast as a single line.
func (u *UI) FormatToast(plugin string, toast *events.ShowToastRequest) string {
	symbol, ok := toastSymbols[toast.Variant]
	style := toastStyles[toast.Variant]
	if !ok {
		symbol = toastSymbols[events.ToastInfo]
		style = toastStyles[events.ToastInfo]
	}
	if toast.Icon != nil && *toast.Icon != "" {
		symbol = *toast.Icon
	}

	source := "[" + plugin + "]"
	if u.colorEnabled {
		symbol = style.Render(symbol)
		source = pluginStyle.Render(source)
	}
	if plugin == "" {
		return fmt.Sprintf("%s %s", symbol, toast.Message)
	}
	return fmt.Sprintf("%s %s %s", symbol, source, toast.Message)
}

// ShowToast prints a toast raised by plugin to stderr.
func (u *UI) ShowToast(plugin string, toast *events.ShowToastRequest) {
	if isDisabled() {
		return
	}

	u.mu.Lock()
	defer u.mu.Unlock()
	if u.currentSpinner != nil {
		fmt.Fprint(os.Stderr, "\r", ansi.EraseLine(2))
	}
	fmt.Fprintln(os.Stderr, u.FormatToast(plugin, toast))
	if u.currentSpinner != nil {
		u.printSpinner(u.currentSpinner)
	}
}

// RenderMarkdown renders markdown with glamour on a color terminal and
// returns content unchanged otherwise.
func (u *UI) RenderMarkdown(content string, width int) (string, error) {
	if width <= 0 {
		return "", fmt.Errorf("width must be greater than 0")
	}
	if !u.stdoutIsTTY || !u.colorEnabled {
		return content, nil
	}

	renderer, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return content, err
	}
	return renderer.Render(content)
}

// TerminalWidth returns the stdout width, or fallback when unknown.
func (u *UI) TerminalWidth(fallback int) int {
	if !u.stdoutIsTTY {
		return fallback
	}
	if w, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil && w > 0 {
		return w
	}
	return fallback
}

// Default returns the default UI instance
func Default() *UI {
	return defaultUI
}

// Reset recreates the default UI, picking up environment changes.
func Reset() {
	defaultUI = New()
}

func Info(format string, args ...any) {
	defaultUI.Info(format, args...)
}

func Progress(message string) {
	defaultUI.Progress(message)
}

func ProgressSuccess(message string) {
	defaultUI.ProgressSuccess(message)
}

func ProgressFailure(message string) {
	defaultUI.ProgressFailure(message)
}

func ShowToast(plugin string, toast *events.ShowToastRequest) {
	defaultUI.ShowToast(plugin, toast)
}

func RenderMarkdown(content string, width int) (string, error) {
	return defaultUI.RenderMarkdown(content, width)
}
