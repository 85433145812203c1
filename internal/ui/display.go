package ui

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/glamour"

	"racing-insights/internal/auth"
	"racing-insights/internal/history"
	"racing-insights/internal/session"
)

// Suggestions are offered on the empty conversation screen.
var Suggestions = []string{
	"Today's Racing Predictions",
	"Upcoming Race Analysis",
	"Race Results Summary",
	"Horse Performance Stats",
}

// Display renders client state to a terminal
type Display struct {
	out      io.Writer
	width    int
	theme    session.Theme
	renderer *glamour.TermRenderer
}

// NewDisplay creates a display writing to out
func NewDisplay(out io.Writer, width int, theme session.Theme) *Display {
	if width <= 0 {
		width = 80
	}
	d := &Display{out: out, width: width}
	d.SetTheme(theme)
	return d
}

// SetTheme rebuilds the markdown renderer for theme
func (d *Display) SetTheme(theme session.Theme) {
	d.theme = theme

	styleOpt := glamour.WithAutoStyle()
	switch theme {
	case session.ThemeDark:
		styleOpt = glamour.WithStandardStyle("dark")
	case session.ThemeLight:
		styleOpt = glamour.WithStandardStyle("light")
	}

	// Create markdown renderer
	renderer, err := glamour.NewTermRenderer(
		styleOpt,
		glamour.WithWordWrap(max(d.width-10, 20)),
	)
	if err != nil {
		renderer = nil
	}
	d.renderer = renderer
}

// Color codes
const (
	colorReset  = "\033[0m"
	colorBold   = "\033[1m"
	colorDim    = "\033[2m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
	colorGray   = "\033[90m"
)

// ClearScreen clears the terminal
func (d *Display) ClearScreen() {
	fmt.Fprint(d.out, "\033[2J\033[H")
}

// PrintBanner displays the application banner
func (d *Display) PrintBanner() {
	fmt.Fprintf(d.out, "%s%s╔════════════════════════════════════════╗%s\n", colorBold, colorCyan, colorReset)
	fmt.Fprintf(d.out, "%s%s║            Racing Insights             ║%s\n", colorBold, colorCyan, colorReset)
	fmt.Fprintf(d.out, "%s%s╚════════════════════════════════════════╝%s\n", colorBold, colorCyan, colorReset)
}

// PrintSignInMenu shows the signed-out menu
func (d *Display) PrintSignInMenu() {
	fmt.Fprintln(d.out)
	fmt.Fprintln(d.out, "  1. Sign in")
	fmt.Fprintln(d.out, "  2. Sign up")
	fmt.Fprintln(d.out, "  3. Exit")
}

// PrintHelp lists the chat commands
func (d *Display) PrintHelp() {
	fmt.Fprintf(d.out, "%sCommands:%s /new | /open <thread> | /history [search] | /retry | /status\n", colorGray, colorReset)
	fmt.Fprintf(d.out, "%s          %s /profile [username <name>] | /settings | /theme <light|dark|system>\n", colorGray, colorReset)
	fmt.Fprintf(d.out, "%s          %s /notify <email|push|chat> <on|off> | /logout | /exit\n", colorGray, colorReset)
}

// PrintWelcome displays the empty conversation screen
func (d *Display) PrintWelcome() {
	fmt.Fprintf(d.out, "\n%sHow can I assist with racing insights today?%s\n", colorBold, colorReset)
	fmt.Fprintf(d.out, "%sAsk about race predictions, statistics, horse performance, or pick an example:%s\n", colorGray, colorReset)
	for i, s := range Suggestions {
		fmt.Fprintf(d.out, "  %s[%d]%s %s\n", colorCyan, i+1, colorReset, s)
	}
}

// PrintPrompt displays user input prompt
func (d *Display) PrintPrompt() {
	fmt.Fprintf(d.out, "\n%s%s❯%s ", colorBold, colorGreen, colorReset)
}

// PrintTranscript renders every turn, or the welcome screen when empty
func (d *Display) PrintTranscript(turns []history.Turn, showWelcome bool) {
	if len(turns) == 0 {
		if showWelcome {
			d.PrintWelcome()
		}
		return
	}
	for _, t := range turns {
		d.PrintTurn(t)
	}
}

// PrintTurn renders one turn. Assistant turns are rendered as markdown.
func (d *Display) PrintTurn(t history.Turn) {
	stamp := t.Timestamp.Local().Format("15:04")

	if t.Speaker == history.SpeakerUser {
		fmt.Fprintf(d.out, "\n%s┌─ You · %s%s\n", colorGray, stamp, colorReset)
		for _, line := range strings.Split(t.Text, "\n") {
			fmt.Fprintf(d.out, "%s│%s %s\n", colorGray, colorReset, line)
		}
		fmt.Fprintf(d.out, "%s└%s\n", colorGray, colorReset)
		return
	}

	fmt.Fprintf(d.out, "\n%s┌─ Racing Insights · %s%s\n", colorGray, stamp, colorReset)
	if t.Error {
		fmt.Fprintf(d.out, "%s│%s %s%s%s\n", colorGray, colorReset, colorRed, t.Text, colorReset)
		fmt.Fprintf(d.out, "%s└%s\n", colorGray, colorReset)
		return
	}

	for _, line := range strings.Split(d.render(t.Text), "\n") {
		fmt.Fprintf(d.out, "%s│%s %s\n", colorGray, colorReset, line)
	}
	fmt.Fprintf(d.out, "%s└%s\n", colorGray, colorReset)
}

// render returns text as terminal markdown, or unchanged if rendering fails
func (d *Display) render(text string) string {
	if d.renderer == nil {
		return text
	}
	rendered, err := d.renderer.Render(text)
	if err != nil {
		return text
	}
	return strings.Trim(rendered, "\n")
}

// PrintBuckets renders the history browser
func (d *Display) PrintBuckets(buckets []history.Bucket, activeThread string) {
	if len(buckets) == 0 {
		d.PrintInfo("No conversations found")
		return
	}

	for _, b := range buckets {
		fmt.Fprintf(d.out, "\n%s%s%s\n", colorBold, b.Period, colorReset)
		for _, e := range b.Entries {
			marker := " "
			if e.ThreadID != "" && e.ThreadID == activeThread {
				marker = "•"
			}
			fmt.Fprintf(d.out, " %s %-33s %s%6s%s  %s%s%s\n",
				marker, e.Title, colorGray, e.DisplayTime, colorReset, colorDim, e.ThreadID, colorReset)
		}
	}
}

// PrintProfile shows the cached profile
func (d *Display) PrintProfile(p *session.Profile) {
	if p == nil {
		d.PrintInfo("Profile not loaded")
		return
	}
	d.PrintSeparator()
	fmt.Fprintf(d.out, "%sUsername:%s %s\n", colorGray, colorReset, p.Username)
	fmt.Fprintf(d.out, "%sEmail:%s    %s\n", colorGray, colorReset, p.Email)
	if p.CreatedAt != "" {
		fmt.Fprintf(d.out, "%sJoined:%s   %s\n", colorGray, colorReset, p.CreatedAt)
	}
	d.PrintSeparator()
}

// PrintSettings shows appearance and notification preferences
func (d *Display) PrintSettings(p session.Preferences) {
	d.PrintSeparator()
	fmt.Fprintf(d.out, "%sTheme:%s         %s\n", colorGray, colorReset, p.Theme)
	fmt.Fprintf(d.out, "%sEmail:%s         %s\n", colorGray, colorReset, onOff(p.Notifications.Email))
	fmt.Fprintf(d.out, "%sPush:%s          %s\n", colorGray, colorReset, onOff(p.Notifications.Push))
	fmt.Fprintf(d.out, "%sChat updates:%s  %s\n", colorGray, colorReset, onOff(p.Notifications.ChatUpdates))
	d.PrintSeparator()
}

// PrintStatus shows the session state
func (d *Display) PrintStatus(status auth.Status, info auth.Info, threadID string, now time.Time) {
	d.PrintSeparator()
	fmt.Fprintf(d.out, "%sStatus:%s     %s\n", colorGray, colorReset, status)
	if info.Email != "" {
		fmt.Fprintf(d.out, "%sSigned in:%s  %s\n", colorGray, colorReset, info.Email)
	}
	if !info.ExpiresAt.IsZero() {
		fmt.Fprintf(d.out, "%sExpires in:%s %s\n", colorGray, colorReset, formatRemaining(info.ExpiresAt.Sub(now)))
	}
	if !info.TokenExpiresAt.IsZero() {
		fmt.Fprintf(d.out, "%sToken:%s      valid until %s\n", colorGray, colorReset, info.TokenExpiresAt.Local().Format("Jan 2 15:04"))
	}
	if threadID != "" {
		fmt.Fprintf(d.out, "%sThread:%s     %s\n", colorGray, colorReset, threadID)
	}
	d.PrintSeparator()
}

// PrintSeparator prints a visual separator
func (d *Display) PrintSeparator() {
	line := strings.Repeat("─", min(d.width, 80))
	fmt.Fprintf(d.out, "%s%s%s\n", colorDim, line, colorReset)
}

// PrintInfo displays info message
func (d *Display) PrintInfo(msg string) {
	fmt.Fprintf(d.out, "%sℹ %s%s\n", colorCyan, msg, colorReset)
}

// PrintWarning displays warning message
func (d *Display) PrintWarning(msg string) {
	fmt.Fprintf(d.out, "%s⚠ %s%s\n", colorYellow, msg, colorReset)
}

// PrintError displays error message
func (d *Display) PrintError(err error) {
	fmt.Fprintf(d.out, "%s✗ Error: %v%s\n", colorRed, err, colorReset)
}

// PrintSuccess displays success message
func (d *Display) PrintSuccess(msg string) {
	fmt.Fprintf(d.out, "%s✓ %s%s\n", colorGreen, msg, colorReset)
}

// PrintGoodbye displays goodbye message
func (d *Display) PrintGoodbye() {
	fmt.Fprintf(d.out, "\n%s%sThanks for using Racing Insights!%s\n", colorBold, colorCyan, colorReset)
}

// Helper functions

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}

func formatRemaining(d time.Duration) string {
	if d <= 0 {
		return "expired"
	}
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	return fmt.Sprintf("%dm", int(d.Minutes()))
}
