package tui

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"pkt.systems/tabaret/core"
	"pkt.systems/tabaret/internal/discovery"
	"pkt.systems/tabaret/schema"
)

// listRow is one line of the session list view.
type listRow struct {
	Session  discovery.Session
	Attached bool
}

func renderTabBar(tabs []schema.TabSnapshot, width int, theme tuiTheme) string {
	if width <= 0 {
		width = 80
	}
	barStyle := ansiBgRGB(theme.TabBarBG) + ansiFgRGB(theme.TabInactiveFG)
	activeStyle := ansiBgRGB(theme.TabActiveBG) + ansiFgRGB(theme.TabActiveFG) + ansiBold
	inactiveStyle := ansiBgRGB(theme.TabInactiveBG) + ansiFgRGB(theme.TabInactiveFG)

	var b strings.Builder
	b.WriteString(barStyle)
	if len(tabs) == 0 {
		b.WriteString(" no sessions ")
	}
	for _, tab := range tabs {
		label := tabLabel(tab)
		if tab.Active {
			b.WriteString(activeStyle)
		} else if tab.Bell {
			b.WriteString(ansiBgRGB(theme.TabInactiveBG) + ansiFgRGB(theme.BellFG) + ansiBold)
		} else if tab.Exited {
			b.WriteString(ansiBgRGB(theme.TabInactiveBG) + ansiFgRGB(theme.ExitedFG))
		} else {
			b.WriteString(inactiveStyle)
		}
		b.WriteString(label)
		b.WriteString(barStyle)
	}
	line := b.String()
	if visible := visibleWidth(line); visible < width {
		line += strings.Repeat(" ", width-visible)
	} else if visible > width {
		line = trimANSIToWidth(line, width)
	}
	return line + ansiReset
}

func tabLabel(tab schema.TabSnapshot) string {
	name := truncateName(tab.Title, 14)
	if name == "" {
		name = string(tab.ID)
	}
	marker := ""
	switch {
	case tab.Bell:
		marker = "•"
	case tab.Exited:
		marker = "✗"
	}
	return fmt.Sprintf(" %d:%s%s ", tab.Index+1, name, marker)
}

func renderTerminalStatus(tab schema.TabSnapshot, snap schema.ScreenSnapshot, width int, theme tuiTheme) string {
	left := " " + tab.Title
	if tab.Exited {
		left += fmt.Sprintf("  [exited %d — any key returns to list]", tab.ExitCode)
	}
	right := "^D list  ^N/^P cycle  ^K/^J scroll "
	if snap.ScrollOffset > 0 {
		right = fmt.Sprintf("[scroll -%d] ", snap.ScrollOffset) + right
	}
	gap := width - visibleWidth(left) - visibleWidth(right)
	if gap < 1 {
		gap = 1
	}
	line := left + strings.Repeat(" ", gap) + right
	style := ansiBgRGB(theme.TabBarBG) + ansiFgRGB(theme.MetaFG)
	if tab.Exited {
		style = ansiBgRGB(theme.TabBarBG) + ansiFgRGB(theme.ExitedFG)
	}
	return style + trimANSIToWidth(line, width) + ansiReset
}

func renderSessionList(rows []listRow, cursor, width, height int, theme tuiTheme, usage core.UsageInfo, now time.Time) []string {
	if width <= 0 {
		width = 80
	}
	if height <= 0 {
		height = 24
	}
	lines := make([]string, 0, height)
	lines = append(lines, renderListHeader(usage, rows, width, theme))
	lines = append(lines, renderColumnHeader(width, theme))

	bodyHeight := height - 3
	if bodyHeight < 1 {
		bodyHeight = 1
	}
	start := 0
	if cursor >= bodyHeight {
		start = cursor - bodyHeight + 1
	}
	for i := start; i < len(rows) && i-start < bodyHeight; i++ {
		lines = append(lines, renderListRow(rows[i], i, i == cursor, width, theme, now))
	}
	for len(lines) < height-1 {
		lines = append(lines, "")
	}
	lines = append(lines, renderListFooter(width, theme))
	return lines[:height]
}

func renderListHeader(usage core.UsageInfo, rows []listRow, width int, theme tuiTheme) string {
	var cost float64
	live := 0
	for _, row := range rows {
		cost += row.Session.EstimatedCostUSD()
		if row.Session.Status != schema.StatusDead {
			live++
		}
	}
	left := fmt.Sprintf(" tabaret — %d sessions (%d live)  %s", len(rows), live, formatCost(cost))
	right := ""
	if usage.Plan != "" {
		right = usage.Plan
	}
	if usage.FiveHour != nil {
		right += fmt.Sprintf("  5h %.0f%%", usage.FiveHour.Utilization)
	}
	if usage.SevenDay != nil {
		right += fmt.Sprintf("  7d %.0f%%", usage.SevenDay.Utilization)
	}
	if right != "" {
		right += " "
	}
	gap := width - visibleWidth(left) - visibleWidth(right)
	if gap < 1 {
		gap = 1
	}
	style := ansiBgRGB(theme.TabBarBG) + ansiFgRGB(theme.HeaderFG) + ansiBold
	return style + trimANSIToWidth(left+strings.Repeat(" ", gap)+right, width) + ansiReset
}

func renderColumnHeader(width int, theme tuiTheme) string {
	header := fmt.Sprintf("  %-3s %-20s %-8s %-10s %-22s %8s %9s %6s",
		"#", "project", "status", "branch", "model", "tokens", "cost", "age")
	return ansiFgRGB(theme.MetaFG) + ansiDim + trimANSIToWidth(header, width) + ansiReset
}

func renderListRow(row listRow, index int, selected bool, width int, theme tuiTheme, now time.Time) string {
	s := row.Session
	mark := " "
	if row.Attached {
		mark = "*"
	}
	text := fmt.Sprintf(" %s%-3d %-20s %-8s %-10s %-22s %8s %9s %6s",
		mark,
		index+1,
		truncateName(s.ProjectName, 20),
		string(s.Status),
		truncateName(s.GitBranch, 10),
		truncateName(shortModel(s.Model), 22),
		formatTokens(s.TotalTokens()),
		formatCost(s.EstimatedCostUSD()),
		formatAge(now.Sub(s.LastActivity)))
	text = trimANSIToWidth(text, width)
	if selected {
		pad := width - visibleWidth(text)
		if pad > 0 {
			text += strings.Repeat(" ", pad)
		}
		return ansiBgRGB(theme.SelectedBG) + ansiFgRGB(theme.SelectedFG) + ansiBold + text + ansiReset
	}
	return ansiFgRGB(theme.statusColor(s.Status)) + text + ansiReset
}

func renderListFooter(width int, theme tuiTheme) string {
	footer := " enter attach  a new  d delete  n/1-9 jump  s sort  r refresh  ? help  q quit"
	return ansiBgRGB(theme.TabBarBG) + ansiFgRGB(theme.MetaFG) + trimANSIToWidth(footer+strings.Repeat(" ", width), width) + ansiReset
}

func renderHelp(width, height int, theme tuiTheme) []string {
	entries := []string{
		"",
		"  session list",
		"    j/k, arrows   move selection",
		"    g/G           first/last session",
		"    enter, 1-9    attach to session",
		"    a             start a new session here",
		"    n             start a new session in a directory",
		"    d             forget a dead session",
		"    s             cycle sort order",
		"    r             refresh now",
		"    q             quit",
		"",
		"  attached terminal",
		"    ctrl-d        back to the session list",
		"    ctrl-n/ctrl-p next/previous session",
		"    ctrl-k/ctrl-j scroll back/forward",
		"    everything else goes to the session",
		"",
		"  press any key to close help",
	}
	lines := make([]string, 0, height)
	title := ansiFgRGB(theme.HeaderFG) + ansiBold + trimANSIToWidth(" help", width) + ansiReset
	lines = append(lines, title)
	for _, entry := range entries {
		if len(lines) >= height {
			break
		}
		lines = append(lines, ansiFgRGB(theme.SelectedFG)+trimANSIToWidth(entry, width)+ansiReset)
	}
	for len(lines) < height {
		lines = append(lines, "")
	}
	return lines
}

func shortModel(model string) string {
	return strings.TrimPrefix(model, "claude-")
}

func formatTokens(n int64) string {
	switch {
	case n >= 1_000_000:
		return fmt.Sprintf("%.1fM", float64(n)/1_000_000)
	case n >= 1_000:
		return fmt.Sprintf("%.1fk", float64(n)/1_000)
	default:
		return fmt.Sprintf("%d", n)
	}
}

func formatCost(v float64) string {
	return fmt.Sprintf("$%.2f", v)
}

func formatAge(d time.Duration) string {
	switch {
	case d < 0:
		return "now"
	case d < time.Minute:
		return fmt.Sprintf("%ds", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd", int(d.Hours()/24))
	}
}

func truncateName(name string, max int) string {
	if utf8.RuneCountInString(name) <= max {
		return name
	}
	runes := []rune(name)
	if max <= 1 {
		return string(runes[:max])
	}
	return string(runes[:max-1]) + "…"
}

func visibleWidth(text string) int {
	width := 0
	for i := 0; i < len(text); {
		if text[i] == 0x1b {
			i = skipEscape(text, i)
			continue
		}
		_, size := utf8.DecodeRuneInString(text[i:])
		width++
		i += size
	}
	return width
}

func trimANSIToWidth(text string, width int) string {
	if width <= 0 {
		return ""
	}
	var b strings.Builder
	visible := 0
	for i := 0; i < len(text); {
		if text[i] == 0x1b {
			next := skipEscape(text, i)
			b.WriteString(text[i:next])
			i = next
			continue
		}
		if visible >= width {
			break
		}
		r, size := utf8.DecodeRuneInString(text[i:])
		b.WriteRune(r)
		visible++
		i += size
	}
	return b.String()
}

func skipEscape(text string, i int) int {
	if i+1 >= len(text) {
		return len(text)
	}
	switch text[i+1] {
	case '[':
		for j := i + 2; j < len(text); j++ {
			b := text[j]
			if b >= '@' && b <= '~' {
				return j + 1
			}
		}
		return len(text)
	case ']':
		for j := i + 2; j < len(text); j++ {
			if text[j] == 0x07 {
				return j + 1
			}
			if text[j] == 0x1b && j+1 < len(text) && text[j+1] == '\\' {
				return j + 2
			}
		}
		return len(text)
	default:
		return i + 2
	}
}
