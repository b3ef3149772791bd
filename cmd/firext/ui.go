package main

import (
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/immxrtalbeast/firext/internal/domain"
)

var (
	accent  = lipgloss.Color("#F97316")
	success = lipgloss.Color("#10B981")
	warning = lipgloss.Color("#F59E0B")
	failure = lipgloss.Color("#EF4444")
	muted   = lipgloss.Color("#6B7280")

	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(accent)

	codeStyle = lipgloss.NewStyle().
			Bold(true).
			Padding(0, 1).
			Border(lipgloss.RoundedBorder()).
			BorderForeground(accent)

	mutedStyle = lipgloss.NewStyle().
			Foreground(muted)

	errorStyle = lipgloss.NewStyle().
			Foreground(failure).
			Bold(true)

	badgeStyle = lipgloss.NewStyle().
			Bold(true).
			Padding(0, 1)
)

func statusBadge(s domain.ConnectionStatus) string {
	color := muted
	switch s {
	case domain.StatusConnected:
		color = success
	case domain.StatusConnecting:
		color = warning
	case domain.StatusError:
		color = failure
	}
	return badgeStyle.Foreground(lipgloss.Color("#F9FAFB")).Background(color).Render(strings.ToUpper(string(s)))
}

func renderSnapshot(snap domain.Snapshot) string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("clipboard"))
	b.WriteString("\n")

	if snap.Text == "" {
		b.WriteString(mutedStyle.Render("  (no text)"))
	} else {
		b.WriteString("  " + snap.Text)
	}
	b.WriteString("\n")

	for _, img := range snap.Images {
		fmt.Fprintf(&b, "  image %s %s\n", img.ID, mutedStyle.Render(humanSize(int64(len(img.Data)))))
	}
	for _, f := range snap.Files {
		fmt.Fprintf(&b, "  file  %s %s %s\n", f.ID, f.Name, mutedStyle.Render(humanSize(f.Size)))
	}
	return strings.TrimRight(b.String(), "\n")
}

func renderPeers(peers map[string]domain.PeerStatus) string {
	if len(peers) == 0 {
		return mutedStyle.Render("no peers yet")
	}
	ids := make([]string, 0, len(peers))
	for id := range peers {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	lines := make([]string, 0, len(ids))
	for _, id := range ids {
		lines = append(lines, fmt.Sprintf("  %s %s", id, mutedStyle.Render(string(peers[id]))))
	}
	return strings.Join(lines, "\n")
}

func humanSize(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
