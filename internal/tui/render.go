package tui

import (
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/JonMunkholm/frondo/internal/manuscript"
)

/* ----------------------------------------
	STYLES
---------------------------------------- */

var styles = struct {
	title, subtitle, heading, muted lipgloss.Style
	dropZone, dropHighlight, busy   lipgloss.Style
	status, failure, tips, cursor   lipgloss.Style
	spinner                         lipgloss.Style
}{
	title:         lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("63")),
	subtitle:      lipgloss.NewStyle().Foreground(lipgloss.Color("245")),
	heading:       lipgloss.NewStyle().Bold(true),
	muted:         lipgloss.NewStyle().Foreground(lipgloss.Color("245")),
	dropZone:      lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("250")).Padding(1, 4),
	dropHighlight: lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("33")).Padding(1, 4),
	busy:          lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("240")).Faint(true).Padding(1, 4),
	status:        lipgloss.NewStyle().Border(lipgloss.NormalBorder()).Padding(0, 1),
	failure:       lipgloss.NewStyle().Border(lipgloss.NormalBorder()).BorderForeground(lipgloss.Color("160")).Foreground(lipgloss.Color("160")).Padding(0, 1),
	tips:          lipgloss.NewStyle().Border(lipgloss.NormalBorder()).BorderForeground(lipgloss.Color("245")).Padding(0, 1),
	cursor:        lipgloss.NewStyle().Foreground(lipgloss.Color("212")).Bold(true),
	spinner:       lipgloss.NewStyle().Foreground(lipgloss.Color("63")),
}

// screen is everything one frame depends on.
type screen struct {
	view    manuscript.View
	menu    *Menu
	cursor  int
	picker  string
	notice  string
	spinner string
	width   int
}

/* ----------------------------------------
	RENDER
---------------------------------------- */

// render draws a frame. It only reads the snapshot.
func render(s screen) string {
	var b strings.Builder
	v := s.view

	b.WriteString(styles.title.Render(manuscript.Title) + "\n")
	b.WriteString(styles.subtitle.Render(manuscript.Description) + "\n\n")

	if s.picker != "" {
		b.WriteString(styles.heading.Render("Choose a manuscript") + styles.muted.Render("  (esc to go back)") + "\n")
		b.WriteString(s.picker + "\n")
	} else {
		b.WriteString(dropZone(v) + "\n")
	}

	if s.notice != "" {
		b.WriteString(styles.muted.Render(s.notice) + "\n")
	}

	switch {
	case v.Busy():
		b.WriteString(statusPanel(v, s.spinner) + "\n")
	case v.ShowError():
		b.WriteString(styles.failure.Render(manuscript.ErrorTitle+"\n"+v.Error.Message) + "\n")
	case v.ShowResult():
		b.WriteString(resultPanel(v.Result) + "\n")
	}

	b.WriteString(tipsPanel() + "\n")

	if s.picker == "" && s.menu != nil {
		b.WriteString("\n" + menuView(s.menu, s.cursor))
	}
	b.WriteString(styles.muted.Render("o: open file • paste a path to drop it • q: quit") + "\n")

	if s.width > 0 {
		return lipgloss.NewStyle().MaxWidth(s.width).Render(b.String())
	}
	return b.String()
}

func dropZone(v manuscript.View) string {
	body := manuscript.DropPrompt + "\n" + styles.muted.Render(manuscript.DropHint)
	if v.File != nil {
		body += "\n" + styles.muted.Render(v.File.Name)
	}

	switch {
	case v.Busy():
		return styles.busy.Render(body)
	case v.Highlighted():
		return styles.dropHighlight.Render(body)
	default:
		return styles.dropZone.Render(body)
	}
}

func statusPanel(v manuscript.View, spin string) string {
	body := styles.heading.Render(manuscript.ProcessingTitle) + "\n" + spin + " " + manuscript.ProcessingMessage
	return styles.status.Render(body)
}

func resultPanel(r *manuscript.ProcessedResult) string {
	var b strings.Builder
	b.WriteString(styles.heading.Render(manuscript.FeaturesHeading) + "\n")
	b.WriteString("  " + imageRef(r.Visualization) + "\n")
	b.WriteString(styles.muted.Render("  "+manuscript.StaffLegend) + "\n")
	b.WriteString(styles.muted.Render("  "+manuscript.CharacterLegend) + "\n\n")

	b.WriteString(styles.heading.Render(manuscript.BinaryHeading) + "\n")
	b.WriteString("  " + imageRef(r.BinaryImage) + "\n\n")

	b.WriteString(styles.heading.Render(manuscript.SummaryHeading) + "\n")
	b.WriteString("  " + r.StaffSummary() + "\n")
	b.WriteString("  " + r.CharacterSummary())
	return b.String()
}

func tipsPanel() string {
	lines := []string{styles.heading.Render(manuscript.TipsTitle)}
	for _, tip := range manuscript.Tips() {
		lines = append(lines, "• "+tip)
	}
	return styles.tips.Render(strings.Join(lines, "\n"))
}

func menuView(menu *Menu, cursor int) string {
	var b strings.Builder
	b.WriteString(styles.heading.Render(menu.Title) + "\n")
	for i, item := range menu.Items {
		if i == cursor {
			b.WriteString(styles.cursor.Render("> "+item.Label) + "\n")
			continue
		}
		b.WriteString("  " + item.Label + "\n")
	}
	return b.String()
}

// imageRef describes an image the terminal cannot show: the media type and
// size of an inline image, or the URL of a remote one.
func imageRef(src string) string {
	src = strings.TrimSpace(src)
	if rest, ok := strings.CutPrefix(src, "data:"); ok {
		meta, payload, found := strings.Cut(rest, ",")
		if !found {
			return "unreadable inline image"
		}
		mediaType, _, _ := strings.Cut(meta, ";")
		if mediaType == "" {
			mediaType = "unknown type"
		}
		size := len(payload)
		if strings.HasSuffix(meta, ";base64") {
			size = base64.StdEncoding.DecodedLen(len(payload))
		}
		return fmt.Sprintf("%s image, %s inline", mediaType, humanSize(size))
	}
	if src == "" {
		return "no image"
	}
	return src
}

func humanSize(n int) string {
	switch {
	case n >= 1<<20:
		return fmt.Sprintf("%.1f MB", float64(n)/(1<<20))
	case n >= 1<<10:
		return fmt.Sprintf("%.1f KB", float64(n)/(1<<10))
	default:
		return fmt.Sprintf("%d B", n)
	}
}
