package manuscript

import (
	_ "embed"
	"strings"
)

// TipsTitle heads the usage guidance shown next to the drop target.
const TipsTitle = "Tips for best results"

// TipsMarkdown is the usage guidance as a markdown list.
//
//go:embed tips.md
var TipsMarkdown []byte

// Tips returns the guidance items as plain text.
func Tips() []string {
	var items []string
	for _, line := range strings.Split(string(TipsMarkdown), "\n") {
		line = strings.TrimSpace(line)
		if item, ok := strings.CutPrefix(line, "- "); ok {
			items = append(items, item)
		}
	}
	return items
}
