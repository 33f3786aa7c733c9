package templates

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/a-h/templ"

	"github.com/JonMunkholm/frondo/internal/manuscript"
)

func render(t *testing.T, c templ.Component) string {
	t.Helper()
	var buf bytes.Buffer
	if err := c.Render(context.Background(), &buf); err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	return buf.String()
}

func result(staff, chars int) *manuscript.ProcessedResult {
	r := &manuscript.ProcessedResult{
		BinaryImage:   "data:image/png;base64,QklO",
		Visualization: "data:image/png;base64,VklT",
	}
	for i := 0; i < staff; i++ {
		r.StaffLines = append(r.StaffLines, json.RawMessage(`[1,2,3,4,5]`))
	}
	for i := 0; i < chars; i++ {
		r.Characters = append(r.Characters, json.RawMessage(`{"x":1}`))
	}
	return r
}

func TestConverter_PanelsByState(t *testing.T) {
	const accept = "image/*,.pdf"

	tests := []struct {
		name        string
		view        manuscript.View
		want        []string
		notWant     []string
		dropClasses string
	}{
		{
			name:        "idle shows only the drop target",
			view:        manuscript.View{State: manuscript.StateIdle},
			want:        []string{manuscript.DropPrompt, manuscript.DropHint, manuscript.TipsTitle},
			notWant:     []string{manuscript.ProcessingMessage, manuscript.ErrorTitle, manuscript.FeaturesHeading},
			dropClasses: "drop-zone",
		},
		{
			name:        "idle with overlay is highlighted",
			view:        manuscript.View{State: manuscript.StateIdle, DragOverlay: true},
			dropClasses: "drop-zone is-highlighted",
		},
		{
			name:        "processing is busy even while dragging",
			view:        manuscript.View{State: manuscript.StateProcessing, DragOverlay: true},
			want:        []string{manuscript.ProcessingTitle, manuscript.ProcessingMessage, manuscript.TipsTitle},
			notWant:     []string{manuscript.ErrorTitle, manuscript.FeaturesHeading, manuscript.SummaryHeading},
			dropClasses: "drop-zone is-busy",
		},
		{
			name: "failed shows the error only",
			view: manuscript.View{
				State: manuscript.StateFailed,
				Error: &manuscript.ErrorInfo{Message: manuscript.FailureMessage},
			},
			want:        []string{manuscript.ErrorTitle, manuscript.FailureMessage, manuscript.TipsTitle},
			notWant:     []string{manuscript.ProcessingMessage, manuscript.FeaturesHeading},
			dropClasses: "drop-zone",
		},
		{
			name: "succeeded shows the result only",
			view: manuscript.View{State: manuscript.StateSucceeded, Result: result(3, 7)},
			want: []string{
				manuscript.FeaturesHeading, manuscript.StaffLegend, manuscript.CharacterLegend, manuscript.BinaryHeading, manuscript.SummaryHeading,
				"Found 3 staff systems", "Detected 7 potential characters",
				`src="data:image/png;base64,VklT"`, `src="data:image/png;base64,QklO"`,
				manuscript.TipsTitle,
			},
			notWant:     []string{manuscript.ProcessingMessage, `role="alert"`},
			dropClasses: "drop-zone",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := render(t, Converter(tt.view, accept))

			for _, s := range tt.want {
				if !strings.Contains(out, s) {
					t.Errorf("output missing %q", s)
				}
			}
			for _, s := range tt.notWant {
				if strings.Contains(out, s) {
					t.Errorf("output unexpectedly contains %q", s)
				}
			}
			if got := DropZoneClass(tt.view).String(); got != tt.dropClasses {
				t.Errorf("DropZoneClass = %q, want %q", got, tt.dropClasses)
			}
			if !strings.Contains(out, `accept="image/*,.pdf"`) {
				t.Error("file input lacks accept filter")
			}
			if !strings.Contains(out, `data-state="`+tt.view.State.String()+`"`) {
				t.Error("converter lacks data-state attribute")
			}
		})
	}
}

func TestResultAndErrorNeverTogether(t *testing.T) {
	// Views that break the model invariants must still not render both.
	v := manuscript.View{
		State:  manuscript.StateFailed,
		Error:  &manuscript.ErrorInfo{Message: "boom"},
		Result: result(1, 1),
	}
	out := render(t, Converter(v, "image/*"))
	if strings.Contains(out, manuscript.FeaturesHeading) {
		t.Error("failed view rendered the result panel")
	}
	if !strings.Contains(out, "boom") {
		t.Error("failed view did not render the error panel")
	}
}

func TestTextIsEscaped(t *testing.T) {
	out := render(t, ErrorAlert(`<script>alert(1)</script>`))
	if strings.Contains(out, "<script>") {
		t.Errorf("message not escaped: %s", out)
	}
}

func TestImageSource(t *testing.T) {
	tests := []struct {
		in   string
		want templ.SafeURL
	}{
		{"data:image/png;base64,AAAA", "data:image/png;base64,AAAA"},
		{" https://cdn.example.com/v.png ", "https://cdn.example.com/v.png"},
		{"javascript:alert(1)", blockedImage},
		{"data:text/html,<b>", blockedImage},
		{"", blockedImage},
	}
	for _, tt := range tests {
		if got := ImageSource(tt.in); got != tt.want {
			t.Errorf("ImageSource(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestTips_RendersMarkdownList(t *testing.T) {
	out := render(t, Tips())
	if !strings.Contains(out, "<ul>") {
		t.Errorf("tips not rendered as a list: %s", out)
	}
	for _, tip := range manuscript.Tips() {
		if !strings.Contains(out, "<li>"+tip+"</li>") {
			t.Errorf("tip %q missing", tip)
		}
	}
	if len(manuscript.Tips()) != 3 {
		t.Errorf("len(Tips) = %d, want 3", len(manuscript.Tips()))
	}
}

func TestPage_WrapsConverter(t *testing.T) {
	v := manuscript.View{
		State: manuscript.StateProcessing,
		File:  &manuscript.FileMeta{Name: "score.png", Width: 800, Height: 600},
	}
	out := render(t, Page(v, "image/*,.pdf"))
	for _, s := range []string{"<!doctype html>", manuscript.Description, `id="converter"`, "score.png (800x600)", "/static/app.js"} {
		if !strings.Contains(out, s) {
			t.Errorf("page missing %q", s)
		}
	}
}

func TestDropZone_AttributesEscaped(t *testing.T) {
	out := render(t, DropZone(manuscript.View{State: manuscript.StateIdle}, `image/*" onclick="x`))
	if strings.Contains(out, `onclick="x"`) {
		t.Errorf("accept attribute not escaped: %s", out)
	}
	if !strings.Contains(out, `aria-busy="false"`) {
		t.Errorf("drop zone lacks aria-busy: %s", out)
	}
}

func TestResultPanel_BlocksUnsafeImage(t *testing.T) {
	r := result(0, 0)
	r.Visualization = "javascript:alert(1)"
	out := render(t, ResultPanel(r))
	if strings.Contains(out, "javascript:") {
		t.Errorf("unsafe image source rendered: %s", out)
	}
	if !strings.Contains(out, `src="`+string(blockedImage)+`"`) {
		t.Errorf("blocked placeholder missing: %s", out)
	}
}
