package manuscript

import (
	"encoding/json"
	"fmt"
	"time"
)

// ProcessingState is the phase of the single manuscript slot.
type ProcessingState string

const (
	StateIdle       ProcessingState = "idle"
	StateProcessing ProcessingState = "processing"
	StateSucceeded  ProcessingState = "succeeded"
	StateFailed     ProcessingState = "failed"
)

// String implements fmt.Stringer.
func (s ProcessingState) String() string {
	return string(s)
}

// Valid reports whether s is one of the four known states.
func (s ProcessingState) Valid() bool {
	switch s {
	case StateIdle, StateProcessing, StateSucceeded, StateFailed:
		return true
	}
	return false
}

// Source tells how a file was acquired.
type Source string

const (
	SourceDrop   Source = "drop"
	SourcePicker Source = "picker"
)

// ParseSource maps a form value to a Source. Unknown values fall back to
// the picker, which is what a plain form submission is.
func ParseSource(s string) Source {
	if Source(s) == SourceDrop {
		return SourceDrop
	}
	return SourcePicker
}

// AcquiredFile is the manuscript blob plus the metadata the platform gave us.
type AcquiredFile struct {
	Name        string
	ContentType string
	Size        int64
	Data        []byte
	Source      Source

	// Width and Height are filled when the blob decodes as a raster image.
	Width  int
	Height int
}

// Meta returns the file's metadata without the blob.
func (f AcquiredFile) Meta() FileMeta {
	return FileMeta{
		Name:        f.Name,
		ContentType: f.ContentType,
		Size:        f.Size,
		Source:      f.Source,
		Width:       f.Width,
		Height:      f.Height,
	}
}

// FileMeta describes the current file without holding its bytes.
type FileMeta struct {
	Name        string `json:"name"`
	ContentType string `json:"content_type"`
	Size        int64  `json:"size"`
	Source      Source `json:"source"`
	Width       int    `json:"width,omitempty"`
	Height      int    `json:"height,omitempty"`
}

// ProcessedResult is what the analysis service returns for a manuscript.
// Staff line and character elements are kept as raw JSON; the client only
// counts them.
type ProcessedResult struct {
	BinaryImage   string            `json:"binary_image"`
	Visualization string            `json:"visualization"`
	StaffLines    []json.RawMessage `json:"staff_lines"`
	Characters    []json.RawMessage `json:"characters"`
}

// StaffSystemCount is the number of detected staff systems.
func (r *ProcessedResult) StaffSystemCount() int {
	if r == nil {
		return 0
	}
	return len(r.StaffLines)
}

// CharacterCount is the number of detected character candidates.
func (r *ProcessedResult) CharacterCount() int {
	if r == nil {
		return 0
	}
	return len(r.Characters)
}

// StaffSummary is the summary line for staff systems.
func (r *ProcessedResult) StaffSummary() string {
	return fmt.Sprintf("Found %d staff systems", r.StaffSystemCount())
}

// CharacterSummary is the summary line for character candidates.
func (r *ProcessedResult) CharacterSummary() string {
	return fmt.Sprintf("Detected %d potential characters", r.CharacterCount())
}

// ErrorInfo is the user-visible side of a failure.
type ErrorInfo struct {
	Message string `json:"message"`
}

// Model is the single state slot owned by a Controller.
//
// Result is non-nil only in StateSucceeded, Error only in StateFailed.
type Model struct {
	State       ProcessingState
	Result      *ProcessedResult
	Error       *ErrorInfo
	DragOverlay bool
	Current     *FileMeta

	// Generation is bumped on every acquisition; settlements carrying an
	// older generation are discarded.
	Generation uint64

	UpdatedAt time.Time
}

// NewModel returns the initial model.
func NewModel() Model {
	return Model{State: StateIdle}
}

// CheckInvariants returns an error describing the first broken invariant.
func (m Model) CheckInvariants() error {
	if !m.State.Valid() {
		return fmt.Errorf("unknown state %q", m.State)
	}
	if m.Result != nil && m.Error != nil {
		return fmt.Errorf("result and error both present in state %s", m.State)
	}
	if (m.Result != nil) != (m.State == StateSucceeded) {
		return fmt.Errorf("result presence does not match state %s", m.State)
	}
	if (m.Error != nil) != (m.State == StateFailed) {
		return fmt.Errorf("error presence does not match state %s", m.State)
	}
	return nil
}

// View is the read-only snapshot handed to presenters and subscribers.
type View struct {
	State       ProcessingState  `json:"state"`
	Result      *ProcessedResult `json:"result,omitempty"`
	Error       *ErrorInfo       `json:"error,omitempty"`
	DragOverlay bool             `json:"drag_overlay"`
	File        *FileMeta        `json:"file,omitempty"`
	Generation  uint64           `json:"generation"`
	UpdatedAt   time.Time        `json:"updated_at"`
}

// View snapshots m. Pointers are copied so later transitions cannot reach
// into a snapshot already handed out.
func (m Model) View() View {
	v := View{
		State:       m.State,
		DragOverlay: m.DragOverlay,
		Generation:  m.Generation,
		UpdatedAt:   m.UpdatedAt,
	}
	if m.Result != nil {
		r := *m.Result
		v.Result = &r
	}
	if m.Error != nil {
		e := *m.Error
		v.Error = &e
	}
	if m.Current != nil {
		f := *m.Current
		v.File = &f
	}
	return v
}

// Busy reports whether the drop target should render in its reduced
// emphasis mode.
func (v View) Busy() bool {
	return v.State == StateProcessing
}

// Highlighted reports whether the drop target should render highlighted.
// Busy styling always takes precedence over the drag overlay.
func (v View) Highlighted() bool {
	return v.DragOverlay && !v.Busy()
}

// ShowResult reports whether the result panel is rendered.
func (v View) ShowResult() bool {
	return v.State == StateSucceeded && v.Result != nil
}

// ShowError reports whether the error panel is rendered.
func (v View) ShowError() bool {
	return v.State == StateFailed && v.Error != nil
}
