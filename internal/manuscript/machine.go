package manuscript

// machine.go holds the transition function of the processing state machine.
//
//	Idle       --acquire-->            Processing
//	Processing --settled ok-->         Succeeded
//	Processing --settled failure-->    Failed
//	Succeeded  --acquire-->            Processing
//	Failed     --acquire-->            Processing
//	Processing --acquire-->            Processing (newer generation wins)
//
// Transition is pure: it never performs I/O and never touches a
// Controller. Side effects are returned as Commands.

// Event is an input to the state machine.
type Event interface {
	event()
}

// DragEnter: a drag gesture entered the drop target.
type DragEnter struct{}

// DragOver: a drag gesture is hovering over the drop target.
type DragOver struct{}

// DragLeave: a drag gesture left the drop target.
type DragLeave struct{}

// Drop: something was dropped on the target. File is nil when the drop
// carried no file.
type Drop struct {
	File *AcquiredFile
}

// FileChosen: a file was picked with the picker control.
type FileChosen struct {
	File AcquiredFile
}

// Settled: the submission tagged with Generation finished.
// Message is the user-facing text for a failure.
type Settled struct {
	Generation uint64
	Result     *ProcessedResult
	Err        error
	Message    string
}

func (DragEnter) event()  {}
func (DragOver) event()   {}
func (DragLeave) event()  {}
func (Drop) event()       {}
func (FileChosen) event() {}
func (Settled) event()    {}

// Command is a side effect requested by a transition.
type Command interface {
	command()
}

// SubmitCommand asks for File to be sent to the analysis service.
type SubmitCommand struct {
	Generation uint64
	File       AcquiredFile
}

func (SubmitCommand) command() {}

// Transition applies ev to m.
func Transition(m Model, ev Event) (Model, []Command) {
	switch ev := ev.(type) {
	case DragEnter, DragOver:
		m.DragOverlay = true
		return m, nil

	case DragLeave:
		m.DragOverlay = false
		return m, nil

	case Drop:
		m.DragOverlay = false
		if ev.File == nil {
			return m, nil
		}
		return acquire(m, *ev.File)

	case FileChosen:
		return acquire(m, ev.File)

	case Settled:
		return settle(m, ev), nil
	}
	return m, nil
}

func acquire(m Model, f AcquiredFile) (Model, []Command) {
	m.Generation++
	m.State = StateProcessing
	m.Result = nil
	m.Error = nil
	meta := f.Meta()
	m.Current = &meta
	return m, []Command{SubmitCommand{Generation: m.Generation, File: f}}
}

func settle(m Model, ev Settled) Model {
	if IsStale(m, ev) {
		return m
	}

	if ev.Err == nil && ev.Result != nil {
		r := *ev.Result
		m.State = StateSucceeded
		m.Result = &r
		m.Error = nil
		return m
	}

	msg := ev.Message
	if msg == "" {
		msg = FailureMessage
	}
	m.State = StateFailed
	m.Result = nil
	m.Error = &ErrorInfo{Message: msg}
	return m
}

// IsStale reports whether a settlement no longer applies to m.
func IsStale(m Model, ev Settled) bool {
	return m.State != StateProcessing || ev.Generation != m.Generation
}

// sameAs compares everything a presenter can observe.
func (m Model) sameAs(o Model) bool {
	return m.State == o.State &&
		m.Result == o.Result &&
		m.Error == o.Error &&
		m.DragOverlay == o.DragOverlay &&
		m.Current == o.Current &&
		m.Generation == o.Generation
}
