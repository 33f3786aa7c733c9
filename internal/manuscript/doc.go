// Package manuscript provides the client-side core of the manuscript
// converter: file acquisition, the processing state machine and the
// mapping of failures to a user-facing message.
//
// This package knows nothing about HTTP handlers or terminals. The web and
// terminal front-ends each own one [Controller] per session and render the
// [View] snapshots it publishes.
//
// # State machine
//
// A [Model] is always in exactly one [ProcessingState]. Acquisition events
// ([Drop], [FileChosen]) move it to StateProcessing and start a submission;
// the submission's [Settled] event moves it to StateSucceeded or
// StateFailed. [Transition] is a pure function and can be tested without a
// controller:
//
//	m, cmds := manuscript.Transition(manuscript.NewModel(), manuscript.FileChosen{File: f})
//	// m.State == manuscript.StateProcessing, cmds[0] is a SubmitCommand
//
// # Overlapping acquisitions
//
// Acquiring a file while another is processing does not cancel the first
// request. Every acquisition bumps [Model.Generation]; a settlement tagged
// with an older generation is discarded, so the most recent acquisition
// always determines the final state.
//
// # Lifetime
//
// [Controller.Close] ends a session. Pending submissions are cancelled and
// anything they settle with afterwards is dropped, so a torn-down view is
// never written to.
package manuscript
