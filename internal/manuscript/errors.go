package manuscript

import (
	"context"
	"errors"
	"fmt"
)

// FailureKind classifies why a submission did not produce a result.
type FailureKind string

const (
	// KindTransport: the request never reached, or never came back from, the network layer.
	KindTransport FailureKind = "transport_failure"
	// KindServer: the service answered with a non-2xx status.
	KindServer FailureKind = "server_failure"
	// KindMalformed: 2xx, but the body does not satisfy the response contract.
	KindMalformed FailureKind = "malformed_response"
	// KindUnknown covers errors that did not come through the analysis client.
	KindUnknown FailureKind = "unknown"
)

// Sentinel errors.
var (
	ErrControllerClosed = errors.New("controller closed")
	ErrSuperseded       = errors.New("submission superseded by a newer acquisition")
	ErrFileTooLarge     = errors.New("file too large")
)

// Failure is the error type produced by a Submitter.
type Failure struct {
	Kind       FailureKind
	StatusCode int    // set for KindServer
	Detail     string // diagnostic excerpt, never shown to users
	Err        error
}

func (f *Failure) Error() string {
	switch {
	case f.Kind == KindServer && f.Err != nil:
		return fmt.Sprintf("%s: status %d: %v", f.Kind, f.StatusCode, f.Err)
	case f.Kind == KindServer:
		return fmt.Sprintf("%s: status %d", f.Kind, f.StatusCode)
	case f.Err != nil:
		return fmt.Sprintf("%s: %v", f.Kind, f.Err)
	default:
		return string(f.Kind)
	}
}

func (f *Failure) Unwrap() error {
	return f.Err
}

// TransportFailure wraps a network-level error.
func TransportFailure(err error) *Failure {
	return &Failure{Kind: KindTransport, Err: err}
}

// ServerFailure records a non-2xx response.
func ServerFailure(status int, detail string) *Failure {
	return &Failure{Kind: KindServer, StatusCode: status, Detail: detail}
}

// MalformedResponse wraps a decode or contract error.
func MalformedResponse(err error) *Failure {
	return &Failure{Kind: KindMalformed, Err: err}
}

// ClassifyFailure returns the kind of err. Context cancellation and
// deadline errors count as transport failures.
func ClassifyFailure(err error) FailureKind {
	var f *Failure
	if errors.As(err, &f) {
		return f.Kind
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return KindTransport
	}
	return KindUnknown
}
