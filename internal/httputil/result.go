package httputil

import (
	"encoding/json"
	"fmt"
)

// FailureKind classifies why a backend call did not produce a usable payload.
type FailureKind int

const (
	// NetworkUnreachable means the request never reached the server.
	NetworkUnreachable FailureKind = iota + 1
	// HTTPError means the server answered with a non-2xx status.
	HTTPError
	// DecodeError means the body was not valid JSON for the expected shape.
	DecodeError
)

func (k FailureKind) String() string {
	switch k {
	case NetworkUnreachable:
		return "network_unreachable"
	case HTTPError:
		return "http_error"
	case DecodeError:
		return "decode_error"
	default:
		return "unknown"
	}
}

// Failure is the uniform failure signal produced by the transport.
type Failure struct {
	Kind   FailureKind
	Status int // set for HTTPError
	Err    error
}

func (f *Failure) Error() string {
	switch f.Kind {
	case HTTPError:
		if f.Err != nil {
			return fmt.Sprintf("%s: status %d: %v", f.Kind, f.Status, f.Err)
		}
		return fmt.Sprintf("%s: status %d", f.Kind, f.Status)
	default:
		if f.Err != nil {
			return fmt.Sprintf("%s: %v", f.Kind, f.Err)
		}
		return f.Kind.String()
	}
}

func (f *Failure) Unwrap() error {
	return f.Err
}

// Result is either a successful payload or a Failure. Exactly one of Body
// (possibly empty) and Err is meaningful.
type Result struct {
	Status int
	Body   []byte
	Err    *Failure
}

// OK reports whether the call succeeded.
func (r Result) OK() bool {
	return r.Err == nil
}

// Decode unmarshals the payload into v. A failed result returns its own
// Failure unchanged.
func (r Result) Decode(v any) *Failure {
	if r.Err != nil {
		return r.Err
	}
	if err := json.Unmarshal(r.Body, v); err != nil {
		return &Failure{Kind: DecodeError, Status: r.Status, Err: err}
	}
	return nil
}

func failed(kind FailureKind, status int, err error) Result {
	return Result{Status: status, Err: &Failure{Kind: kind, Status: status, Err: err}}
}
