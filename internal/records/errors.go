package records

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

var (
	// ErrDocumentParse wraps saml.ErrParse for a record's stored document.
	ErrDocumentParse = errors.New("failed to parse record metadata")

	// ErrDocumentShape is returned when a document is the wrong kind for the record.
	ErrDocumentShape = errors.New("unexpected metadata document shape")

	ErrIdentityMismatch   = errors.New("entity id does not match metadata")
	ErrUnresolvedMetadata = errors.New("cannot locate metadata for entity")
	ErrNoDocument         = errors.New("record has no metadata document")

	// ErrUnknownEntityType is returned when an entity would be created from a
	// descriptor with neither an IdP nor an SP role.
	ErrUnknownEntityType = errors.New("descriptor has no known entity type")
)

// Kind names a record type in errors and logs.
type Kind string

const (
	KindFederation Kind = "federation"
	KindEntity     Kind = "entity"
)

// RecordError attaches the record type and identifier to a reconciliation failure.
type RecordError struct {
	Kind Kind
	ID   string
	Err  error
}

func (e *RecordError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Kind, e.ID, e.Err)
}

func (e *RecordError) Unwrap() error {
	return e.Err
}

// EntityErrors collects the per-entity failures of one federation pass when
// reconciliation runs with the Isolate policy.
type EntityErrors struct {
	FederationID uuid.UUID
	Failures     []*RecordError
}

func (e *EntityErrors) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d entities failed to reconcile in federation %s", len(e.Failures), e.FederationID)
	for _, f := range e.Failures {
		b.WriteString("; ")
		b.WriteString(f.Error())
	}
	return b.String()
}

func (e *EntityErrors) Unwrap() []error {
	errs := make([]error, len(e.Failures))
	for i, f := range e.Failures {
		errs[i] = f
	}
	return errs
}

// Policy selects how a federation pass treats a failing entity descriptor.
type Policy int

const (
	// FailFast aborts the pass at the first failing descriptor. Descriptors
	// reconciled before the failure stay reconciled.
	FailFast Policy = iota

	// Isolate reconciles every descriptor and reports all failures together.
	Isolate
)

func (p Policy) String() string {
	switch p {
	case FailFast:
		return "fail-fast"
	case Isolate:
		return "isolate"
	default:
		return fmt.Sprintf("Policy(%d)", int(p))
	}
}

// ParsePolicy converts a policy name into a Policy.
func ParsePolicy(s string) (Policy, error) {
	switch s {
	case "", "fail-fast":
		return FailFast, nil
	case "isolate":
		return Isolate, nil
	default:
		return FailFast, fmt.Errorf("unknown entity error policy %q", s)
	}
}
