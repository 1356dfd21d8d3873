// Package errdefs defines the typed error taxonomy shared by every
// component of the engine, so that callers can branch on error kind with
// errors.As while the causal chain built by github.com/pkg/errors still
// prints the full "one-line reason, then why" story.
package errdefs

import "fmt"

// Kind identifies which bucket of the taxonomy an error belongs to.
type Kind string

const (
	// Manifest/Spec
	InvalidName         Kind = "InvalidName"
	UnknownIndex        Kind = "UnknownIndex"
	UnknownTarget       Kind = "UnknownTarget"
	DisallowedSourceKind Kind = "DisallowedSourceKind"
	MalformedManifest   Kind = "MalformedManifest"

	// Resolution
	VersionNotFound     Kind = "VersionNotFound"
	NoCompatibleTarget  Kind = "NoCompatibleTarget"
	UnsatisfiedPeer     Kind = "UnsatisfiedPeer"
	ConflictingOverride Kind = "ConflictingOverride"
	CycleThroughNonSelf Kind = "CycleThroughNonSelf"

	// Acquisition
	NetworkFailure    Kind = "NetworkFailure"
	AuthRequired      Kind = "AuthRequired"
	ArtifactTooLarge  Kind = "ArtifactTooLarge"
	ArtifactCorrupt   Kind = "ArtifactCorrupt"
	UnsafeArchiveEntry Kind = "UnsafeArchiveEntry"

	// CAS
	StorageFull         Kind = "StorageFull"
	PermissionDenied    Kind = "PermissionDenied"
	AtomicRenameFailed  Kind = "AtomicRenameFailed"

	// Patch
	PatchDoesNotApply          Kind = "PatchDoesNotApply"
	PatchCreatesFileOutsidePackage Kind = "PatchCreatesFileOutsidePackage"

	// Link
	EntryPointMissing       Kind = "EntryPointMissing"
	SyncConfigGeneratorFailed Kind = "SyncConfigGeneratorFailed"
	CrossDeviceLinkFailed   Kind = "CrossDeviceLinkFailed"

	// Environmental
	LockfileLocked Kind = "LockfileLocked"
	Cancelled      Kind = "Cancelled"
)

// Error is a taxonomy-tagged error. Context (package identifier, graph
// path, file) is attached as Fields at the boundary that first observed
// the failure, rather than reconstructed later from the wrapped chain.
type Error struct {
	Kind    Kind
	Message string
	Fields  map[string]string
	Cause   error
}

func (e *Error) Error() string {
	if e.Message == "" {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// New builds a taxonomy error with no cause.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap attaches a taxonomy kind to an existing error, preserving it as
// the cause so errors.Unwrap/errors.Is still walk through to it.
func Wrap(cause error, kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// WithField returns a copy of e with an additional context field set.
// Used to attach package identifier / graph path / file context at each
// boundary the error crosses.
func (e *Error) WithField(key, value string) *Error {
	cp := *e
	fields := make(map[string]string, len(e.Fields)+1)
	for k, v := range e.Fields {
		fields[k] = v
	}
	fields[key] = value
	cp.Fields = fields
	return &cp
}

// Is supports errors.Is(err, target) checks where target is another
// *Error, matching on Kind alone; any other target type never matches.
func (e *Error) Is(target error) bool {
	te, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == te.Kind
}
