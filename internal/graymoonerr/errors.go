// Package graymoonerr defines the closed set of abstract error kinds used
// across the RPC plane, the Sync Queue, and the Push Scheduler (spec §7),
// built on github.com/pkg/errors so the wire/API boundary can recover the
// kind from a wrapped chain by walking it with errors.Unwrap (see Classify).
package graymoonerr

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind is one of the abstract error categories from spec §7.
type Kind string

const (
	KindAgentDisconnected     Kind = "AgentDisconnected"
	KindAgentTimeout          Kind = "AgentTimeout"
	KindUnknownCommand        Kind = "UnknownCommand"
	KindInvalidArgs           Kind = "InvalidArgs"
	KindVcsFailure            Kind = "VcsFailure"
	KindMergeConflict         Kind = "MergeConflict"
	KindAuthFailure           Kind = "AuthFailure"
	KindNotFound              Kind = "NotFound"
	KindCycleDetected         Kind = "CycleDetected"
	KindRegistryUnavailable   Kind = "RegistryUnavailable"
	KindDependencyUnsatisfied Kind = "DependencyUnsatisfied"
	KindCancelled             Kind = "Cancelled"
	KindInternalError         Kind = "InternalError"
)

// KindError carries an abstract Kind plus a human-readable message. Call
// sites return it directly or wrap it (errors.Wrap, fmt.Errorf with %w);
// Classify walks the errors.Unwrap chain to recover the Kind.
type KindError struct {
	Kind    Kind
	Message string
}

func (e *KindError) Error() string { return e.Message }

// New builds a KindError with a formatted message.
func New(kind Kind, format string, args ...interface{}) error {
	return &KindError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Classify walks the cause chain looking for a *KindError, defaulting to
// KindInternalError when the error carries no recognised kind.
func Classify(err error) Kind {
	if err == nil {
		return ""
	}
	var ke *KindError
	for cur := err; cur != nil; cur = errors.Unwrap(cur) {
		if k, ok := cur.(*KindError); ok {
			ke = k
			break
		}
	}
	if ke == nil {
		return KindInternalError
	}
	return ke.Kind
}

// Predefined sentinels for the call sites that don't need a custom message.
var (
	ErrAgentDisconnected   = &KindError{Kind: KindAgentDisconnected, Message: "Agent not connected. Start the host agent to sync repositories."}
	ErrCancelled           = &KindError{Kind: KindCancelled, Message: "operation cancelled"}
	ErrRegistryUnavailable = &KindError{Kind: KindRegistryUnavailable, Message: "package registry prober unavailable"}
)

// NotFound builds a NotFound KindError for (kind, id).
func NotFound(kind string, id interface{}) error {
	return New(KindNotFound, "%s %v not found", kind, id)
}

// DependencyUnsatisfied builds a DependencyUnsatisfied KindError for (pkg, version).
func DependencyUnsatisfied(pkg, version string) error {
	return New(KindDependencyUnsatisfied, "dependency %s@%s not in registry", pkg, version)
}

// VcsFailure wraps an underlying VCS execution error.
func VcsFailure(err error, context string) error {
	return errors.Wrap(&KindError{Kind: KindVcsFailure, Message: fmt.Sprintf("%s: %v", context, err)}, context)
}
