package sync

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	ErrConfig             = errors.New("invalid configuration")
	ErrSnapshot           = errors.New("snapshot failed")
	ErrLedger             = errors.New("ledger storage error")
	ErrInvariant          = errors.New("internal invariant violated")
	ErrUnresolvedConflict = errors.New("unresolved conflict")
)

// InvariantViolation is a state the reconciler or ledger can never legally
// reach. It aborts the current run only.
type InvariantViolation struct {
	Path   string
	Reason string
}

func (e *InvariantViolation) Error() string {
	return fmt.Sprintf("invariant violation for %q: %s", e.Path, e.Reason)
}

func (e *InvariantViolation) Is(target error) bool {
	return target == ErrInvariant
}

// UnitFailure is one failed work unit.
type UnitFailure struct {
	Kind  ActionKind
	Paths []string
	Err   error
}

func (f UnitFailure) message() string {
	return fmt.Sprintf("%s %s: %v", f.Kind, summarizePaths(f.Paths), f.Err)
}

// ExecutionError collects every failed work unit of one execution. The message
// is sorted so it does not depend on the order in which units finished.
type ExecutionError struct {
	Failures []UnitFailure
}

func (e *ExecutionError) Messages() []string {
	msgs := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		msgs = append(msgs, f.message())
	}
	sort.Strings(msgs)
	return msgs
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("%d work unit(s) failed: %s", len(e.Failures), strings.Join(e.Messages(), "; "))
}

func (e *ExecutionError) Unwrap() []error {
	errs := make([]error, 0, len(e.Failures))
	for _, f := range e.Failures {
		errs = append(errs, f.Err)
	}
	return errs
}

// FailedPaths returns every path that belonged to a failed unit.
func (e *ExecutionError) FailedPaths() map[string]struct{} {
	failed := make(map[string]struct{})
	for _, f := range e.Failures {
		for _, p := range f.Paths {
			failed[p] = struct{}{}
		}
	}
	return failed
}

func summarizePaths(paths []string) string {
	const shown = 3
	if len(paths) <= shown {
		return "[" + strings.Join(paths, ", ") + "]"
	}
	return fmt.Sprintf("[%s and %d more]", strings.Join(paths[:shown], ", "), len(paths)-shown)
}
