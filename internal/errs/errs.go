// Package errs defines the error taxonomy for the synchronization engine.
//
// Every failure surfaced by the mutator, reconciler, or watcher falls into
// one of five categories:
//
//   - ValidationError: rejected before any I/O, fully recoverable.
//   - NotFoundError:   a stale or unknown id, no side effects.
//   - DiskError:       an I/O step failed; partial disk changes were rolled
//     back best-effort.
//   - IndexError:      the relational write failed after the disk step
//     succeeded and the disk step was rolled back.
//   - PartialFailure:  the index write failed AND the disk rollback failed;
//     disk and index disagree and the caller should force a re-scan.
//
// Errors are matched with errors.As via the helper predicates below.
package errs

import (
	"errors"
	"fmt"
)

// ValidationError reports input rejected before any I/O was attempted.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation: %s", e.Msg)
}

// Validationf constructs a ValidationError from a format string.
func Validationf(format string, args ...interface{}) error {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}

// NotFoundError reports a lookup by an id or path that matched nothing.
type NotFoundError struct {
	Kind string // "folder", "document"
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Kind, e.ID)
}

// NotFound constructs a NotFoundError.
func NotFound(kind, id string) error {
	return &NotFoundError{Kind: kind, ID: id}
}

// DiskError reports a filesystem operation failure. The operation it belongs
// to was aborted and any partial disk change was reversed best-effort.
type DiskError struct {
	Op   string // "mkdir", "rename", "remove", "scan"
	Path string
	Err  error
}

func (e *DiskError) Error() string {
	return fmt.Sprintf("disk %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *DiskError) Unwrap() error { return e.Err }

// Disk wraps a filesystem error with the operation and path that failed.
func Disk(op, path string, err error) error {
	return &DiskError{Op: op, Path: path, Err: err}
}

// IndexError reports a relational-index write failure. If the operation had
// already changed the disk, the disk change was rolled back before this error
// was surfaced.
type IndexError struct {
	Op  string
	Err error
}

func (e *IndexError) Error() string {
	return fmt.Sprintf("index %s: %v", e.Op, e.Err)
}

func (e *IndexError) Unwrap() error { return e.Err }

// Index wraps a relational-index error with the operation that failed.
func Index(op string, err error) error {
	return &IndexError{Op: op, Err: err}
}

// PartialFailure reports that an index write failed and the compensating disk
// rollback also failed. Disk and index are now inconsistent; the caller
// should run a full reconciliation.
type PartialFailure struct {
	Op          string
	IndexErr    error
	RollbackErr error
}

func (e *PartialFailure) Error() string {
	return fmt.Sprintf("partial failure in %s: index error (%v) and disk rollback failed (%v); run a full sync",
		e.Op, e.IndexErr, e.RollbackErr)
}

func (e *PartialFailure) Unwrap() error { return e.IndexErr }

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsNotFound reports whether err is a NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// IsDisk reports whether err is a DiskError.
func IsDisk(err error) bool {
	var de *DiskError
	return errors.As(err, &de)
}

// IsIndex reports whether err is an IndexError.
func IsIndex(err error) bool {
	var ie *IndexError
	return errors.As(err, &ie)
}

// IsPartialFailure reports whether err is a PartialFailure.
func IsPartialFailure(err error) bool {
	var pf *PartialFailure
	return errors.As(err, &pf)
}
