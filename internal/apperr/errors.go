// Package apperr defines the error values shared across cardsync layers.
package apperr

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound = errors.New("not found")
	ErrNoTitle  = errors.New("no top-level header found before content")
)

// StructuralHint is shown next to structural failures so users look at the
// document instead of the store connection.
const StructuralHint = "This is usually because there is no H1 or something is before the title heading"

// RenderError wraps a Markdown rendering failure. It aborts the compile of the
// whole document.
type RenderError struct {
	Err error
}

func (e *RenderError) Error() string {
	return fmt.Sprintf("render: %v", e.Err)
}

func (e *RenderError) Unwrap() error { return e.Err }

// FrontmatterError wraps a malformed document header block.
type FrontmatterError struct {
	Err error
}

func (e *FrontmatterError) Error() string {
	return fmt.Sprintf("frontmatter: %v", e.Err)
}

func (e *FrontmatterError) Unwrap() error { return e.Err }

// ConnectionError wraps a failure talking to the card store.
type ConnectionError struct {
	Op  string
	Err error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("store %s: %v", e.Op, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// IsStructural reports whether err comes from the document itself rather than
// from the store or the file system.
func IsStructural(err error) bool {
	if errors.Is(err, ErrNoTitle) {
		return true
	}
	var re *RenderError
	if errors.As(err, &re) {
		return true
	}
	var fe *FrontmatterError
	return errors.As(err, &fe)
}

// IsConnection reports whether err is a store transport failure.
func IsConnection(err error) bool {
	var ce *ConnectionError
	return errors.As(err, &ce)
}
