package models

import "fmt"

// Summary holds per-category card counts.
type Summary struct {
	Added     int `json:"added"`
	Updated   int `json:"updated"`
	Removed   int `json:"removed"`
	Unchanged int `json:"unchanged"`
}

// Add returns the element-wise sum of s and o.
func (s Summary) Add(o Summary) Summary {
	return Summary{
		Added:     s.Added + o.Added,
		Updated:   s.Updated + o.Updated,
		Removed:   s.Removed + o.Removed,
		Unchanged: s.Unchanged + o.Unchanged,
	}
}

// Changed reports whether any card has to be written to or removed from the store.
func (s Summary) Changed() bool {
	return s.Added+s.Updated+s.Removed > 0
}

func (s Summary) String() string {
	return fmt.Sprintf("%d added, %d updated, %d removed, %d unchanged",
		s.Added, s.Updated, s.Removed, s.Unchanged)
}

// SendDiff is the outcome of synchronizing one document against the store.
type SendDiff struct {
	DocumentID string `json:"document_id"`
	Deck       string `json:"deck"`
	Checksum   string `json:"checksum,omitempty"`
	Added      []Card `json:"added"`
	Updated    []Card `json:"updated"`
	Removed    []Card `json:"removed"`
	Unchanged  []Card `json:"unchanged"`
}

// Summary returns the card counts of d.
func (d SendDiff) Summary() Summary {
	return Summary{
		Added:     len(d.Added),
		Updated:   len(d.Updated),
		Removed:   len(d.Removed),
		Unchanged: len(d.Unchanged),
	}
}

// Total returns the number of cards the document compiles to.
func (d SendDiff) Total() int {
	return len(d.Added) + len(d.Updated) + len(d.Unchanged)
}

func (d SendDiff) String() string {
	if d.Deck == "" {
		return fmt.Sprintf("%s: %s", d.DocumentID, d.Summary())
	}
	return fmt.Sprintf("%s (%s): %s", d.DocumentID, d.Deck, d.Summary())
}

// AggregateDiff is the combined result of a batch send.
type AggregateDiff struct {
	Summary
	Documents int `json:"documents"`
	Failed    int `json:"failed"`
}

func (a AggregateDiff) String() string {
	s := fmt.Sprintf("%d documents: %s", a.Documents, a.Summary)
	if a.Failed > 0 {
		s += fmt.Sprintf(", %d failed", a.Failed)
	}
	return s
}

// DocumentFailure records a document that could not be sent.
type DocumentFailure struct {
	DocumentID string `json:"document_id"`
	Err        error  `json:"-"`
}

func (f DocumentFailure) Error() string {
	return fmt.Sprintf("%s: %v", f.DocumentID, f.Err)
}

func (f DocumentFailure) Unwrap() error { return f.Err }
