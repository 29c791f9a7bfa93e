package domain

import (
	"fmt"
	"path"
	"strings"
)

// Scope bounds indexing and retrieval to a (subject, lecture) pair.
//
// A Scope with an empty Lecture is subject-wide. Subject-wide scopes are
// only produced explicitly through SubjectScope or Widen; queries never
// cross lecture boundaries by default.
type Scope struct {
	// Subject identifies the course or subject.
	Subject string

	// Lecture identifies a lecture within the subject.
	// Empty means every lecture of the subject.
	Lecture string
}

// NewScope creates a lecture-level scope.
func NewScope(subject, lecture string) (Scope, error) {
	s := Scope{Subject: strings.TrimSpace(subject), Lecture: strings.TrimSpace(lecture)}
	if s.Lecture == "" {
		return Scope{}, fmt.Errorf("%w: lecture is required", ErrInvalidInput)
	}
	if err := s.Validate(); err != nil {
		return Scope{}, err
	}
	return s, nil
}

// SubjectScope creates a subject-wide scope covering every lecture.
func SubjectScope(subject string) Scope {
	return Scope{Subject: strings.TrimSpace(subject)}
}

// Validate checks the scope is well formed.
// Subject and lecture identifiers may not contain path separators since
// they form the prefix of blob references.
func (s Scope) Validate() error {
	if s.Subject == "" {
		return fmt.Errorf("%w: subject is required", ErrInvalidInput)
	}
	for _, part := range []string{s.Subject, s.Lecture} {
		if strings.ContainsAny(part, "/\\") || part == "." || part == ".." {
			return fmt.Errorf("%w: invalid scope component %q", ErrInvalidInput, part)
		}
	}
	return nil
}

// IsSubjectWide returns true if the scope covers every lecture of the subject.
func (s Scope) IsSubjectWide() bool {
	return s.Lecture == ""
}

// Widen returns the subject-wide scope containing s.
func (s Scope) Widen() Scope {
	return Scope{Subject: s.Subject}
}

// Contains reports whether other falls inside s.
func (s Scope) Contains(other Scope) bool {
	if s.Subject != other.Subject {
		return false
	}
	return s.IsSubjectWide() || s.Lecture == other.Lecture
}

// BlobPrefix returns the storage path prefix for artifacts in this scope.
func (s Scope) BlobPrefix() string {
	if s.IsSubjectWide() {
		return s.Subject + "/"
	}
	return s.Subject + "/" + s.Lecture + "/"
}

// String returns "subject/lecture", or "subject/*" for subject-wide scopes.
func (s Scope) String() string {
	if s.IsSubjectWide() {
		return s.Subject + "/*"
	}
	return s.Subject + "/" + s.Lecture
}

// PageImageRef returns the blob reference of a rendered page image.
func PageImageRef(scope Scope, documentID string, page int) string {
	return fmt.Sprintf("%s%s/page-%04d.png", scope.BlobPrefix(), documentID, page)
}

// FigureRef returns the blob reference of a figure crop.
func FigureRef(scope Scope, documentID string, page, sequence int) string {
	return fmt.Sprintf("%s%s/%04d/figure-%02d.png", scope.BlobPrefix(), documentID, page, sequence)
}

// DocumentBlobPrefix returns the prefix under which every artifact of a document is stored.
func DocumentBlobPrefix(scope Scope, documentID string) string {
	return scope.BlobPrefix() + documentID + "/"
}

// UploadRef returns the blob reference of an uploaded source file.
// Only the base name of filename is kept.
func UploadRef(scope Scope, filename string) string {
	name := path.Base(strings.ReplaceAll(filename, "\\", "/"))
	return scope.BlobPrefix() + "uploads/" + name
}
