// Package notes persists explanations as Markdown notes in the vault
// directory, resolving name conflicts deterministically.
package notes

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// DefaultLabel names a note whose sanitized title came out empty.
const DefaultLabel = "AI Explanation"

// appendSeparator joins existing note content and an appended explanation.
const appendSeparator = "\n\n---\n\n"

const maxNameLength = 100

// illegal in note names on every host filesystem we care about
const illegalChars = `*"\/<>:|?`

// PersistenceError is a filesystem failure while saving a note. The
// already-rendered text is unaffected; the save simply did not happen.
type PersistenceError struct {
	Op   string
	Path string
	Err  error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("failed to %s note %s: %v", e.Op, e.Path, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// SanitizeFileName strips illegal characters, caps the length at 100
// characters and trims surrounding whitespace. An empty result falls back to
// a fixed label, so the resolver never sees an unusable name.
func SanitizeFileName(name string) string {
	cleaned := strings.Map(func(r rune) rune {
		if strings.ContainsRune(illegalChars, r) {
			return -1
		}
		return r
	}, name)

	runes := []rune(cleaned)
	if len(runes) > maxNameLength {
		runes = runes[:maxNameLength]
	}
	cleaned = strings.TrimSpace(string(runes))

	if cleaned == "" {
		return DefaultLabel
	}
	return cleaned
}

// Decision says how a save request was (or must be) settled.
type Decision string

const (
	// DecisionCreate means the target path was free and the note was created.
	DecisionCreate Decision = "create"
	// DecisionNeedsChoice means a note with that name already exists and the
	// caller has to pick between appending and a numbered variant.
	DecisionNeedsChoice Decision = "needs_decision"
)

// Resolution is the outcome of a save attempt.
type Resolution struct {
	Decision     Decision `json:"decision"`
	Path         string   `json:"path,omitempty"`
	ExistingPath string   `json:"existing_path,omitempty"`
}

// Resolver decides where a note lands inside one vault directory.
type Resolver struct {
	dir string
}

func NewResolver(dir string) *Resolver {
	return &Resolver{dir: dir}
}

// Save creates <dir>/<name>.md when that path is free. When the path is
// taken the resolver cannot decide unilaterally: it reports both
// alternatives and the caller drives a follow-up Append or CreateNumbered
// once the user has chosen.
func (r *Resolver) Save(name, content string) (Resolution, error) {
	path := r.notePath(name)

	exists, err := r.exists(path)
	if err != nil {
		return Resolution{}, err
	}
	if exists {
		return Resolution{Decision: DecisionNeedsChoice, ExistingPath: path}, nil
	}

	if err := r.write(path, content); err != nil {
		return Resolution{}, err
	}
	return Resolution{Decision: DecisionCreate, Path: path}, nil
}

// Append concatenates content onto the existing note with a fixed separator.
// No new file is created.
func (r *Resolver) Append(name, content string) (string, error) {
	path := r.notePath(name)

	existing, err := os.ReadFile(path)
	if err != nil {
		return "", &PersistenceError{Op: "read", Path: path, Err: err}
	}
	if err := r.write(path, string(existing)+appendSeparator+content); err != nil {
		return "", err
	}
	return path, nil
}

// CreateNumbered probes "<name> 1.md", "<name> 2.md", ... until an unused
// path turns up, then creates the note there.
func (r *Resolver) CreateNumbered(name, content string) (string, error) {
	for i := 1; ; i++ {
		path := r.notePath(fmt.Sprintf("%s %d", name, i))
		exists, err := r.exists(path)
		if err != nil {
			return "", err
		}
		if exists {
			continue
		}
		if err := r.write(path, content); err != nil {
			return "", err
		}
		return path, nil
	}
}

func (r *Resolver) notePath(name string) string {
	return filepath.Join(r.dir, name+".md")
}

func (r *Resolver) exists(path string) (bool, error) {
	_, err := os.Stat(path)
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, &PersistenceError{Op: "stat", Path: path, Err: err}
}

func (r *Resolver) write(path, content string) error {
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return &PersistenceError{Op: "write", Path: path, Err: err}
	}
	return nil
}
