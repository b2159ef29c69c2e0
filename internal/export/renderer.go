// Package export turns a tailored resume into a downloadable document.
package export

import "context"

// Artifact is the handle of a rendered document on disk
type Artifact struct {
	Path     string `json:"-"`
	Filename string `json:"filename"`
	Size     int64  `json:"size"`
}

// Renderer produces a document with a title heading followed by one paragraph per line
type Renderer interface {
	Render(ctx context.Context, title string, lines []string) (*Artifact, error)
	// Remove deletes a previously rendered document. A missing file is not an error.
	Remove(path string) error
}
