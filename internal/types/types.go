package types

import "time"

// ImageTask represents a single image sent to an engine for filtering
type ImageTask struct {
	Index int
	Path  string
}

// ImageResult is what an engine reports back for one task
type ImageResult struct {
	Index    int
	Path     string
	Output   string // empty when the image was not written
	Width    int
	Height   int
	Faces    int
	Skipped  int  // faces dropped for malformed landmarks
	Gated    bool // outside the size gate, left untouched
	Duration time.Duration
	Err      error
}

// ErrorResult is the JSON body returned by the HTTP API on failure
type ErrorResult struct {
	Error string `json:"error"`
}
