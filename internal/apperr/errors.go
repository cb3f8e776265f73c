// Package apperr holds the error taxonomy shared by the loader, the query
// layer and the presentation surfaces.
package apperr

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound        = errors.New("not found")
	ErrMissingArtifact = errors.New("missing artifact")
	ErrSchema          = errors.New("schema error")
	ErrInvalidArgument = errors.New("invalid argument")
	ErrNotReady        = errors.New("catalog not loaded")
)

// MissingArtifactError reports a required table that could not be found.
type MissingArtifactError struct {
	Artifact string
	Location string
}

func (e *MissingArtifactError) Error() string {
	return fmt.Sprintf("missing artifact %q (looked in %s)", e.Artifact, e.Location)
}

func (e *MissingArtifactError) Unwrap() error { return ErrMissingArtifact }

// SchemaError reports a required column absent from an artifact.
type SchemaError struct {
	Artifact string
	Column   string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("artifact %q: required column %q is missing", e.Artifact, e.Column)
}

func (e *SchemaError) Unwrap() error { return ErrSchema }

// NotFound wraps ErrNotFound with the kind and id that were requested.
func NotFound(kind, id string) error {
	return fmt.Errorf("%s %q: %w", kind, id, ErrNotFound)
}
