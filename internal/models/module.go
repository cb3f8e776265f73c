package models

import (
	"errors"
	"fmt"
	"math"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/syllabus/internal/apperr"
)

// Classification tells whether a module is core or option within a programme.
type Classification string

const (
	ClassificationCore   Classification = "core"
	ClassificationOption Classification = "option"
)

// ParseClassification normalises the spellings found in upstream tables.
func ParseClassification(s string) (Classification, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "core", "c", "compulsory", "mandatory":
		return ClassificationCore, nil
	case "option", "o", "optional", "elective":
		return ClassificationOption, nil
	}
	return "", fmt.Errorf("classification %q: %w", s, apperr.ErrInvalidArgument)
}

// ConstraintKind is the kind of eligibility rule attached to a module.
type ConstraintKind string

const (
	KindPrerequisite        ConstraintKind = "prerequisite"
	KindCorequisite         ConstraintKind = "corequisite"
	KindIncompatibility     ConstraintKind = "incompatibility"
	KindLearningRequirement ConstraintKind = "learning_requirement"
)

// ConstraintKinds lists every kind in display order.
var ConstraintKinds = []ConstraintKind{
	KindPrerequisite,
	KindCorequisite,
	KindIncompatibility,
	KindLearningRequirement,
}

// Constraint is one eligibility rule. ModuleIDs may name modules that are not
// in the catalog; those are resolved (or flagged) at query time.
type Constraint struct {
	Kind      ConstraintKind `json:"kind"`
	ModuleIDs []string       `json:"module_ids,omitempty"`
	Condition string         `json:"condition,omitempty"`
}

// Validate validates the constraint.
func (c Constraint) Validate() error {
	if err := validation.ValidateStruct(&c,
		validation.Field(&c.Kind, validation.Required, validation.In(
			KindPrerequisite, KindCorequisite, KindIncompatibility, KindLearningRequirement)),
	); err != nil {
		return err
	}
	if len(c.ModuleIDs) == 0 && c.Condition == "" {
		return fmt.Errorf("constraint %s: no modules and no condition", c.Kind)
	}
	return nil
}

// SchoolScope says whether a similar module is taught by the same school.
// The zero value means the relation is not known.
type SchoolScope string

const (
	ScopeSameSchool      SchoolScope = "same_school"
	ScopeDifferentSchool SchoolScope = "different_school"
)

// finite rejects NaN and the infinities, which cannot be encoded as JSON.
var finite = validation.By(func(v any) error {
	if f, ok := v.(float64); ok && (math.IsNaN(f) || math.IsInf(f, 0)) {
		return errors.New("must be a finite number")
	}
	return nil
})

// SimilarityEdge is a scored relation from one module to another.
type SimilarityEdge struct {
	From  string      `json:"from"`
	To    string      `json:"to"`
	Score float64     `json:"score"`
	Scope SchoolScope `json:"scope,omitempty"`
}

// Validate validates the edge.
func (e SimilarityEdge) Validate() error {
	return validation.ValidateStruct(&e,
		validation.Field(&e.From, validation.Required),
		validation.Field(&e.To, validation.Required),
		validation.Field(&e.Score, finite),
		validation.Field(&e.Scope, validation.In(ScopeSameSchool, ScopeDifferentSchool)),
	)
}

// Module is a single course unit. Stage and classification live on
// Membership because they differ between programmes.
type Module struct {
	ID          string           `json:"id"`
	Title       string           `json:"title"`
	Description string           `json:"description,omitempty"`
	Credits     float64          `json:"credits,omitempty"`
	Trimester   string           `json:"trimester,omitempty"`
	Coordinator string           `json:"coordinator,omitempty"`
	Level       string           `json:"level,omitempty"`
	School      string           `json:"school,omitempty"`
	Constraints []Constraint     `json:"constraints,omitempty"`
	Similar     []SimilarityEdge `json:"similar,omitempty"`
}

// Validate validates the module and its nested constraints and edges.
func (m Module) Validate() error {
	return validation.ValidateStruct(&m,
		validation.Field(&m.ID, validation.Required),
		validation.Field(&m.Title, validation.Required),
		validation.Field(&m.Credits, finite, validation.Min(0.0)),
		validation.Field(&m.Constraints),
		validation.Field(&m.Similar),
	)
}
