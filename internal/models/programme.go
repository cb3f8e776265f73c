// Package models defines the typed records the catalog is built from.
package models

import (
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
)

// Programme is one degree programme (a "major").
type Programme struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Faculty    string `json:"faculty,omitempty"`
	Award      string `json:"award,omitempty"`
	Level      string `json:"level,omitempty"`
	Duration   string `json:"duration,omitempty"`
	Attendance string `json:"attendance,omitempty"`
	URL        string `json:"url,omitempty"`
	StageCount int    `json:"stage_count"`
	// SearchText is extra text programme search matches against, besides
	// the name and id.
	SearchText string `json:"-"`
}

// Validate validates the programme record.
func (p Programme) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.ID, validation.Required),
		validation.Field(&p.Name, validation.Required),
		validation.Field(&p.URL, is.URL),
		validation.Field(&p.StageCount, validation.Min(0)),
	)
}

// Subtitle joins level, award, duration and attendance, skipping blanks.
func (p Programme) Subtitle() string {
	return JoinNonEmpty(" - ", p.Level, p.Award, p.Duration, p.Attendance)
}

// JoinNonEmpty joins the trimmed non-empty parts with sep.
func JoinNonEmpty(sep string, parts ...string) string {
	kept := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, sep)
}

// Membership places a module in a programme at a stage with a classification.
type Membership struct {
	ProgrammeID    string         `json:"programme_id"`
	ModuleID       string         `json:"module_id"`
	Stage          string         `json:"stage"`
	Classification Classification `json:"classification"`
}

// Validate validates the membership record.
func (m Membership) Validate() error {
	return validation.ValidateStruct(&m,
		validation.Field(&m.ProgrammeID, validation.Required),
		validation.Field(&m.ModuleID, validation.Required),
		validation.Field(&m.Stage, validation.Required),
		validation.Field(&m.Classification, validation.Required, validation.In(ClassificationCore, ClassificationOption)),
	)
}
