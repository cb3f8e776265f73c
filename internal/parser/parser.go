// Package parser decodes the list fields embedded in module-details cells:
// eligibility constraints, similarity lists and plain id lists.
package parser

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/starford/syllabus/internal/models"
)

type constraintCell struct {
	Modules   []string `json:"modules"`
	Condition string   `json:"condition"`
}

type similarCell struct {
	ModuleID string  `json:"module_id"`
	Score    float64 `json:"score"`
}

// Constraints decodes a constraint cell of the given kind. Accepted forms:
//
//	[{"modules": ["A", "B"], "condition": "..."}]
//	["A", "B"]
//	free text
//
// Text that is not valid JSON becomes a single free-text condition.
func Constraints(kind models.ConstraintKind, cell string) []models.Constraint {
	cell = strings.TrimSpace(cell)
	if IsNull(cell) {
		return nil
	}

	if strings.HasPrefix(cell, "[") {
		var objs []constraintCell
		if err := json.Unmarshal(listJSON(cell), &objs); err == nil {
			var out []models.Constraint
			for _, o := range objs {
				ids := IDList(o.Modules)
				cond := strings.TrimSpace(o.Condition)
				if len(ids) == 0 && cond == "" {
					continue
				}
				out = append(out, models.Constraint{Kind: kind, ModuleIDs: ids, Condition: cond})
			}
			return out
		}
		var ids []string
		if err := json.Unmarshal(listJSON(cell), &ids); err == nil {
			ids = IDList(ids)
			if len(ids) == 0 {
				return nil
			}
			return []models.Constraint{{Kind: kind, ModuleIDs: ids}}
		}
	}

	return []models.Constraint{{Kind: kind, Condition: cell}}
}

// Similar decodes a similarity cell for module from. Accepted forms:
//
//	[{"module_id": "B", "score": 0.8}]
//	[["B", 0.8], ["C", 0.5]]
//	["B", "C"]
//	B:0.8;C:0.5
//
// A bare id in a JSON list carries no score; the list is taken as already
// ranked and scored n/n, (n-1)/n and so on. Malformed entries and scores
// that are not finite numbers are skipped.
func Similar(from, cell string) []models.SimilarityEdge {
	cell = strings.TrimSpace(cell)
	if IsNull(cell) {
		return nil
	}

	if strings.HasPrefix(cell, "[") {
		var items []json.RawMessage
		if err := json.Unmarshal(listJSON(cell), &items); err != nil {
			return nil
		}
		out := make([]models.SimilarityEdge, 0, len(items))
		for i, raw := range items {
			to, score, ok := similarItem(raw, float64(len(items)-i)/float64(len(items)))
			if !ok {
				continue
			}
			out = append(out, models.SimilarityEdge{From: from, To: to, Score: score})
		}
		return out
	}

	var out []models.SimilarityEdge
	for _, part := range strings.Split(cell, ";") {
		id, rawScore, ok := strings.Cut(part, ":")
		if !ok {
			continue
		}
		id = strings.TrimSpace(id)
		score, err := Number(rawScore)
		if id == "" || err != nil {
			continue
		}
		out = append(out, models.SimilarityEdge{From: from, To: id, Score: score})
	}
	return out
}

// similarItem decodes one element of a JSON similarity list. rankScore is
// used for bare ids.
func similarItem(raw json.RawMessage, rankScore float64) (string, float64, bool) {
	var obj similarCell
	if err := json.Unmarshal(raw, &obj); err == nil {
		to := strings.TrimSpace(obj.ModuleID)
		return to, obj.Score, to != "" && finite(obj.Score)
	}

	var id string
	if err := json.Unmarshal(raw, &id); err == nil {
		id = strings.TrimSpace(id)
		return id, rankScore, id != ""
	}

	var pair []any
	if err := json.Unmarshal(raw, &pair); err != nil || len(pair) == 0 {
		return "", 0, false
	}
	id, _ = pair[0].(string)
	id = strings.TrimSpace(id)
	if id == "" {
		return "", 0, false
	}
	if len(pair) == 1 {
		return id, rankScore, true
	}
	score, ok := pair[1].(float64)
	return id, score, ok && finite(score)
}

// listJSON turns a list written with single quotes, as dataframe exports
// write Python lists, into JSON. Cells that already use double quotes are
// left alone.
func listJSON(cell string) []byte {
	if strings.Contains(cell, "'") && !strings.Contains(cell, `"`) {
		cell = strings.ReplaceAll(cell, "'", `"`)
	}
	return []byte(cell)
}

// Number parses a numeric cell. Values that are not finite numbers are
// rejected; callers check IsNull first to tell a blank cell from a bad one.
func Number(cell string) (float64, error) {
	cell = strings.TrimSpace(cell)
	f, err := strconv.ParseFloat(cell, 64)
	if err != nil {
		return 0, fmt.Errorf("parser: %q is not a number", cell)
	}
	if !finite(f) {
		return 0, fmt.Errorf("parser: %q is not a finite number", cell)
	}
	return f, nil
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

// IDList trims, drops empties and deduplicates ids, keeping first-seen order.
func IDList(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	var out []string
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// IsNull reports whether cell is blank or one of the null spellings that
// dataframe exports produce.
func IsNull(cell string) bool {
	switch strings.ToLower(strings.TrimSpace(cell)) {
	case "", "[]", "nan", "none", "null":
		return true
	}
	return false
}
