package model

import (
	"fmt"
	"strings"
)

// Citation is derived data: it is never stored as its own entity, only
// materialized from citation-tagged job steps on read.
type Citation struct {
	ID    string `json:"id"`
	URL   string `json:"url"`
	Title string `json:"title"`
}

// StepDetails encodes the citation in the canonical step string form.
func (c Citation) StepDetails() string {
	return fmt.Sprintf("%s: %s [%s]", c.ID, c.URL, c.Title)
}

// ParseCitationDetails decodes a "<id>: <url> [<title>]" step string.
// Malformed details are skipped by returning ok=false.
func ParseCitationDetails(details string) (Citation, bool) {
	idx := strings.Index(details, ":")
	if idx < 0 {
		return Citation{}, false
	}
	c := Citation{ID: strings.TrimSpace(details[:idx])}
	rest := strings.TrimSpace(details[idx+1:])
	open := strings.Index(rest, "[")
	end := strings.Index(rest, "]")
	if open >= 0 && end > open {
		c.URL = strings.TrimSpace(rest[:open])
		c.Title = strings.TrimSpace(rest[open+1 : end])
	} else {
		c.URL = rest
	}
	return c, true
}

// CitationsFromSteps materializes citations from a job's step history.
func CitationsFromSteps(steps []*JobStep) []Citation {
	var out []Citation
	for _, step := range steps {
		if step.StepName != StepCitation {
			continue
		}
		if c, ok := ParseCitationDetails(step.StepDetails); ok {
			out = append(out, c)
		}
	}
	return out
}
