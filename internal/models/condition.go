package models

import (
	"encoding/json"
	"fmt"
)

// Severity is the ordered seriousness of a condition.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

var severityRank = map[Severity]int{
	SeverityLow:      1,
	SeverityMedium:   2,
	SeverityHigh:     3,
	SeverityCritical: 4,
}

// Rank returns the position of s in low < medium < high < critical, or 0 when unknown.
func (s Severity) Rank() int {
	return severityRank[s]
}

// AtLeast reports whether s is as severe as other.
func (s Severity) AtLeast(other Severity) bool {
	return s.Rank() >= other.Rank()
}

// UnmarshalJSON rejects severities outside the fixed set.
func (s *Severity) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if _, ok := severityRank[Severity(raw)]; !ok {
		return fmt.Errorf("unknown severity %q", raw)
	}
	*s = Severity(raw)
	return nil
}

// Treatment groups the three independent advice lists.
type Treatment struct {
	Cultural []string `json:"cultural"`
	Organic  []string `json:"organic"`
	Chemical []string `json:"chemical"`
}

// Condition is a detectable crop disease from the reference catalog.
type Condition struct {
	ID             string     `json:"id" validate:"required"`
	Name           string     `json:"name" validate:"required"`
	ScientificName string     `json:"scientificName,omitempty"`
	AffectedCrops  []CropType `json:"affectedCrops" validate:"min=1"`
	Description    string     `json:"description"`
	Symptoms       []string   `json:"symptoms"`
	Causes         []string   `json:"causes"`
	Treatment      Treatment  `json:"treatment"`
	Prevention     []string   `json:"prevention"`
	Severity       Severity   `json:"severity" validate:"oneof=low medium high critical"`
	ImageURL       string     `json:"imageUrl,omitempty"`
}

// Affects reports whether the condition lists crop among its affected crops.
func (c *Condition) Affects(crop CropType) bool {
	for _, affected := range c.AffectedCrops {
		if affected == crop {
			return true
		}
	}
	return false
}
