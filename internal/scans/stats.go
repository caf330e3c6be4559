package scans

import (
	"sort"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/kuapa/kuapa/backend/internal/models"
)

// Stats summarizes the history for the dashboard.
type Stats struct {
	Total             int                     `json:"total"`
	Healthy           int                     `json:"healthy"`
	Diseased          int                     `json:"diseased"`
	HealthyPercent    int                     `json:"healthyPercent"`
	MostCommon        string                  `json:"mostCommonCondition,omitempty"`
	ByCrop            map[models.CropType]int `json:"byCrop"`
	LastScanAt        string                  `json:"lastScanAt,omitempty"`
	LastScanRelative  string                  `json:"lastScanRelative,omitempty"`
	ConditionsByCount []ConditionCount        `json:"conditions"`
}

// ConditionCount is how often one condition was detected.
type ConditionCount struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// Stats computes dashboard statistics for the current history.
func (s *Store) Stats() Stats {
	return Summarize(s.History(), s.now())
}

// Summarize computes Stats for history as seen at now.
func Summarize(history []models.ScanRecord, now time.Time) Stats {
	st := Stats{ByCrop: make(map[models.CropType]int)}
	counts := make(map[string]*ConditionCount)

	for i := range history {
		r := &history[i]
		st.Total++
		st.ByCrop[r.CropType]++
		if r.IsHealthy {
			st.Healthy++
			continue
		}
		st.Diseased++
		if r.DetectedCondition != nil {
			c, ok := counts[r.DetectedCondition.ID]
			if !ok {
				c = &ConditionCount{ID: r.DetectedCondition.ID, Name: r.DetectedCondition.Name}
				counts[c.ID] = c
			}
			c.Count++
		}
	}

	if st.Total > 0 {
		st.HealthyPercent = st.Healthy * 100 / st.Total
		st.LastScanAt = history[0].CreatedAt
		if t := history[0].CreatedAtTime(); !t.IsZero() {
			st.LastScanRelative = humanize.RelTime(t, now, "ago", "from now")
		}
	}

	for _, c := range counts {
		st.ConditionsByCount = append(st.ConditionsByCount, *c)
	}
	sort.Slice(st.ConditionsByCount, func(i, j int) bool {
		a, b := st.ConditionsByCount[i], st.ConditionsByCount[j]
		if a.Count != b.Count {
			return a.Count > b.Count
		}
		return a.ID < b.ID
	})
	if len(st.ConditionsByCount) > 0 {
		st.MostCommon = st.ConditionsByCount[0].Name
	}
	return st
}
