package progress

import (
	"time"
)

// Statistics tracks aggregate counters for a run. Counters are
// monotonically non-decreasing; the derived rates can be recomputed from
// them at any time.
type Statistics struct {
	// TotalRUCs is the number of ids in the input file
	TotalRUCs int `json:"total_rucs"`
	// Processed counts terminal results, success or failure
	Processed int `json:"processed"`
	// Successful counts success results
	Successful int `json:"successful"`
	// Failed counts results that exhausted all retry attempts
	Failed int `json:"failed"`
	// TotalLines counts phone lines found across all successes
	TotalLines int `json:"total_lines_found"`
	// TotalRetries counts extraction attempts beyond the first
	TotalRetries int `json:"total_retries"`
	// ErrorsByKind breaks failures down by taxonomy kind
	ErrorsByKind map[string]int `json:"errors_by_type"`
	// StartTime is when the first run over this id set began
	StartTime *time.Time `json:"start_time,omitempty"`
	// EndTime is when the run finished
	EndTime *time.Time `json:"end_time,omitempty"`
}

// NewStatistics returns zeroed statistics.
func NewStatistics() *Statistics {
	return &Statistics{ErrorsByKind: make(map[string]int)}
}

// SuccessRate returns the percentage of processed ids that succeeded.
func (s *Statistics) SuccessRate() float64 {
	if s.Processed == 0 {
		return 0
	}
	return float64(s.Successful) / float64(s.Processed) * 100
}

// ElapsedSeconds returns seconds since StartTime, up to EndTime if set.
func (s *Statistics) ElapsedSeconds() float64 {
	if s.StartTime == nil {
		return 0
	}
	end := time.Now()
	if s.EndTime != nil {
		end = *s.EndTime
	}
	return end.Sub(*s.StartTime).Seconds()
}

// RatePerHour returns processed ids per hour.
func (s *Statistics) RatePerHour() float64 {
	hours := s.ElapsedSeconds() / 3600
	if hours == 0 {
		return 0
	}
	return float64(s.Processed) / hours
}

// ETASeconds estimates seconds remaining at the current rate.
func (s *Statistics) ETASeconds() float64 {
	rate := s.RatePerHour()
	if s.Processed == 0 || rate == 0 {
		return 0
	}
	remaining := s.TotalRUCs - s.Processed
	return float64(remaining) / rate * 3600
}
