// Package models defines the core data structures for WapiDaktari.
//
// It includes the feature rows served by the dataset backends, the prediction
// results produced by the best-time selector, the USSD turn records kept by the
// store, and the JSON envelope used by the HTTP API.
package models

import (
	"errors"
	"fmt"
	"time"
)

// DateLayout is the calendar date format used by the dataset and the USSD date prompt.
const DateLayout = "2006-01-02"

// TimeBlock identifies one of the fixed slots of a hospital day.
type TimeBlock string

const (
	// TimeBlockMorning is the first block of the day.
	TimeBlockMorning TimeBlock = "Morning"
	// TimeBlockAfternoon is the second block of the day.
	TimeBlockAfternoon TimeBlock = "Afternoon"
	// TimeBlockEvening is the last block of the day.
	TimeBlockEvening TimeBlock = "Evening"
)

// TimeBlocks returns every time block in declaration order. Selection ties are
// broken by this order.
func TimeBlocks() []TimeBlock {
	return []TimeBlock{TimeBlockMorning, TimeBlockAfternoon, TimeBlockEvening}
}

// IsValidTimeBlock checks if the given block is one of the known time blocks.
func IsValidTimeBlock(b TimeBlock) bool {
	switch b {
	case TimeBlockMorning, TimeBlockAfternoon, TimeBlockEvening:
		return true
	default:
		return false
	}
}

// Dataset column names for the four lookup keys.
const (
	ColumnHospital   = "hospital_name"
	ColumnDepartment = "department"
	ColumnDate       = "date"
	ColumnTimeBlock  = "time_block"
)

// Error variables shared across the prediction path.
var (
	ErrFeatureRowNotFound = errors.New("feature row not found")
	ErrNoPrediction       = errors.New("no prediction available")
	ErrUnknownLabel       = errors.New("unknown label")
	ErrInvalidDate        = errors.New("invalid date")
	ErrUnknownHospital    = errors.New("unknown hospital")
	ErrUnknownDepartment  = errors.New("unknown department")
)

// FeatureKey uniquely addresses a feature row.
type FeatureKey struct {
	Hospital   string    `json:"hospital"`
	Department string    `json:"department"`
	Date       string    `json:"date"` // YYYY-MM-DD
	TimeBlock  TimeBlock `json:"time_block"`
}

// NewFeatureKey builds a key for the given calendar day.
func NewFeatureKey(hospital, department string, date time.Time, block TimeBlock) FeatureKey {
	return FeatureKey{
		Hospital:   hospital,
		Department: department,
		Date:       date.Format(DateLayout),
		TimeBlock:  block,
	}
}

func (k FeatureKey) String() string {
	return fmt.Sprintf("%s/%s/%s/%s", k.Hospital, k.Department, k.Date, k.TimeBlock)
}

// FeatureRow is one historical or simulated observation for a hospital
// department and time block. Values holds every attribute of the row keyed by
// its dataset column name, including the key columns, as raw text.
type FeatureRow struct {
	Key    FeatureKey        `json:"key"`
	Values map[string]string `json:"values"`
}

// Value returns the raw value of a named attribute.
func (r FeatureRow) Value(name string) (string, bool) {
	v, ok := r.Values[name]
	return v, ok
}

// MemberEstimate is one ensemble member's output for a time block.
type MemberEstimate struct {
	Model       string  `json:"model"`
	WaitMinutes float64 `json:"wait_minutes"`
	Congestion  string  `json:"congestion"`
}

// BestTime is the outcome of a best-time selection.
type BestTime struct {
	Hospital    string    `json:"hospital"`
	Department  string    `json:"department"`
	Date        string    `json:"date"`
	TimeBlock   TimeBlock `json:"time_block"`
	WaitMinutes float64   `json:"wait_minutes"`
	Congestion  string    `json:"congestion"`
	// LabelDecoded is false when the congestion label could not be decoded and
	// Congestion carries the raw encoded value.
	LabelDecoded bool `json:"label_decoded"`
	// Auxiliary holds the non-deciding ensemble members' estimates for the
	// winning block. Display only.
	Auxiliary []MemberEstimate `json:"auxiliary,omitempty"`
	// Skipped lists time blocks with no feature row.
	Skipped []TimeBlock `json:"skipped,omitempty"`
}

// Turn records one USSD request/response exchange.
type Turn struct {
	SessionID   string    `json:"session_id"`
	PhoneNumber string    `json:"phone_number"`
	ServiceCode string    `json:"service_code"`
	Step        int       `json:"step"`
	Terminal    bool      `json:"terminal"`
	Time        time.Time `json:"time"`
}

// TurnStats summarizes the turn log.
type TurnStats struct {
	TotalTurns       int `json:"total_turns"`
	DistinctSessions int `json:"distinct_sessions"`
	TerminalTurns    int `json:"terminal_turns"`
}

// SummarizeTurns computes TurnStats over a slice of turns.
func SummarizeTurns(turns []Turn) TurnStats {
	sessions := make(map[string]struct{})
	stats := TurnStats{TotalTurns: len(turns)}
	for _, t := range turns {
		sessions[t.SessionID] = struct{}{}
		if t.Terminal {
			stats.TerminalTurns++
		}
	}
	stats.DistinctSessions = len(sessions)
	return stats
}
