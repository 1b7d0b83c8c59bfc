package domain

import (
	"math"
	"time"
)

// ProjectStatus enumerates project lifecycle states.
type ProjectStatus string

const (
	ProjectPlanning  ProjectStatus = "Planning"
	ProjectActive    ProjectStatus = "Active"
	ProjectOnHold    ProjectStatus = "On Hold"
	ProjectCompleted ProjectStatus = "Completed"
	ProjectCancelled ProjectStatus = "Cancelled"
)

// Valid reports whether the status is one of the known values.
func (s ProjectStatus) Valid() bool {
	switch s {
	case ProjectPlanning, ProjectActive, ProjectOnHold, ProjectCompleted, ProjectCancelled:
		return true
	}
	return false
}

// Project belongs to a team; its lifetime is bound to the team and its
// deletion cascades into tasks and activity records.
type Project struct {
	ID          string        `json:"id"`
	Name        string        `json:"name"`
	Description string        `json:"description,omitempty"`
	TeamID      string        `json:"team_id"`
	CreatedBy   string        `json:"created_by"`
	Status      ProjectStatus `json:"status"`
	StartDate   *time.Time    `json:"start_date,omitempty"`
	EndDate     *time.Time    `json:"end_date,omitempty"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
}

// Duration returns the planned length in days, or false when either
// date is unset. Derived at read time, never persisted.
func (p *Project) Duration() (int, bool) {
	if p.StartDate == nil || p.EndDate == nil {
		return 0, false
	}
	days := int(math.Ceil(p.EndDate.Sub(*p.StartDate).Hours() / 24))
	return days, true
}

// DatesValid reports whether end >= start when both are present.
func (p *Project) DatesValid() bool {
	if p.StartDate == nil || p.EndDate == nil {
		return true
	}
	return !p.EndDate.Before(*p.StartDate)
}
