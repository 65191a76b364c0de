// Package taskview filters and orders a couple's task list for display.
package taskview

import (
	"fmt"
	"slices"
	"strings"

	"couple-todo-backend/internal/models"
	"couple-todo-backend/internal/roles"
)

// Filter selects which tasks are shown
type Filter string

const (
	FilterAll               Filter = "all"
	FilterCompleted         Filter = "completed"
	FilterActive            Filter = "active"
	FilterAssignedToSelf    Filter = "assigned_to_self"
	FilterAssignedToPartner Filter = "assigned_to_partner"
	FilterShared            Filter = "shared"
)

// ParseFilter accepts the filter names used in query strings. Empty means all.
func ParseFilter(raw string) (Filter, error) {
	f := Filter(strings.ToLower(strings.TrimSpace(raw)))
	switch f {
	case "":
		return FilterAll, nil
	case FilterAll, FilterCompleted, FilterActive, FilterAssignedToSelf, FilterAssignedToPartner, FilterShared:
		return f, nil
	}
	return "", fmt.Errorf("unknown filter %q", raw)
}

// Match reports whether task passes f for the viewer described by labels
func (f Filter) Match(task *models.Task, labels roles.LabelSet) bool {
	switch f {
	case FilterCompleted:
		return task.Completed
	case FilterActive:
		return !task.Completed
	case FilterAssignedToSelf:
		return labels.Relative(task.Assignee) == models.AssigneeSelf
	case FilterAssignedToPartner:
		return labels.Relative(task.Assignee) == models.AssigneePartner
	case FilterShared:
		return task.Assignee == models.AssigneeShared
	}
	return true
}

// Apply returns the tasks passing filter ordered by due date ascending, tasks
// without a due date last. Ties keep their input order. The input is not modified.
func Apply(tasks []*models.Task, filter Filter, labels roles.LabelSet) []*models.Task {
	out := make([]*models.Task, 0, len(tasks))
	for _, t := range tasks {
		if filter.Match(t, labels) {
			out = append(out, t)
		}
	}
	slices.SortStableFunc(out, compareDue)
	return out
}

func compareDue(a, b *models.Task) int {
	switch {
	case a.DueDate == nil && b.DueDate == nil:
		return 0
	case a.DueDate == nil:
		return 1
	case b.DueDate == nil:
		return -1
	}
	return a.DueDate.Compare(*b.DueDate)
}

// Counts summarizes a task list
type Counts struct {
	Total     int `json:"total"`
	Completed int `json:"completed"`
}

// Count tallies tasks
func Count(tasks []*models.Task) Counts {
	c := Counts{Total: len(tasks)}
	for _, t := range tasks {
		if t.Completed {
			c.Completed++
		}
	}
	return c
}
