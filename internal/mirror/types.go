// Package mirror holds the personal data the mirror assistant works on:
// tasks and habits in Notion, the closet inventory, calendar events and
// outfit suggestions.
package mirror

import (
	"errors"
	"time"
)

// ErrNotConfigured is returned when a backend is used without its ids or credentials.
var ErrNotConfigured = errors.New("backend not configured")

// Priority of a task.
type Priority string

const (
	PriorityHigh   Priority = "High"
	PriorityMedium Priority = "Medium"
	PriorityLow    Priority = "Low"
)

// Priorities lists valid priorities, highest first.
var Priorities = []string{string(PriorityHigh), string(PriorityMedium), string(PriorityLow)}

func (p Priority) rank() int {
	switch p {
	case PriorityHigh:
		return 1
	case PriorityMedium:
		return 2
	case PriorityLow:
		return 3
	}
	return 99
}

// TaskStatus is the Notion status of a task.
type TaskStatus string

const (
	StatusNotStarted TaskStatus = "Not started"
	StatusInProgress TaskStatus = "In progress"
	StatusDone       TaskStatus = "Done"
)

// TaskStatuses lists valid statuses in display order.
var TaskStatuses = []string{string(StatusNotStarted), string(StatusInProgress), string(StatusDone)}

func (s TaskStatus) rank() int {
	switch s {
	case StatusNotStarted:
		return 1
	case StatusInProgress:
		return 2
	case StatusDone:
		return 3
	}
	return 99
}

// Task is a Notion task page. Projects are tasks with children.
type Task struct {
	ID       string     `json:"id"`
	Title    string     `json:"title"`
	Due      *time.Time `json:"due,omitempty"`
	Priority Priority   `json:"priority,omitempty"`
	Status   TaskStatus `json:"status,omitempty"`
	ParentID string     `json:"parent_id,omitempty"`
	Children []Task     `json:"children,omitempty"`
	URL      string     `json:"url,omitempty"`
}

// NewTask carries the fields for creating a task.
type NewTask struct {
	Title    string
	Due      time.Time
	Priority Priority
	Status   TaskStatus
}

// TaskUpdate changes the non-nil fields of a task.
type TaskUpdate struct {
	Title    *string
	Due      *time.Time
	Priority *Priority
	Status   *TaskStatus
}

// Empty reports whether the update changes nothing.
func (u TaskUpdate) Empty() bool {
	return u.Title == nil && u.Due == nil && u.Priority == nil && u.Status == nil
}

// HabitGroup is one column family of the habit tracker, keyed by emoji.
type HabitGroup struct {
	Emoji string
	Name  string
}

// Label renders the group as shown on the mirror.
func (g HabitGroup) Label() string { return g.Emoji + " " + g.Name }

// HabitGroups in display order.
var HabitGroups = []HabitGroup{
	{Emoji: "☀️", Name: "Morning"},
	{Emoji: "🌙", Name: "Evening"},
	{Emoji: "🌸", Name: "Daily"},
	{Emoji: "✨", Name: "Weekly"},
}

// Habit is one checkbox on today's habit tracker row.
type Habit struct {
	// ID is the Notion page of the tracker row, shared by every habit of the day.
	ID       string `json:"id"`
	Name     string `json:"name"`
	Property string `json:"property"`
	Group    string `json:"group"`
	Done     bool   `json:"done"`
}

// ClosetCategories are the clothing categories of the inventory.
var ClosetCategories = []string{"Tops", "Pants", "Skirts", "Dresses", "Shoes", "Outerwear", "Accessories"}

// ClosetItem is one piece of clothing.
type ClosetItem struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Category    string    `json:"category,omitempty"`
	Color       string    `json:"color,omitempty"`
	Brand       string    `json:"brand,omitempty"`
	Description string    `json:"description,omitempty"`
	ImageURL    string    `json:"image_url,omitempty"`
	AddedAt     time.Time `json:"added_at"`
}

// Event is a calendar event.
type Event struct {
	ID          string    `json:"id"`
	CalendarID  string    `json:"calendar_id"`
	Summary     string    `json:"title"`
	Start       time.Time `json:"start"`
	End         time.Time `json:"end"`
	AllDay      bool      `json:"all_day,omitempty"`
	Location    string    `json:"location,omitempty"`
	Description string    `json:"description,omitempty"`
	Link        string    `json:"link,omitempty"`
}

// EventUpdate changes the non-nil fields of an event.
type EventUpdate struct {
	Summary     *string
	Start       *time.Time
	End         *time.Time
	Location    *string
	Description *string
}

// Empty reports whether the update changes nothing.
func (u EventUpdate) Empty() bool {
	return u.Summary == nil && u.Start == nil && u.End == nil && u.Location == nil && u.Description == nil
}

// OutfitSuggestion proposes closet items for a date without committing to them.
type OutfitSuggestion struct {
	ID        int64     `json:"id"`
	Date      string    `json:"date"`
	Items     []string  `json:"items"`
	CreatedAt time.Time `json:"created_at"`
}
