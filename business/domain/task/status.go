package task

import (
	"fmt"
	"strings"
)

// Status represents the lifecycle state of a task.
type Status int

const (
	StatusNew Status = iota
	StatusRunning
	StatusCompleted
	StatusFailed
)

var statusNames = [...]string{"new", "running", "completed", "failed"}

// String implements the stringer interface.
func (s Status) String() string {
	if s < StatusNew || s > StatusFailed {
		return "UNKNOWN"
	}
	return statusNames[s]
}

// IsTerminal reports whether no further transition is possible.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// ParseStatus creates a status off of single string or return error if status is invalid.
func ParseStatus(s string) (Status, error) {
	s = strings.TrimSpace(s)
	for i, status := range statusNames {
		if strings.ToLower(s) == status {
			return Status(i), nil
		}
	}
	return Status(-1), fmt.Errorf("%q is invalid status", s)
}

// Type is the tag selecting which flow runs a task.
type Type int

const (
	TypeInstallPostgres Type = iota
	TypeStartPostgres
	TypeStopPostgres
)

var typeNames = [...]string{"install_postgres", "start_postgres", "stop_postgres"}

// String implements the stringer interface.
func (t Type) String() string {
	if t < TypeInstallPostgres || t > TypeStopPostgres {
		return "UNKNOWN"
	}
	return typeNames[t]
}

// ParseType creates a task type from a string also returns possible errors.
func ParseType(s string) (Type, error) {
	s = strings.TrimSpace(s)
	for i, name := range typeNames {
		if strings.ToLower(s) == name {
			return Type(i), nil
		}
	}
	return Type(-1), fmt.Errorf("%q, invalid task type", s)
}
