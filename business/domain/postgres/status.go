package postgres

import "fmt"

// Status is the classified state of the postgres container.
type Status int

const (
	StatusNotCreated Status = iota + 1
	StatusStarting
	StatusOK
	StatusFailed
)

var statusNames = map[Status]string{
	StatusNotCreated: "not-created",
	StatusStarting:   "starting",
	StatusOK:         "ok",
	StatusFailed:     "failed",
}

func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("Status(%d)", int(s))
}

// Classify maps a container state and health pair onto a Status. Combinations
// not covered are classified as failed.
func Classify(state string, health string) Status {
	switch state {
	case "running":
		switch health {
		case "healthy", "", "none":
			return StatusOK
		case "starting":
			return StatusStarting
		case "unhealthy":
			return StatusFailed
		}

	case "created", "restarting":
		return StatusStarting

	case "exited", "dead":
		return StatusFailed
	}

	return StatusFailed
}
