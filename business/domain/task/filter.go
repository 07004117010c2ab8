package task

// QueryFilter narrows a task query. Nil fields match every task.
type QueryFilter struct {
	Status *Status
	Type   *Type
}

// Match reports whether the task passes the filter.
func (f QueryFilter) Match(t Task) bool {
	if f.Status != nil && *f.Status != t.Status {
		return false
	}

	if f.Type != nil && *f.Type != t.Type {
		return false
	}

	return true
}
