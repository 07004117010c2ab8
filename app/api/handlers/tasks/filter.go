package tasks

import (
	"fmt"
	"net/http"

	"github.com/hamidoujand/postgres-agent/business/domain/task"
)

func parseFilter(r *http.Request) (task.QueryFilter, error) {
	var filter task.QueryFilter

	values := r.URL.Query()

	if statusString := values.Get("status"); statusString != "" {
		status, err := task.ParseStatus(statusString)
		if err != nil {
			return task.QueryFilter{}, fmt.Errorf("unknown status: %q", statusString)
		}
		filter.Status = &status
	}

	if typeString := values.Get("type"); typeString != "" {
		typ, err := task.ParseType(typeString)
		if err != nil {
			return task.QueryFilter{}, fmt.Errorf("unknown type: %q", typeString)
		}
		filter.Type = &typ
	}

	return filter, nil
}
