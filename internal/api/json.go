package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"freightplan/internal/opt"
)

// Problem represents an RFC7807 problem details response body.
type Problem struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail,omitempty"`
	Instance string `json:"instance,omitempty"`
	// Issues and UnknownLanes are set for rejected optimizer input.
	Issues       []string   `json:"issues,omitempty"`
	UnknownLanes []opt.Lane `json:"unknownLanes,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeProblem(w http.ResponseWriter, status int, title, detail, instance string) {
	writeJSON(w, status, Problem{
		Type:     "about:blank",
		Title:    title,
		Status:   status,
		Detail:   detail,
		Instance: instance,
	})
}

// writeInputProblem reports an input fault as 400, listing each issue when
// err is an *opt.InputError.
func writeInputProblem(w http.ResponseWriter, title string, err error, instance string) {
	p := Problem{Type: "about:blank", Title: title, Status: http.StatusBadRequest, Detail: err.Error(), Instance: instance}
	var ie *opt.InputError
	if errors.As(err, &ie) {
		p.Detail = ie.Kind.Error()
		p.Issues = ie.Issues
		p.UnknownLanes = ie.Lanes
	}
	writeJSON(w, http.StatusBadRequest, p)
}
