package tools

import (
	"encoding/json"
	"maps"

	"github.com/soyeahso/taskpilot/internal/domain"
)

// Result is the uniform envelope for a tool execution.
type Result struct {
	Success bool
	Payload map[string]any
	Error   string

	// Entities touched by the call, most relevant first.
	Tasks    []domain.TaskSummary
	Projects []domain.ProjectSummary
}

// Fail builds an unsuccessful result.
func Fail(msg string) Result {
	return Result{Success: false, Error: msg}
}

// MarshalJSON flattens the payload next to the success flag:
// {"success":true,"taskId":1,...} or {"success":false,"error":"..."}.
func (r Result) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(r.Payload)+2)
	if r.Success {
		maps.Copy(out, r.Payload)
	} else {
		out["error"] = r.Error
	}
	out["success"] = r.Success
	return json.Marshal(out)
}

// JSON returns the envelope as the text fed back to the model.
func (r Result) JSON() string {
	b, err := json.Marshal(r)
	if err != nil {
		return `{"success":false,"error":"unencodable result"}`
	}
	return string(b)
}
