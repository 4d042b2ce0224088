package canvas

import (
	"strings"
	"time"
)

// ID is a Canvas identifier. The API emits numeric ids on most endpoints
// and string ids on SIS endpoints, so both decode into an opaque string.
type ID string

// UnmarshalJSON accepts either a JSON number or a JSON string
func (id *ID) UnmarshalJSON(b []byte) error {
	*id = ID(strings.Trim(string(b), `"`))
	return nil
}

func (id ID) String() string { return string(id) }

// Account is one node of the Canvas account hierarchy
type Account struct {
	ID              ID     `json:"id"`
	Name            string `json:"name"`
	ParentAccountID *ID    `json:"parent_account_id,omitempty"`
	WorkflowState   string `json:"workflow_state"`
	RootAccountID   *ID    `json:"root_account_id,omitempty"`
}

// Course is the Canvas representation of a created course
type Course struct {
	ID            ID     `json:"id"`
	Name          string `json:"name"`
	CourseCode    string `json:"course_code"`
	AccountID     ID     `json:"account_id"`
	WorkflowState string `json:"workflow_state"`
	StartAt       string `json:"start_at,omitempty"`
	EndAt         string `json:"end_at,omitempty"`
}

// CourseSpec describes one course to create under an account
type CourseSpec struct {
	Name       string
	CourseCode string
	StartAt    *time.Time
	EndAt      *time.Time
}

// coursePayload is the wire format of the create-course request body
type coursePayload struct {
	Course courseFields `json:"course"`
}

type courseFields struct {
	Name       string `json:"name"`
	CourseCode string `json:"course_code"`
	StartAt    string `json:"start_at,omitempty"`
	EndAt      string `json:"end_at,omitempty"`
}

func (s CourseSpec) payload() coursePayload {
	fields := courseFields{
		Name:       s.Name,
		CourseCode: s.CourseCode,
	}
	if s.StartAt != nil {
		fields.StartAt = s.StartAt.UTC().Format(time.RFC3339)
	}
	if s.EndAt != nil {
		fields.EndAt = s.EndAt.UTC().Format(time.RFC3339)
	}
	return coursePayload{Course: fields}
}
