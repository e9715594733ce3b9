package analysis

import (
	"fmt"

	"github.com/abelbrown/triage/internal/model"
)

// batchResult is the structured answer for one batch.
type batchResult struct {
	Actions []actionResult `json:"actions"`
}

// actionResult is one actionable email as reported by the backend.
type actionResult struct {
	EmailID  string        `json:"email_id"`
	Summary  string        `json:"summary"`
	Urgency  model.Urgency `json:"urgency"`
	Reason   string        `json:"reason"`
	Person   string        `json:"person"`
	Deadline string        `json:"deadline"`
	Group    string        `json:"group"`
}

// Validate enforces the output contract. A missing actions array is a
// failure; an empty one means nothing in the batch needs action.
func (r *batchResult) Validate() error {
	if r.Actions == nil {
		return fmt.Errorf("missing \"actions\" array")
	}
	for i, a := range r.Actions {
		if a.EmailID == "" {
			return fmt.Errorf("actions[%d]: missing email_id", i)
		}
		if a.Summary == "" {
			return fmt.Errorf("actions[%d] (%s): missing summary", i, a.EmailID)
		}
		if !a.Urgency.Valid() {
			return fmt.Errorf("actions[%d] (%s): invalid urgency %q", i, a.EmailID, a.Urgency)
		}
	}
	return nil
}
