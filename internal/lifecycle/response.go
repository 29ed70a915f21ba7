package lifecycle

import (
	"time"

	"github.com/adedejiosvaldo/rescuelink/backend/internal/models"
	"github.com/adedejiosvaldo/rescuelink/backend/internal/utils"
)

// Transition describes what a response status update actually did
type Transition struct {
	From    models.ResponseState
	To      models.ResponseState
	Changed bool
	// Skipped is set when the update jumped over one or more intermediate states
	Skipped bool
}

// NewResponse builds a freshly assigned response
func NewResponse(resp *models.Response, now time.Time) {
	resp.Status = models.ResponseAssigned
	resp.StatusHistory = models.StatusHistory{{Status: models.ResponseAssigned, At: now}}
	resp.Messages = models.ChatLog{}
	resp.CreatedAt = now
	resp.UpdatedAt = now
}

// TransitionResponse applies a responder status report.
//
// Forward moves are accepted even when they skip steps (field conditions can
// legitimately skip a report). Reporting the current status again only records
// the location. Backward moves are rejected, and completed is only reachable
// through Complete.
func TransitionResponse(resp *models.Response, to models.ResponseState, loc *models.Location, now time.Time) (Transition, error) {
	t := Transition{From: resp.Status, To: to}

	if resp.Status.Terminal() {
		return t, utils.ErrResponseClosed.WithDetails("response %s is %s", resp.ID, resp.Status)
	}
	if !to.Valid() {
		return t, utils.ErrInvalidRequest.WithDetails("unknown response status %q", to)
	}
	if to == models.ResponseCompleted {
		return t, utils.ErrInvalidTransition.WithDetails("completion requires a completion record")
	}

	if to != models.ResponseCancelled {
		cur, _ := resp.Status.Rank()
		next, _ := to.Rank()
		switch {
		case next < cur:
			return t, utils.ErrInvalidTransition.WithDetails("response %s cannot move back from %s to %s", resp.ID, resp.Status, to)
		case next == cur:
			if loc != nil {
				resp.StatusHistory = append(resp.StatusHistory, models.StatusEntry{
					Status: to, At: now, Location: loc, Note: "location update",
				})
				resp.UpdatedAt = now
			}
			return t, nil
		case next > cur+1:
			t.Skipped = true
		}
	}

	resp.Status = to
	resp.UpdatedAt = now
	resp.StatusHistory = append(resp.StatusHistory, models.StatusEntry{Status: to, At: now, Location: loc})
	t.Changed = true
	return t, nil
}

// Complete closes the response with a completion record.
func Complete(resp *models.Response, record models.CompletionRecord, now time.Time) (Transition, error) {
	t := Transition{From: resp.Status, To: models.ResponseCompleted}

	if resp.Status.Terminal() {
		return t, utils.ErrResponseClosed.WithDetails("response %s is %s", resp.ID, resp.Status)
	}
	if err := ValidateCompletion(record); err != nil {
		return t, err
	}

	if resp.Status != models.ResponseAssisting {
		t.Skipped = true
	}
	record.CompletedAt = now
	resp.Completion = &record
	resp.Status = models.ResponseCompleted
	resp.UpdatedAt = now
	resp.StatusHistory = append(resp.StatusHistory, models.StatusEntry{Status: models.ResponseCompleted, At: now})
	t.Changed = true
	return t, nil
}

// ValidateCompletion checks the closed enums and the missing-person payload
func ValidateCompletion(record models.CompletionRecord) error {
	if !record.Outcome.Valid() {
		return utils.ErrInvalidRequest.WithDetails("unknown outcome %q", record.Outcome)
	}
	if !record.VictimStatus.Valid() {
		return utils.ErrInvalidRequest.WithDetails("unknown victim status %q", record.VictimStatus)
	}
	if record.CreateMissingPersonEntry {
		if record.MissingPerson == nil || record.MissingPerson.Name == "" {
			return utils.ErrInvalidRequest.WithDetails("missing person entry requires at least a name")
		}
		if record.MissingPerson.Age < 0 {
			return utils.ErrInvalidRequest.WithDetails("missing person age cannot be negative")
		}
	}
	return nil
}
