package lifecycle

import (
	"time"

	"github.com/adedejiosvaldo/rescuelink/backend/internal/models"
	"github.com/adedejiosvaldo/rescuelink/backend/internal/utils"
)

// signalEdges lists the allowed signal moves. acknowledged/responding → pending
// only happens when the active responder withdraws; acknowledged → resolved
// covers a rescue completed without intermediate status reports.
var signalEdges = map[models.SignalState][]models.SignalState{
	models.SignalPending: {
		models.SignalAcknowledged,
		models.SignalFalseAlarm,
	},
	models.SignalAcknowledged: {
		models.SignalResponding,
		models.SignalResolved,
		models.SignalFalseAlarm,
		models.SignalPending,
	},
	models.SignalResponding: {
		models.SignalResolved,
		models.SignalFalseAlarm,
		models.SignalPending,
	},
}

// AdvanceSignal moves sig to the given state. Moving to the current state is
// a no-op and reports false.
func AdvanceSignal(sig *models.Signal, to models.SignalState, now time.Time) (bool, error) {
	if sig.Status.Terminal() {
		return false, utils.ErrSignalAlreadyClosed.WithDetails("signal %s is %s", sig.ID, sig.Status)
	}
	if sig.Status == to {
		return false, nil
	}

	allowed := false
	for _, next := range signalEdges[sig.Status] {
		if next == to {
			allowed = true
			break
		}
	}
	if !allowed {
		return false, utils.ErrInvalidTransition.WithDetails("signal %s cannot move from %s to %s", sig.ID, sig.Status, to)
	}

	sig.Status = to
	sig.UpdatedAt = now
	if to.Terminal() {
		closed := now
		sig.ClosedAt = &closed
	}
	return true, nil
}

// SignalStateFor maps the active response state onto the signal state it implies.
func SignalStateFor(rs models.ResponseState) models.SignalState {
	switch rs {
	case models.ResponseAssigned:
		return models.SignalAcknowledged
	case models.ResponseEnRoute, models.ResponseArrived, models.ResponseAssisting:
		return models.SignalResponding
	case models.ResponseCompleted:
		return models.SignalResolved
	}
	return models.SignalPending
}

// CancellationWindowOpen reports whether the victim may still mark themselves
// safe given the active response (nil when nobody has accepted).
// The window closes once the responder reports arrived.
func CancellationWindowOpen(active *models.Response) bool {
	if active == nil || active.Status.Terminal() {
		return true
	}
	rank, _ := active.Status.Rank()
	arrived, _ := models.ResponseArrived.Rank()
	return rank < arrived
}
