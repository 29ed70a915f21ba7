package models

// SignalState is the lifecycle state of an emergency signal
type SignalState string

const (
	SignalPending      SignalState = "pending"
	SignalAcknowledged SignalState = "acknowledged"
	SignalResponding   SignalState = "responding"
	SignalResolved     SignalState = "resolved"
	SignalFalseAlarm   SignalState = "false_alarm"
)

func (s SignalState) Terminal() bool {
	return s == SignalResolved || s == SignalFalseAlarm
}

// Open reports whether the signal can still be accepted by a responder.
func (s SignalState) Open() bool {
	return s == SignalPending || s == SignalAcknowledged
}

// ResponseState is the lifecycle state of a responder's assignment
type ResponseState string

const (
	ResponseAssigned  ResponseState = "assigned"
	ResponseEnRoute   ResponseState = "en_route"
	ResponseArrived   ResponseState = "arrived"
	ResponseAssisting ResponseState = "assisting"
	ResponseCompleted ResponseState = "completed"
	ResponseCancelled ResponseState = "cancelled"
)

var responseOrder = map[ResponseState]int{
	ResponseAssigned:  0,
	ResponseEnRoute:   1,
	ResponseArrived:   2,
	ResponseAssisting: 3,
	ResponseCompleted: 4,
}

func (s ResponseState) Valid() bool {
	if s == ResponseCancelled {
		return true
	}
	_, ok := responseOrder[s]
	return ok
}

func (s ResponseState) Terminal() bool {
	return s == ResponseCompleted || s == ResponseCancelled
}

// Rank is the position of s along assigned → completed; cancelled has no rank.
func (s ResponseState) Rank() (int, bool) {
	r, ok := responseOrder[s]
	return r, ok
}

// ActiveResponseStates lists every non-terminal response state
var ActiveResponseStates = []ResponseState{
	ResponseAssigned, ResponseEnRoute, ResponseArrived, ResponseAssisting,
}
