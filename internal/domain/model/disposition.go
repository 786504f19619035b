package model

// Disposition tells the consumer how to settle a delivery.
type Disposition int

const (
	// Ack settles a handled event.
	Ack Disposition = iota
	// Skip settles an event the pipeline does not act on.
	Skip
	// Retry returns the event to the queue, subject to the retry limit.
	Retry
)

func (d Disposition) String() string {
	switch d {
	case Ack:
		return "ack"
	case Skip:
		return "skip"
	case Retry:
		return "retry"
	default:
		return "unknown"
	}
}
