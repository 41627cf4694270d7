package engine

// StatusState is the connectivity indicator a node shows.
type StatusState string

const (
	StatusConnected    StatusState = "connected"
	StatusDisconnected StatusState = "disconnected"
	StatusFailed       StatusState = "failed"
)

// Status is a state plus the label shown next to it.
type Status struct {
	State StatusState `json:"state"`
	Label string      `json:"label"`
}

// NewStatus returns a Status whose label is the state name.
func NewStatus(state StatusState) Status {
	return Status{State: state, Label: string(state)}
}

// Reporter receives status transitions and node-level errors from a run.
type Reporter interface {
	ReportStatus(Status)
	ReportError(error)
}

type nopReporter struct{}

func (nopReporter) ReportStatus(Status) {}
func (nopReporter) ReportError(error)   {}

// NopReporter discards everything.
var NopReporter Reporter = nopReporter{}
