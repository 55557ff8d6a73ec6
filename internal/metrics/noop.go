package metrics

// Noop discards every event
type Noop struct{}

// Ensure Noop implements Recorder interface at compile time
var _ Recorder = Noop{}

// NewNoop creates a recorder that does nothing
func NewNoop() Recorder {
	return Noop{}
}

func (Noop) RecordAPIRequest(string, int) {}
func (Noop) RecordTokenRefresh(bool)      {}
func (Noop) RecordOAuthCallback(string)   {}
func (Noop) RecordLogin(string, bool)     {}
