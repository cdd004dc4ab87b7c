package testingservice

type Status string

const (
	StatusPassed  Status = "PASSED"
	StatusFailed  Status = "FAILED"
	StatusError   Status = "ERROR"
	StatusRunning Status = "RUNNING"
	StatusWaiting Status = "WAITING"
	StatusAborted Status = "ABORTED"
)

// Build is one execution of a test instance on its CI. Timestamp and
// Duration are in seconds.
type Build struct {
	ID        string `json:"id"`
	Number    int64  `json:"build_number"`
	Revision  string `json:"revision,omitempty"`
	Timestamp int64  `json:"timestamp"`
	Duration  int64  `json:"duration"`
	Status    Status `json:"status"`
	URL       string `json:"url"`
}

func (b *Build) Passed() bool {
	return b != nil && b.Status == StatusPassed
}

// InProgress reports builds whose outcome may still change.
func (b *Build) InProgress() bool {
	return b != nil && (b.Status == StatusRunning || b.Status == StatusWaiting)
}
