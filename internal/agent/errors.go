package agent

import "fmt"

// JobError marks a failure that ends one meeting job. The worker logs it and
// moves on; other meetings are unaffected.
type JobError struct {
	MeetingID string
	Err       error
}

func (e *JobError) Error() string {
	return fmt.Sprintf("job for meeting %s: %v", e.MeetingID, e.Err)
}

func (e *JobError) Unwrap() error {
	return e.Err
}
