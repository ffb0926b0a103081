package jobs

import "errors"

// Job errors.
var (
	ErrJobNotFound = errors.New("job not found")

	// ErrJobAlreadyTerminal is returned when cancelling a job that already
	// reached a terminal state. Callers get an explicit error instead of a
	// silent success so the UI can tell "already done" from "cancel accepted".
	ErrJobAlreadyTerminal = errors.New("job already in a terminal state")

	ErrUnknownJobType = errors.New("no generator registered for job type")

	// ErrStaleClaim is returned when a job update carries a claim token that
	// no longer matches the stored one.
	ErrStaleClaim = errors.New("claim token does not match, job was reclaimed")

	// ErrPollWindowElapsed is returned by the poller when the job did not
	// reach a terminal state within the polling window.
	ErrPollWindowElapsed = errors.New("polling window elapsed before job finished")
)
