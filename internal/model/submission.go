package model

import "time"

type SubmissionState string

const (
	SubmissionInFlight  SubmissionState = "in_flight"
	SubmissionCompleted SubmissionState = "completed"
	SubmissionUnknown   SubmissionState = "unknown" // transport failed mid-submission
)

// Submission is the idempotency record of a caller-keyed purchase submission.
type Submission struct {
	IdempotencyKey string          `db:"idempotency_key"`
	Caller         string          `db:"caller"`
	Rail           Rail            `db:"rail"`
	State          SubmissionState `db:"state"`
	Result         []byte          `db:"result"`
	CreatedAt      time.Time       `db:"created_at"`
	UpdatedAt      time.Time       `db:"updated_at"`
}
