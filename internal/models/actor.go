package models

import "time"

// ActorInfo identifies who caused an instance state transition, resolved
// from the CloudTrail event history. A nil *ActorInfo means the transition
// could not be attributed; a non-nil value always has every field set.
type ActorInfo struct {
	EventTime time.Time // time of the causal API call, UTC
	ARN       string    // IAM ARN of the caller, never empty
	Label     string    // display name, never empty
}
