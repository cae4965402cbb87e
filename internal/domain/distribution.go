package domain

import "fmt"

// DistributionStatus tracks how far a session has progressed toward document
// delivery. Values are ordered; a session may only move forward.
type DistributionStatus int

const (
	DistributionNotOffered DistributionStatus = iota
	DistributionSignalDetected
	DistributionOffered
	DistributionSent
)

var distributionNames = map[DistributionStatus]string{
	DistributionNotOffered:     "not_offered",
	DistributionSignalDetected: "signal_detected",
	DistributionOffered:        "offered",
	DistributionSent:           "sent",
}

func (s DistributionStatus) String() string {
	if name, ok := distributionNames[s]; ok {
		return name
	}
	return fmt.Sprintf("unknown(%d)", int(s))
}

// ParseDistributionStatus maps a stored status string back to its enum value.
// Unrecognized values resolve to DistributionNotOffered so a corrupt record
// can never fabricate a Sent state.
func ParseDistributionStatus(s string) DistributionStatus {
	for status, name := range distributionNames {
		if name == s {
			return status
		}
	}
	return DistributionNotOffered
}

// Terminal reports whether no further status transitions are possible.
func (s DistributionStatus) Terminal() bool {
	return s == DistributionSent
}

// Advance returns the status after moving to target. Same-value transitions
// are no-ops; any regression is an error.
func (s DistributionStatus) Advance(target DistributionStatus) (DistributionStatus, error) {
	if target < s {
		return s, fmt.Errorf("domain: distribution status cannot regress from %s to %s", s, target)
	}
	return target, nil
}
