package fakestore

import (
	"fmt"
	"strings"
)

// Mode selects how the store answers a launched purchase
type Mode int

const (
	// ModeApprove completes every purchase immediately
	ModeApprove Mode = iota
	// ModeDecline fails every purchase with the configured reason
	ModeDecline
	// ModeDefer reports purchases as deferred until Approve or Decline is called
	ModeDefer
	// ModeManual holds purchases silently until Approve or Decline is called
	ModeManual
)

func (m Mode) String() string {
	switch m {
	case ModeApprove:
		return "approve"
	case ModeDecline:
		return "decline"
	case ModeDefer:
		return "defer"
	case ModeManual:
		return "manual"
	default:
		return "unknown"
	}
}

// ParseMode converts a mode name
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "approve", "":
		return ModeApprove, nil
	case "decline":
		return ModeDecline, nil
	case "defer":
		return ModeDefer, nil
	case "manual":
		return ModeManual, nil
	}
	return ModeApprove, fmt.Errorf("unknown purchase mode %q", s)
}
