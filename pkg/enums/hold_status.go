package enums

import "fmt"

// HoldStatus maps to the payment_hold_status enum in Postgres.
type HoldStatus string

const (
	HoldStatusHeld      HoldStatus = "held"
	HoldStatusReleased  HoldStatus = "released"
	HoldStatusCancelled HoldStatus = "cancelled"
)

var validHoldStatuses = []HoldStatus{
	HoldStatusHeld,
	HoldStatusReleased,
	HoldStatusCancelled,
}

// IsValid reports whether the value is a known HoldStatus.
func (h HoldStatus) IsValid() bool {
	for _, candidate := range validHoldStatuses {
		if candidate == h {
			return true
		}
	}
	return false
}

// ParseHoldStatus converts raw input into HoldStatus.
func ParseHoldStatus(value string) (HoldStatus, error) {
	for _, candidate := range validHoldStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid hold status %q", value)
}
