package listings

import (
	"fmt"

	"github.com/angelmondragon/tradepost-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/tradepost-backend/pkg/errors"
)

var allowedTransitions = map[enums.ListingStatus][]enums.ListingStatus{
	enums.ListingStatusDraft:    {enums.ListingStatusActive},
	enums.ListingStatusActive:   {enums.ListingStatusReserved, enums.ListingStatusRejected},
	enums.ListingStatusReserved: {enums.ListingStatusSold, enums.ListingStatusActive},
	enums.ListingStatusSold:     {enums.ListingStatusActive},
}

// CanTransition reports whether a listing may move from one status to another.
// Sold listings only return to active when their order is refunded.
func CanTransition(from, to enums.ListingStatus) bool {
	for _, candidate := range allowedTransitions[from] {
		if candidate == to {
			return true
		}
	}
	return false
}

// ErrUnavailable explains why a buyer cannot transact on a listing. A reserved
// listing may return to active when its order is cancelled, so that case is a
// retryable Conflict; every other status is a StateConflict.
func ErrUnavailable(status enums.ListingStatus) error {
	if status == enums.ListingStatusReserved {
		return pkgerrors.New(pkgerrors.CodeConflict, "listing is reserved by another buyer")
	}
	return pkgerrors.New(pkgerrors.CodeStateConflict, fmt.Sprintf("listing is %s", status))
}
