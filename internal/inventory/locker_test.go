package inventory

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/tradepost-backend/pkg/db/dbtest"
	"github.com/angelmondragon/tradepost-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/tradepost-backend/pkg/errors"
)

type conflictCounter struct {
	byResource map[string]int
}

func newConflictCounter() *conflictCounter {
	return &conflictCounter{byResource: map[string]int{}}
}

func (c *conflictCounter) IncLockConflict(resource string) { c.byResource[resource]++ }

func TestLockListingReturnsRow(t *testing.T) {
	conn := dbtest.Open(t)
	listing := dbtest.SeedListing(t, conn)
	locker := NewLocker(nil)

	for _, mode := range []Mode{ModeBlocking, ModeNonBlocking} {
		err := conn.Transaction(func(tx *gorm.DB) error {
			row, err := locker.LockListing(context.Background(), tx, listing.ID, mode)
			require.NoError(t, err)
			require.Equal(t, listing.ID, row.ID)
			require.Equal(t, enums.ListingStatusActive, row.Status)
			return nil
		})
		require.NoError(t, err)
	}
}

func TestLockMissingRowIsNotFound(t *testing.T) {
	conn := dbtest.Open(t)
	locker := NewLocker(nil)

	for _, mode := range []Mode{ModeBlocking, ModeNonBlocking} {
		err := conn.Transaction(func(tx *gorm.DB) error {
			_, err := locker.LockListing(context.Background(), tx, uuid.New(), mode)
			return err
		})
		require.True(t, pkgerrors.Is(err, pkgerrors.CodeNotFound), "mode %d: %v", mode, err)
	}

	err := conn.Transaction(func(tx *gorm.DB) error {
		_, err := locker.LockPayment(context.Background(), tx, uuid.New(), ModeBlocking)
		return err
	})
	require.True(t, pkgerrors.Is(err, pkgerrors.CodeNotFound))
}

func TestLockRequiresTransaction(t *testing.T) {
	_, err := NewLocker(nil).LockOrder(context.Background(), nil, uuid.New(), ModeBlocking)
	require.True(t, pkgerrors.Is(err, pkgerrors.CodeInternal))
}

func TestConflictErrorIsRetryable(t *testing.T) {
	err := ConflictError(ResourceListing)
	require.True(t, pkgerrors.Is(err, pkgerrors.CodeConflict))
	require.True(t, pkgerrors.IsRetryable(err))
}
