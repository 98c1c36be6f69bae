package types

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAddressValueDefaultsCountry(t *testing.T) {
	addr := Address{Recipient: "Ana", Line1: "1 Main St", City: "Austin", State: "TX", PostalCode: "78701"}

	value, err := addr.Value()
	require.NoError(t, err)

	var scanned Address
	require.NoError(t, scanned.Scan(value))
	require.Equal(t, "US", scanned.Country)
	require.Equal(t, "1 Main St", scanned.Line1)
}

func TestAddressValueRejectsMissingFields(t *testing.T) {
	_, err := Address{Line1: "1 Main St"}.Value()
	require.ErrorContains(t, err, "recipient")
}

func TestAddressScanNil(t *testing.T) {
	addr := Address{City: "x"}
	require.NoError(t, addr.Scan(nil))
	require.Equal(t, Address{}, addr)
	require.Error(t, addr.Scan(42))
}
