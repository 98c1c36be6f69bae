package validators

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	pkgerrors "github.com/angelmondragon/tradepost-backend/pkg/errors"
)

type priceRequest struct {
	Price    string `json:"price" validate:"required,money"`
	Currency string `json:"currency" validate:"omitempty,currency"`
}

func decode(body string) error {
	r := httptest.NewRequest("POST", "/", strings.NewReader(body))
	var dest priceRequest
	return DecodeJSONBody(r, &dest)
}

func TestDecodeJSONBody(t *testing.T) {
	require.NoError(t, decode(`{"price":"12.50","currency":"USD"}`))
	require.NoError(t, decode(`{"price":"12.50"}`))

	cases := []struct {
		name string
		body string
		msg  string
	}{
		{"empty", ``, "request body is empty"},
		{"unknown field", `{"price":"1.00","tip":"2"}`, "invalid request body"},
		{"trailing object", `{"price":"1.00"}{"price":"2.00"}`, "request body must contain a single JSON object"},
		{"bad currency", `{"price":"1.00","currency":"XYZ"}`, "validation failed"},
		{"three decimals", `{"price":"1.005"}`, "validation failed"},
		{"too large", `{"price":"` + strings.Repeat("9", MaxBodyBytes) + `"}`, "request body too large"},
	}
	for _, tc := range cases {
		err := decode(tc.body)
		require.Error(t, err, tc.name)
		require.True(t, pkgerrors.Is(err, pkgerrors.CodeValidation), tc.name)
		typed := pkgerrors.As(err)
		require.NotNil(t, typed, tc.name)
		require.Equal(t, tc.msg, typed.Message(), tc.name)
	}
}

func TestValidationDetailsNameJSONFields(t *testing.T) {
	err := decode(`{"price":"0","currency":"XYZ"}`)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	details, ok := typed.Details().(map[string]string)
	require.True(t, ok)
	require.Equal(t, "must be a positive amount with at most two decimals", details["price"])
	require.Equal(t, "must be a supported currency code", details["currency"])
}
