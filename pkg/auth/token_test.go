package auth

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/tradepost-backend/pkg/config"
	"github.com/angelmondragon/tradepost-backend/pkg/enums"
)

func testJWTConfig() config.JWTConfig {
	return config.JWTConfig{
		Secret:            "secret",
		Issuer:            "tradepost",
		ExpirationMinutes: 30,
	}
}

func TestMintAndParseAccessToken(t *testing.T) {
	cfg := testJWTConfig()
	now := time.Now().UTC()
	userID := uuid.New()
	sellerType := enums.SellerTypeBusiness

	token, err := MintAccessToken(cfg, now, AccessTokenPayload{
		UserID:     userID,
		Role:       enums.UserRoleSeller,
		SellerType: &sellerType,
		JTI:        "jti-1",
	})
	require.NoError(t, err)

	claims, err := ParseAccessToken(cfg, token)
	require.NoError(t, err)
	require.Equal(t, userID, claims.UserID)
	require.Equal(t, enums.UserRoleSeller, claims.Role)
	require.NotNil(t, claims.SellerType)
	require.Equal(t, sellerType, *claims.SellerType)
	require.Equal(t, cfg.Issuer, claims.Issuer)
	require.Equal(t, "jti-1", claims.ID)
	require.Equal(t, userID.String(), claims.Subject)
}

func TestMintAccessTokenRejectsInvalidRole(t *testing.T) {
	_, err := MintAccessToken(testJWTConfig(), time.Now(), AccessTokenPayload{UserID: uuid.New(), Role: "owner"})
	require.Error(t, err)
}

func TestParseAccessTokenRejectsExpired(t *testing.T) {
	cfg := testJWTConfig()
	token, err := MintAccessToken(cfg, time.Now().Add(-2*time.Hour), AccessTokenPayload{UserID: uuid.New(), Role: enums.UserRoleBuyer})
	require.NoError(t, err)

	_, err = ParseAccessToken(cfg, token)
	require.ErrorIs(t, err, ErrTokenExpired)
}

func TestParseAccessTokenToleratesSmallClockSkew(t *testing.T) {
	cfg := testJWTConfig()
	cfg.ExpirationMinutes = 1
	token, err := MintAccessToken(cfg, time.Now().Add(-time.Minute-10*time.Second), AccessTokenPayload{UserID: uuid.New(), Role: enums.UserRoleBuyer})
	require.NoError(t, err)

	_, err = ParseAccessToken(cfg, token)
	require.NoError(t, err)

	future, err := MintAccessToken(cfg, time.Now().Add(time.Hour), AccessTokenPayload{UserID: uuid.New(), Role: enums.UserRoleBuyer})
	require.NoError(t, err)
	_, err = ParseAccessToken(cfg, future)
	require.ErrorIs(t, err, ErrTokenInvalid)
}

func TestParseAccessTokenRejectsWrongSecretAndIssuer(t *testing.T) {
	cfg := testJWTConfig()
	token, err := MintAccessToken(cfg, time.Now(), AccessTokenPayload{UserID: uuid.New(), Role: enums.UserRoleBuyer})
	require.NoError(t, err)

	other := cfg
	other.Secret = "other"
	_, err = ParseAccessToken(other, token)
	require.ErrorIs(t, err, ErrTokenInvalid)

	other = cfg
	other.Issuer = "someone-else"
	_, err = ParseAccessToken(other, token)
	require.ErrorIs(t, err, ErrTokenInvalid)
}

func TestActorFromClaims(t *testing.T) {
	business := enums.SellerTypeBusiness
	userID := uuid.New()
	actor := ActorFromClaims(&AccessTokenClaims{UserID: userID, Role: enums.UserRoleSeller, SellerType: &business})
	require.Equal(t, userID, actor.UserID)
	require.False(t, actor.IsPrivileged())
	require.Equal(t, &userID, actor.ActorIDPtr())

	system := SystemActor()
	require.True(t, system.IsPrivileged())
	require.Nil(t, system.ActorIDPtr())
	require.Equal(t, Actor{}, ActorFromClaims(nil))
}
