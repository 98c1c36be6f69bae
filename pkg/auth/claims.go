package auth

import (
	"github.com/angelmondragon/tradepost-backend/pkg/enums"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// AccessTokenPayload captures the data available when minting a JWT.
type AccessTokenPayload struct {
	UserID     uuid.UUID
	Role       enums.UserRole
	SellerType *enums.SellerType
	JTI        string
}

// AccessTokenClaims represents the typed JWT issued to clients by the identity
// service and verified here.
type AccessTokenClaims struct {
	UserID     uuid.UUID         `json:"user_id"`
	Role       enums.UserRole    `json:"role"`
	SellerType *enums.SellerType `json:"seller_type,omitempty"`
	jwt.RegisteredClaims
}
