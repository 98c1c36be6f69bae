package dbtest

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/tradepost-backend/pkg/db/models"
	"github.com/angelmondragon/tradepost-backend/pkg/enums"
)

// SeedListing inserts an active USD listing priced at 1000 unless mutate
// overrides fields.
func SeedListing(t testing.TB, conn *gorm.DB, mutate ...func(*models.Listing)) models.Listing {
	t.Helper()
	published := time.Now().UTC()
	listing := models.Listing{
		SellerID:    uuid.New(),
		Title:       "Vintage film camera",
		Price:       decimal.NewFromInt(1000),
		Currency:    enums.CurrencyUSD,
		Status:      enums.ListingStatusActive,
		SellerType:  enums.SellerTypeIndividual,
		Version:     1,
		PublishedAt: &published,
	}
	for _, fn := range mutate {
		fn(&listing)
	}
	if err := conn.Create(&listing).Error; err != nil {
		t.Fatalf("seed listing: %v", err)
	}
	return listing
}

// SeedDefaultRule inserts the platform default 5% commission rule.
func SeedDefaultRule(t testing.TB, conn *gorm.DB) models.CommissionRule {
	t.Helper()
	rule := models.CommissionRule{
		Name:       "platform default",
		Percentage: decimal.NewFromInt(5),
		RuleType:   enums.CommissionRuleDefault,
		IsActive:   true,
	}
	if err := conn.Create(&rule).Error; err != nil {
		t.Fatalf("seed commission rule: %v", err)
	}
	return rule
}

// SeedAddress inserts a shipping address owned by userID.
func SeedAddress(t testing.TB, conn *gorm.DB, userID uuid.UUID) models.ShippingAddress {
	t.Helper()
	addr := models.ShippingAddress{
		UserID:     userID,
		Recipient:  "Dana Buyer",
		Line1:      "12 Harbor St",
		City:       "Portland",
		State:      "OR",
		PostalCode: "97201",
		Country:    "US",
	}
	if err := conn.Create(&addr).Error; err != nil {
		t.Fatalf("seed address: %v", err)
	}
	return addr
}

// Reload reads the current row with the given id.
func Reload[T any](t testing.TB, conn *gorm.DB, id uuid.UUID) T {
	t.Helper()
	var row T
	if err := conn.Where("id = ?", id).Take(&row).Error; err != nil {
		t.Fatalf("reload %T: %v", row, err)
	}
	return row
}

// SeedOrder inserts a pending_payment order for listing bought by buyerID at
// the listing price with a 5% commission.
func SeedOrder(t testing.TB, conn *gorm.DB, listing models.Listing, buyerID uuid.UUID, mutate ...func(*models.Order)) models.Order {
	t.Helper()
	order := models.Order{
		OrderNumber:        "TP-" + uuid.NewString()[:8],
		ListingID:          listing.ID,
		BuyerID:            buyerID,
		SellerID:           listing.SellerID,
		Currency:           listing.Currency,
		TotalAmount:        listing.Price,
		CommissionAmount:   listing.Price.Mul(decimal.NewFromInt(5)).Div(decimal.NewFromInt(100)).Round(2),
		CommissionRuleName: "platform default",
		CommissionRate:     decimal.NewFromInt(5),
		Status:             enums.OrderStatusPendingPayment,
		Version:            1,
	}
	for _, fn := range mutate {
		fn(&order)
	}
	if err := conn.Create(&order).Error; err != nil {
		t.Fatalf("seed order: %v", err)
	}
	return order
}

// SeedPayment inserts a payment for order with the given status.
func SeedPayment(t testing.TB, conn *gorm.DB, order models.Order, status enums.PaymentStatus, mutate ...func(*models.Payment)) models.Payment {
	t.Helper()
	reference := "ref-" + uuid.NewString()
	payment := models.Payment{
		OrderID:             order.ID,
		BuyerID:             order.BuyerID,
		Amount:              order.TotalAmount,
		Currency:            order.Currency,
		Provider:            enums.PaymentProviderHosted,
		ProviderReferenceID: &reference,
		Status:              status,
	}
	for _, fn := range mutate {
		fn(&payment)
	}
	if err := conn.Create(&payment).Error; err != nil {
		t.Fatalf("seed payment: %v", err)
	}
	return payment
}
