package models

// All lists the marketplace tables in dependency order for AutoMigrate.
func All() []any {
	return []any{
		&Listing{},
		&CommissionRule{},
		&ShippingAddress{},
		&Offer{},
		&Order{},
		&Payment{},
		&PaymentHold{},
		&LedgerEvent{},
		&OutboxEvent{},
		&OutboxDLQ{},
	}
}
