package enums

import "fmt"

// CommissionRuleType classifies how a commission rule is matched.
type CommissionRuleType string

const (
	CommissionRuleCategory   CommissionRuleType = "category"
	CommissionRuleSellerType CommissionRuleType = "seller_type"
	CommissionRuleExact      CommissionRuleType = "exact"
	CommissionRuleDefault    CommissionRuleType = "default"
)

var validCommissionRuleTypes = []CommissionRuleType{
	CommissionRuleCategory,
	CommissionRuleSellerType,
	CommissionRuleExact,
	CommissionRuleDefault,
}

func (t CommissionRuleType) String() string {
	return string(t)
}

// IsValid reports whether the value matches the canonical commission_rule_type enum.
func (t CommissionRuleType) IsValid() bool {
	for _, candidate := range validCommissionRuleTypes {
		if candidate == t {
			return true
		}
	}
	return false
}

// ParseCommissionRuleType converts raw input into CommissionRuleType.
func ParseCommissionRuleType(value string) (CommissionRuleType, error) {
	for _, candidate := range validCommissionRuleTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid commission rule type %q", value)
}
