package commission

import (
	"sort"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/tradepost-backend/pkg/db/models"
	"github.com/angelmondragon/tradepost-backend/pkg/enums"
	"github.com/angelmondragon/tradepost-backend/pkg/money"
)

// FallbackRuleName labels results produced without any matching rule.
const FallbackRuleName = "fallback"

// DefaultFallbackRate is used when no fallback rate is configured.
var DefaultFallbackRate = decimal.NewFromInt(5)

// Input is the sale being priced.
type Input struct {
	Amount     decimal.Decimal
	SellerType enums.SellerType
	CategoryID *uuid.UUID
}

// Result is the commission breakdown snapshotted onto an order.
type Result struct {
	Amount     decimal.Decimal `json:"amount"`
	RuleID     *uuid.UUID      `json:"ruleId,omitempty"`
	RuleName   string          `json:"ruleName"`
	Rate       decimal.Decimal `json:"rate"`
	MinApplied bool            `json:"minApplied"`
	MaxApplied bool            `json:"maxApplied"`
	Fallback   bool            `json:"fallback"`
}

// Calculate prices a sale against the active rules. It performs no I/O and
// returns the same result for the same input and rule set regardless of the
// order rules are supplied in.
func Calculate(input Input, rules []models.CommissionRule, fallbackRate decimal.Decimal) Result {
	rule := Match(input, rules)
	if rule == nil {
		if fallbackRate.IsNegative() {
			fallbackRate = DefaultFallbackRate
		}
		amount := capAt(money.Percent(input.Amount, fallbackRate), input.Amount)
		return Result{
			Amount:   money.Round(amount),
			RuleName: FallbackRuleName,
			Rate:     fallbackRate,
			Fallback: true,
		}
	}

	raw := money.Percent(input.Amount, rule.Percentage)
	result := Result{
		RuleName: rule.Name,
		Rate:     rule.Percentage,
	}
	id := rule.ID
	result.RuleID = &id

	if rule.MinCommission != nil && raw.LessThan(*rule.MinCommission) {
		raw = *rule.MinCommission
		result.MinApplied = true
	}
	if rule.MaxCommission != nil && raw.GreaterThan(*rule.MaxCommission) {
		raw = *rule.MaxCommission
		result.MaxApplied = true
	}
	result.Amount = money.Round(capAt(raw, input.Amount))
	return result
}

// Match returns the winning rule or nil. Candidates are visited in priority
// order and the most specific tier with a match wins:
// exact (category and seller type), category only, seller type only, default.
func Match(input Input, rules []models.CommissionRule) *models.CommissionRule {
	ordered := activeRules(rules)
	tiers := []func(models.CommissionRule) bool{
		func(r models.CommissionRule) bool {
			return r.RuleType != enums.CommissionRuleDefault &&
				r.CategoryID != nil && r.SellerType != nil &&
				input.CategoryID != nil && *r.CategoryID == *input.CategoryID &&
				*r.SellerType == input.SellerType
		},
		func(r models.CommissionRule) bool {
			return r.RuleType != enums.CommissionRuleDefault &&
				r.CategoryID != nil && r.SellerType == nil &&
				input.CategoryID != nil && *r.CategoryID == *input.CategoryID
		},
		func(r models.CommissionRule) bool {
			return r.RuleType != enums.CommissionRuleDefault &&
				r.SellerType != nil && r.CategoryID == nil &&
				*r.SellerType == input.SellerType
		},
		func(r models.CommissionRule) bool {
			return r.RuleType == enums.CommissionRuleDefault
		},
	}
	for _, matches := range tiers {
		for i := range ordered {
			if matches(ordered[i]) {
				rule := ordered[i]
				return &rule
			}
		}
	}
	return nil
}

func activeRules(rules []models.CommissionRule) []models.CommissionRule {
	out := make([]models.CommissionRule, 0, len(rules))
	for _, r := range rules {
		if r.IsActive {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority > out[j].Priority
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out
}

func capAt(amount, limit decimal.Decimal) decimal.Decimal {
	if amount.GreaterThan(limit) {
		return limit
	}
	if amount.IsNegative() {
		return decimal.Zero
	}
	return amount
}
