package commission

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/tradepost-backend/pkg/db/models"
	"github.com/angelmondragon/tradepost-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/tradepost-backend/pkg/errors"
	"github.com/angelmondragon/tradepost-backend/pkg/logger"
	"github.com/angelmondragon/tradepost-backend/pkg/money"
)

// Service prices sales and manages the rule set.
type Service interface {
	// Compute prices a sale inside the caller's transaction.
	Compute(ctx context.Context, tx *gorm.DB, input Input) (Result, error)
	Quote(ctx context.Context, input Input) (Result, error)
	ListRules(ctx context.Context) ([]models.CommissionRule, error)
	CreateRule(ctx context.Context, input CreateRuleInput) (*models.CommissionRule, error)
}

type fallbackRecorder interface {
	IncCommissionFallback()
}

// CreateRuleInput describes a new commission rule.
type CreateRuleInput struct {
	Name          string
	Percentage    decimal.Decimal
	RuleType      enums.CommissionRuleType
	CategoryID    *uuid.UUID
	SellerType    *enums.SellerType
	MinCommission *decimal.Decimal
	MaxCommission *decimal.Decimal
	Priority      int
}

type service struct {
	repo         Repository
	fallbackRate decimal.Decimal
	metrics      fallbackRecorder
	logg         *logger.Logger
}

// NewService wires the commission service. metrics may be nil.
func NewService(repo Repository, fallbackRate decimal.Decimal, metrics fallbackRecorder, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("commission repository required")
	}
	if logg == nil {
		logg = logger.Nop()
	}
	return &service{
		repo:         repo,
		fallbackRate: fallbackRate,
		metrics:      metrics,
		logg:         logg,
	}, nil
}

func (s *service) Compute(ctx context.Context, tx *gorm.DB, input Input) (Result, error) {
	if !input.Amount.IsPositive() {
		return Result{}, pkgerrors.New(pkgerrors.CodeValidation, "amount must be positive")
	}
	rules, err := s.repo.WithTx(tx).ListActive(ctx)
	if err != nil {
		return Result{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load commission rules")
	}
	result := Calculate(input, rules, s.fallbackRate)
	if result.Fallback {
		if s.metrics != nil {
			s.metrics.IncCommissionFallback()
		}
		s.logg.Warn(s.logg.WithFields(ctx, map[string]any{
			"amount":      input.Amount.String(),
			"seller_type": input.SellerType,
			"rate":        result.Rate.String(),
		}), "no commission rule matched, using fallback rate")
	}
	return result, nil
}

func (s *service) Quote(ctx context.Context, input Input) (Result, error) {
	return s.Compute(ctx, nil, input)
}

func (s *service) ListRules(ctx context.Context) ([]models.CommissionRule, error) {
	rules, err := s.repo.ListAll(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list commission rules")
	}
	return rules, nil
}

func (s *service) CreateRule(ctx context.Context, input CreateRuleInput) (*models.CommissionRule, error) {
	if err := validateRule(input); err != nil {
		return nil, err
	}
	rule := &models.CommissionRule{
		Name:          strings.TrimSpace(input.Name),
		Percentage:    input.Percentage,
		RuleType:      input.RuleType,
		CategoryID:    input.CategoryID,
		SellerType:    input.SellerType,
		MinCommission: input.MinCommission,
		MaxCommission: input.MaxCommission,
		Priority:      input.Priority,
		IsActive:      true,
	}
	if err := s.repo.Create(ctx, rule); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create commission rule")
	}
	return rule, nil
}

func validateRule(input CreateRuleInput) error {
	if strings.TrimSpace(input.Name) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "name is required")
	}
	if !input.RuleType.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, "invalid rule type")
	}
	if input.Percentage.IsNegative() || input.Percentage.GreaterThan(decimal.NewFromInt(100)) {
		return pkgerrors.New(pkgerrors.CodeValidation, "percentage must be between 0 and 100")
	}
	if !input.Percentage.Equal(money.Round(input.Percentage)) {
		return pkgerrors.New(pkgerrors.CodeValidation, "percentage allows at most two decimals")
	}
	switch input.RuleType {
	case enums.CommissionRuleExact:
		if input.CategoryID == nil || input.SellerType == nil {
			return pkgerrors.New(pkgerrors.CodeValidation, "exact rules need category and seller type")
		}
	case enums.CommissionRuleCategory:
		if input.CategoryID == nil || input.SellerType != nil {
			return pkgerrors.New(pkgerrors.CodeValidation, "category rules need only a category")
		}
	case enums.CommissionRuleSellerType:
		if input.SellerType == nil || input.CategoryID != nil {
			return pkgerrors.New(pkgerrors.CodeValidation, "seller type rules need only a seller type")
		}
	case enums.CommissionRuleDefault:
		if input.SellerType != nil || input.CategoryID != nil {
			return pkgerrors.New(pkgerrors.CodeValidation, "default rules cannot be scoped")
		}
	}
	if input.SellerType != nil && !input.SellerType.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, "invalid seller type")
	}
	if input.MinCommission != nil && input.MinCommission.IsNegative() {
		return pkgerrors.New(pkgerrors.CodeValidation, "min commission cannot be negative")
	}
	if input.MinCommission != nil && input.MaxCommission != nil && input.MinCommission.GreaterThan(*input.MaxCommission) {
		return pkgerrors.New(pkgerrors.CodeValidation, "min commission exceeds max commission")
	}
	return nil
}
