package controllers

import (
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/tradepost-backend/api/responses"
	"github.com/angelmondragon/tradepost-backend/api/validators"
	"github.com/angelmondragon/tradepost-backend/internal/commission"
	"github.com/angelmondragon/tradepost-backend/pkg/db/models"
	"github.com/angelmondragon/tradepost-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/tradepost-backend/pkg/errors"
	"github.com/angelmondragon/tradepost-backend/pkg/logger"
)

type quoteRequest struct {
	Amount     string  `json:"amount" validate:"required,money"`
	SellerType string  `json:"seller_type" validate:"required"`
	CategoryID *string `json:"category_id" validate:"omitempty,uuid"`
}

// CommissionQuote previews the commission for a prospective sale.
func CommissionQuote(svc commission.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			unavailable(w, r, logg, "commission service")
			return
		}
		var req quoteRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		amount, err := parseAmount(req.Amount, "amount")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		sellerType, err := enums.ParseSellerType(req.SellerType)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid seller_type"))
			return
		}
		categoryID, err := parseOptionalUUID(req.CategoryID, "category_id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		result, err := svc.Quote(r.Context(), commission.Input{
			Amount:     amount,
			SellerType: sellerType,
			CategoryID: categoryID,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newCommissionView(result))
	}
}

type createRuleRequest struct {
	Name          string  `json:"name" validate:"required,max=128"`
	Percentage    string  `json:"percentage" validate:"required"`
	RuleType      string  `json:"rule_type" validate:"required"`
	CategoryID    *string `json:"category_id" validate:"omitempty,uuid"`
	SellerType    *string `json:"seller_type"`
	MinCommission *string `json:"min_commission" validate:"omitempty,money"`
	MaxCommission *string `json:"max_commission" validate:"omitempty,money"`
	Priority      int     `json:"priority" validate:"min=0"`
}

func AdminCommissionRules(svc commission.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			unavailable(w, r, logg, "commission service")
			return
		}
		rules, err := svc.ListRules(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, mapSlice(rules, func(rule *models.CommissionRule) ruleView { return newRuleView(rule) }))
	}
}

func AdminCommissionRuleCreate(svc commission.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			unavailable(w, r, logg, "commission service")
			return
		}
		var req createRuleRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		input, err := req.toInput()
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		rule, err := svc.CreateRule(r.Context(), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, newRuleView(rule))
	}
}

func (req createRuleRequest) toInput() (commission.CreateRuleInput, error) {
	pct, err := decimal.NewFromString(req.Percentage)
	if err != nil {
		return commission.CreateRuleInput{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid percentage")
	}
	ruleType, err := enums.ParseCommissionRuleType(req.RuleType)
	if err != nil {
		return commission.CreateRuleInput{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid rule_type")
	}
	categoryID, err := parseOptionalUUID(req.CategoryID, "category_id")
	if err != nil {
		return commission.CreateRuleInput{}, err
	}
	input := commission.CreateRuleInput{
		Name:       validators.SanitizeString(req.Name, 128),
		Percentage: pct,
		RuleType:   ruleType,
		CategoryID: categoryID,
		Priority:   req.Priority,
	}
	if req.SellerType != nil && *req.SellerType != "" {
		st, err := enums.ParseSellerType(*req.SellerType)
		if err != nil {
			return commission.CreateRuleInput{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid seller_type")
		}
		input.SellerType = &st
	}
	if input.MinCommission, err = parseOptionalMoney(req.MinCommission, "min_commission"); err != nil {
		return commission.CreateRuleInput{}, err
	}
	if input.MaxCommission, err = parseOptionalMoney(req.MaxCommission, "max_commission"); err != nil {
		return commission.CreateRuleInput{}, err
	}
	return input, nil
}

func parseOptionalMoney(raw *string, field string) (*decimal.Decimal, error) {
	if raw == nil || *raw == "" {
		return nil, nil
	}
	amount, err := parseAmount(*raw, field)
	if err != nil {
		return nil, err
	}
	return &amount, nil
}
