package handlers

import (
	"context"
	"time"

	"github.com/clasedesurf/reservations/internal/auth"
	"github.com/clasedesurf/reservations/internal/discount"
	"github.com/clasedesurf/reservations/internal/pricing"
	"github.com/shopspring/decimal"
)

type DiscountCodeHandler struct {
	discounts *discount.Service
}

func NewDiscountCodeHandler(discounts *discount.Service) *DiscountCodeHandler {
	return &DiscountCodeHandler{discounts: discounts}
}

type ValidateDiscountRequest struct {
	Body struct {
		Code    string  `json:"code" doc:"Discount code, case-insensitive"`
		Amount  float64 `json:"amount" doc:"Amount the code would apply to"`
		ClassID uint    `json:"classId,omitempty" doc:"Class the code would be used for"`
	}
}

type ValidateDiscountResponse struct {
	Body struct {
		Valid              bool   `json:"valid"`
		Code               string `json:"code,omitempty"`
		DiscountPercentage string `json:"discountPercentage,omitempty"`
		DiscountAmount     string `json:"discountAmount"`
		FinalAmount        string `json:"finalAmount"`
		Reason             string `json:"reason,omitempty"`
		Message            string `json:"message"`
	}
}

type DiscountCodeBody struct {
	Code               string    `json:"code" doc:"3-50 characters of A-Z, 0-9, _ or -"`
	Description        string    `json:"description,omitempty"`
	DiscountPercentage float64   `json:"discountPercentage" doc:"Percentage between 0 and 100"`
	ValidFrom          time.Time `json:"validFrom"`
	ValidTo            time.Time `json:"validTo"`
	IsActive           *bool     `json:"isActive,omitempty" doc:"Defaults to true"`
	MaxUses            *int      `json:"maxUses,omitempty" doc:"Omit for unlimited uses"`
	SchoolID           *uint     `json:"schoolId,omitempty" doc:"Restrict the code to one school"`
}

type CreateDiscountCodeRequest struct {
	Body DiscountCodeBody
}

type UpdateDiscountCodeRequest struct {
	ID   uint `path:"id" doc:"Discount code ID"`
	Body struct {
		Description        *string    `json:"description,omitempty"`
		DiscountPercentage *float64   `json:"discountPercentage,omitempty"`
		ValidFrom          *time.Time `json:"validFrom,omitempty"`
		ValidTo            *time.Time `json:"validTo,omitempty"`
		IsActive           *bool      `json:"isActive,omitempty"`
		MaxUses            *int       `json:"maxUses,omitempty"`
		UnlimitedUses      bool       `json:"unlimitedUses,omitempty" doc:"Remove the usage limit"`
	}
}

type DiscountCodeIDRequest struct {
	ID uint `path:"id" doc:"Discount code ID"`
}

type DiscountCodeResponse struct {
	Body DiscountCodeView
}

type ListDiscountCodesRequest struct{}

type ListDiscountCodesResponse struct {
	Body []DiscountCodeView
}

// HandleValidate previews a code. It answers 200 for unknown, expired or
// exhausted codes and reports why in the body.
func (h *DiscountCodeHandler) HandleValidate(ctx context.Context, input *ValidateDiscountRequest) (*ValidateDiscountResponse, error) {
	amount, err := pricing.FromFloat(input.Body.Amount)
	if err != nil {
		return nil, httpError(err)
	}

	result, err := h.discounts.Validate(ctx, input.Body.Code, amount, input.Body.ClassID)
	if err != nil {
		return nil, httpError(err)
	}

	res := &ValidateDiscountResponse{}
	res.Body.Valid = result.Valid
	res.Body.DiscountAmount = result.DiscountAmount.StringFixed(2)
	res.Body.FinalAmount = result.FinalAmount.StringFixed(2)
	res.Body.Reason = string(result.Reason)
	res.Body.Message = result.Message
	if result.Valid {
		res.Body.Code = result.Code
		res.Body.DiscountPercentage = result.Percentage.StringFixed(2)
	}
	return res, nil
}

func (h *DiscountCodeHandler) HandleList(ctx context.Context, input *ListDiscountCodesRequest) (*ListDiscountCodesResponse, error) {
	actor, err := auth.Require(ctx, auth.RoleAdmin, auth.RoleSchoolAdmin)
	if err != nil {
		return nil, httpError(err)
	}

	codes, err := h.discounts.ListCodes(ctx, actor)
	if err != nil {
		return nil, httpError(err)
	}

	res := &ListDiscountCodesResponse{Body: make([]DiscountCodeView, 0, len(codes))}
	for i := range codes {
		res.Body = append(res.Body, discountCodeView(&codes[i]))
	}
	return res, nil
}

func (h *DiscountCodeHandler) HandleCreate(ctx context.Context, input *CreateDiscountCodeRequest) (*DiscountCodeResponse, error) {
	// 1. Authorize
	actor, err := auth.Require(ctx, auth.RoleAdmin, auth.RoleSchoolAdmin)
	if err != nil {
		return nil, httpError(err)
	}

	// 2. Convert and create
	pct, err := pricing.FromFloat(input.Body.DiscountPercentage)
	if err != nil {
		return nil, httpError(err)
	}
	active := true
	if input.Body.IsActive != nil {
		active = *input.Body.IsActive
	}

	dc, err := h.discounts.CreateCode(ctx, actor, discount.CodeInput{
		Code:               input.Body.Code,
		Description:        input.Body.Description,
		DiscountPercentage: pct,
		ValidFrom:          input.Body.ValidFrom,
		ValidTo:            input.Body.ValidTo,
		IsActive:           active,
		MaxUses:            input.Body.MaxUses,
		SchoolID:           input.Body.SchoolID,
	})
	if err != nil {
		return nil, httpError(err)
	}
	return &DiscountCodeResponse{Body: discountCodeView(dc)}, nil
}

func (h *DiscountCodeHandler) HandleGet(ctx context.Context, input *DiscountCodeIDRequest) (*DiscountCodeResponse, error) {
	actor, err := auth.Require(ctx, auth.RoleAdmin, auth.RoleSchoolAdmin)
	if err != nil {
		return nil, httpError(err)
	}

	dc, err := h.discounts.GetCode(ctx, actor, input.ID)
	if err != nil {
		return nil, httpError(err)
	}
	return &DiscountCodeResponse{Body: discountCodeView(dc)}, nil
}

func (h *DiscountCodeHandler) HandleUpdate(ctx context.Context, input *UpdateDiscountCodeRequest) (*DiscountCodeResponse, error) {
	actor, err := auth.Require(ctx, auth.RoleAdmin, auth.RoleSchoolAdmin)
	if err != nil {
		return nil, httpError(err)
	}

	upd := discount.CodeUpdate{
		Description: input.Body.Description,
		ValidFrom:   input.Body.ValidFrom,
		ValidTo:     input.Body.ValidTo,
		IsActive:    input.Body.IsActive,
		MaxUses:     input.Body.MaxUses,
		Unlimited:   input.Body.UnlimitedUses,
	}
	if input.Body.DiscountPercentage != nil {
		var pct decimal.Decimal
		if pct, err = pricing.FromFloat(*input.Body.DiscountPercentage); err != nil {
			return nil, httpError(err)
		}
		upd.DiscountPercentage = &pct
	}

	dc, err := h.discounts.UpdateCode(ctx, actor, input.ID, upd)
	if err != nil {
		return nil, httpError(err)
	}
	return &DiscountCodeResponse{Body: discountCodeView(dc)}, nil
}

func (h *DiscountCodeHandler) HandleDelete(ctx context.Context, input *DiscountCodeIDRequest) (*struct{}, error) {
	actor, err := auth.Require(ctx, auth.RoleAdmin, auth.RoleSchoolAdmin)
	if err != nil {
		return nil, httpError(err)
	}

	if err := h.discounts.DeleteCode(ctx, actor, input.ID); err != nil {
		return nil, httpError(err)
	}
	return nil, nil
}
