package handlers

import (
	"context"

	"github.com/clasedesurf/reservations/internal/auth"
	"github.com/clasedesurf/reservations/internal/models"
	"github.com/clasedesurf/reservations/internal/payment"
)

type PaymentHandler struct {
	payments *payment.Service
}

func NewPaymentHandler(payments *payment.Service) *PaymentHandler {
	return &PaymentHandler{payments: payments}
}

type PaymentIDRequest struct {
	ID uint `path:"id" doc:"Payment ID"`
}

type UpdatePaymentRequest struct {
	ID   uint `path:"id" doc:"Payment ID"`
	Body struct {
		Status        models.PaymentStatus `json:"status" doc:"PENDING to submit a voucher, PAID or REFUNDED for staff"`
		PaymentMethod string               `json:"paymentMethod,omitempty" doc:"e.g. TRANSFER, YAPE, CASH"`
		TransactionID string               `json:"transactionId,omitempty" doc:"Bank or wallet operation number"`
		VoucherImage  string               `json:"voucherImage,omitempty" doc:"URL of the uploaded voucher image"`
		VoucherNotes  string               `json:"voucherNotes,omitempty" doc:"Notes for the school"`
	}
}

type PaymentResponse struct {
	Body PaymentView
}

func (h *PaymentHandler) HandleGet(ctx context.Context, input *PaymentIDRequest) (*PaymentResponse, error) {
	actor, err := auth.Require(ctx)
	if err != nil {
		return nil, httpError(err)
	}

	p, err := h.payments.Get(ctx, actor, input.ID)
	if err != nil {
		return nil, httpError(err)
	}
	return &PaymentResponse{Body: *paymentView(p)}, nil
}

func (h *PaymentHandler) HandleUpdate(ctx context.Context, input *UpdatePaymentRequest) (*PaymentResponse, error) {
	actor, err := auth.Require(ctx)
	if err != nil {
		return nil, httpError(err)
	}

	details := models.PaymentDetails{
		PaymentMethod: input.Body.PaymentMethod,
		TransactionID: input.Body.TransactionID,
		VoucherImage:  input.Body.VoucherImage,
		VoucherNotes:  input.Body.VoucherNotes,
	}
	p, err := h.payments.Apply(ctx, actor, input.ID, input.Body.Status, details)
	if err != nil {
		return nil, httpError(err)
	}
	return &PaymentResponse{Body: *paymentView(p)}, nil
}
