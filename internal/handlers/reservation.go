package handlers

import (
	"context"

	"github.com/clasedesurf/reservations/internal/auth"
	"github.com/clasedesurf/reservations/internal/models"
	"github.com/clasedesurf/reservations/internal/reservation"
)

type ReservationHandler struct {
	reservations *reservation.Service
}

func NewReservationHandler(reservations *reservation.Service) *ReservationHandler {
	return &ReservationHandler{reservations: reservations}
}

type ParticipantBody struct {
	Name            string `json:"name" doc:"Full name of the participant"`
	Age             int    `json:"age" doc:"Age in years (5-100)"`
	Height          int    `json:"height,omitempty" doc:"Height in centimetres (100-250)"`
	Weight          int    `json:"weight,omitempty" doc:"Weight in kilograms (20-200)"`
	CanSwim         bool   `json:"canSwim,omitempty" doc:"Whether the participant can swim"`
	SwimmingLevel   string `json:"swimmingLevel" doc:"NONE, BASIC, INTERMEDIATE or ADVANCED"`
	HasSurfedBefore bool   `json:"hasSurfedBefore,omitempty" doc:"Whether the participant surfed before"`
	Injuries        string `json:"injuries,omitempty" doc:"Injuries the instructor should know about"`
	Comments        string `json:"comments,omitempty" doc:"Anything else"`
}

type CreateReservationRequest struct {
	Body struct {
		ClassID          uint              `json:"classId" doc:"Class to book"`
		Participants     []ParticipantBody `json:"participants" doc:"People attending, 1 to 10"`
		ParticipantCount int               `json:"participantCount,omitempty" doc:"Must match the number of participants when sent"`
		SpecialRequest   string            `json:"specialRequest,omitempty" doc:"Free text for the school"`
		DiscountCode     string            `json:"discountCode,omitempty" doc:"Discount code to redeem"`
		ProductIDs       []uint            `json:"productIds,omitempty" doc:"Add-on products of the same school"`
	}
}

type ReservationResponse struct {
	Body ReservationView
}

type ListReservationsRequest struct{}

type ListReservationsResponse struct {
	Body []ReservationView
}

type ReservationIDRequest struct {
	ID uint `path:"id" doc:"Reservation ID"`
}

type UpdateReservationRequest struct {
	ID   uint `path:"id" doc:"Reservation ID"`
	Body struct {
		Status models.ReservationStatus `json:"status" doc:"CONFIRMED, CANCELED or COMPLETED"`
	}
}

func (h *ReservationHandler) HandleCreate(ctx context.Context, input *CreateReservationRequest) (*ReservationResponse, error) {
	// 1. Authorize
	actor, err := auth.Require(ctx)
	if err != nil {
		return nil, httpError(err)
	}

	// 2. Create
	in := reservation.CreateInput{
		ClassID:          input.Body.ClassID,
		ParticipantCount: input.Body.ParticipantCount,
		SpecialRequest:   input.Body.SpecialRequest,
		DiscountCode:     input.Body.DiscountCode,
		ProductIDs:       input.Body.ProductIDs,
	}
	for _, p := range input.Body.Participants {
		in.Participants = append(in.Participants, models.Participant{
			Name:            p.Name,
			Age:             p.Age,
			Height:          p.Height,
			Weight:          p.Weight,
			CanSwim:         p.CanSwim,
			SwimmingLevel:   models.SwimmingLevel(p.SwimmingLevel),
			HasSurfedBefore: p.HasSurfedBefore,
			Injuries:        p.Injuries,
			Comments:        p.Comments,
		})
	}

	r, err := h.reservations.Create(ctx, actor, in)
	if err != nil {
		return nil, httpError(err)
	}

	return &ReservationResponse{Body: reservationView(r)}, nil
}

func (h *ReservationHandler) HandleList(ctx context.Context, input *ListReservationsRequest) (*ListReservationsResponse, error) {
	actor, err := auth.Require(ctx)
	if err != nil {
		return nil, httpError(err)
	}

	list, err := h.reservations.List(ctx, actor)
	if err != nil {
		return nil, httpError(err)
	}

	res := &ListReservationsResponse{Body: make([]ReservationView, 0, len(list))}
	for i := range list {
		res.Body = append(res.Body, reservationView(&list[i]))
	}
	return res, nil
}

func (h *ReservationHandler) HandleGet(ctx context.Context, input *ReservationIDRequest) (*ReservationResponse, error) {
	actor, err := auth.Require(ctx)
	if err != nil {
		return nil, httpError(err)
	}

	r, err := h.reservations.Get(ctx, actor, input.ID)
	if err != nil {
		return nil, httpError(err)
	}
	return &ReservationResponse{Body: reservationView(r)}, nil
}

func (h *ReservationHandler) HandleUpdate(ctx context.Context, input *UpdateReservationRequest) (*ReservationResponse, error) {
	actor, err := auth.Require(ctx)
	if err != nil {
		return nil, httpError(err)
	}

	r, err := h.reservations.Transition(ctx, actor, input.ID, input.Body.Status)
	if err != nil {
		return nil, httpError(err)
	}
	return &ReservationResponse{Body: reservationView(r)}, nil
}
