package handlers

import (
	"context"

	"github.com/clasedesurf/reservations/internal/auth"
	"github.com/clasedesurf/reservations/internal/capacity"
	"github.com/clasedesurf/reservations/internal/classes"
)

type ClassHandler struct {
	classes *classes.Service
}

func NewClassHandler(classes *classes.Service) *ClassHandler {
	return &ClassHandler{classes: classes}
}

type ClassIDRequest struct {
	ID uint `path:"id" doc:"Class ID"`
}

type AvailabilityResponse struct {
	Body capacity.Availability
}

type DeleteClassRequest struct {
	ID    uint `path:"id" doc:"Class ID"`
	Force bool `query:"force" doc:"Also delete every reservation and payment of the class"`
}

func (h *ClassHandler) HandleAvailability(ctx context.Context, input *ClassIDRequest) (*AvailabilityResponse, error) {
	a, err := h.classes.Availability(ctx, input.ID)
	if err != nil {
		return nil, httpError(err)
	}
	return &AvailabilityResponse{Body: a}, nil
}

// HandleDelete answers 409 with reservationsCount and canForceDelete while
// active reservations exist and force is not set.
func (h *ClassHandler) HandleDelete(ctx context.Context, input *DeleteClassRequest) (*struct{}, error) {
	actor, err := auth.Require(ctx, auth.RoleAdmin, auth.RoleSchoolAdmin)
	if err != nil {
		return nil, httpError(err)
	}

	if _, err := h.classes.Delete(ctx, actor, input.ID, input.Force); err != nil {
		return nil, httpError(err)
	}
	return nil, nil
}
