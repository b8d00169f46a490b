package reservation

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/clasedesurf/reservations/internal/apperr"
	"github.com/clasedesurf/reservations/internal/models"
	"github.com/go-playground/validator/v10"
)

const (
	MaxParticipants      = 10
	MaxSpecialRequestLen = 500
)

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// validateInput rejects malformed requests before anything touches storage.
func (s *Service) validateInput(in CreateInput) error {
	if in.ClassID == 0 {
		return apperr.New(apperr.Validation, "classId is required")
	}

	n := len(in.Participants)
	if n == 0 {
		return apperr.New(apperr.Validation, "at least one participant is required")
	}
	if n > MaxParticipants {
		return apperr.Newf(apperr.Validation, "at most %d participants are allowed", MaxParticipants)
	}
	if in.ParticipantCount != 0 && in.ParticipantCount != n {
		return apperr.Newf(apperr.Validation,
			"participantCount is %d but %d participants were listed", in.ParticipantCount, n)
	}
	if len(in.SpecialRequest) > MaxSpecialRequestLen {
		return apperr.Newf(apperr.Validation, "specialRequest must be at most %d characters", MaxSpecialRequestLen)
	}

	for i, p := range in.Participants {
		if err := s.validate.Struct(p); err != nil {
			return participantError(i, err)
		}
	}

	seen := make(map[uint]bool, len(in.ProductIDs))
	for _, id := range in.ProductIDs {
		if seen[id] {
			return apperr.Newf(apperr.Validation, "product %d is listed more than once", id)
		}
		seen[id] = true
	}
	return nil
}

func participantError(index int, err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return apperr.Wrap(apperr.Validation, fmt.Sprintf("participant %d is invalid", index+1), err)
	}

	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fieldMessage(fe))
	}
	return apperr.Newf(apperr.Validation, "participant %d: %s", index+1, strings.Join(msgs, "; "))
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", fe.Field())
	case "min", "gte":
		return fmt.Sprintf("%s must be at least %s", fe.Field(), fe.Param())
	case "max", "lte":
		return fmt.Sprintf("%s must be at most %s", fe.Field(), fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of %s", fe.Field(), fe.Param())
	}
	return fmt.Sprintf("%s is invalid", fe.Field())
}

// participantsOf returns a copy of the requested participants.
func participantsOf(in CreateInput) []models.Participant {
	out := make([]models.Participant, len(in.Participants))
	copy(out, in.Participants)
	return out
}
