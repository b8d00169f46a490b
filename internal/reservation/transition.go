package reservation

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/clasedesurf/reservations/internal/apperr"
	"github.com/clasedesurf/reservations/internal/auth"
	"github.com/clasedesurf/reservations/internal/events"
	"github.com/clasedesurf/reservations/internal/metrics"
	"github.com/clasedesurf/reservations/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var transitions = map[models.ReservationStatus][]models.ReservationStatus{
	models.ReservationPending:   {models.ReservationConfirmed, models.ReservationCanceled},
	models.ReservationConfirmed: {models.ReservationCanceled, models.ReservationCompleted},
}

// CanTransition reports whether the lifecycle allows moving from one status
// to another. It does not check who asks or whether the class has ended.
func CanTransition(from, to models.ReservationStatus) bool {
	for _, allowed := range transitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// Transition moves a reservation to status to on behalf of actor. Asking for
// the status the reservation already has is a no-op, so retried cancellations
// succeed. A confirmed reservation whose class has ended is completed first,
// so it can no longer be canceled.
func (s *Service) Transition(ctx context.Context, actor auth.Identity, id uint, to models.ReservationStatus) (*models.Reservation, error) {
	if !to.Valid() {
		return nil, apperr.Newf(apperr.Validation, "unknown reservation status %q", to)
	}

	var (
		reservation models.Reservation
		from        models.ReservationStatus
		completed   bool
		rejected    error
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&reservation, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperr.New(apperr.NotFound, "reservation not found")
			}
			return fmt.Errorf("load reservation: %w", err)
		}
		if err := tx.First(&reservation.Class, reservation.ClassID).Error; err != nil {
			return fmt.Errorf("load class of reservation %d: %w", id, err)
		}

		if err := authorizeTransition(actor, reservation, to); err != nil {
			return err
		}

		from = reservation.Status
		if from == models.ReservationConfirmed && !s.now().Before(reservation.Class.EndsAt()) {
			moved, err := completeTx(tx, reservation.ID)
			if err != nil {
				return err
			}
			from, completed = models.ReservationCompleted, moved
		}

		if from == to {
			return nil
		}
		if from.Terminal() {
			// Commit the completion above even though the request fails.
			rejected = apperr.Newf(apperr.StateConflict, "reservation is already %s", from)
			return nil
		}
		if !CanTransition(from, to) {
			return apperr.Newf(apperr.StateConflict, "cannot move reservation from %s to %s", from, to)
		}
		if to == models.ReservationCompleted && s.now().Before(reservation.Class.EndsAt()) {
			return apperr.New(apperr.StateConflict, "class has not finished yet")
		}

		if err := tx.Model(&reservation).Update("status", to).Error; err != nil {
			return fmt.Errorf("update reservation status: %w", err)
		}
		return recordHistory(tx, reservation.ID, actor, from, to)
	})
	if err != nil {
		return nil, err
	}

	if completed {
		s.publishCompleted(ctx, reservation.ID)
	}
	if rejected != nil {
		return nil, rejected
	}
	if from != to {
		s.publishStatusChange(ctx, actor, reservation, from, to)
	}
	return s.load(ctx, id)
}

func authorizeTransition(actor auth.Identity, r models.Reservation, to models.ReservationStatus) error {
	switch actor.Role {
	case auth.RoleAdmin:
		return nil
	case auth.RoleSchoolAdmin:
		if !actor.ManagesSchool(r.Class.SchoolID) {
			return apperr.New(apperr.Forbidden, "reservation belongs to another school")
		}
		return nil
	case auth.RoleStudent:
		if r.UserID != actor.UserID {
			return apperr.New(apperr.Forbidden, "you can only change your own reservations")
		}
		if to != models.ReservationCanceled {
			return apperr.New(apperr.Forbidden, "students can only cancel reservations")
		}
		return nil
	}
	return apperr.New(apperr.Forbidden, "unknown role")
}

// Get returns a reservation the actor may see. A confirmed reservation whose
// class has ended is completed on the way.
func (s *Service) Get(ctx context.Context, actor auth.Identity, id uint) (*models.Reservation, error) {
	r, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !canRead(actor, *r) {
		return nil, apperr.New(apperr.Forbidden, "you cannot see this reservation")
	}

	if r.Status == models.ReservationConfirmed && !s.now().Before(r.Class.EndsAt()) {
		if _, err := s.completeOne(ctx, r.ID); err != nil {
			return nil, err
		}
		return s.load(ctx, id)
	}
	return r, nil
}

func canRead(actor auth.Identity, r models.Reservation) bool {
	switch actor.Role {
	case auth.RoleAdmin:
		return true
	case auth.RoleSchoolAdmin:
		return actor.ManagesSchool(r.Class.SchoolID)
	case auth.RoleStudent:
		return r.UserID == actor.UserID
	}
	return false
}

// List returns the actor's own reservations for students, the school's for
// school admins and everything for admins, newest first.
func (s *Service) List(ctx context.Context, actor auth.Identity) ([]models.Reservation, error) {
	q := s.db.WithContext(ctx).
		Preload("Class").
		Preload("Payment").
		Preload("Addons").
		Order("reservations.created_at DESC")

	switch actor.Role {
	case auth.RoleAdmin:
	case auth.RoleSchoolAdmin:
		q = q.Select("reservations.*").
			Joins("JOIN classes ON classes.id = reservations.class_id").
			Where("classes.school_id = ?", actor.SchoolID)
	case auth.RoleStudent:
		q = q.Where("reservations.user_id = ?", actor.UserID)
	default:
		return nil, apperr.New(apperr.Forbidden, "unknown role")
	}

	var out []models.Reservation
	if err := q.Find(&out).Error; err != nil {
		return nil, fmt.Errorf("list reservations: %w", err)
	}
	return out, nil
}

// CompleteDue moves every CONFIRMED reservation whose class has ended to
// COMPLETED and returns how many were moved.
func (s *Service) CompleteDue(ctx context.Context) (int, error) {
	now := s.now()

	type dueRow struct {
		ID              uint
		Date            time.Time
		DurationMinutes int
	}
	var rows []dueRow
	err := s.db.WithContext(ctx).
		Table("reservations").
		Select("reservations.id, classes.date, classes.duration_minutes").
		Joins("JOIN classes ON classes.id = reservations.class_id").
		Where("reservations.status = ? AND reservations.deleted_at IS NULL AND classes.date <= ?",
			models.ReservationConfirmed, now).
		Scan(&rows).Error
	if err != nil {
		return 0, fmt.Errorf("find due reservations: %w", err)
	}

	completed := 0
	for _, row := range rows {
		if now.Before(row.Date.Add(time.Duration(row.DurationMinutes) * time.Minute)) {
			continue
		}
		ok, err := s.completeOne(ctx, row.ID)
		if err != nil {
			return completed, err
		}
		if ok {
			completed++
		}
	}

	metrics.RecordCompleted(completed)
	return completed, nil
}

// completeOne flips a single CONFIRMED reservation to COMPLETED. It reports
// false when the reservation changed status in the meantime.
func (s *Service) completeOne(ctx context.Context, id uint) (bool, error) {
	var moved bool
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		moved, err = completeTx(tx, id)
		return err
	})
	if err != nil || !moved {
		return false, err
	}
	s.publishCompleted(ctx, id)
	return true, nil
}

func completeTx(tx *gorm.DB, id uint) (bool, error) {
	res := tx.Model(&models.Reservation{}).
		Where("id = ? AND status = ?", id, models.ReservationConfirmed).
		Update("status", models.ReservationCompleted)
	if res.Error != nil {
		return false, fmt.Errorf("complete reservation %d: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return false, nil
	}
	return true, recordHistory(tx, id, auth.System, models.ReservationConfirmed, models.ReservationCompleted)
}

func (s *Service) publishCompleted(ctx context.Context, id uint) {
	event := events.New(events.ReservationStatusChanged, auth.System, map[string]any{
		"reservationId": id,
		"from":          models.ReservationConfirmed,
		"to":            models.ReservationCompleted,
	})
	if err := s.publisher.Publish(ctx, event); err != nil {
		log.Printf("Failed to publish %s for reservation %d: %v", event.Type, id, err)
	}
}

func (s *Service) publishStatusChange(ctx context.Context, actor auth.Identity, r models.Reservation, from, to models.ReservationStatus) {
	event := events.New(events.ReservationStatusChanged, actor, map[string]any{
		"reservationId": r.ID,
		"classId":       r.ClassID,
		"from":          from,
		"to":            to,
	})
	if err := s.publisher.Publish(ctx, event); err != nil {
		log.Printf("Failed to publish %s for reservation %d: %v", event.Type, r.ID, err)
	}
}

func (s *Service) load(ctx context.Context, id uint) (*models.Reservation, error) {
	var r models.Reservation
	err := s.db.WithContext(ctx).
		Preload("Class").
		Preload("Payment").
		Preload("Addons").
		First(&r, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.New(apperr.NotFound, "reservation not found")
		}
		return nil, fmt.Errorf("load reservation: %w", err)
	}
	return &r, nil
}
