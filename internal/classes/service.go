// Package classes guards the one class write this service owns: deletion.
package classes

import (
	"context"
	"fmt"
	"log"

	"github.com/clasedesurf/reservations/internal/apperr"
	"github.com/clasedesurf/reservations/internal/auth"
	"github.com/clasedesurf/reservations/internal/capacity"
	"github.com/clasedesurf/reservations/internal/events"
	"github.com/clasedesurf/reservations/internal/metrics"
	"github.com/clasedesurf/reservations/internal/models"
	"github.com/clasedesurf/reservations/internal/notifier"
	"gorm.io/gorm"
)

type Option func(*Service)

func WithPublisher(p events.Publisher) Option {
	return func(s *Service) { s.publisher = p }
}

func WithNotifier(n notifier.Notifier) Option {
	return func(s *Service) { s.notifier = n }
}

type Service struct {
	db        *gorm.DB
	ledger    *capacity.Ledger
	publisher events.Publisher
	notifier  notifier.Notifier
}

func NewService(db *gorm.DB, ledger *capacity.Ledger, opts ...Option) *Service {
	s := &Service{
		db:        db,
		ledger:    ledger,
		publisher: events.Nop{},
		notifier:  notifier.Nop{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Deletion reports what a successful Delete removed.
type Deletion struct {
	ClassID      uint
	Forced       bool
	Blocking     int64
	Reservations int64
	Payments     int64
}

// Availability is open to anyone, including anonymous callers.
func (s *Service) Availability(ctx context.Context, classID uint) (capacity.Availability, error) {
	return s.ledger.Availability(ctx, classID)
}

// Delete removes a class. Without force it refuses while any reservation is
// not CANCELED and reports how many block it. With force every reservation,
// add-on, history row and payment of the class goes in the same transaction
// as the class itself.
func (s *Service) Delete(ctx context.Context, actor auth.Identity, classID uint, force bool) (*Deletion, error) {
	var (
		class models.Class
		d     = Deletion{ClassID: classID, Forced: force}
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		locked, err := capacity.LockClass(ctx, tx, classID)
		if err != nil {
			return err
		}
		class = *locked

		if !actor.ManagesSchool(class.SchoolID) {
			return apperr.New(apperr.Forbidden, "you cannot delete classes of this school")
		}

		if err := tx.Model(&models.Reservation{}).
			Where("class_id = ? AND status <> ?", classID, models.ReservationCanceled).
			Count(&d.Blocking).Error; err != nil {
			return fmt.Errorf("count blocking reservations: %w", err)
		}
		if d.Blocking > 0 && !force {
			return apperr.Blocked(d.Blocking, fmt.Sprintf("class has %d active reservations", d.Blocking))
		}

		var ids []uint
		if err := tx.Model(&models.Reservation{}).Where("class_id = ?", classID).Pluck("id", &ids).Error; err != nil {
			return fmt.Errorf("list reservations of class %d: %w", classID, err)
		}

		if len(ids) > 0 {
			res := tx.Unscoped().Where("reservation_id IN ?", ids).Delete(&models.Payment{})
			if res.Error != nil {
				return fmt.Errorf("delete payments: %w", res.Error)
			}
			d.Payments = res.RowsAffected

			if err := tx.Unscoped().Where("reservation_id IN ?", ids).Delete(&models.ReservationAddon{}).Error; err != nil {
				return fmt.Errorf("delete reservation addons: %w", err)
			}
			if err := tx.Unscoped().Where("reservation_id IN ?", ids).Delete(&models.ReservationHistory{}).Error; err != nil {
				return fmt.Errorf("delete reservation history: %w", err)
			}

			res = tx.Unscoped().Where("id IN ?", ids).Delete(&models.Reservation{})
			if res.Error != nil {
				return fmt.Errorf("delete reservations: %w", res.Error)
			}
			d.Reservations = res.RowsAffected
		}

		if err := tx.Unscoped().Delete(&models.Class{}, classID).Error; err != nil {
			return fmt.Errorf("delete class %d: %w", classID, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.afterDelete(ctx, actor, class, d)
	return &d, nil
}

func (s *Service) afterDelete(ctx context.Context, actor auth.Identity, class models.Class, d Deletion) {
	metrics.RecordClassDeletion(d.Forced && d.Blocking > 0)

	if d.Blocking > 0 {
		log.Printf("Class %d force-deleted by user %d (%s): %d reservations, %d payments removed",
			class.ID, actor.UserID, actor.Role, d.Reservations, d.Payments)
	} else {
		log.Printf("Class %d deleted by user %d (%s)", class.ID, actor.UserID, actor.Role)
	}

	event := events.New(events.ClassDeleted, actor, map[string]any{
		"classId":      class.ID,
		"schoolId":     class.SchoolID,
		"forced":       d.Forced,
		"reservations": d.Reservations,
		"payments":     d.Payments,
	})
	if err := s.publisher.Publish(ctx, event); err != nil {
		log.Printf("Failed to publish %s for class %d: %v", event.Type, class.ID, err)
	}
	if err := s.notifier.NotifyClassDeleted(class, d.Reservations, actor.UserID); err != nil {
		log.Printf("Failed to notify deletion of class %d: %v", class.ID, err)
	}
}
