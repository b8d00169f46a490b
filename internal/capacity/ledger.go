// Package capacity admits participants into a class without overselling it.
//
// There is no seat counter: the active reservations stored for a class are the
// count. Admission locks the class row and sums the participants of its
// PENDING, CONFIRMED and COMPLETED reservations inside the caller's
// transaction, so two requests racing for the last seat are serialised on the
// row lock and the second one sees the first one's reservation.
package capacity

import (
	"context"
	"errors"
	"fmt"

	"github.com/clasedesurf/reservations/internal/apperr"
	"github.com/clasedesurf/reservations/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Admission struct {
	Class models.Class
	// Active is the number of participants already holding seats.
	Active int
	// Remaining is what is left after this admission.
	Remaining int
}

type Availability struct {
	ClassID   uint `json:"classId"`
	Capacity  int  `json:"capacity"`
	Reserved  int  `json:"reserved"`
	Remaining int  `json:"remaining"`
}

type Ledger struct {
	db *gorm.DB
}

func NewLedger(db *gorm.DB) *Ledger {
	return &Ledger{db: db}
}

// TryReserveSeat checks that participants more people fit into the class.
// It must run inside the transaction that inserts the reservation; the class
// row stays locked until that transaction ends.
func (l *Ledger) TryReserveSeat(ctx context.Context, tx *gorm.DB, classID uint, participants int) (Admission, error) {
	if participants < 1 {
		return Admission{}, apperr.New(apperr.Validation, "at least one participant is required")
	}

	class, err := LockClass(ctx, tx, classID)
	if err != nil {
		return Admission{}, err
	}

	active, err := activeParticipants(ctx, tx, classID)
	if err != nil {
		return Admission{}, err
	}

	if active+participants > class.Capacity {
		left := class.Capacity - active
		if left < 0 {
			left = 0
		}
		return Admission{}, apperr.Newf(apperr.CapacityExceeded,
			"class has %d spots left, %d requested", left, participants)
	}

	return Admission{
		Class:     *class,
		Active:    active,
		Remaining: class.Capacity - active - participants,
	}, nil
}

// Availability is a lock free snapshot, good for display only.
func (l *Ledger) Availability(ctx context.Context, classID uint) (Availability, error) {
	var class models.Class
	if err := l.db.WithContext(ctx).First(&class, classID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Availability{}, apperr.New(apperr.NotFound, "class not found")
		}
		return Availability{}, fmt.Errorf("load class: %w", err)
	}

	active, err := activeParticipants(ctx, l.db, classID)
	if err != nil {
		return Availability{}, err
	}

	remaining := class.Capacity - active
	if remaining < 0 {
		remaining = 0
	}
	return Availability{
		ClassID:   class.ID,
		Capacity:  class.Capacity,
		Reserved:  active,
		Remaining: remaining,
	}, nil
}

// LockClass loads a class with SELECT ... FOR UPDATE. SQLite ignores the
// locking clause and relies on its single connection instead.
func LockClass(ctx context.Context, tx *gorm.DB, classID uint) (*models.Class, error) {
	var class models.Class
	err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&class, classID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.New(apperr.NotFound, "class not found")
		}
		return nil, fmt.Errorf("lock class %d: %w", classID, err)
	}
	return &class, nil
}

func activeParticipants(ctx context.Context, db *gorm.DB, classID uint) (int, error) {
	var total int64
	err := db.WithContext(ctx).
		Model(&models.Reservation{}).
		Select("COALESCE(SUM(participant_count), 0)").
		Where("class_id = ? AND status IN ?", classID, models.ActiveReservationStatuses).
		Scan(&total).Error
	if err != nil {
		return 0, fmt.Errorf("count active participants: %w", err)
	}
	return int(total), nil
}
