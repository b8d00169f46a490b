// Package payment reconciles the payment attached to each reservation.
//
// UNPAID -> PENDING when a voucher is submitted (re-submission allowed),
// UNPAID or PENDING -> PAID when staff confirm the money arrived, and
// PAID -> REFUNDED. The amounts fixed when the reservation was created are
// never written here.
package payment

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
	"github.com/clasedesurf/reservations/internal/notifier"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	maxMethodLen    = 50
	maxReferenceLen = 100
	maxNotesLen     = 500
	maxImageRefLen  = 2048
)

type Option func(*Service)

func WithPublisher(p events.Publisher) Option {
	return func(s *Service) { s.publisher = p }
}

func WithNotifier(n notifier.Notifier) Option {
	return func(s *Service) { s.notifier = n }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

type Service struct {
	db        *gorm.DB
	publisher events.Publisher
	notifier  notifier.Notifier
	now       func() time.Time
}

func NewService(db *gorm.DB, opts ...Option) *Service {
	s := &Service{
		db:        db,
		publisher: events.Nop{},
		notifier:  notifier.Nop{},
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Apply moves a payment to status to, routing to the matching operation.
func (s *Service) Apply(ctx context.Context, actor auth.Identity, id uint, to models.PaymentStatus, details models.PaymentDetails) (*models.Payment, error) {
	switch to {
	case models.PaymentPending:
		return s.SubmitVoucher(ctx, actor, id, details)
	case models.PaymentPaid:
		return s.MarkPaid(ctx, actor, id, details)
	case models.PaymentRefunded:
		return s.Refund(ctx, actor, id)
	case models.PaymentUnpaid:
		return nil, apperr.New(apperr.StateConflict, "a payment cannot go back to UNPAID")
	}
	return nil, apperr.Newf(apperr.Validation, "unknown payment status %q", to)
}

// SubmitVoucher records a transfer reference or voucher image and marks the
// payment as awaiting verification.
func (s *Service) SubmitVoucher(ctx context.Context, actor auth.Identity, id uint, details models.PaymentDetails) (*models.Payment, error) {
	if err := validateDetails(details); err != nil {
		return nil, err
	}
	if details.TransactionID == "" && details.VoucherImage == "" {
		return nil, apperr.New(apperr.Validation, "a transaction reference or voucher image is required")
	}

	return s.change(ctx, actor, id, models.PaymentPending, func(st *state) (map[string]any, error) {
		if !st.ownerOrStaff(actor) {
			return nil, apperr.New(apperr.Forbidden, "you cannot submit a voucher for this payment")
		}
		if st.reservation.Status == models.ReservationCanceled {
			return nil, apperr.New(apperr.StateConflict, "reservation is canceled")
		}
		switch st.payment.Status {
		case models.PaymentUnpaid, models.PaymentPending:
		default:
			return nil, apperr.Newf(apperr.StateConflict, "cannot submit a voucher for a %s payment", st.payment.Status)
		}
		changes := detailChanges(details)
		changes["status"] = models.PaymentPending
		return changes, nil
	})
}

// MarkPaid confirms the money arrived. Staff may skip the voucher step for
// cash payments.
func (s *Service) MarkPaid(ctx context.Context, actor auth.Identity, id uint, details models.PaymentDetails) (*models.Payment, error) {
	if err := validateDetails(details); err != nil {
		return nil, err
	}

	return s.change(ctx, actor, id, models.PaymentPaid, func(st *state) (map[string]any, error) {
		if !actor.ManagesSchool(st.class.SchoolID) {
			return nil, apperr.New(apperr.Forbidden, "only school staff can mark payments as paid")
		}
		switch st.payment.Status {
		case models.PaymentPaid:
			return nil, nil
		case models.PaymentUnpaid, models.PaymentPending:
		default:
			return nil, apperr.Newf(apperr.StateConflict, "cannot mark a %s payment as paid", st.payment.Status)
		}
		if st.reservation.Status == models.ReservationCanceled {
			return nil, apperr.New(apperr.StateConflict, "reservation is canceled")
		}
		changes := detailChanges(details)
		changes["status"] = models.PaymentPaid
		changes["paid_at"] = s.now()
		return changes, nil
	})
}

// Refund marks a paid payment as returned. It does not touch the reservation.
func (s *Service) Refund(ctx context.Context, actor auth.Identity, id uint) (*models.Payment, error) {
	return s.change(ctx, actor, id, models.PaymentRefunded, func(st *state) (map[string]any, error) {
		if !actor.ManagesSchool(st.class.SchoolID) {
			return nil, apperr.New(apperr.Forbidden, "only school staff can refund payments")
		}
		switch st.payment.Status {
		case models.PaymentRefunded:
			return nil, nil
		case models.PaymentPaid:
			return map[string]any{"status": models.PaymentRefunded}, nil
		}
		return nil, apperr.Newf(apperr.StateConflict, "only PAID payments can be refunded, this one is %s", st.payment.Status)
	})
}

func (s *Service) Get(ctx context.Context, actor auth.Identity, id uint) (*models.Payment, error) {
	st, err := loadState(s.db.WithContext(ctx), id, false)
	if err != nil {
		return nil, err
	}
	if !st.ownerOrStaff(actor) {
		return nil, apperr.New(apperr.Forbidden, "you cannot see this payment")
	}
	return &st.payment, nil
}

type state struct {
	payment     models.Payment
	reservation models.Reservation
	class       models.Class
}

func (st *state) ownerOrStaff(actor auth.Identity) bool {
	if actor.Role == auth.RoleStudent {
		return st.reservation.UserID == actor.UserID
	}
	return actor.ManagesSchool(st.class.SchoolID)
}

// change runs decide against the locked payment and applies the columns it
// returns. A nil map means nothing to do.
func (s *Service) change(ctx context.Context, actor auth.Identity, id uint, to models.PaymentStatus, decide func(*state) (map[string]any, error)) (*models.Payment, error) {
	var (
		st      *state
		from    models.PaymentStatus
		changed bool
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		st, err = loadState(tx, id, true)
		if err != nil {
			return err
		}
		from = st.payment.Status

		changes, err := decide(st)
		if err != nil {
			return err
		}
		if changes == nil {
			return nil
		}
		if err := tx.Model(&st.payment).Updates(changes).Error; err != nil {
			return fmt.Errorf("update payment %d: %w", id, err)
		}
		changed = true
		return nil
	})
	if err != nil {
		return nil, err
	}

	var p models.Payment
	if err := s.db.WithContext(ctx).First(&p, id).Error; err != nil {
		return nil, fmt.Errorf("reload payment %d: %w", id, err)
	}

	if changed {
		s.afterChange(ctx, actor, st.reservation, p, from, to)
	}
	return &p, nil
}

func (s *Service) afterChange(ctx context.Context, actor auth.Identity, r models.Reservation, p models.Payment, from, to models.PaymentStatus) {
	metrics.RecordPaymentTransition(string(to))

	event := events.New(events.PaymentStatusChanged, actor, map[string]any{
		"paymentId":     p.ID,
		"reservationId": r.ID,
		"from":          from,
		"to":            to,
		"amount":        p.Amount.StringFixed(2),
	})
	if err := s.publisher.Publish(ctx, event); err != nil {
		log.Printf("Failed to publish %s for payment %d: %v", event.Type, p.ID, err)
	}

	if to == models.PaymentPending {
		if err := s.notifier.NotifyVoucher(r, p); err != nil {
			log.Printf("Failed to notify voucher for payment %d: %v", p.ID, err)
		}
	}
}

func loadState(db *gorm.DB, id uint, lock bool) (*state, error) {
	var st state
	q := db
	if lock {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	if err := q.First(&st.payment, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.New(apperr.NotFound, "payment not found")
		}
		return nil, fmt.Errorf("load payment: %w", err)
	}
	if err := db.First(&st.reservation, st.payment.ReservationID).Error; err != nil {
		return nil, fmt.Errorf("load reservation of payment %d: %w", id, err)
	}
	if err := db.First(&st.class, st.reservation.ClassID).Error; err != nil {
		return nil, fmt.Errorf("load class of payment %d: %w", id, err)
	}
	return &st, nil
}

func validateDetails(d models.PaymentDetails) error {
	switch {
	case len(d.PaymentMethod) > maxMethodLen:
		return apperr.Newf(apperr.Validation, "paymentMethod must be at most %d characters", maxMethodLen)
	case len(d.TransactionID) > maxReferenceLen:
		return apperr.Newf(apperr.Validation, "transactionId must be at most %d characters", maxReferenceLen)
	case len(d.VoucherNotes) > maxNotesLen:
		return apperr.Newf(apperr.Validation, "voucherNotes must be at most %d characters", maxNotesLen)
	case len(d.VoucherImage) > maxImageRefLen:
		return apperr.Newf(apperr.Validation, "voucherImage must be at most %d characters", maxImageRefLen)
	}
	return nil
}

// detailChanges only includes the fields that were provided, so a status
// change never wipes an earlier voucher.
func detailChanges(d models.PaymentDetails) map[string]any {
	changes := map[string]any{}
	if d.PaymentMethod != "" {
		changes["payment_method"] = d.PaymentMethod
	}
	if d.TransactionID != "" {
		changes["transaction_id"] = d.TransactionID
	}
	if d.VoucherImage != "" {
		changes["voucher_image"] = d.VoucherImage
	}
	if d.VoucherNotes != "" {
		changes["voucher_notes"] = d.VoucherNotes
	}
	return changes
}
