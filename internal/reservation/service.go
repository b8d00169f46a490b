// Package reservation admits, prices and moves reservations through their
// lifecycle: PENDING -> CONFIRMED -> COMPLETED, and PENDING or CONFIRMED ->
// CANCELED. CANCELED and COMPLETED are terminal.
package reservation

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/clasedesurf/reservations/internal/apperr"
	"github.com/clasedesurf/reservations/internal/auth"
	"github.com/clasedesurf/reservations/internal/capacity"
	"github.com/clasedesurf/reservations/internal/discount"
	"github.com/clasedesurf/reservations/internal/events"
	"github.com/clasedesurf/reservations/internal/metrics"
	"github.com/clasedesurf/reservations/internal/models"
	"github.com/clasedesurf/reservations/internal/notifier"
	"github.com/clasedesurf/reservations/internal/pricing"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type CreateInput struct {
	ClassID      uint
	Participants []models.Participant
	// ParticipantCount is optional; when set it must match len(Participants).
	ParticipantCount int
	SpecialRequest   string
	DiscountCode     string
	ProductIDs       []uint
}

type Option func(*Service)

func WithPublisher(p events.Publisher) Option {
	return func(s *Service) { s.publisher = p }
}

func WithNotifier(n notifier.Notifier) Option {
	return func(s *Service) { s.notifier = n }
}

// WithClock replaces time.Now when deciding whether a class has ended.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

type Service struct {
	db        *gorm.DB
	ledger    *capacity.Ledger
	discounts *discount.Service
	publisher events.Publisher
	notifier  notifier.Notifier
	validate  *validator.Validate
	now       func() time.Time
}

func NewService(db *gorm.DB, ledger *capacity.Ledger, discounts *discount.Service, opts ...Option) *Service {
	s := &Service{
		db:        db,
		ledger:    ledger,
		discounts: discounts,
		publisher: events.Nop{},
		notifier:  notifier.Nop{},
		validate:  newValidator(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create admits, prices and persists a reservation with its UNPAID payment.
// Seat admission, discount redemption and both inserts share one
// transaction: any failure leaves no reservation, no payment and no
// consumed discount use behind.
func (s *Service) Create(ctx context.Context, actor auth.Identity, in CreateInput) (res *models.Reservation, err error) {
	if actor.UserID == 0 {
		return nil, apperr.New(apperr.Unauthorized, "authentication required")
	}
	if err := s.validateInput(in); err != nil {
		return nil, err
	}

	start := time.Now()
	defer func() {
		outcome := "created"
		if err != nil {
			outcome = string(apperr.KindOf(err))
		}
		metrics.RecordReservationCreate(outcome, time.Since(start).Seconds())
	}()

	participants := participantsOf(in)
	n := len(participants)

	var (
		reservation models.Reservation
		class       models.Class
	)
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// 1. Load the class and admit the participants
		admission, err := s.ledger.TryReserveSeat(ctx, tx, in.ClassID, n)
		if err != nil {
			return err
		}
		class = admission.Class

		addons, err := loadAddons(ctx, tx, class.SchoolID, in.ProductIDs)
		if err != nil {
			return err
		}
		addonPrices := make([]decimal.Decimal, len(addons))
		for i, a := range addons {
			addonPrices[i] = a.Price
		}

		// 2. Validate and redeem the discount code
		var (
			disc   *pricing.Discount
			codeID *uint
		)
		if in.DiscountCode != "" {
			classPortion := class.Price.Mul(decimal.NewFromInt(int64(n)))
			result, err := s.discounts.Check(ctx, tx, in.DiscountCode, classPortion, &class.SchoolID)
			if err != nil {
				return err
			}
			if err := result.Err(); err != nil {
				return err
			}
			if err := s.discounts.Redeem(ctx, tx, result.DiscountCodeID); err != nil {
				return err
			}
			disc = &pricing.Discount{Percentage: result.Percentage}
			id := result.DiscountCodeID
			codeID = &id
		}

		// 3. Price with the stored class price
		breakdown, err := pricing.Compute(class.Price, n, addonPrices, disc)
		if err != nil {
			return err
		}

		// 4. Persist reservation, add-ons and payment together
		reservation = models.Reservation{
			ClassID:          class.ID,
			UserID:           actor.UserID,
			Status:           models.ReservationPending,
			ParticipantCount: n,
			Participants:     participants,
			SpecialRequest:   in.SpecialRequest,
			Addons:           addons,
			Payment: &models.Payment{
				Amount:         breakdown.FinalAmount,
				OriginalAmount: breakdown.OriginalAmount,
				DiscountAmount: breakdown.DiscountAmount,
				DiscountCodeID: codeID,
				Status:         models.PaymentUnpaid,
			},
		}
		if err := tx.Omit("Class").Create(&reservation).Error; err != nil {
			return fmt.Errorf("create reservation: %w", err)
		}

		return recordHistory(tx, reservation.ID, actor, "", models.ReservationPending)
	})
	if err != nil {
		return nil, err
	}

	reservation.Class = class
	s.afterCreate(ctx, actor, class, reservation)
	return &reservation, nil
}

func (s *Service) afterCreate(ctx context.Context, actor auth.Identity, class models.Class, r models.Reservation) {
	event := events.New(events.ReservationCreated, actor, map[string]any{
		"reservationId":    r.ID,
		"classId":          r.ClassID,
		"schoolId":         class.SchoolID,
		"participantCount": r.ParticipantCount,
		"amount":           r.Payment.Amount.StringFixed(2),
		"discountCodeId":   r.Payment.DiscountCodeID,
	})
	if err := s.publisher.Publish(ctx, event); err != nil {
		log.Printf("Failed to publish %s for reservation %d: %v", event.Type, r.ID, err)
	}
	if err := s.notifier.NotifyReservation(class, r); err != nil {
		log.Printf("Failed to notify school %d about reservation %d: %v", class.SchoolID, r.ID, err)
	}
}

func loadAddons(ctx context.Context, tx *gorm.DB, schoolID uint, productIDs []uint) ([]models.ReservationAddon, error) {
	if len(productIDs) == 0 {
		return nil, nil
	}

	var products []models.Product
	if err := tx.WithContext(ctx).Where("id IN ?", productIDs).Find(&products).Error; err != nil {
		return nil, fmt.Errorf("load products: %w", err)
	}
	if len(products) != len(productIDs) {
		return nil, apperr.New(apperr.Validation, "one or more products do not exist")
	}

	addons := make([]models.ReservationAddon, 0, len(products))
	for _, p := range products {
		if !p.IsActive {
			return nil, apperr.Newf(apperr.Validation, "product %q is not available", p.Name)
		}
		if p.SchoolID != schoolID {
			return nil, apperr.Newf(apperr.Validation, "product %q is not offered by this school", p.Name)
		}
		addons = append(addons, models.ReservationAddon{
			ProductID: p.ID,
			Name:      p.Name,
			Price:     p.Price,
		})
	}
	return addons, nil
}

func recordHistory(tx *gorm.DB, reservationID uint, actor auth.Identity, from, to models.ReservationStatus) error {
	history := models.ReservationHistory{
		ReservationID: reservationID,
		ActorID:       actor.UserID,
		ActorRole:     string(actor.Role),
		FromStatus:    from,
		ToStatus:      to,
	}
	if err := tx.Create(&history).Error; err != nil {
		return fmt.Errorf("record reservation history: %w", err)
	}
	return nil
}
