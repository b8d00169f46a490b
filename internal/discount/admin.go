package discount

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/clasedesurf/reservations/internal/apperr"
	"github.com/clasedesurf/reservations/internal/auth"
	"github.com/clasedesurf/reservations/internal/models"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	codePattern = regexp.MustCompile(`^[A-Z0-9_-]{3,50}$`)

	maxPercentage            = decimal.NewFromInt(100)
	maxSchoolAdminPercentage = decimal.NewFromInt(50)
)

type CodeInput struct {
	Code               string
	Description        string
	DiscountPercentage decimal.Decimal
	ValidFrom          time.Time
	ValidTo            time.Time
	IsActive           bool
	MaxUses            *int
	SchoolID           *uint
}

// CodeUpdate changes only the non-nil fields. Unlimited removes the usage
// limit and cannot be combined with MaxUses. The usage counter is never
// writable.
type CodeUpdate struct {
	Description        *string
	DiscountPercentage *decimal.Decimal
	ValidFrom          *time.Time
	ValidTo            *time.Time
	IsActive           *bool
	MaxUses            *int
	Unlimited          bool
}

func (s *Service) CreateCode(ctx context.Context, actor auth.Identity, in CodeInput) (*models.DiscountCode, error) {
	if !actor.IsStaff() {
		return nil, apperr.New(apperr.Forbidden, "only staff can create discount codes")
	}

	dc := models.DiscountCode{
		Code:               Normalize(in.Code),
		Description:        in.Description,
		DiscountPercentage: in.DiscountPercentage,
		ValidFrom:          in.ValidFrom,
		ValidTo:            in.ValidTo,
		IsActive:           in.IsActive,
		MaxUses:            in.MaxUses,
		SchoolID:           in.SchoolID,
	}

	if actor.Role == auth.RoleSchoolAdmin {
		if actor.SchoolID == 0 {
			return nil, apperr.New(apperr.Forbidden, "school admin has no school")
		}
		if in.SchoolID != nil && *in.SchoolID != actor.SchoolID {
			return nil, apperr.New(apperr.Forbidden, "cannot create codes for another school")
		}
		schoolID := actor.SchoolID
		dc.SchoolID = &schoolID
	}

	if err := validateCode(actor, &dc); err != nil {
		return nil, err
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Unscoped().Model(&models.DiscountCode{}).Where("code = ?", dc.Code).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return apperr.Newf(apperr.StateConflict, "discount code %s already exists", dc.Code)
		}
		return tx.Create(&dc).Error
	})
	if err != nil {
		return nil, err
	}
	return &dc, nil
}

func (s *Service) UpdateCode(ctx context.Context, actor auth.Identity, id uint, upd CodeUpdate) (*models.DiscountCode, error) {
	var dc models.DiscountCode
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := loadForActor(forUpdate(tx), actor, id, &dc); err != nil {
			return err
		}

		if upd.Description != nil {
			dc.Description = *upd.Description
		}
		if upd.DiscountPercentage != nil {
			dc.DiscountPercentage = *upd.DiscountPercentage
		}
		if upd.ValidFrom != nil {
			dc.ValidFrom = *upd.ValidFrom
		}
		if upd.ValidTo != nil {
			dc.ValidTo = *upd.ValidTo
		}
		if upd.IsActive != nil {
			dc.IsActive = *upd.IsActive
		}
		if upd.Unlimited {
			if upd.MaxUses != nil {
				return apperr.New(apperr.Validation, "maxUses and unlimitedUses cannot be combined")
			}
			dc.MaxUses = nil
		}
		if upd.MaxUses != nil {
			if *upd.MaxUses < dc.UsedCount {
				return apperr.Newf(apperr.Validation, "maxUses cannot be lower than the %d uses already redeemed", dc.UsedCount)
			}
			dc.MaxUses = upd.MaxUses
		}

		if err := validateCode(actor, &dc); err != nil {
			return err
		}

		// used_count is left out so a concurrent redemption is never overwritten.
		return tx.Model(&dc).
			Select("description", "discount_percentage", "valid_from", "valid_to", "is_active", "max_uses").
			Updates(&dc).Error
	})
	if err != nil {
		return nil, err
	}
	return &dc, nil
}

// DeleteCode removes a code that was never redeemed. Redeemed codes are
// referenced by payments and can only be deactivated.
func (s *Service) DeleteCode(ctx context.Context, actor auth.Identity, id uint) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var dc models.DiscountCode
		if err := loadForActor(forUpdate(tx), actor, id, &dc); err != nil {
			return err
		}
		if dc.UsedCount > 0 {
			return apperr.New(apperr.StateConflict, "discount code has been redeemed, deactivate it instead")
		}
		return tx.Delete(&dc).Error
	})
}

func (s *Service) GetCode(ctx context.Context, actor auth.Identity, id uint) (*models.DiscountCode, error) {
	var dc models.DiscountCode
	if err := loadForActor(s.db.WithContext(ctx), actor, id, &dc); err != nil {
		return nil, err
	}
	return &dc, nil
}

// ListCodes returns every code for admins and the school's own codes for
// school admins.
func (s *Service) ListCodes(ctx context.Context, actor auth.Identity) ([]models.DiscountCode, error) {
	q := s.db.WithContext(ctx).Order("created_at DESC")
	switch actor.Role {
	case auth.RoleAdmin:
	case auth.RoleSchoolAdmin:
		q = q.Where("school_id = ?", actor.SchoolID)
	default:
		return nil, apperr.New(apperr.Forbidden, "only staff can list discount codes")
	}

	var codes []models.DiscountCode
	if err := q.Find(&codes).Error; err != nil {
		return nil, fmt.Errorf("list discount codes: %w", err)
	}
	return codes, nil
}

// forUpdate locks the code row so Redeem waits until the edit commits.
func forUpdate(tx *gorm.DB) *gorm.DB {
	return tx.Clauses(clause.Locking{Strength: "UPDATE"})
}

func loadForActor(db *gorm.DB, actor auth.Identity, id uint, dc *models.DiscountCode) error {
	if !actor.IsStaff() {
		return apperr.New(apperr.Forbidden, "only staff can manage discount codes")
	}
	if err := db.First(dc, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperr.New(apperr.NotFound, "discount code not found")
		}
		return fmt.Errorf("load discount code: %w", err)
	}
	if actor.Role == auth.RoleSchoolAdmin && (dc.SchoolID == nil || *dc.SchoolID != actor.SchoolID) {
		return apperr.New(apperr.Forbidden, "discount code belongs to another school")
	}
	return nil
}

func validateCode(actor auth.Identity, dc *models.DiscountCode) error {
	if !codePattern.MatchString(dc.Code) {
		return apperr.New(apperr.Validation, "code must be 3 to 50 characters of A-Z, 0-9, underscore or dash")
	}
	if dc.DiscountPercentage.IsNegative() || dc.DiscountPercentage.GreaterThan(maxPercentage) {
		return apperr.New(apperr.Validation, "discountPercentage must be between 0 and 100")
	}
	if actor.Role == auth.RoleSchoolAdmin && dc.DiscountPercentage.GreaterThan(maxSchoolAdminPercentage) {
		return apperr.New(apperr.Forbidden, "school admins cannot create discounts above 50%")
	}
	if !dc.ValidFrom.Before(dc.ValidTo) {
		return apperr.New(apperr.Validation, "validFrom must be before validTo")
	}
	if dc.MaxUses != nil && *dc.MaxUses < 1 {
		return apperr.New(apperr.Validation, "maxUses must be at least 1")
	}
	return nil
}
