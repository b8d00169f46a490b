package discount

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/clasedesurf/reservations/internal/apperr"
	"github.com/clasedesurf/reservations/internal/auth"
	"github.com/clasedesurf/reservations/internal/models"
	"github.com/clasedesurf/reservations/internal/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func codeInput(code, percentage string) CodeInput {
	return CodeInput{
		Code:               code,
		DiscountPercentage: decimal.RequireFromString(percentage),
		ValidFrom:          time.Now(),
		ValidTo:            time.Now().Add(7 * 24 * time.Hour),
		IsActive:           true,
	}
}

func TestCreateCode(t *testing.T) {
	db := testutil.NewDB(t)
	school := testutil.CreateSchool(t, db, 10)
	svc := NewService(db)
	ctx := context.Background()

	admin := auth.Identity{UserID: 1, Role: auth.RoleAdmin}
	schoolAdmin := auth.Identity{UserID: 10, Role: auth.RoleSchoolAdmin, SchoolID: school.ID}
	student := auth.Identity{UserID: 20, Role: auth.RoleStudent}

	t.Run("admin creates global code, normalised", func(t *testing.T) {
		dc, err := svc.CreateCode(ctx, admin, codeInput(" summer_24 ", "30"))
		require.NoError(t, err)
		assert.Equal(t, "SUMMER_24", dc.Code)
		assert.Nil(t, dc.SchoolID)
		assert.Equal(t, 0, dc.UsedCount)
	})

	t.Run("duplicate code conflicts regardless of case", func(t *testing.T) {
		_, err := svc.CreateCode(ctx, admin, codeInput("Summer_24", "10"))
		assert.True(t, errors.Is(err, apperr.ErrStateConflict))
	})

	t.Run("school admin code is bound to own school", func(t *testing.T) {
		dc, err := svc.CreateCode(ctx, schoolAdmin, codeInput("OLAS10", "10"))
		require.NoError(t, err)
		require.NotNil(t, dc.SchoolID)
		assert.Equal(t, school.ID, *dc.SchoolID)
	})

	t.Run("school admin capped at fifty percent", func(t *testing.T) {
		_, err := svc.CreateCode(ctx, schoolAdmin, codeInput("OLAS60", "60"))
		assert.True(t, errors.Is(err, apperr.ErrForbidden))
	})

	t.Run("school admin cannot target another school", func(t *testing.T) {
		in := codeInput("OLASX", "10")
		otherID := school.ID + 1
		in.SchoolID = &otherID
		_, err := svc.CreateCode(ctx, schoolAdmin, in)
		assert.True(t, errors.Is(err, apperr.ErrForbidden))
	})

	t.Run("student forbidden", func(t *testing.T) {
		_, err := svc.CreateCode(ctx, student, codeInput("FREE", "100"))
		assert.True(t, errors.Is(err, apperr.ErrForbidden))
	})

	invalid := []struct {
		name string
		in   func() CodeInput
	}{
		{"too short", func() CodeInput { return codeInput("AB", "10") }},
		{"bad characters", func() CodeInput { return codeInput("NO SPACES", "10") }},
		{"percentage above hundred", func() CodeInput { return codeInput("BIG", "120") }},
		{"negative percentage", func() CodeInput { return codeInput("NEG", "-5") }},
		{"window reversed", func() CodeInput {
			in := codeInput("BACKWARDS", "10")
			in.ValidFrom, in.ValidTo = in.ValidTo, in.ValidFrom
			return in
		}},
		{"zero max uses", func() CodeInput {
			in := codeInput("ZEROUSES", "10")
			zero := 0
			in.MaxUses = &zero
			return in
		}},
	}
	for _, tt := range invalid {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.CreateCode(ctx, admin, tt.in())
			assert.True(t, errors.Is(err, apperr.ErrValidation), "got %v", err)
		})
	}
}

func TestUpdateCode(t *testing.T) {
	db := testutil.NewDB(t)
	school := testutil.CreateSchool(t, db, 10)
	svc := NewService(db)
	ctx := context.Background()
	admin := auth.Identity{UserID: 1, Role: auth.RoleAdmin}
	schoolAdmin := auth.Identity{UserID: 10, Role: auth.RoleSchoolAdmin, SchoolID: school.ID}

	dc := testutil.CreateCode(t, db, "WAVES", "10", 10, 4, &school.ID)
	global := testutil.CreateCode(t, db, "GLOBAL", "10", 0, 0, nil)

	t.Run("deactivate keeps usage", func(t *testing.T) {
		off := false
		updated, err := svc.UpdateCode(ctx, schoolAdmin, dc.ID, CodeUpdate{IsActive: &off})
		require.NoError(t, err)
		assert.False(t, updated.IsActive)

		var got models.DiscountCode
		require.NoError(t, db.First(&got, dc.ID).Error)
		assert.False(t, got.IsActive)
		assert.Equal(t, 4, got.UsedCount)
	})

	t.Run("max uses below used count", func(t *testing.T) {
		three := 3
		_, err := svc.UpdateCode(ctx, admin, dc.ID, CodeUpdate{MaxUses: &three})
		assert.True(t, errors.Is(err, apperr.ErrValidation))
	})

	t.Run("limit can be removed", func(t *testing.T) {
		updated, err := svc.UpdateCode(ctx, admin, dc.ID, CodeUpdate{Unlimited: true})
		require.NoError(t, err)
		assert.Nil(t, updated.MaxUses)

		var got models.DiscountCode
		require.NoError(t, db.First(&got, dc.ID).Error)
		assert.Nil(t, got.MaxUses)
		assert.False(t, got.Exhausted())
	})

	t.Run("unlimited with max uses", func(t *testing.T) {
		twenty := 20
		_, err := svc.UpdateCode(ctx, admin, dc.ID, CodeUpdate{MaxUses: &twenty, Unlimited: true})
		assert.True(t, errors.Is(err, apperr.ErrValidation))
	})

	t.Run("school admin cannot touch global codes", func(t *testing.T) {
		desc := "hijack"
		_, err := svc.UpdateCode(ctx, schoolAdmin, global.ID, CodeUpdate{Description: &desc})
		assert.True(t, errors.Is(err, apperr.ErrForbidden))
	})

	t.Run("missing code", func(t *testing.T) {
		desc := "x"
		_, err := svc.UpdateCode(ctx, admin, 9999, CodeUpdate{Description: &desc})
		assert.True(t, errors.Is(err, apperr.ErrNotFound))
	})
}

func TestDeleteAndListCodes(t *testing.T) {
	db := testutil.NewDB(t)
	school := testutil.CreateSchool(t, db, 10)
	svc := NewService(db)
	ctx := context.Background()
	admin := auth.Identity{UserID: 1, Role: auth.RoleAdmin}
	schoolAdmin := auth.Identity{UserID: 10, Role: auth.RoleSchoolAdmin, SchoolID: school.ID}

	fresh := testutil.CreateCode(t, db, "FRESH", "10", 0, 0, &school.ID)
	used := testutil.CreateCode(t, db, "USED", "10", 0, 1, &school.ID)
	testutil.CreateCode(t, db, "GLOBAL", "10", 0, 0, nil)

	codes, err := svc.ListCodes(ctx, schoolAdmin)
	require.NoError(t, err)
	assert.Len(t, codes, 2)

	codes, err = svc.ListCodes(ctx, admin)
	require.NoError(t, err)
	assert.Len(t, codes, 3)

	_, err = svc.ListCodes(ctx, auth.Identity{UserID: 5, Role: auth.RoleStudent})
	assert.True(t, errors.Is(err, apperr.ErrForbidden))

	err = svc.DeleteCode(ctx, schoolAdmin, used.ID)
	assert.True(t, errors.Is(err, apperr.ErrStateConflict))

	require.NoError(t, svc.DeleteCode(ctx, schoolAdmin, fresh.ID))
	_, err = svc.GetCode(ctx, admin, fresh.ID)
	assert.True(t, errors.Is(err, apperr.ErrNotFound))
}

func TestAdminEditsLockCodeRowOnPostgres(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer sqlDB.Close()

	db, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{})
	require.NoError(t, err)

	svc := NewService(db)
	ctx := context.Background()
	admin := auth.Identity{UserID: 1, Role: auth.RoleAdmin}
	columns := []string{"id", "code", "discount_percentage", "max_uses", "used_count"}

	// Both edits are refused after the locked read, so nothing is written.
	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT \* FROM "discount_codes" WHERE "discount_codes"."id" = \$1 .* FOR UPDATE`).
		WillReturnRows(sqlmock.NewRows(columns).AddRow(7, "WAVES", "10", 10, 5))
	mock.ExpectRollback()

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT \* FROM "discount_codes" WHERE "discount_codes"."id" = \$1 .* FOR UPDATE`).
		WillReturnRows(sqlmock.NewRows(columns).AddRow(7, "WAVES", "10", 10, 5))
	mock.ExpectRollback()

	four := 4
	_, err = svc.UpdateCode(ctx, admin, 7, CodeUpdate{MaxUses: &four})
	assert.True(t, errors.Is(err, apperr.ErrValidation), "got %v", err)

	err = svc.DeleteCode(ctx, admin, 7)
	assert.True(t, errors.Is(err, apperr.ErrStateConflict), "got %v", err)

	assert.NoError(t, mock.ExpectationsWereMet())
}
