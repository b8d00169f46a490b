package classes

import (
	"context"
	"errors"
	"testing"

	"github.com/clasedesurf/reservations/internal/apperr"
	"github.com/clasedesurf/reservations/internal/auth"
	"github.com/clasedesurf/reservations/internal/capacity"
	"github.com/clasedesurf/reservations/internal/discount"
	"github.com/clasedesurf/reservations/internal/events"
	"github.com/clasedesurf/reservations/internal/models"
	"github.com/clasedesurf/reservations/internal/reservation"
	"github.com/clasedesurf/reservations/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type fixture struct {
	db           *gorm.DB
	svc          *Service
	reservations *reservation.Service
	recorder     *events.Recorder
	class        models.Class
	staff        auth.Identity
}

func newFixture(t *testing.T, capacityLimit int) fixture {
	t.Helper()
	db := testutil.NewDB(t)
	school := testutil.CreateSchool(t, db, 100)
	class := testutil.CreateClass(t, db, school.ID, capacityLimit, "40")
	ledger := capacity.NewLedger(db)
	recorder := &events.Recorder{}

	return fixture{
		db:           db,
		svc:          NewService(db, ledger, WithPublisher(recorder)),
		reservations: reservation.NewService(db, ledger, discount.NewService(db)),
		recorder:     recorder,
		class:        class,
		staff:        auth.Identity{UserID: 100, Role: auth.RoleSchoolAdmin, SchoolID: school.ID},
	}
}

func (f fixture) reserve(t *testing.T, n int) []*models.Reservation {
	t.Helper()
	out := make([]*models.Reservation, n)
	for i := range out {
		r, err := f.reservations.Create(context.Background(), auth.Identity{UserID: uint(i + 1), Role: auth.RoleStudent}, reservation.CreateInput{
			ClassID:      f.class.ID,
			Participants: testutil.Participants(1),
		})
		require.NoError(t, err)
		out[i] = r
	}
	return out
}

func countRows(t *testing.T, db *gorm.DB, model any, where string, args ...any) int64 {
	t.Helper()
	var n int64
	require.NoError(t, db.Unscoped().Model(model).Where(where, args...).Count(&n).Error)
	return n
}

func TestDeleteWithoutForceIsBlocked(t *testing.T) {
	f := newFixture(t, 10)
	f.reserve(t, 5)

	_, err := f.svc.Delete(context.Background(), f.staff, f.class.ID, false)
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperr.ErrCascadeBlocked))

	var appErr *apperr.Error
	require.True(t, errors.As(err, &appErr))
	assert.EqualValues(t, 5, appErr.Count)

	assert.EqualValues(t, 1, countRows(t, f.db, &models.Class{}, "id = ?", f.class.ID))
	assert.EqualValues(t, 5, countRows(t, f.db, &models.Reservation{}, "class_id = ?", f.class.ID))
	assert.Empty(t, f.recorder.OfType(events.ClassDeleted))
}

func TestForcedDeleteCascades(t *testing.T) {
	f := newFixture(t, 10)
	reserved := f.reserve(t, 5)
	ids := make([]uint, len(reserved))
	for i, r := range reserved {
		ids[i] = r.ID
	}

	d, err := f.svc.Delete(context.Background(), f.staff, f.class.ID, true)
	require.NoError(t, err)
	assert.EqualValues(t, 5, d.Blocking)
	assert.EqualValues(t, 5, d.Reservations)
	assert.EqualValues(t, 5, d.Payments)

	assert.Zero(t, countRows(t, f.db, &models.Class{}, "id = ?", f.class.ID))
	assert.Zero(t, countRows(t, f.db, &models.Reservation{}, "class_id = ?", f.class.ID))
	assert.Zero(t, countRows(t, f.db, &models.Payment{}, "reservation_id IN ?", ids))
	assert.Zero(t, countRows(t, f.db, &models.ReservationHistory{}, "reservation_id IN ?", ids))

	deleted := f.recorder.OfType(events.ClassDeleted)
	require.Len(t, deleted, 1)
	assert.Equal(t, uint(100), deleted[0].ActorID)
}

func TestDeleteWithOnlyCanceledReservations(t *testing.T) {
	f := newFixture(t, 10)
	reserved := f.reserve(t, 2)
	for _, r := range reserved {
		_, err := f.reservations.Transition(context.Background(), f.staff, r.ID, models.ReservationCanceled)
		require.NoError(t, err)
	}

	d, err := f.svc.Delete(context.Background(), f.staff, f.class.ID, false)
	require.NoError(t, err)
	assert.Zero(t, d.Blocking)
	assert.EqualValues(t, 2, d.Reservations)
	assert.Zero(t, countRows(t, f.db, &models.Class{}, "id = ?", f.class.ID))
}

func TestDeleteAuthorization(t *testing.T) {
	f := newFixture(t, 10)
	ctx := context.Background()

	tests := []struct {
		name  string
		actor auth.Identity
	}{
		{"student", auth.Identity{UserID: 1, Role: auth.RoleStudent}},
		{"other school", auth.Identity{UserID: 200, Role: auth.RoleSchoolAdmin, SchoolID: 4242}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Delete(ctx, tt.actor, f.class.ID, true)
			assert.True(t, errors.Is(err, apperr.ErrForbidden), "got %v", err)
		})
	}

	_, err := f.svc.Delete(ctx, auth.System, f.class.ID, false)
	require.NoError(t, err)

	_, err = f.svc.Delete(ctx, auth.System, f.class.ID, false)
	assert.True(t, errors.Is(err, apperr.ErrNotFound))
}

func TestAvailability(t *testing.T) {
	f := newFixture(t, 3)
	f.reserve(t, 2)

	a, err := f.svc.Availability(context.Background(), f.class.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, a.Capacity)
	assert.Equal(t, 2, a.Reserved)
	assert.Equal(t, 1, a.Remaining)
}
