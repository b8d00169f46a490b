package reservation

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/clasedesurf/reservations/internal/apperr"
	"github.com/clasedesurf/reservations/internal/auth"
	"github.com/clasedesurf/reservations/internal/capacity"
	"github.com/clasedesurf/reservations/internal/discount"
	"github.com/clasedesurf/reservations/internal/events"
	"github.com/clasedesurf/reservations/internal/models"
	"github.com/clasedesurf/reservations/internal/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newService(t *testing.T, db *gorm.DB, opts ...Option) *Service {
	t.Helper()
	return NewService(db, capacity.NewLedger(db), discount.NewService(db), opts...)
}

func student(id uint) auth.Identity {
	return auth.Identity{UserID: id, Role: auth.RoleStudent}
}

func count(t *testing.T, db *gorm.DB, model any) int64 {
	t.Helper()
	var n int64
	require.NoError(t, db.Model(model).Count(&n).Error)
	return n
}

func TestCreate(t *testing.T) {
	db := testutil.NewDB(t)
	school := testutil.CreateSchool(t, db, 100)
	class := testutil.CreateClass(t, db, school.ID, 4, "50")
	recorder := &events.Recorder{}
	svc := newService(t, db, WithPublisher(recorder))

	r, err := svc.Create(context.Background(), student(1), CreateInput{
		ClassID:        class.ID,
		Participants:   testutil.Participants(1),
		SpecialRequest: "First time surfing",
	})
	require.NoError(t, err)

	assert.Equal(t, models.ReservationPending, r.Status)
	assert.Equal(t, uint(1), r.UserID)
	assert.Equal(t, 1, r.ParticipantCount)
	require.Len(t, r.Participants, 1)
	assert.Equal(t, "Surfer", r.Participants[0].Name)

	require.NotNil(t, r.Payment)
	assert.Equal(t, models.PaymentUnpaid, r.Payment.Status)
	assert.Equal(t, "50.00", r.Payment.Amount.StringFixed(2))
	assert.Equal(t, "0.00", r.Payment.DiscountAmount.StringFixed(2))
	assert.Nil(t, r.Payment.DiscountCodeID)

	var stored models.Payment
	require.NoError(t, db.Where("reservation_id = ?", r.ID).First(&stored).Error)
	assert.Equal(t, "50.00", stored.Amount.StringFixed(2))

	var history []models.ReservationHistory
	require.NoError(t, db.Where("reservation_id = ?", r.ID).Find(&history).Error)
	require.Len(t, history, 1)
	assert.Equal(t, models.ReservationPending, history[0].ToStatus)

	assert.Len(t, recorder.OfType(events.ReservationCreated), 1)
}

func TestCreateWithDiscountPricesClassPortionOnly(t *testing.T) {
	db := testutil.NewDB(t)
	school := testutil.CreateSchool(t, db, 100)
	class := testutil.CreateClass(t, db, school.ID, 10, "100")
	board := testutil.CreateProduct(t, db, school.ID, "Board rental", "30", true)
	code := testutil.CreateCode(t, db, "SURF20", "20", 0, 0, nil)
	svc := newService(t, db)

	r, err := svc.Create(context.Background(), student(1), CreateInput{
		ClassID:      class.ID,
		Participants: testutil.Participants(2),
		DiscountCode: "surf20",
		ProductIDs:   []uint{board.ID},
	})
	require.NoError(t, err)

	assert.Equal(t, "230.00", r.Payment.OriginalAmount.StringFixed(2))
	assert.Equal(t, "40.00", r.Payment.DiscountAmount.StringFixed(2))
	assert.Equal(t, "190.00", r.Payment.Amount.StringFixed(2))
	require.NotNil(t, r.Payment.DiscountCodeID)
	assert.Equal(t, code.ID, *r.Payment.DiscountCodeID)
	require.Len(t, r.Addons, 1)
	assert.Equal(t, "Board rental", r.Addons[0].Name)

	var dc models.DiscountCode
	require.NoError(t, db.First(&dc, code.ID).Error)
	assert.Equal(t, 1, dc.UsedCount)
}

func TestCreatePricingExample(t *testing.T) {
	db := testutil.NewDB(t)
	school := testutil.CreateSchool(t, db, 100)
	class := testutil.CreateClass(t, db, school.ID, 10, "100")
	testutil.CreateCode(t, db, "TWENTY", "20", 0, 0, nil)
	svc := newService(t, db)

	r, err := svc.Create(context.Background(), student(1), CreateInput{
		ClassID:      class.ID,
		Participants: testutil.Participants(2),
		DiscountCode: "TWENTY",
	})
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(200).Equal(r.Payment.OriginalAmount))
	assert.True(t, decimal.NewFromInt(40).Equal(r.Payment.DiscountAmount))
	assert.True(t, decimal.NewFromInt(160).Equal(r.Payment.Amount))
}

func TestCreateRejectsInvalidInput(t *testing.T) {
	db := testutil.NewDB(t)
	school := testutil.CreateSchool(t, db, 100)
	class := testutil.CreateClass(t, db, school.ID, 20, "50")
	svc := newService(t, db)

	young := testutil.Participants(1)
	young[0].Age = 3
	tall := testutil.Participants(1)
	tall[0].Height = 300
	noName := testutil.Participants(1)
	noName[0].Name = ""
	badLevel := testutil.Participants(1)
	badLevel[0].SwimmingLevel = "OLYMPIC"

	tests := []struct {
		name string
		in   CreateInput
	}{
		{"no participants", CreateInput{ClassID: class.ID}},
		{"too many participants", CreateInput{ClassID: class.ID, Participants: testutil.Participants(11)}},
		{"count mismatch", CreateInput{ClassID: class.ID, Participants: testutil.Participants(2), ParticipantCount: 3}},
		{"age out of range", CreateInput{ClassID: class.ID, Participants: young}},
		{"height out of range", CreateInput{ClassID: class.ID, Participants: tall}},
		{"missing name", CreateInput{ClassID: class.ID, Participants: noName}},
		{"unknown swimming level", CreateInput{ClassID: class.ID, Participants: badLevel}},
		{"missing class", CreateInput{Participants: testutil.Participants(1)}},
		{"duplicate product", CreateInput{ClassID: class.ID, Participants: testutil.Participants(1), ProductIDs: []uint{1, 1}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Create(context.Background(), student(1), tt.in)
			assert.True(t, errors.Is(err, apperr.ErrValidation), "got %v", err)
		})
	}

	assert.Zero(t, count(t, db, &models.Reservation{}))
	assert.Zero(t, count(t, db, &models.Payment{}))
}

func TestCreateParticipantErrorNamesField(t *testing.T) {
	db := testutil.NewDB(t)
	svc := newService(t, db)

	p := testutil.Participants(2)
	p[1].Weight = 10
	_, err := svc.Create(context.Background(), student(1), CreateInput{ClassID: 1, Participants: p})
	require.Error(t, err)
	assert.Contains(t, apperr.MessageOf(err), "participant 2")
	assert.Contains(t, apperr.MessageOf(err), "weight")
}

func TestCreateUnknownClass(t *testing.T) {
	db := testutil.NewDB(t)
	svc := newService(t, db)

	_, err := svc.Create(context.Background(), student(1), CreateInput{ClassID: 404, Participants: testutil.Participants(1)})
	assert.True(t, errors.Is(err, apperr.ErrNotFound))
}

func TestCreateRequiresIdentity(t *testing.T) {
	db := testutil.NewDB(t)
	svc := newService(t, db)

	_, err := svc.Create(context.Background(), auth.Identity{}, CreateInput{ClassID: 1, Participants: testutil.Participants(1)})
	assert.True(t, errors.Is(err, apperr.ErrUnauthorized))
}

func TestCreateRejectsForeignOrInactiveProducts(t *testing.T) {
	db := testutil.NewDB(t)
	school := testutil.CreateSchool(t, db, 100)
	other := testutil.CreateSchool(t, db, 200)
	class := testutil.CreateClass(t, db, school.ID, 10, "50")
	inactive := testutil.CreateProduct(t, db, school.ID, "Wetsuit", "15", false)
	foreign := testutil.CreateProduct(t, db, other.ID, "Photos", "20", true)
	svc := newService(t, db)

	for _, id := range []uint{inactive.ID, foreign.ID, 9999} {
		_, err := svc.Create(context.Background(), student(1), CreateInput{
			ClassID:      class.ID,
			Participants: testutil.Participants(1),
			ProductIDs:   []uint{id},
		})
		assert.True(t, errors.Is(err, apperr.ErrValidation), "product %d: %v", id, err)
	}
	assert.Zero(t, count(t, db, &models.Reservation{}))
}

func TestCreateInvalidDiscountPersistsNothing(t *testing.T) {
	db := testutil.NewDB(t)
	school := testutil.CreateSchool(t, db, 100)
	class := testutil.CreateClass(t, db, school.ID, 10, "50")
	svc := newService(t, db)

	_, err := svc.Create(context.Background(), student(1), CreateInput{
		ClassID:      class.ID,
		Participants: testutil.Participants(1),
		DiscountCode: "DOESNOTEXIST",
	})
	assert.True(t, errors.Is(err, apperr.ErrDiscountInvalid))
	assert.False(t, apperr.Retryable(err))
	assert.Zero(t, count(t, db, &models.Reservation{}))
	assert.Zero(t, count(t, db, &models.Payment{}))
}

func TestCreateRollsBackRedemptionOnLaterFailure(t *testing.T) {
	db := testutil.NewDB(t)
	school := testutil.CreateSchool(t, db, 100)
	class := testutil.CreateClass(t, db, school.ID, 10, "50")
	code := testutil.CreateCode(t, db, "ONEUSE", "10", 1, 0, nil)
	svc := newService(t, db)

	// Without a payments table the payment insert fails after the code was redeemed.
	require.NoError(t, db.Migrator().DropTable(&models.Payment{}))

	_, err := svc.Create(context.Background(), student(1), CreateInput{
		ClassID:      class.ID,
		Participants: testutil.Participants(1),
		DiscountCode: "ONEUSE",
	})
	require.Error(t, err)

	var dc models.DiscountCode
	require.NoError(t, db.First(&dc, code.ID).Error)
	assert.Equal(t, 0, dc.UsedCount)
	assert.Zero(t, count(t, db, &models.Reservation{}))
	assert.Zero(t, count(t, db, &models.ReservationHistory{}))
}

func TestConcurrentCreateNeverOversells(t *testing.T) {
	db := testutil.NewDB(t)
	school := testutil.CreateSchool(t, db, 100)
	const (
		seats    = 3
		students = 12
	)
	class := testutil.CreateClass(t, db, school.ID, seats, "40")
	svc := newService(t, db)

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		created  int
		rejected int
	)
	start := make(chan struct{})
	for i := 0; i < students; i++ {
		wg.Add(1)
		go func(userID uint) {
			defer wg.Done()
			<-start
			_, err := svc.Create(context.Background(), student(userID), CreateInput{
				ClassID:      class.ID,
				Participants: testutil.Participants(1),
			})

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				created++
			case errors.Is(err, apperr.ErrCapacityExceeded):
				rejected++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(uint(i + 1))
	}
	close(start)
	wg.Wait()

	assert.Equal(t, seats, created)
	assert.Equal(t, students-seats, rejected)

	availability, err := capacity.NewLedger(db).Availability(context.Background(), class.ID)
	require.NoError(t, err)
	assert.Equal(t, seats, availability.Reserved)
	assert.Equal(t, 0, availability.Remaining)
	assert.Equal(t, int64(seats), count(t, db, &models.Payment{}))
}

func TestLastSeatScenario(t *testing.T) {
	db := testutil.NewDB(t)
	school := testutil.CreateSchool(t, db, 100)
	class := testutil.CreateClass(t, db, school.ID, 1, "50")
	svc := newService(t, db)
	ctx := context.Background()
	userA, userB := student(1), student(2)
	in := CreateInput{ClassID: class.ID, Participants: testutil.Participants(1)}

	a, err := svc.Create(ctx, userA, in)
	require.NoError(t, err)
	assert.Equal(t, models.ReservationPending, a.Status)
	assert.Equal(t, models.PaymentUnpaid, a.Payment.Status)
	assert.Equal(t, "50.00", a.Payment.Amount.StringFixed(2))

	_, err = svc.Create(ctx, userB, in)
	require.True(t, errors.Is(err, apperr.ErrCapacityExceeded), "got %v", err)
	assert.True(t, apperr.Retryable(err))

	_, err = svc.Transition(ctx, userA, a.ID, models.ReservationCanceled)
	require.NoError(t, err)

	b, err := svc.Create(ctx, userB, in)
	require.NoError(t, err)
	assert.Equal(t, uint(2), b.UserID)
}

func TestCapacityCountsParticipants(t *testing.T) {
	db := testutil.NewDB(t)
	school := testutil.CreateSchool(t, db, 100)
	class := testutil.CreateClass(t, db, school.ID, 5, "50")
	svc := newService(t, db)
	ctx := context.Background()

	_, err := svc.Create(ctx, student(1), CreateInput{ClassID: class.ID, Participants: testutil.Participants(3)})
	require.NoError(t, err)

	_, err = svc.Create(ctx, student(2), CreateInput{ClassID: class.ID, Participants: testutil.Participants(3)})
	assert.True(t, errors.Is(err, apperr.ErrCapacityExceeded))

	_, err = svc.Create(ctx, student(2), CreateInput{ClassID: class.ID, Participants: testutil.Participants(2)})
	assert.NoError(t, err)
}

func TestConcurrentLastDiscountUse(t *testing.T) {
	db := testutil.NewDB(t)
	school := testutil.CreateSchool(t, db, 100)
	class := testutil.CreateClass(t, db, school.ID, 10, "100")
	code := testutil.CreateCode(t, db, "SURF10", "10", 100, 99, nil)
	svc := newService(t, db)

	type outcome struct {
		r   *models.Reservation
		err error
	}
	results := make(chan outcome, 2)
	start := make(chan struct{})
	var wg sync.WaitGroup
	for i := 1; i <= 2; i++ {
		wg.Add(1)
		go func(userID uint) {
			defer wg.Done()
			<-start
			r, err := svc.Create(context.Background(), student(userID), CreateInput{
				ClassID:      class.ID,
				Participants: testutil.Participants(1),
				DiscountCode: "SURF10",
			})
			results <- outcome{r, err}
		}(uint(i))
	}
	close(start)
	wg.Wait()
	close(results)

	var won, lost int
	for res := range results {
		if res.err == nil {
			won++
			assert.Equal(t, "90.00", res.r.Payment.Amount.StringFixed(2))
			continue
		}
		assert.True(t, errors.Is(res.err, apperr.ErrDiscountExhausted), "got %v", res.err)
		assert.True(t, apperr.Retryable(res.err))
		lost++
	}
	assert.Equal(t, 1, won)
	assert.Equal(t, 1, lost)

	var dc models.DiscountCode
	require.NoError(t, db.First(&dc, code.ID).Error)
	assert.Equal(t, 100, dc.UsedCount)
	assert.Equal(t, int64(1), count(t, db, &models.Reservation{}))
}

func TestParticipantsRoundTrip(t *testing.T) {
	db := testutil.NewDB(t)
	school := testutil.CreateSchool(t, db, 100)
	class := testutil.CreateClass(t, db, school.ID, 10, "50")
	svc := newService(t, db)

	in := testutil.Participants(2)
	in[1].Injuries = "Left knee"
	in[1].HasSurfedBefore = true
	r, err := svc.Create(context.Background(), student(1), CreateInput{ClassID: class.ID, Participants: in})
	require.NoError(t, err)

	var stored models.Reservation
	require.NoError(t, db.First(&stored, r.ID).Error)
	require.Len(t, stored.Participants, 2)
	assert.Equal(t, "Left knee", stored.Participants[1].Injuries)
	assert.True(t, stored.Participants[1].HasSurfedBefore)
	assert.Equal(t, models.SwimmingBasic, stored.Participants[0].SwimmingLevel)
}

func TestClassEndsAtUsesDuration(t *testing.T) {
	c := models.Class{Date: time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC), DurationMinutes: 90}
	assert.Equal(t, time.Date(2026, 1, 1, 10, 30, 0, 0, time.UTC), c.EndsAt())
}
