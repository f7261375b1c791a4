package settings_test

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	_ "github.com/uptrace/bun/driver/sqliteshim"

	"ms-parcel/internal/config"
	"ms-parcel/internal/errs"
	"ms-parcel/internal/models"
	"ms-parcel/internal/settings"
)

func setupStore(t *testing.T) (*settings.Store, *bun.DB) {
	sqldb, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("Failed to connect to in-memory database: %v", err)
	}
	bunDB := bun.NewDB(sqldb, sqlitedialect.New())

	if _, err := bunDB.NewCreateTable().Model((*models.PlatformSettings)(nil)).Exec(context.Background()); err != nil {
		t.Fatalf("Failed to create settings table: %v", err)
	}
	return settings.NewStore(bunDB), bunDB
}

func seedConfig() config.PlatformConfig {
	return config.PlatformConfig{
		MinPricePerKg:             2000,
		MaxPricePerKg:             10000,
		TravelerPercent:           70,
		PlatformPercent:           25,
		VatPercent:                5,
		PaymentTimeoutHours:       12,
		AutoPayoutDelayHours:      48,
		CancellationDeadlineHours: 24,
		CriticalCancellationHours: 4,
		RefundRateBeforeDeadline:  0.9,
		LateCancellationPenalty:   0.5,
		MinimumPayoutAmount:       1000,
		InsuranceAmount:           500,
	}
}

func TestSeedIsIdempotent(t *testing.T) {
	store, bunDB := setupStore(t)
	defer bunDB.Close()
	ctx := context.Background()

	assert.NoError(t, store.Seed(ctx, seedConfig()))

	// An admin changes the split; a service restart must not reset it.
	current, err := store.Get(ctx)
	assert.NoError(t, err)
	current.TravelerPercent = 60
	current.PlatformPercent = 35
	assert.NoError(t, store.Update(ctx, current))

	assert.NoError(t, store.Seed(ctx, seedConfig()))

	after, err := store.Get(ctx)
	assert.NoError(t, err)
	assert.Equal(t, 60, after.TravelerPercent)
}

func TestUpdateValidatesPercentSum(t *testing.T) {
	store, bunDB := setupStore(t)
	defer bunDB.Close()
	ctx := context.Background()

	assert.NoError(t, store.Seed(ctx, seedConfig()))

	current, err := store.Get(ctx)
	assert.NoError(t, err)
	current.TravelerPercent = 80 // 80+25+5 = 110

	err = store.Update(ctx, current)
	assert.ErrorIs(t, err, errs.ErrInvalidRequest)
}

func TestSnapshotCopiesRow(t *testing.T) {
	store, bunDB := setupStore(t)
	defer bunDB.Close()
	ctx := context.Background()

	assert.NoError(t, store.Seed(ctx, seedConfig()))

	snap, err := store.Snapshot(ctx)
	assert.NoError(t, err)
	assert.Equal(t, 70, snap.TravelerPercent)
	assert.Equal(t, int64(500), snap.InsuranceAmount)
}
