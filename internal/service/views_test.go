package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bigkaa/techdir/internal/domain/model"
)

func TestViewPeriod_Start(t *testing.T) {
	// Четверг
	now := time.Date(2024, 5, 16, 15, 30, 0, 0, time.UTC)

	tests := []struct {
		period ViewPeriod
		want   time.Time
	}{
		{PeriodDay, time.Date(2024, 5, 16, 0, 0, 0, 0, time.UTC)},
		{PeriodWeek, time.Date(2024, 5, 13, 0, 0, 0, 0, time.UTC)},
		{PeriodMonth, time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		t.Run(string(tt.period), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.period.Start(now))
		})
	}

	// Воскресенье относится к неделе, начавшейся в понедельник
	sunday := time.Date(2024, 5, 19, 8, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2024, 5, 13, 0, 0, 0, 0, time.UTC), PeriodWeek.Start(sunday))
}

func TestParseViewPeriod(t *testing.T) {
	assert.Equal(t, PeriodWeek, ParseViewPeriod("week"))
	assert.Equal(t, PeriodMonth, ParseViewPeriod("month"))
	assert.Equal(t, PeriodDay, ParseViewPeriod(""))
	assert.Equal(t, PeriodDay, ParseViewPeriod("year"))
}

func TestViewsRecordAndReport(t *testing.T) {
	e := newTestEnv(t)
	now := time.Date(2024, 5, 16, 12, 0, 0, 0, time.UTC)
	svc := NewViewsService(e.store, testLogger()).WithClock(func() time.Time { return now })
	alice := e.technician(t, "alice", true)
	bob := e.technician(t, "bob", true)
	ctx := context.Background()

	// Понедельник этой недели: попадает в week и month
	now = time.Date(2024, 5, 13, 9, 0, 0, 0, time.UTC)
	require.NoError(t, svc.Record(ctx, bob.ID()))
	require.NoError(t, svc.Record(ctx, bob.ID()))
	require.NoError(t, svc.Record(ctx, bob.ID()))
	// Сегодня
	now = time.Date(2024, 5, 16, 10, 0, 0, 0, time.UTC)
	require.NoError(t, svc.Record(ctx, alice.ID()))
	require.NoError(t, svc.Record(ctx, alice.ID()))
	require.NoError(t, svc.Record(ctx, bob.ID()))
	now = time.Date(2024, 5, 16, 12, 0, 0, 0, time.UTC)

	day, err := svc.Report(ctx, PeriodDay)
	require.NoError(t, err)
	assert.Equal(t, PeriodDay, day.Period)
	assert.Equal(t, []ViewCount{{ID: alice.ID(), Views: 2}, {ID: bob.ID(), Views: 1}}, day.Views)

	week, err := svc.Report(ctx, PeriodWeek)
	require.NoError(t, err)
	assert.Equal(t, []ViewCount{{ID: bob.ID(), Views: 4}, {ID: alice.ID(), Views: 2}}, week.Views)

	// Следующий месяц: пусто
	now = time.Date(2024, 6, 1, 0, 0, 1, 0, time.UTC)
	month, err := svc.Report(ctx, PeriodMonth)
	require.NoError(t, err)
	assert.NotNil(t, month.Views)
	assert.Empty(t, month.Views)

	n, err := e.store.Count(model.CollectionTechnicianViews, nil)
	require.NoError(t, err)
	assert.Equal(t, 6, n)
}

func TestViewsRecord_UnknownOrInactive(t *testing.T) {
	e := newTestEnv(t)
	svc := NewViewsService(e.store, testLogger())
	hidden := e.technician(t, "hidden", false)

	assert.ErrorIs(t, svc.Record(context.Background(), "missing"), ErrEntityNotFound)
	assert.ErrorIs(t, svc.Record(context.Background(), hidden.ID()), ErrEntityNotFound)

	n, err := e.store.Count(model.CollectionTechnicianViews, nil)
	require.NoError(t, err)
	assert.Zero(t, n)
}
