// views.go — учёт просмотров карточек техников.
//
// Каждый просмотр — запись {technicianId, timestamp} в коллекции
// technician-views. Отчёт считает просмотры за текущий день, неделю
// (с понедельника) или месяц по часовому поясу сервера.
package service

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/techdir/internal/domain/model"
	"github.com/bigkaa/techdir/internal/storage/docstore"
)

// viewsRecordedTotal — количество учтённых просмотров.
var viewsRecordedTotal = promauto.NewCounter(prometheus.CounterOpts{
	Name: "td_technician_views_total",
	Help: "Общее количество учтённых просмотров карточек техников",
})

// ViewPeriod — период отчёта о просмотрах.
type ViewPeriod string

const (
	PeriodDay   ViewPeriod = "day"
	PeriodWeek  ViewPeriod = "week"
	PeriodMonth ViewPeriod = "month"
)

// ParseViewPeriod разбирает период; пустое и неизвестное значение — day.
func ParseViewPeriod(s string) ViewPeriod {
	switch p := ViewPeriod(s); p {
	case PeriodWeek, PeriodMonth:
		return p
	default:
		return PeriodDay
	}
}

// Start возвращает начало периода, содержащего now, в часовом поясе now.
func (p ViewPeriod) Start(now time.Time) time.Time {
	y, m, d := now.Date()
	day := time.Date(y, m, d, 0, 0, 0, 0, now.Location())
	switch p {
	case PeriodWeek:
		// Неделя начинается с понедельника
		offset := (int(day.Weekday()) + 6) % 7
		return day.AddDate(0, 0, -offset)
	case PeriodMonth:
		return time.Date(y, m, 1, 0, 0, 0, 0, now.Location())
	default:
		return day
	}
}

// ViewCount — число просмотров одного техника.
type ViewCount struct {
	ID    string `json:"id"`
	Views int    `json:"views"`
}

// ViewsReport — просмотры за период по убыванию.
type ViewsReport struct {
	Period ViewPeriod  `json:"period"`
	Views  []ViewCount `json:"views"`
}

// ViewsService — учёт и отчёт о просмотрах.
type ViewsService struct {
	store  *docstore.Store
	now    func() time.Time
	logger *slog.Logger
}

// NewViewsService создаёт сервис просмотров.
func NewViewsService(store *docstore.Store, logger *slog.Logger) *ViewsService {
	return &ViewsService{
		store:  store,
		now:    time.Now,
		logger: logger.With(slog.String("component", "views_service")),
	}
}

// WithClock подменяет источник времени.
func (s *ViewsService) WithClock(now func() time.Time) *ViewsService {
	s.now = now
	return s
}

// Record учитывает просмотр техника technicianID.
// Неизвестный или неактивный техник — ErrEntityNotFound.
func (s *ViewsService) Record(ctx context.Context, technicianID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	tech, err := s.store.FindByID(model.CollectionTechnicians, technicianID)
	if err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return fmt.Errorf("%w: %w", ErrEntityNotFound, err)
		}
		return err
	}
	if !tech.Bool("isActive") {
		return fmt.Errorf("%w: техник %s неактивен", ErrEntityNotFound, technicianID)
	}

	_, err = s.store.Create(model.CollectionTechnicianViews, map[string]any{
		"technicianId": technicianID,
		"timestamp":    model.FormatTime(s.now()),
	})
	if err != nil {
		return err
	}
	viewsRecordedTotal.Inc()
	return nil
}

// Report считает просмотры за период, включающий текущий момент.
// Порядок: по убыванию числа просмотров, при равенстве — по id.
func (s *ViewsService) Report(ctx context.Context, period ViewPeriod) (*ViewsReport, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	now := s.now()
	start := period.Start(now)

	counts := make(map[string]int)
	views, err := s.store.FindAll(model.CollectionTechnicianViews, nil)
	if err != nil {
		return nil, err
	}
	for _, v := range views {
		ts, err := time.Parse(model.TimeLayout, v.String("timestamp"))
		if err != nil {
			s.logger.Debug("Просмотр с некорректным timestamp пропущен", slog.String("id", v.ID()))
			continue
		}
		if ts.Before(start) || ts.After(now) {
			continue
		}
		counts[v.String("technicianId")]++
	}

	report := &ViewsReport{Period: period, Views: make([]ViewCount, 0, len(counts))}
	for id, n := range counts {
		report.Views = append(report.Views, ViewCount{ID: id, Views: n})
	}
	slices.SortFunc(report.Views, func(a, b ViewCount) int {
		if c := cmp.Compare(b.Views, a.Views); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return report, nil
}
