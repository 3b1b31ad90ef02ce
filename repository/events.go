package repository

import (
	"context"
	"time"

	"github.com/ariebrainware/campus-gateway/model"
	"gorm.io/gorm"
)

// EventFilter narrows an event listing. Zero values do not filter.
type EventFilter struct {
	EventType string
	Severity  string
	IPAddress string
	UserID    *uint
	Start     *time.Time
	End       *time.Time
	Limit     int
	Offset    int
}

// EventSummary aggregates events recorded since a point in time.
type EventSummary struct {
	Total      int64            `json:"total_events"`
	ByType     map[string]int64 `json:"events_by_type"`
	BySeverity map[string]int64 `json:"events_by_severity"`
}

// EventRepository appends and queries SecurityEvent rows. Rows are never updated.
type EventRepository struct {
	db *gorm.DB
}

func NewEventRepository(db *gorm.DB) *EventRepository {
	return &EventRepository{db: db}
}

func (r *EventRepository) Create(ctx context.Context, ev *model.SecurityEvent) error {
	ev.Timestamp = ev.Timestamp.UTC()
	return r.db.WithContext(ctx).Create(ev).Error
}

// CountSince counts events of one type from ip at or after since.
func (r *EventRepository) CountSince(ctx context.Context, eventType model.EventType, ip string, since time.Time) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&model.SecurityEvent{}).
		Where("event_type = ? AND ip_address = ? AND timestamp >= ?", eventType, ip, since.UTC()).
		Count(&n).Error
	return n, err
}

// List returns matching events newest first together with the unpaginated total.
func (r *EventRepository) List(ctx context.Context, f EventFilter) ([]model.SecurityEvent, int64, error) {
	q := r.db.WithContext(ctx).Model(&model.SecurityEvent{})
	if f.EventType != "" {
		q = q.Where("event_type = ?", f.EventType)
	}
	if f.Severity != "" {
		q = q.Where("severity = ?", f.Severity)
	}
	if f.IPAddress != "" {
		q = q.Where("ip_address = ?", f.IPAddress)
	}
	if f.UserID != nil {
		q = q.Where("user_id = ?", *f.UserID)
	}
	if f.Start != nil {
		q = q.Where("timestamp >= ?", f.Start.UTC())
	}
	if f.End != nil {
		q = q.Where("timestamp <= ?", f.End.UTC())
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var events []model.SecurityEvent
	err := q.Order("timestamp DESC").Order("id DESC").
		Limit(PageSize(f.Limit)).Offset(f.Offset).
		Find(&events).Error
	return events, total, err
}

// Summary counts events at or after since, grouped by type and by severity.
func (r *EventRepository) Summary(ctx context.Context, since time.Time) (EventSummary, error) {
	type row struct {
		Label string
		Count int64
	}
	sum := EventSummary{ByType: map[string]int64{}, BySeverity: map[string]int64{}}

	base := func() *gorm.DB {
		return r.db.WithContext(ctx).Model(&model.SecurityEvent{}).Where("timestamp >= ?", since.UTC())
	}

	var byType []row
	if err := base().Select("event_type AS label, COUNT(*) AS count").Group("event_type").Scan(&byType).Error; err != nil {
		return sum, err
	}
	for _, g := range byType {
		sum.ByType[g.Label] = g.Count
		sum.Total += g.Count
	}

	var bySeverity []row
	if err := base().Select("severity AS label, COUNT(*) AS count").Group("severity").Scan(&bySeverity).Error; err != nil {
		return sum, err
	}
	for _, g := range bySeverity {
		sum.BySeverity[g.Label] = g.Count
	}
	return sum, nil
}
