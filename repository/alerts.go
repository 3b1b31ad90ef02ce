package repository

import (
	"context"
	"time"

	"github.com/ariebrainware/campus-gateway/model"
	"gorm.io/gorm"
)

// AlertFilter narrows an alert listing. Zero values do not filter.
type AlertFilter struct {
	AlertType string
	Severity  string
	Status    string
	IPAddress string
	UserID    *uint
	Start     *time.Time
	End       *time.Time
	Limit     int
	Offset    int
}

// Resolution is written alongside a status change.
type Resolution struct {
	ByID *uint
	Note string
	At   time.Time
}

// AlertRepository persists SecurityAlert rows.
type AlertRepository struct {
	db *gorm.DB
}

func NewAlertRepository(db *gorm.DB) *AlertRepository {
	return &AlertRepository{db: db}
}

func (r *AlertRepository) Create(ctx context.Context, a *model.SecurityAlert) error {
	return r.db.WithContext(ctx).Create(a).Error
}

func (r *AlertRepository) Get(ctx context.Context, id uint) (*model.SecurityAlert, error) {
	var a model.SecurityAlert
	if err := r.db.WithContext(ctx).First(&a, id).Error; err != nil {
		return nil, notFound(err)
	}
	return &a, nil
}

// HasOpen reports whether an open alert of alertType exists for ip created at or after since.
func (r *AlertRepository) HasOpen(ctx context.Context, alertType, ip string, since time.Time) (bool, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&model.SecurityAlert{}).
		Where("alert_type = ? AND ip_address = ? AND created_at >= ? AND status IN ?",
			alertType, ip, since.UTC(), []model.AlertStatus{model.AlertNew, model.AlertAcknowledged}).
		Count(&n).Error
	return n > 0, err
}

// CountOpen counts alerts that still need attention.
func (r *AlertRepository) CountOpen(ctx context.Context) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&model.SecurityAlert{}).
		Where("status IN ?", []model.AlertStatus{model.AlertNew, model.AlertAcknowledged}).
		Count(&n).Error
	return n, err
}

// List returns matching alerts newest first together with the unpaginated total.
func (r *AlertRepository) List(ctx context.Context, f AlertFilter) ([]model.SecurityAlert, int64, error) {
	q := r.db.WithContext(ctx).Model(&model.SecurityAlert{})
	if f.AlertType != "" {
		q = q.Where("alert_type = ?", f.AlertType)
	}
	if f.Severity != "" {
		q = q.Where("severity = ?", f.Severity)
	}
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	if f.IPAddress != "" {
		q = q.Where("ip_address = ?", f.IPAddress)
	}
	if f.UserID != nil {
		q = q.Where("user_id = ?", *f.UserID)
	}
	if f.Start != nil {
		q = q.Where("created_at >= ?", f.Start.UTC())
	}
	if f.End != nil {
		q = q.Where("created_at <= ?", f.End.UTC())
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var alerts []model.SecurityAlert
	err := q.Order("created_at DESC").Order("id DESC").
		Limit(PageSize(f.Limit)).Offset(f.Offset).
		Find(&alerts).Error
	return alerts, total, err
}

// UpdateStatus moves alert id from status from to status to. It reports false when the alert
// was no longer in status from, so concurrent reviewers cannot both apply a transition.
func (r *AlertRepository) UpdateStatus(ctx context.Context, id uint, from, to model.AlertStatus, res Resolution) (bool, error) {
	fields := map[string]interface{}{"status": to}
	if to == model.AlertResolved || to == model.AlertFalsePositive {
		fields["resolved_at"] = res.At.UTC()
		fields["resolved_by_id"] = res.ByID
	}
	if res.Note != "" {
		fields["resolution_note"] = res.Note
	}
	tx := r.db.WithContext(ctx).Model(&model.SecurityAlert{}).
		Where("id = ? AND status = ?", id, from).
		Updates(fields)
	return tx.RowsAffected == 1, tx.Error
}
