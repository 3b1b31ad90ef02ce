package repository

import (
	"context"
	"errors"
	"time"

	"github.com/ariebrainware/campus-gateway/model"
	"gorm.io/gorm"
)

// BlockRequest describes a block to apply to an IP.
type BlockRequest struct {
	IP          string
	Reason      string
	Permanent   bool
	ExpiresAt   *time.Time
	CreatedByID *uint
}

// BlockRepository persists BlockEntry rows.
type BlockRepository struct {
	db *gorm.DB
}

func NewBlockRepository(db *gorm.DB) *BlockRepository {
	return &BlockRepository{db: db}
}

// FindByIP returns the entry for ip, active or not.
func (r *BlockRepository) FindByIP(ctx context.Context, ip string) (*model.BlockEntry, error) {
	var entry model.BlockEntry
	if err := r.db.WithContext(ctx).Where("ip_address = ?", ip).First(&entry).Error; err != nil {
		return nil, notFound(err)
	}
	return &entry, nil
}

// Upsert creates or strengthens the block on req.IP. An active block is never shortened:
// a permanent entry stays permanent and a temporary one keeps the later expiry.
func (r *BlockRepository) Upsert(ctx context.Context, req BlockRequest, now time.Time) (*model.BlockEntry, error) {
	var result model.BlockEntry
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing model.BlockEntry
		err := tx.Where("ip_address = ?", req.IP).First(&existing).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			result = model.BlockEntry{
				IPAddress:   req.IP,
				Reason:      req.Reason,
				IsPermanent: req.Permanent,
				ExpiresAt:   utcPtr(req.ExpiresAt),
				CreatedByID: req.CreatedByID,
			}
			if req.Permanent {
				result.ExpiresAt = nil
			}
			return tx.Create(&result).Error
		}
		if err != nil {
			return err
		}

		wasActive := existing.IsActive(now)
		existing.Reason = req.Reason
		existing.CreatedByID = req.CreatedByID
		switch {
		case req.Permanent:
			existing.IsPermanent = true
			existing.ExpiresAt = nil
		case wasActive && existing.IsPermanent:
			// keep permanent
		case wasActive && existing.ExpiresAt != nil && req.ExpiresAt != nil && existing.ExpiresAt.After(*req.ExpiresAt):
			// keep the later expiry
		default:
			existing.IsPermanent = false
			existing.ExpiresAt = utcPtr(req.ExpiresAt)
		}
		result = existing
		return tx.Select("reason", "created_by_id", "is_permanent", "expires_at", "updated_at").Save(&result).Error
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// Deactivate clears permanence and expiry on the entry for ip. The row is kept.
func (r *BlockRepository) Deactivate(ctx context.Context, ip string) (*model.BlockEntry, error) {
	res := r.db.WithContext(ctx).Model(&model.BlockEntry{}).
		Where("ip_address = ?", ip).
		Updates(map[string]interface{}{"is_permanent": false, "expires_at": nil})
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, ErrNotFound
	}
	return r.FindByIP(ctx, ip)
}

// List returns entries newest first, only the ones active at now when activeOnly is set.
func (r *BlockRepository) List(ctx context.Context, activeOnly bool, now time.Time) ([]model.BlockEntry, error) {
	q := r.db.WithContext(ctx).Order("created_at DESC")
	if activeOnly {
		q = activeScope(q, now)
	}
	var entries []model.BlockEntry
	if err := q.Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}

// Counts returns the number of entries active at now and the number of entries overall.
func (r *BlockRepository) Counts(ctx context.Context, now time.Time) (active int64, total int64, err error) {
	db := r.db.WithContext(ctx).Model(&model.BlockEntry{})
	if err = db.Count(&total).Error; err != nil {
		return 0, 0, err
	}
	if err = activeScope(r.db.WithContext(ctx).Model(&model.BlockEntry{}), now).Count(&active).Error; err != nil {
		return 0, 0, err
	}
	return active, total, nil
}

func activeScope(q *gorm.DB, now time.Time) *gorm.DB {
	return q.Where("is_permanent = ? OR (expires_at IS NOT NULL AND expires_at > ?)", true, now.UTC())
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
