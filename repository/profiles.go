package repository

import (
	"context"
	"time"

	"github.com/ariebrainware/campus-gateway/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ProfileRepository persists SecurityProfile rows. Counter changes are single UPDATE
// statements so concurrent failures for one account never under-count.
type ProfileRepository struct {
	db *gorm.DB
}

func NewProfileRepository(db *gorm.DB) *ProfileRepository {
	return &ProfileRepository{db: db}
}

// Get returns the profile of userID, creating an empty one on first access.
func (r *ProfileRepository) Get(ctx context.Context, userID uint) (*model.SecurityProfile, error) {
	return r.getOrCreate(r.db.WithContext(ctx), userID)
}

func (r *ProfileRepository) getOrCreate(tx *gorm.DB, userID uint) (*model.SecurityProfile, error) {
	if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&model.SecurityProfile{UserID: userID}).Error; err != nil {
		return nil, err
	}
	var p model.SecurityProfile
	if err := tx.Where("user_id = ?", userID).First(&p).Error; err != nil {
		return nil, notFound(err)
	}
	return &p, nil
}

// RecordFailure increments the failed-attempt counter and locks the account until lockUntil once
// the counter reaches threshold. An already locked account keeps its lock untouched.
// locked reports whether this call performed the lock.
func (r *ProfileRepository) RecordFailure(ctx context.Context, userID uint, threshold int, reason string, lockUntil time.Time) (p *model.SecurityProfile, locked bool, err error) {
	err = r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := r.getOrCreate(tx, userID); err != nil {
			return err
		}
		if err := tx.Model(&model.SecurityProfile{}).Where("user_id = ?", userID).
			Update("failed_attempts", gorm.Expr("failed_attempts + 1")).Error; err != nil {
			return err
		}
		res := tx.Model(&model.SecurityProfile{}).
			Where("user_id = ? AND failed_attempts >= ? AND account_locked = ?", userID, threshold, false).
			Updates(map[string]interface{}{
				"account_locked": true,
				"lock_reason":    reason,
				"locked_until":   lockUntil.UTC(),
			})
		if res.Error != nil {
			return res.Error
		}
		locked = res.RowsAffected == 1

		p = &model.SecurityProfile{}
		return tx.Where("user_id = ?", userID).First(p).Error
	})
	if err != nil {
		return nil, false, err
	}
	return p, locked, nil
}

// RecordSuccess resets the failed-attempt counter and stamps the last login.
func (r *ProfileRepository) RecordSuccess(ctx context.Context, userID uint, at time.Time) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := r.getOrCreate(tx, userID); err != nil {
			return err
		}
		return tx.Model(&model.SecurityProfile{}).Where("user_id = ?", userID).
			Updates(map[string]interface{}{"failed_attempts": 0, "last_login": at.UTC()}).Error
	})
}

// ExpireLock lifts a timed lock whose locked_until is at or before now, resetting the counter.
// It reports whether a lock was lifted. Permanent locks are never touched.
func (r *ProfileRepository) ExpireLock(ctx context.Context, userID uint, now time.Time) (bool, error) {
	res := r.db.WithContext(ctx).Model(&model.SecurityProfile{}).
		Where("user_id = ? AND account_locked = ? AND locked_until IS NOT NULL AND locked_until <= ?", userID, true, now.UTC()).
		Updates(map[string]interface{}{
			"account_locked":  false,
			"locked_until":    nil,
			"lock_reason":     "",
			"failed_attempts": 0,
		})
	return res.RowsAffected > 0, res.Error
}

// ClearLock unlocks the account unconditionally and resets the counter.
func (r *ProfileRepository) ClearLock(ctx context.Context, userID uint) (*model.SecurityProfile, error) {
	var p *model.SecurityProfile
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := r.getOrCreate(tx, userID); err != nil {
			return err
		}
		if err := tx.Model(&model.SecurityProfile{}).Where("user_id = ?", userID).
			Updates(map[string]interface{}{
				"account_locked":  false,
				"locked_until":    nil,
				"lock_reason":     "",
				"failed_attempts": 0,
			}).Error; err != nil {
			return err
		}
		p = &model.SecurityProfile{}
		return tx.Where("user_id = ?", userID).First(p).Error
	})
	return p, err
}

// Lock locks the account until the given time, or permanently when until is nil.
func (r *ProfileRepository) Lock(ctx context.Context, userID uint, reason string, until *time.Time) (*model.SecurityProfile, error) {
	var p *model.SecurityProfile
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := r.getOrCreate(tx, userID); err != nil {
			return err
		}
		if err := tx.Model(&model.SecurityProfile{}).Where("user_id = ?", userID).
			Updates(map[string]interface{}{
				"account_locked": true,
				"lock_reason":    reason,
				"locked_until":   utcPtr(until),
			}).Error; err != nil {
			return err
		}
		p = &model.SecurityProfile{}
		return tx.Where("user_id = ?", userID).First(p).Error
	})
	return p, err
}
