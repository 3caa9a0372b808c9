package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/Skotchmaster/usersvc/internal/models"
)

type GormStore struct {
	DB *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{DB: db}
}

func (s *GormStore) Get(ctx context.Context, username string) (*models.Session, error) {
	var sess models.Session
	if err := s.DB.WithContext(ctx).Where("username = ?", username).First(&sess).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get session: %w", err)
	}
	sess.AccessExpiresAt = sess.AccessExpiresAt.UTC()
	sess.RefreshExpiresAt = sess.RefreshExpiresAt.UTC()
	return &sess, nil
}

func (s *GormStore) Put(ctx context.Context, sess *models.Session) error {
	if sess == nil || sess.Username == "" {
		return errors.New("session username cannot be empty")
	}
	row := *sess
	row.AccessExpiresAt = row.AccessExpiresAt.UTC()
	row.RefreshExpiresAt = row.RefreshExpiresAt.UTC()

	err := s.DB.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "username"}},
			DoUpdates: clause.AssignmentColumns([]string{"access_token", "refresh_token", "access_expires_at", "refresh_expires_at", "updated_at"}),
		}).
		Create(&row).Error
	if err != nil {
		return fmt.Errorf("put session: %w", err)
	}
	return nil
}

func (s *GormStore) ReplaceAccess(ctx context.Context, username, refreshToken, accessToken string, accessExpiresAt time.Time) error {
	res := s.DB.WithContext(ctx).Model(&models.Session{}).
		Where("username = ? AND refresh_token = ?", username, refreshToken).
		Updates(map[string]any{
			"access_token":      accessToken,
			"access_expires_at": accessExpiresAt.UTC(),
		})
	if res.Error != nil {
		return fmt.Errorf("replace access token: %w", res.Error)
	}
	if res.RowsAffected > 0 {
		return nil
	}

	var n int64
	if err := s.DB.WithContext(ctx).Model(&models.Session{}).Where("username = ?", username).Count(&n).Error; err != nil {
		return fmt.Errorf("replace access token: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return ErrSuperseded
}

func (s *GormStore) Delete(ctx context.Context, username string) (bool, error) {
	res := s.DB.WithContext(ctx).Where("username = ?", username).Delete(&models.Session{})
	if res.Error != nil {
		return false, fmt.Errorf("delete session: %w", res.Error)
	}
	return res.RowsAffected > 0, nil
}
