package resettoken

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/charlesng35/storefront/internal/models"
	"github.com/charlesng35/storefront/pkg/metrics"
)

// DatabaseStore keeps tokens in the password_reset_tokens table.
type DatabaseStore struct {
	db   *gorm.DB
	opts options
}

// NewDatabaseStore builds a store on top of an open gorm connection. The caller is
// responsible for migrating models.PasswordResetToken.
func NewDatabaseStore(db *gorm.DB, opts ...Option) (*DatabaseStore, error) {
	if db == nil {
		return nil, errors.New("resettoken: database connection is required")
	}
	return &DatabaseStore{db: db, opts: applyOptions("resettoken.database", opts)}, nil
}

// Put inserts or replaces the token row. A failed write is always returned since
// there is no other copy of the token.
func (s *DatabaseStore) Put(ctx context.Context, token Token) error {
	if err := token.validate(); err != nil {
		return err
	}

	row := models.PasswordResetToken{
		Token:      token.Token,
		Email:      token.Email,
		CustomerID: token.CustomerID,
		IssuedAt:   truncate(token.IssuedAt).UTC(),
	}

	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "token"}},
			DoUpdates: clause.AssignmentColumns([]string{"email", "customer_id", "issued_at"}),
		}).
		Create(&row).Error
	if err != nil {
		s.recordFailure("put", err)
		return fmt.Errorf("%w: %v", ErrPersist, err)
	}
	return nil
}

// Get sweeps expired rows and returns the live record for token.
func (s *DatabaseStore) Get(ctx context.Context, token string) (*Token, error) {
	if _, err := s.Sweep(ctx); err != nil {
		return nil, err
	}

	var row models.PasswordResetToken
	err := s.db.WithContext(ctx).Take(&row, "token = ?", token).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("resettoken: load token: %w", err)
	}

	result := Token{
		Token:      row.Token,
		Email:      row.Email,
		CustomerID: row.CustomerID,
		IssuedAt:   row.IssuedAt,
	}
	if result.Expired(s.opts.clock(), s.opts.ttl) {
		return nil, ErrNotFound
	}
	return &result, nil
}

// Delete removes token. Unknown tokens are ignored.
func (s *DatabaseStore) Delete(ctx context.Context, token string) error {
	err := s.db.WithContext(ctx).
		Where("token = ?", token).
		Delete(&models.PasswordResetToken{}).Error
	return s.failure("delete", err)
}

// DeleteByCustomer removes every token issued to customerID.
func (s *DatabaseStore) DeleteByCustomer(ctx context.Context, customerID string) (int, error) {
	res := s.db.WithContext(ctx).
		Where("customer_id = ?", customerID).
		Delete(&models.PasswordResetToken{})
	if res.Error != nil {
		return 0, s.failure("delete customer tokens", res.Error)
	}
	return int(res.RowsAffected), nil
}

// Sweep deletes rows issued more than one lifetime ago.
func (s *DatabaseStore) Sweep(ctx context.Context) (int, error) {
	cutoff := s.opts.clock().Add(-s.opts.ttl).UTC()
	res := s.db.WithContext(ctx).
		Where("issued_at < ?", cutoff).
		Delete(&models.PasswordResetToken{})
	if res.Error != nil {
		return 0, s.failure("sweep", res.Error)
	}
	if res.RowsAffected > 0 {
		metrics.TokensSwept.Add(float64(res.RowsAffected))
	}
	return int(res.RowsAffected), nil
}

// Ping checks the database connection.
func (s *DatabaseStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (s *DatabaseStore) recordFailure(op string, err error) {
	metrics.TokenStoreFailures.WithLabelValues("database").Inc()
	s.opts.log.Error("reset token store write failed", zap.String("op", op), zap.Error(err))
}

// failure applies the durability policy to writes that only remove tokens.
func (s *DatabaseStore) failure(op string, err error) error {
	if err == nil {
		return nil
	}

	s.recordFailure(op, err)
	if s.opts.bestEffort {
		return nil
	}
	return fmt.Errorf("%w: %v", ErrPersist, err)
}
