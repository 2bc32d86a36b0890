package store

import (
	"context"
	"errors"
	"strings"

	"github.com/foodtrust/foodtrust_backend/models"
	mysqlDriver "github.com/go-sql-driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormStore persists to the relational database behind a *gorm.DB.
type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) DB() *gorm.DB {
	return s.db
}

func isDuplicateKeyErr(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var mysqlErr *mysqlDriver.MySQLError
	if errors.As(err, &mysqlErr) {
		return mysqlErr.Number == 1062
	}
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return ErrNotFound
	case isDuplicateKeyErr(err):
		return ErrDuplicate
	}
	return err
}

func (s *GormStore) CreateRestaurant(ctx context.Context, r *models.Restaurant) error {
	return translate(s.db.WithContext(ctx).Create(r).Error)
}

func (s *GormStore) GetRestaurant(ctx context.Context, id string) (*models.Restaurant, error) {
	var r models.Restaurant
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&r).Error; err != nil {
		return nil, translate(err)
	}
	return &r, nil
}

func (s *GormStore) ListRestaurants(ctx context.Context, filter RestaurantFilter) ([]*models.Restaurant, error) {
	var results []*models.Restaurant
	dbCtx := s.db.WithContext(ctx)
	if name := strings.TrimSpace(filter.Name); name != "" {
		dbCtx = dbCtx.Where("LOWER(name) LIKE ?", "%"+strings.ToLower(name)+"%")
	}
	if err := dbCtx.Order("created_at, id").Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (s *GormStore) DeleteRestaurant(ctx context.Context, id string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var r models.Restaurant
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("id = ?", id).First(&r).Error; err != nil {
			return translate(err)
		}
		var pending int64
		if err := tx.Model(&models.Certification{}).
			Where("restaurant_id = ? AND status = ?", id, models.CertificationStatusPending).
			Count(&pending).Error; err != nil {
			return err
		}
		if pending > 0 {
			return ErrConflict
		}
		if err := tx.Where("certification_id IN (?)",
			tx.Model(&models.Certification{}).Select("id").Where("restaurant_id = ?", id)).
			Delete(&models.IssuanceAttempt{}).Error; err != nil {
			return err
		}
		if err := tx.Where("restaurant_id = ?", id).Delete(&models.Certification{}).Error; err != nil {
			return err
		}
		return tx.Delete(&r).Error
	})
}

func (s *GormStore) CreateAuditor(ctx context.Context, a *models.Auditor) error {
	return translate(s.db.WithContext(ctx).Create(a).Error)
}

func (s *GormStore) GetAuditor(ctx context.Context, id string) (*models.Auditor, error) {
	var a models.Auditor
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&a).Error; err != nil {
		return nil, translate(err)
	}
	return &a, nil
}

func (s *GormStore) GetAuditorByEmail(ctx context.Context, email string) (*models.Auditor, error) {
	var a models.Auditor
	if err := s.db.WithContext(ctx).Where("email = ?", strings.ToLower(email)).First(&a).Error; err != nil {
		return nil, translate(err)
	}
	return &a, nil
}

func (s *GormStore) ListAuditors(ctx context.Context, filter AuditorFilter) ([]*models.Auditor, error) {
	var all []*models.Auditor
	dbCtx := s.db.WithContext(ctx)
	if filter.ActiveOnly {
		dbCtx = dbCtx.Where("is_active = ?", true)
	}
	if err := dbCtx.Order("created_at, id").Find(&all).Error; err != nil {
		return nil, err
	}
	if filter.Specialization == "" {
		return all, nil
	}
	// specializations is a JSON text column, filtered after load
	results := make([]*models.Auditor, 0, len(all))
	for _, a := range all {
		if a.Specializations.Contains(filter.Specialization) {
			results = append(results, a)
		}
	}
	return results, nil
}

func (s *GormStore) SetAuditorActive(ctx context.Context, id string, active bool) (*models.Auditor, error) {
	res := s.db.WithContext(ctx).Model(&models.Auditor{}).Where("id = ?", id).Update("is_active", active)
	if res.Error != nil {
		return nil, res.Error
	}
	// RowsAffected is zero for an unchanged value on MySQL, so re-read instead
	return s.GetAuditor(ctx, id)
}

func (s *GormStore) CreateCertification(ctx context.Context, c *models.Certification) error {
	return translate(s.db.WithContext(ctx).Create(c).Error)
}

func (s *GormStore) GetCertification(ctx context.Context, id string) (*models.Certification, error) {
	var c models.Certification
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&c).Error; err != nil {
		return nil, translate(err)
	}
	return &c, nil
}

func (s *GormStore) FindPending(ctx context.Context, restaurantId string, certType models.CertificationType) (*models.Certification, error) {
	var c models.Certification
	err := s.db.WithContext(ctx).
		Where("pending_key = ?", models.PendingKeyFor(restaurantId, certType)).
		Limit(1).Find(&c).Error
	if err != nil {
		return nil, err
	}
	if c.ID == "" {
		return nil, nil
	}
	return &c, nil
}

func (s *GormStore) ListCertifications(ctx context.Context, filter CertificationFilter) ([]*models.Certification, error) {
	var results []*models.Certification
	dbCtx := s.db.WithContext(ctx)
	if filter.RestaurantId != "" {
		dbCtx = dbCtx.Where("restaurant_id = ?", filter.RestaurantId)
	}
	if filter.AuditorId != "" {
		dbCtx = dbCtx.Where("auditor_id = ?", filter.AuditorId)
	}
	if filter.Status != "" {
		dbCtx = dbCtx.Where("status = ?", filter.Status)
	}
	if filter.CertificationType != "" {
		dbCtx = dbCtx.Where("certification_type = ?", strings.ToLower(string(filter.CertificationType)))
	}
	if err := dbCtx.Order("created_at, id").Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (s *GormStore) FinalizeApproval(ctx context.Context, a Approval) (*models.Certification, error) {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Certification{}).
			Where("id = ? AND status = ?", a.CertificationId, models.CertificationStatusPending).
			Updates(map[string]interface{}{
				"status":           models.CertificationStatusApproved,
				"auditor_id":       a.AuditorId,
				"issued_at":        a.IssuedAt,
				"expires_at":       a.ExpiresAt,
				"decided_at":       a.IssuedAt,
				"transaction_hash": a.TransactionHash,
				"asset_code":       a.AssetCode,
				"pending_key":      nil,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrConflict
		}

		res = tx.Model(&models.Auditor{}).
			Where("id = ?", a.AuditorId).
			UpdateColumn("certifications_issued", gorm.Expr("certifications_issued + ?", 1))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}

		return tx.Model(&models.IssuanceAttempt{}).
			Where("certification_id = ?", a.CertificationId).
			Updates(map[string]interface{}{
				"status":           models.IssuanceStatusSucceeded,
				"transaction_hash": a.TransactionHash,
				"last_error":       nil,
			}).Error
	})
	if err != nil {
		return nil, err
	}
	return s.GetCertification(ctx, a.CertificationId)
}

func (s *GormStore) RejectCertification(ctx context.Context, r Rejection) (*models.Certification, error) {
	res := s.db.WithContext(ctx).Model(&models.Certification{}).
		Where("id = ? AND status = ?", r.CertificationId, models.CertificationStatusPending).
		Updates(map[string]interface{}{
			"status":      models.CertificationStatusRejected,
			"auditor_id":  r.AuditorId,
			"notes":       r.Notes,
			"decided_at":  r.DecidedAt,
			"pending_key": nil,
		})
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, ErrConflict
	}
	return s.GetCertification(ctx, r.CertificationId)
}

func (s *GormStore) GetIssuanceAttempt(ctx context.Context, certificationId string) (*models.IssuanceAttempt, error) {
	var attempt models.IssuanceAttempt
	err := s.db.WithContext(ctx).Where("certification_id = ?", certificationId).Limit(1).Find(&attempt).Error
	if err != nil {
		return nil, err
	}
	if attempt.CertificationId == "" {
		return nil, nil
	}
	return &attempt, nil
}

func (s *GormStore) PutIssuanceAttempt(ctx context.Context, a *models.IssuanceAttempt) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing models.IssuanceAttempt
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("certification_id = ?", a.CertificationId).Limit(1).Find(&existing).Error
		if err != nil {
			return err
		}
		if existing.CertificationId != "" && existing.Status == models.IssuanceStatusStarted {
			return ErrConflict
		}
		err = tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "certification_id"}},
			UpdateAll: true,
		}).Create(a).Error
		if isDuplicateKeyErr(err) {
			// a concurrent writer inserted first
			return ErrConflict
		}
		return err
	})
}

func (s *GormStore) MarkIssuanceFailed(ctx context.Context, certificationId string, reason string) error {
	return s.db.WithContext(ctx).Model(&models.IssuanceAttempt{}).
		Where("certification_id = ?", certificationId).
		Updates(map[string]interface{}{"status": models.IssuanceStatusFailed, "last_error": &reason}).Error
}

func (s *GormStore) CreateUser(ctx context.Context, u *models.User) error {
	return translate(s.db.WithContext(ctx).Create(u).Error)
}

func (s *GormStore) GetUser(ctx context.Context, id string) (*models.User, error) {
	var u models.User
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&u).Error; err != nil {
		return nil, translate(err)
	}
	return &u, nil
}

func (s *GormStore) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	var u models.User
	if err := s.db.WithContext(ctx).Where("email = ?", strings.ToLower(email)).First(&u).Error; err != nil {
		return nil, translate(err)
	}
	return &u, nil
}

func (s *GormStore) UpdateUser(ctx context.Context, u *models.User) error {
	res := s.db.WithContext(ctx).Model(&models.User{}).
		Where("id = ?", u.ID).
		Updates(map[string]interface{}{
			"name":     u.Name,
			"email":    strings.ToLower(u.Email),
			"password": u.Password,
		})
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	updated, err := s.GetUser(ctx, u.ID)
	if err != nil {
		return err
	}
	*u = *updated
	return nil
}

func (s *GormStore) ListUsers(ctx context.Context, filter UserFilter) ([]*models.User, error) {
	var results []*models.User
	dbCtx := s.db.WithContext(ctx)
	if name := strings.TrimSpace(filter.Name); name != "" {
		dbCtx = dbCtx.Where("LOWER(name) LIKE ?", "%"+strings.ToLower(name)+"%")
	}
	if email := strings.TrimSpace(filter.Email); email != "" {
		dbCtx = dbCtx.Where("LOWER(email) LIKE ?", "%"+strings.ToLower(email)+"%")
	}
	if err := dbCtx.Order("created_at, id").Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (s *GormStore) DeleteUser(ctx context.Context, id string) error {
	res := s.db.WithContext(ctx).Where("id = ?", id).Delete(&models.User{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
