package auth

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"exam-system/internal/apperr"
	"exam-system/internal/identity"
	"exam-system/internal/models"
	"exam-system/pkg/database"
)

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) conn(ctx context.Context, tx *gorm.DB) *gorm.DB {
	return database.Conn(ctx, r.db, tx)
}

func (r *Repository) Transaction(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return r.db.WithContext(ctx).Transaction(fn)
}

func (r *Repository) GetAccountByUsername(ctx context.Context, username string) (*models.Account, error) {
	var acc models.Account
	if err := r.conn(ctx, nil).Where("username = ?", username).First(&acc).Error; err != nil {
		return nil, database.Translate(err, "account")
	}
	return &acc, nil
}

func (r *Repository) GetAccount(ctx context.Context, id uint) (*models.Account, error) {
	var acc models.Account
	if err := r.conn(ctx, nil).First(&acc, id).Error; err != nil {
		return nil, database.Translate(err, "account")
	}
	return &acc, nil
}

// profileID returns the id of the profile row of model owned by accountID.
func (r *Repository) profileID(ctx context.Context, model interface{}, accountID uint, what string) (uint, error) {
	var row struct{ ID uint }
	err := r.conn(ctx, nil).Model(model).Select("id").Where("account_id = ?", accountID).Take(&row).Error
	if err != nil {
		return 0, database.Translate(err, what)
	}
	return row.ID, nil
}

// Identity resolves the role-tagged identity of an account from its profile.
func (r *Repository) Identity(ctx context.Context, acc *models.Account) (identity.Identity, error) {
	switch acc.Role {
	case identity.RoleAdmin:
		return identity.Admin(acc.ID), nil

	case identity.RoleInstitute:
		id, err := r.profileID(ctx, &models.Institute{}, acc.ID, "institute")
		if err != nil {
			return identity.Identity{}, err
		}
		return identity.Institute(acc.ID, id), nil

	case identity.RoleTeacher:
		var t models.Teacher
		if err := r.conn(ctx, nil).Where("account_id = ?", acc.ID).Take(&t).Error; err != nil {
			return identity.Identity{}, database.Translate(err, "teacher")
		}
		return identity.Teacher(acc.ID, t.ID, t.InstituteID), nil

	case identity.RoleStudent:
		var s models.Student
		if err := r.conn(ctx, nil).Where("account_id = ?", acc.ID).Take(&s).Error; err != nil {
			return identity.Identity{}, database.Translate(err, "student")
		}
		return identity.Student(acc.ID, s.ID, s.InstituteID), nil
	}
	return identity.Identity{}, apperr.Unauthenticated("account has no recognised role")
}

// Taken reports whether a row of model already has value in column.
func (r *Repository) Taken(ctx context.Context, tx *gorm.DB, model interface{}, column string, value interface{}) (bool, error) {
	var n int64
	err := r.conn(ctx, tx).Model(model).Where(clause.Eq{Column: clause.Column{Name: column}, Value: value}).Count(&n).Error
	return n > 0, database.Translate(err, column)
}

func (r *Repository) Exists(ctx context.Context, tx *gorm.DB, model interface{}, id uint) (bool, error) {
	var n int64
	err := r.conn(ctx, tx).Model(model).Where("id = ?", id).Count(&n).Error
	return n > 0, database.Translate(err, "record")
}

func (r *Repository) Create(ctx context.Context, tx *gorm.DB, v interface{}, what string) error {
	return database.Translate(r.conn(ctx, tx).Omit(clause.Associations).Create(v).Error, what)
}

func (r *Repository) TouchLastLogin(ctx context.Context, id uint, at time.Time) error {
	err := r.conn(ctx, nil).Model(&models.Account{}).Where("id = ?", id).Update("last_login", at).Error
	return database.Translate(err, "account")
}
