package tenancy

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"exam-system/internal/authz"
	"exam-system/internal/models"
	"exam-system/internal/scoping"
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

func withAccount(db *gorm.DB) *gorm.DB { return db.Preload("Account") }

func (r *Repository) get(ctx context.Context, tx *gorm.DB, v interface{}, id uint, what string) error {
	return database.Translate(r.conn(ctx, tx).Scopes(withAccount).First(v, id).Error, what)
}

func (r *Repository) GetInstitute(ctx context.Context, tx *gorm.DB, id uint) (*models.Institute, error) {
	var inst models.Institute
	if err := r.get(ctx, tx, &inst, id, "institute"); err != nil {
		return nil, err
	}
	return &inst, nil
}

func (r *Repository) GetTeacher(ctx context.Context, tx *gorm.DB, id uint) (*models.Teacher, error) {
	var t models.Teacher
	if err := r.get(ctx, tx, &t, id, "teacher"); err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *Repository) GetStudent(ctx context.Context, tx *gorm.DB, id uint) (*models.Student, error) {
	var s models.Student
	if err := r.conn(ctx, tx).Scopes(withAccount).Preload("Major").First(&s, id).Error; err != nil {
		return nil, database.Translate(err, "student")
	}
	return &s, nil
}

func (r *Repository) GetMajor(ctx context.Context, tx *gorm.DB, id uint) (*models.Major, error) {
	var m models.Major
	if err := r.conn(ctx, tx).First(&m, id).Error; err != nil {
		return nil, database.Translate(err, "major")
	}
	return &m, nil
}

func (r *Repository) GetAccount(ctx context.Context, tx *gorm.DB, id uint) (*models.Account, error) {
	var acc models.Account
	if err := r.conn(ctx, tx).First(&acc, id).Error; err != nil {
		return nil, database.Translate(err, "account")
	}
	return &acc, nil
}

type InstituteFilter struct {
	Name string
}

func (r *Repository) ListInstitutes(ctx context.Context, scope authz.Scope, f InstituteFilter) ([]models.Institute, error) {
	q := r.conn(ctx, nil).Scopes(withAccount, scoping.ByInstitute(scope, "institutes.id", "", ""))
	if f.Name != "" {
		q = q.Where("institutes.name LIKE ?", "%"+f.Name+"%")
	}
	var out []models.Institute
	err := q.Order("institutes.id").Find(&out).Error
	return out, database.Translate(err, "institute")
}

type ProfileFilter struct {
	InstituteID uint
	MajorID     uint
}

func (r *Repository) ListTeachers(ctx context.Context, scope authz.Scope, f ProfileFilter) ([]models.Teacher, error) {
	q := r.conn(ctx, nil).Scopes(withAccount, scoping.ByInstitute(scope, "teachers.institute_id", "teachers.id", ""))
	if f.InstituteID != 0 {
		q = q.Where("teachers.institute_id = ?", f.InstituteID)
	}
	var out []models.Teacher
	err := q.Order("teachers.id").Find(&out).Error
	return out, database.Translate(err, "teacher")
}

func (r *Repository) ListStudents(ctx context.Context, scope authz.Scope, f ProfileFilter) ([]models.Student, error) {
	q := r.conn(ctx, nil).Scopes(withAccount, scoping.ByInstitute(scope, "students.institute_id", "", "students.id")).
		Preload("Major")
	if f.InstituteID != 0 {
		q = q.Where("students.institute_id = ?", f.InstituteID)
	}
	if f.MajorID != 0 {
		q = q.Where("students.major_id = ?", f.MajorID)
	}
	var out []models.Student
	err := q.Order("students.id").Find(&out).Error
	return out, database.Translate(err, "student")
}

func (r *Repository) ListMajors(ctx context.Context) ([]models.Major, error) {
	var out []models.Major
	err := r.conn(ctx, nil).Order("name").Find(&out).Error
	return out, database.Translate(err, "major")
}

// Taken reports whether another row of model than exceptID has value in column.
func (r *Repository) Taken(ctx context.Context, tx *gorm.DB, model interface{}, column string, value interface{}, exceptID uint) (bool, error) {
	var n int64
	err := r.conn(ctx, tx).Model(model).
		Where(clause.Eq{Column: clause.Column{Name: column}, Value: value}).
		Where("id <> ?", exceptID).
		Count(&n).Error
	return n > 0, database.Translate(err, column)
}

func (r *Repository) Count(ctx context.Context, tx *gorm.DB, model interface{}, query string, args ...interface{}) (int64, error) {
	var n int64
	err := r.conn(ctx, tx).Model(model).Where(query, args...).Count(&n).Error
	return n, database.Translate(err, "record")
}

func (r *Repository) Create(ctx context.Context, tx *gorm.DB, v interface{}, what string) error {
	return database.Translate(r.conn(ctx, tx).Omit(clause.Associations).Create(v).Error, what)
}

func (r *Repository) Save(ctx context.Context, tx *gorm.DB, v interface{}, what string) error {
	return database.Translate(r.conn(ctx, tx).Omit(clause.Associations).Save(v).Error, what)
}

func (r *Repository) Delete(ctx context.Context, tx *gorm.DB, v interface{}, id uint, what string) error {
	return database.Translate(r.conn(ctx, tx).Delete(v, id).Error, what)
}

func (r *Repository) SetActive(ctx context.Context, id uint, active bool) error {
	err := r.conn(ctx, nil).Model(&models.Account{}).Where("id = ?", id).Update("is_active", active).Error
	return database.Translate(err, "account")
}
