package repository

import (
	"github.com/trannm/healthpulse/internal/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// TemplateRepository handles database operations for notification templates
type TemplateRepository struct {
	db *gorm.DB
}

func NewTemplateRepository(db *gorm.DB) *TemplateRepository {
	return &TemplateRepository{db: db}
}

// FindByType looks a template up by notification type
func (r *TemplateRepository) FindByType(typ model.NotificationType) (*model.Template, error) {
	var tpl model.Template
	err := r.db.Where("type = ?", typ).First(&tpl).Error
	if err != nil {
		return nil, err
	}
	return &tpl, nil
}

// Upsert creates or updates the template for a type
func (r *TemplateRepository) Upsert(tpl *model.Template) error {
	return r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "type"}},
		DoUpdates: clause.AssignmentColumns([]string{"title", "body", "metadata", "updated_at"}),
	}).Create(tpl).Error
}

// ListAll returns every template
func (r *TemplateRepository) ListAll() ([]model.Template, error) {
	var tpls []model.Template
	err := r.db.Order("type").Find(&tpls).Error
	return tpls, err
}
