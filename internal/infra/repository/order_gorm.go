package repository

import (
	"context"
	"errors"
	"time"

	"checkout/internal/domain/model"
	repo "checkout/internal/repository"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// orders テーブルの1行。明細はJSONカラムにまとめて持つ
type orderRecord struct {
	ID            string                              `gorm:"type:varchar(64);primaryKey"`
	TemplateID    string                              `gorm:"type:varchar(64);not null"`
	Amount        int64                               `gorm:"not null"`
	Currency      string                              `gorm:"type:char(3);not null"`
	Packages      datatypes.JSONType[[]model.Package] `gorm:"not null"`
	TransactionID string                              `gorm:"type:varchar(64);index"`
	Status        model.OrderStatus                   `gorm:"type:varchar(32);not null;index"`
	CreatedAt     time.Time                           `gorm:"not null;autoCreateTime"`
	UpdatedAt     time.Time                           `gorm:"not null;autoUpdateTime"`
}

func (orderRecord) TableName() string { return "orders" }

func toOrderRecord(o model.Order) orderRecord {
	return orderRecord{
		ID:            o.ID,
		TemplateID:    o.TemplateID,
		Amount:        o.Amount,
		Currency:      o.Currency,
		Packages:      datatypes.NewJSONType(model.ClonePackages(o.Packages)),
		TransactionID: o.TransactionID,
		Status:        o.Status,
		CreatedAt:     o.CreatedAt,
		UpdatedAt:     o.UpdatedAt,
	}
}

func (r orderRecord) toModel() model.Order {
	return model.Order{
		ID:            r.ID,
		TemplateID:    r.TemplateID,
		Amount:        r.Amount,
		Currency:      r.Currency,
		Packages:      r.Packages.Data(),
		TransactionID: r.TransactionID,
		Status:        r.Status,
		CreatedAt:     r.CreatedAt,
		UpdatedAt:     r.UpdatedAt,
	}
}

// ORDER_STORE=postgres のときに使う永続版
type OrderGormRepository struct {
	db *gorm.DB
}

func NewOrderGormRepository(db *gorm.DB) *OrderGormRepository {
	return &OrderGormRepository{db: db}
}

// AutoMigrate は orders テーブルを作成・更新する
func (r *OrderGormRepository) AutoMigrate() error {
	return r.db.AutoMigrate(&orderRecord{})
}

func (r *OrderGormRepository) Create(ctx context.Context, order model.Order) error {
	rec := toOrderRecord(order)
	return r.db.WithContext(ctx).Create(&rec).Error
}

func (r *OrderGormRepository) FindByID(ctx context.Context, orderID string) (model.Order, error) {
	var rec orderRecord
	err := r.db.WithContext(ctx).Where("id = ?", orderID).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.Order{}, repo.ErrNotFound
	}
	if err != nil {
		return model.Order{}, err
	}
	return rec.toModel(), nil
}

func (r *OrderGormRepository) UpdatePayment(ctx context.Context, orderID string, u repo.PaymentUpdate) error {
	values := map[string]interface{}{"status": u.Status}
	if u.TransactionID != "" {
		values["transaction_id"] = u.TransactionID
	}

	res := r.db.WithContext(ctx).Model(&orderRecord{}).
		Where("id = ?", orderID).
		Updates(values)

	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return repo.ErrNotFound
	}
	return nil
}
