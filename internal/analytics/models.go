// Package analytics 预置销售分析查询
package analytics

import "time"

// Product 商品
type Product struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	Name      string    `json:"name" gorm:"size:200;not null"`
	Category  string    `json:"category" gorm:"size:100;index"`
	Price     float64   `json:"price" gorm:"not null"`
	CreatedAt time.Time `json:"createdAt" gorm:"autoCreateTime"`
}

// Customer 客户
type Customer struct {
	ID         uint      `json:"id" gorm:"primaryKey"`
	Name       string    `json:"name" gorm:"size:200;not null"`
	Email      string    `json:"email" gorm:"size:320;uniqueIndex"`
	Segment    string    `json:"segment" gorm:"size:50;index"` // enterprise, smb, consumer
	Region     string    `json:"region" gorm:"size:50;index"`
	SignupDate time.Time `json:"signupDate"`
}

// Order 订单
type Order struct {
	ID         uint      `json:"id" gorm:"primaryKey"`
	CustomerID uint      `json:"customerId" gorm:"index;not null"`
	OrderDate  time.Time `json:"orderDate" gorm:"index;not null"`
	Status     string    `json:"status" gorm:"size:30;index"` // placed, shipped, delivered, cancelled, returned
	Total      float64   `json:"total"`
}

// OrderItem 订单行
type OrderItem struct {
	ID        uint    `json:"id" gorm:"primaryKey"`
	OrderID   uint    `json:"orderId" gorm:"index;not null"`
	ProductID uint    `json:"productId" gorm:"index;not null"`
	Quantity  int     `json:"quantity" gorm:"not null"`
	UnitPrice float64 `json:"unitPrice" gorm:"not null"`
}

// DeliveryLog 物流记录
type DeliveryLog struct {
	ID          uint       `json:"id" gorm:"primaryKey"`
	OrderID     uint       `json:"orderId" gorm:"index;not null"`
	Carrier     string     `json:"carrier" gorm:"size:100"`
	Status      string     `json:"status" gorm:"size:30"` // in_transit, delivered, delayed, lost
	ShippedAt   *time.Time `json:"shippedAt"`
	DeliveredAt *time.Time `json:"deliveredAt"`
}

// SupportTicket 客服工单
type SupportTicket struct {
	ID           uint       `json:"id" gorm:"primaryKey"`
	CustomerID   uint       `json:"customerId" gorm:"index;not null"`
	Category     string     `json:"category" gorm:"size:50"` // billing, delivery, product, other
	Status       string     `json:"status" gorm:"size:30"`   // open, pending, resolved
	Satisfaction *int       `json:"satisfaction"`            // 1-5, 关单后填写
	CreatedAt    time.Time  `json:"createdAt" gorm:"autoCreateTime"`
	ResolvedAt   *time.Time `json:"resolvedAt"`
}

// AllModels 分析域全部表模型, 用于迁移与造数
func AllModels() []any {
	return []any{
		&Product{}, &Customer{}, &Order{}, &OrderItem{}, &DeliveryLog{}, &SupportTicket{},
	}
}
