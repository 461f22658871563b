// Package seed 生成演示用的销售业务数据
package seed

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"backend/internal/analytics"
	"backend/internal/logger"
)

// Options 造数规模参数, 零值字段使用默认规模
type Options struct {
	Products  int
	Customers int
	Orders    int
	Seed      int64 // 随机种子, 0 表示随机
}

// 客户分层与订单状态的取值空间
var (
	segments      = []string{"enterprise", "smb", "consumer"}
	regions       = []string{"east", "west", "north", "south"}
	orderStatuses = []string{"placed", "shipped", "delivered", "delivered", "delivered", "cancelled", "returned"}
	carriers      = []string{"SF Express", "DHL", "FedEx", "UPS"}
	ticketCats    = []string{"billing", "delivery", "product", "other"}
)

// Seeder 演示数据生成器
type Seeder struct {
	db    *gorm.DB
	faker *gofakeit.Faker
	rng   *rand.Rand
	log   *zap.Logger
}

// New 创建生成器。相同 seed 产出相同数据, 方便演示结果可复现。
func New(db *gorm.DB, seed int64) *Seeder {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Seeder{
		db:    db,
		faker: gofakeit.New(uint64(seed)),
		rng:   rand.New(rand.NewSource(seed)),
		log:   logger.Named("seed"),
	}
}

// Run 迁移表结构并生成全套演示数据
func (s *Seeder) Run(opts Options) error {
	if opts.Products <= 0 {
		opts.Products = 40
	}
	if opts.Customers <= 0 {
		opts.Customers = 200
	}
	if opts.Orders <= 0 {
		opts.Orders = 1500
	}

	if err := s.db.AutoMigrate(analytics.AllModels()...); err != nil {
		return fmt.Errorf("迁移业务表失败: %w", err)
	}

	products, err := s.seedProducts(opts.Products)
	if err != nil {
		return err
	}
	customers, err := s.seedCustomers(opts.Customers)
	if err != nil {
		return err
	}
	orders, err := s.seedOrders(opts.Orders, customers, products)
	if err != nil {
		return err
	}
	if err := s.seedDeliveryLogs(orders); err != nil {
		return err
	}
	if err := s.seedSupportTickets(customers); err != nil {
		return err
	}

	s.log.Info("演示数据生成完成",
		zap.Int("products", len(products)),
		zap.Int("customers", len(customers)),
		zap.Int("orders", len(orders)))
	return nil
}

func (s *Seeder) seedProducts(n int) ([]analytics.Product, error) {
	products := make([]analytics.Product, n)
	for i := range products {
		products[i] = analytics.Product{
			Name:     s.faker.ProductName(),
			Category: s.faker.ProductCategory(),
			Price:    round2(s.faker.Price(5, 900)),
		}
	}
	if err := s.db.CreateInBatches(products, 200).Error; err != nil {
		return nil, fmt.Errorf("生成商品失败: %w", err)
	}
	return products, nil
}

func (s *Seeder) seedCustomers(n int) ([]analytics.Customer, error) {
	customers := make([]analytics.Customer, n)
	for i := range customers {
		customers[i] = analytics.Customer{
			Name:       s.faker.Company(),
			Email:      fmt.Sprintf("%d.%s", i, s.faker.Email()),
			Segment:    segments[s.rng.Intn(len(segments))],
			Region:     regions[s.rng.Intn(len(regions))],
			SignupDate: s.pastDate(730),
		}
	}
	if err := s.db.CreateInBatches(customers, 200).Error; err != nil {
		return nil, fmt.Errorf("生成客户失败: %w", err)
	}
	return customers, nil
}

func (s *Seeder) seedOrders(n int, customers []analytics.Customer, products []analytics.Product) ([]analytics.Order, error) {
	orders := make([]analytics.Order, n)
	for i := range orders {
		orders[i] = analytics.Order{
			CustomerID: customers[s.rng.Intn(len(customers))].ID,
			OrderDate:  s.pastDate(365),
			Status:     orderStatuses[s.rng.Intn(len(orderStatuses))],
		}
	}
	if err := s.db.CreateInBatches(orders, 200).Error; err != nil {
		return nil, fmt.Errorf("生成订单失败: %w", err)
	}

	var items []analytics.OrderItem
	for i := range orders {
		lines := 1 + s.rng.Intn(4)
		total := 0.0
		for j := 0; j < lines; j++ {
			product := products[s.rng.Intn(len(products))]
			qty := 1 + s.rng.Intn(5)
			items = append(items, analytics.OrderItem{
				OrderID:   orders[i].ID,
				ProductID: product.ID,
				Quantity:  qty,
				UnitPrice: product.Price,
			})
			total += float64(qty) * product.Price
		}
		orders[i].Total = round2(total)
	}
	if err := s.db.CreateInBatches(items, 500).Error; err != nil {
		return nil, fmt.Errorf("生成订单行失败: %w", err)
	}
	// 订单行确定后回填订单总额
	for i := range orders {
		if err := s.db.Model(&analytics.Order{}).
			Where("id = ?", orders[i].ID).
			Update("total", orders[i].Total).Error; err != nil {
			return nil, fmt.Errorf("回填订单总额失败: %w", err)
		}
	}
	return orders, nil
}

func (s *Seeder) seedDeliveryLogs(orders []analytics.Order) error {
	var logs []analytics.DeliveryLog
	for _, order := range orders {
		if order.Status != "shipped" && order.Status != "delivered" {
			continue
		}

		shipped := order.OrderDate.Add(time.Duration(1+s.rng.Intn(48)) * time.Hour)
		entry := analytics.DeliveryLog{
			OrderID:   order.ID,
			Carrier:   carriers[s.rng.Intn(len(carriers))],
			Status:    "in_transit",
			ShippedAt: &shipped,
		}
		if order.Status == "delivered" {
			delivered := shipped.Add(time.Duration(12+s.rng.Intn(120)) * time.Hour)
			entry.Status = "delivered"
			entry.DeliveredAt = &delivered
		}
		logs = append(logs, entry)
	}
	if len(logs) == 0 {
		return nil
	}
	if err := s.db.CreateInBatches(logs, 500).Error; err != nil {
		return fmt.Errorf("生成物流记录失败: %w", err)
	}
	return nil
}

func (s *Seeder) seedSupportTickets(customers []analytics.Customer) error {
	var tickets []analytics.SupportTicket
	for _, customer := range customers {
		for j := 0; j < s.rng.Intn(3); j++ {
			ticket := analytics.SupportTicket{
				CustomerID: customer.ID,
				Category:   ticketCats[s.rng.Intn(len(ticketCats))],
				Status:     "open",
			}
			if s.rng.Intn(10) < 7 {
				resolved := s.pastDate(90)
				score := 1 + s.rng.Intn(5)
				ticket.Status = "resolved"
				ticket.ResolvedAt = &resolved
				ticket.Satisfaction = &score
			}
			tickets = append(tickets, ticket)
		}
	}
	if len(tickets) == 0 {
		return nil
	}
	if err := s.db.CreateInBatches(tickets, 500).Error; err != nil {
		return fmt.Errorf("生成客服工单失败: %w", err)
	}
	return nil
}

// pastDate 过去 maxDays 天内的随机时间
func (s *Seeder) pastDate(maxDays int) time.Time {
	return time.Now().Add(-time.Duration(s.rng.Intn(maxDays*24)) * time.Hour)
}

func round2(v float64) float64 {
	return float64(int(v*100+0.5)) / 100
}
