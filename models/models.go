package models

import "time"

type User struct {
	UserID string `gorm:"primaryKey" json:"userId"`
	Name   string `json:"name"`
	Email  string `json:"email"`
}

type Product struct {
	ProductID     string     `gorm:"primaryKey" json:"productId"`
	Name          string     `json:"name"`
	Price         float64    `json:"price"`
	Rating        *float64   `json:"rating"`
	StockQuantity int        `json:"stockQuantity"`
	Sales         []Sale     `gorm:"foreignKey:ProductID" json:"-"`
	Purchases     []Purchase `gorm:"foreignKey:ProductID" json:"-"`
}

type Sale struct {
	SaleID      string    `gorm:"primaryKey" json:"saleId"`
	ProductID   string    `gorm:"not null;index" json:"productId"`
	Timestamp   time.Time `json:"timestamp"`
	Quantity    int       `json:"quantity"`
	UnitPrice   float64   `json:"unitPrice"`
	TotalAmount float64   `json:"totalAmount"`
}

type Purchase struct {
	PurchaseID string    `gorm:"primaryKey" json:"purchaseId"`
	ProductID  string    `gorm:"not null;index" json:"productId"`
	Timestamp  time.Time `json:"timestamp"`
	Quantity   int       `json:"quantity"`
	UnitCost   float64   `json:"unitCost"`
	TotalCost  float64   `json:"totalCost"`
}

type Expense struct {
	ExpenseID string    `gorm:"primaryKey" json:"expenseId"`
	Category  string    `json:"category"`
	Amount    float64   `json:"amount"`
	Timestamp time.Time `json:"timestamp"`
}

type SalesSummary struct {
	SalesSummaryID   string    `gorm:"primaryKey" json:"salesSummaryId"`
	TotalValue       float64   `json:"totalValue"`
	ChangePercentage *float64  `json:"changePercentage"`
	Date             time.Time `json:"date"`
}

type PurchaseSummary struct {
	PurchaseSummaryID string    `gorm:"primaryKey" json:"purchaseSummaryId"`
	TotalPurchased    float64   `json:"totalPurchased"`
	ChangePercentage  *float64  `json:"changePercentage"`
	Date              time.Time `json:"date"`
}

type ExpenseSummary struct {
	ExpenseSummaryID  string              `gorm:"primaryKey" json:"expenseSummaryId"`
	TotalExpenses     float64             `json:"totalExpenses"`
	Date              time.Time           `json:"date"`
	ExpenseByCategory []ExpenseByCategory `gorm:"foreignKey:ExpenseSummaryID" json:"-"`
}

type ExpenseByCategory struct {
	ExpenseByCategoryID string    `gorm:"primaryKey" json:"expenseByCategoryId"`
	ExpenseSummaryID    string    `gorm:"not null;index" json:"expenseSummaryId"`
	Category            string    `json:"category"`
	Amount              int64     `json:"amount"`
	Date                time.Time `json:"date"`
}

// All returns one zero value of every model, parents before children.
func All() []any {
	return []any{
		&User{}, &Product{}, &Expense{},
		&Sale{}, &Purchase{},
		&ExpenseSummary{}, &ExpenseByCategory{},
		&SalesSummary{}, &PurchaseSummary{},
	}
}
