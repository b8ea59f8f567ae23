package main

import (
	"errors"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/judyrop/inventory/logging"
	"github.com/judyrop/inventory/models"
	"github.com/judyrop/inventory/store"
)

const dateLayout = "2006-01-02"

// RouterOptions configures SetupRouter. A nil WriteAuth leaves write routes open.
type RouterOptions struct {
	Logger    *logging.Logger
	WriteAuth gin.HandlerFunc
}

// expenseByCategoryResponse carries the amount as a string, as the
// dashboard client expects.
type expenseByCategoryResponse struct {
	ExpenseByCategoryID string    `json:"expenseByCategoryId"`
	ExpenseSummaryID    string    `json:"expenseSummaryId"`
	Category            string    `json:"category"`
	Amount              string    `json:"amount"`
	Date                time.Time `json:"date"`
}

type categoryTotal struct {
	Name   string `json:"name"`
	Amount int64  `json:"amount"`
}

func SetupRouter(db *gorm.DB, opts RouterOptions) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	if opts.Logger != nil {
		r.Use(logging.Middleware(opts.Logger))
	}

	writeAuth := opts.WriteAuth
	if writeAuth == nil {
		writeAuth = func(c *gin.Context) { c.Next() }
	}

	// Health check endpoint
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// Dashboard metrics
	r.GET("/dashboard", func(c *gin.Context) {
		db := db.WithContext(c.Request.Context())

		var popularProducts []models.Product
		if err := db.Order("stock_quantity desc").Limit(15).Find(&popularProducts).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		var salesSummary []models.SalesSummary
		if err := db.Order("date desc").Limit(5).Find(&salesSummary).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		var purchaseSummary []models.PurchaseSummary
		if err := db.Order("date desc").Limit(5).Find(&purchaseSummary).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		var expenseSummary []models.ExpenseSummary
		if err := db.Order("date desc").Limit(5).Find(&expenseSummary).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		var byCategory []models.ExpenseByCategory
		if err := db.Order("date desc").Limit(5).Find(&byCategory).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"popularProducts":          popularProducts,
			"salesSummary":             salesSummary,
			"purchaseSummary":          purchaseSummary,
			"expenseSummary":           expenseSummary,
			"expenseByCategorySummary": toExpenseResponses(byCategory),
		})
	})

	// List products, optionally filtered by name
	r.GET("/products", func(c *gin.Context) {
		query := db.WithContext(c.Request.Context())
		if search := c.Query("search"); search != "" {
			query = query.Where("name LIKE ?", "%"+search+"%")
		}
		products := []models.Product{}
		if err := query.Find(&products).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, products)
	})

	// Create product
	r.POST("/products", writeAuth, func(c *gin.Context) {
		var product models.Product
		if err := c.ShouldBindJSON(&product); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if product.ProductID == "" || product.Name == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "productId and name are required"})
			return
		}
		if err := db.WithContext(c.Request.Context()).Create(&product).Error; err != nil {
			if store.IsDuplicateKey(err) {
				c.JSON(http.StatusConflict, gin.H{"error": "Product already exists"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusCreated, product)
	})

	// List users
	r.GET("/users", func(c *gin.Context) {
		users := []models.User{}
		if err := db.WithContext(c.Request.Context()).Find(&users).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, users)
	})

	// Expenses by category, newest first
	r.GET("/expenses", func(c *gin.Context) {
		rows, err := findExpensesByCategory(c, db)
		if err != nil {
			c.JSON(statusFor(err), gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, toExpenseResponses(rows))
	})

	// Expense totals per category for the same filters
	r.GET("/expenses/totals", func(c *gin.Context) {
		rows, err := findExpensesByCategory(c, db)
		if err != nil {
			c.JSON(statusFor(err), gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, totalsByCategory(rows))
	})

	return r
}

var errBadFilter = errors.New("bad filter")

type filterError struct {
	param string
	err   error
}

func (e *filterError) Error() string {
	return "invalid " + e.param + ": expected " + dateLayout
}

func (e *filterError) Unwrap() []error {
	return []error{errBadFilter, e.err}
}

func statusFor(err error) int {
	if errors.Is(err, errBadFilter) {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

// findExpensesByCategory applies the category and inclusive date range
// filters from the query string.
func findExpensesByCategory(c *gin.Context, db *gorm.DB) ([]models.ExpenseByCategory, error) {
	query := db.WithContext(c.Request.Context()).Order("date desc")

	if category := c.Query("category"); category != "" && category != "All" {
		query = query.Where("category = ?", category)
	}
	if start := c.Query("start"); start != "" {
		t, err := time.Parse(dateLayout, start)
		if err != nil {
			return nil, &filterError{param: "start", err: err}
		}
		query = query.Where("date >= ?", t)
	}
	if end := c.Query("end"); end != "" {
		t, err := time.Parse(dateLayout, end)
		if err != nil {
			return nil, &filterError{param: "end", err: err}
		}
		query = query.Where("date < ?", t.AddDate(0, 0, 1))
	}

	rows := []models.ExpenseByCategory{}
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func toExpenseResponses(rows []models.ExpenseByCategory) []expenseByCategoryResponse {
	out := make([]expenseByCategoryResponse, len(rows))
	for i, r := range rows {
		out[i] = expenseByCategoryResponse{
			ExpenseByCategoryID: r.ExpenseByCategoryID,
			ExpenseSummaryID:    r.ExpenseSummaryID,
			Category:            r.Category,
			Amount:              strconv.FormatInt(r.Amount, 10),
			Date:                r.Date,
		}
	}
	return out
}

// totalsByCategory sums amounts per category, largest first. Equal totals
// keep the order in which their category first appears.
func totalsByCategory(rows []models.ExpenseByCategory) []categoryTotal {
	index := map[string]int{}
	totals := []categoryTotal{}
	for _, r := range rows {
		i, ok := index[r.Category]
		if !ok {
			i = len(totals)
			index[r.Category] = i
			totals = append(totals, categoryTotal{Name: r.Category})
		}
		totals[i].Amount += r.Amount
	}
	sort.SliceStable(totals, func(a, b int) bool { return totals[a].Amount > totals[b].Amount })
	return totals
}
