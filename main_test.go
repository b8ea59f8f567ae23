package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/judyrop/inventory/config"
	"github.com/judyrop/inventory/logging"
	"github.com/judyrop/inventory/models"
	"github.com/judyrop/inventory/seed"
	"github.com/judyrop/inventory/store"
)

// Create DB connection for tests
func getTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	st, err := store.Open(context.Background(), store.Config{
		Driver: config.DriverSQLite,
		DSN:    filepath.Join(t.TempDir(), "api.db"),
	}, logging.Discard())
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	require.NoError(t, store.AutoMigrate(context.Background(), st.DB()))
	return st.DB()
}

// Helper: run a test inside a transaction and roll it back
func withTestTransaction(t *testing.T, testFunc func(tx *gorm.DB)) {
	db := getTestDB(t)

	tx := db.Begin()
	if tx.Error != nil {
		t.Fatal(tx.Error)
	}

	defer tx.Rollback()

	testFunc(tx)
}

func doRequest(router http.Handler, method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	w := httptest.NewRecorder()
	req, _ := http.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	router.ServeHTTP(w, req)
	return w
}

func date(s string) time.Time {
	t, _ := time.Parse(time.RFC3339, s)
	return t
}

// ----------------------- TESTS ----------------------- //

func TestHealth(t *testing.T) {
	router := SetupRouter(getTestDB(t), RouterOptions{})

	w := doRequest(router, "GET", "/health", nil, nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestCreateProduct(t *testing.T) {
	withTestTransaction(t, func(db *gorm.DB) {
		router := SetupRouter(db, RouterOptions{})

		product := map[string]interface{}{
			"productId":     "p-1",
			"name":          "Bread",
			"price":         3.5,
			"stockQuantity": 40,
		}
		w := doRequest(router, "POST", "/products", product, nil)

		assert.Equal(t, http.StatusCreated, w.Code)
		var resp models.Product
		err := json.Unmarshal(w.Body.Bytes(), &resp)
		assert.NoError(t, err)
		assert.Equal(t, "Bread", resp.Name)
		assert.Equal(t, 40, resp.StockQuantity)

		var n int64
		db.Model(&models.Product{}).Count(&n)
		assert.Equal(t, int64(1), n)
	})
}

func TestCreateProduct_Duplicate(t *testing.T) {
	withTestTransaction(t, func(db *gorm.DB) {
		router := SetupRouter(db, RouterOptions{})
		db.Create(&models.Product{ProductID: "p-1", Name: "Bread"})

		w := doRequest(router, "POST", "/products", map[string]any{"productId": "p-1", "name": "Rye"}, nil)

		assert.Equal(t, http.StatusConflict, w.Code)
	})
}

func TestCreateProduct_BadRequest(t *testing.T) {
	withTestTransaction(t, func(db *gorm.DB) {
		router := SetupRouter(db, RouterOptions{})

		w := doRequest(router, "POST", "/products", map[string]any{"name": "No id"}, nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)

		w = doRequest(router, "POST", "/products", map[string]any{"productId": "p", "price": "free"}, nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestListProducts_Search(t *testing.T) {
	withTestTransaction(t, func(db *gorm.DB) {
		router := SetupRouter(db, RouterOptions{})
		db.Create(&models.Product{ProductID: "p-1", Name: "Desk Lamp"})
		db.Create(&models.Product{ProductID: "p-2", Name: "Office Chair"})

		w := doRequest(router, "GET", "/products?search=Lamp", nil, nil)

		assert.Equal(t, http.StatusOK, w.Code)
		var resp []models.Product
		assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		require.Len(t, resp, 1)
		assert.Equal(t, "Desk Lamp", resp[0].Name)

		w = doRequest(router, "GET", "/products", nil, nil)
		assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Len(t, resp, 2)
	})
}

func TestListUsers(t *testing.T) {
	withTestTransaction(t, func(db *gorm.DB) {
		router := SetupRouter(db, RouterOptions{})

		w := doRequest(router, "GET", "/users", nil, nil)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `[]`, w.Body.String())

		db.Create(&models.User{UserID: "u-1", Name: "June Jun", Email: "junejun@gmail.com"})

		w = doRequest(router, "GET", "/users", nil, nil)
		var resp []models.User
		assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		require.Len(t, resp, 1)
		assert.Equal(t, "junejun@gmail.com", resp[0].Email)
	})
}

func TestDashboard(t *testing.T) {
	withTestTransaction(t, func(db *gorm.DB) {
		router := SetupRouter(db, RouterOptions{})
		for i, stock := range []int{5, 50, 20} {
			db.Create(&models.Product{ProductID: string(rune('a' + i)), Name: "P", StockQuantity: stock})
		}
		db.Create(&models.SalesSummary{SalesSummaryID: "s1", TotalValue: 10, Date: date("2024-01-31T00:00:00Z")})
		db.Create(&models.ExpenseSummary{ExpenseSummaryID: "es1", TotalExpenses: 100, Date: date("2024-01-31T00:00:00Z")})
		db.Create(&models.ExpenseByCategory{ExpenseByCategoryID: "ec1", ExpenseSummaryID: "es1", Category: "Office", Amount: 1234, Date: date("2024-01-31T00:00:00Z")})

		w := doRequest(router, "GET", "/dashboard", nil, nil)
		require.Equal(t, http.StatusOK, w.Code)

		var resp struct {
			PopularProducts          []models.Product         `json:"popularProducts"`
			SalesSummary             []models.SalesSummary    `json:"salesSummary"`
			PurchaseSummary          []models.PurchaseSummary `json:"purchaseSummary"`
			ExpenseByCategorySummary []map[string]any         `json:"expenseByCategorySummary"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		require.Len(t, resp.PopularProducts, 3)
		assert.Equal(t, 50, resp.PopularProducts[0].StockQuantity)
		assert.Len(t, resp.SalesSummary, 1)
		assert.Empty(t, resp.PurchaseSummary)
		require.Len(t, resp.ExpenseByCategorySummary, 1)
		assert.Equal(t, "1234", resp.ExpenseByCategorySummary[0]["amount"])
	})
}

func seedExpenses(db *gorm.DB) {
	db.Create(&models.ExpenseSummary{ExpenseSummaryID: "es1", TotalExpenses: 600, Date: date("2024-01-31T00:00:00Z")})
	rows := []models.ExpenseByCategory{
		{ExpenseByCategoryID: "e1", Category: "Office", Amount: 100, Date: date("2024-01-05T00:00:00Z")},
		{ExpenseByCategoryID: "e2", Category: "Salaries", Amount: 300, Date: date("2024-01-10T00:00:00Z")},
		{ExpenseByCategoryID: "e3", Category: "Office", Amount: 150, Date: date("2024-02-01T12:00:00Z")},
		{ExpenseByCategoryID: "e4", Category: "Professional", Amount: 50, Date: date("2024-03-01T00:00:00Z")},
	}
	for _, r := range rows {
		r.ExpenseSummaryID = "es1"
		db.Create(&r)
	}
}

func TestListExpenses(t *testing.T) {
	withTestTransaction(t, func(db *gorm.DB) {
		router := SetupRouter(db, RouterOptions{})
		seedExpenses(db)

		w := doRequest(router, "GET", "/expenses", nil, nil)
		require.Equal(t, http.StatusOK, w.Code)
		var resp []map[string]any
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		require.Len(t, resp, 4)
		assert.Equal(t, "e4", resp[0]["expenseByCategoryId"], "newest first")
		assert.Equal(t, "50", resp[0]["amount"])
	})
}

func TestListExpenses_Filters(t *testing.T) {
	withTestTransaction(t, func(db *gorm.DB) {
		router := SetupRouter(db, RouterOptions{})
		seedExpenses(db)

		tests := []struct {
			query string
			ids   []string
		}{
			{query: "?category=Office", ids: []string{"e3", "e1"}},
			{query: "?category=All", ids: []string{"e4", "e3", "e2", "e1"}},
			{query: "?start=2024-01-06&end=2024-02-01", ids: []string{"e3", "e2"}},
			{query: "?category=Office&end=2024-01-31", ids: []string{"e1"}},
		}
		for _, tt := range tests {
			w := doRequest(router, "GET", "/expenses"+tt.query, nil, nil)
			require.Equal(t, http.StatusOK, w.Code, tt.query)

			var resp []map[string]any
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			var ids []string
			for _, r := range resp {
				ids = append(ids, r["expenseByCategoryId"].(string))
			}
			assert.Equal(t, tt.ids, ids, tt.query)
		}
	})
}

func TestListExpenses_BadDate(t *testing.T) {
	router := SetupRouter(getTestDB(t), RouterOptions{})

	w := doRequest(router, "GET", "/expenses?start=01/02/2024", nil, nil)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "invalid start")
}

func TestExpenseTotals(t *testing.T) {
	withTestTransaction(t, func(db *gorm.DB) {
		router := SetupRouter(db, RouterOptions{})
		seedExpenses(db)

		w := doRequest(router, "GET", "/expenses/totals", nil, nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `[
			{"name":"Salaries","amount":300},
			{"name":"Office","amount":250},
			{"name":"Professional","amount":50}
		]`, w.Body.String())

		w = doRequest(router, "GET", "/expenses/totals?start=2024-02-01", nil, nil)
		assert.JSONEq(t, `[{"name":"Office","amount":150},{"name":"Professional","amount":50}]`, w.Body.String())
	})
}

type fakeVerifier struct{}

func (fakeVerifier) Verify(_ context.Context, token string) (*oidc.IDToken, error) {
	if token == "good" {
		return &oidc.IDToken{Subject: "tester"}, nil
	}
	return nil, errors.New("bad token")
}

func TestCreateProduct_RequiresBearerWhenAuthEnabled(t *testing.T) {
	withTestTransaction(t, func(db *gorm.DB) {
		router := SetupRouter(db, RouterOptions{WriteAuth: AuthMiddleware(fakeVerifier{})})
		body := map[string]any{"productId": "p-1", "name": "Bread"}

		w := doRequest(router, "POST", "/products", body, nil)
		assert.Equal(t, http.StatusUnauthorized, w.Code)

		w = doRequest(router, "POST", "/products", body, map[string]string{"Authorization": "Bearer nope"})
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Contains(t, w.Body.String(), "Invalid token")

		w = doRequest(router, "POST", "/products", body, map[string]string{"Authorization": "Bearer good"})
		assert.Equal(t, http.StatusCreated, w.Code)

		w = doRequest(router, "GET", "/products", nil, nil)
		assert.Equal(t, http.StatusOK, w.Code, "reads stay open")
	})
}

type countingStore struct {
	registry seed.Registry
	closes   int
	closeErr error
}

func (s *countingStore) Registry() seed.Registry { return s.registry }

func (s *countingStore) Close() error {
	s.closes++
	return s.closeErr
}

func TestCloseStore_LogsFailure(t *testing.T) {
	var buf bytes.Buffer
	logger := logging.New(logging.Config{Output: &buf})
	st := &countingStore{closeErr: errors.New("pool busy")}

	closeStore(st, logger)

	assert.Equal(t, 1, st.closes)
	assert.Contains(t, buf.String(), "Error closing database")
	assert.Contains(t, buf.String(), "pool busy")
}

func TestRunSeed_LogsCloseFailure(t *testing.T) {
	var buf bytes.Buffer
	logger := logging.New(logging.Config{Output: &buf})
	st := &countingStore{registry: seed.Registry{}, closeErr: errors.New("pool busy")}
	open := func(context.Context) (seedStore, error) { return st, nil }

	require.NoError(t, runSeed(context.Background(), open, seed.Options{Dir: t.TempDir()}, logger))

	assert.Equal(t, 1, st.closes)
	assert.Contains(t, buf.String(), "Error closing database")
}

func TestRunSeed_ClosesStoreOnce(t *testing.T) {
	t.Run("completed run", func(t *testing.T) {
		st := &countingStore{registry: seed.Registry{}}
		open := func(context.Context) (seedStore, error) { return st, nil }

		err := runSeed(context.Background(), open, seed.Options{Dir: t.TempDir()}, logging.Discard())

		require.NoError(t, err)
		assert.Equal(t, 1, st.closes)
	})

	t.Run("fatal run", func(t *testing.T) {
		st := &countingStore{registry: seed.Registry{}}
		open := func(context.Context) (seedStore, error) { return st, nil }

		err := runSeed(context.Background(), open, seed.Options{Dir: filepath.Join(t.TempDir(), "missing")}, logging.Discard())

		require.Error(t, err)
		assert.Contains(t, err.Error(), "seed failed")
		assert.Equal(t, 1, st.closes)
	})

	t.Run("connect failure", func(t *testing.T) {
		open := func(context.Context) (seedStore, error) { return nil, errors.New("refused") }

		err := runSeed(context.Background(), open, seed.Options{Dir: t.TempDir()}, logging.Discard())

		require.Error(t, err)
		assert.Contains(t, err.Error(), "connect to database")
	})
}

func TestRunSeed_AgainstSQLite(t *testing.T) {
	dsn := filepath.Join(t.TempDir(), "seed.db")
	cfg := store.Config{Driver: config.DriverSQLite, DSN: dsn}

	prepared, err := store.Open(context.Background(), cfg, logging.Discard())
	require.NoError(t, err)
	require.NoError(t, store.AutoMigrate(context.Background(), prepared.DB()))
	require.NoError(t, prepared.Close())

	var opened *store.Store
	open := func(ctx context.Context) (seedStore, error) {
		st, err := store.Open(ctx, cfg, logging.Discard())
		opened = st
		return gormSeedStore{st}, err
	}
	require.NoError(t, runSeed(context.Background(), open, seed.Options{Dir: "seeddata"}, logging.Discard()))

	sqlDB, err := opened.DB().DB()
	require.NoError(t, err)
	assert.Error(t, sqlDB.Ping(), "store is closed after the run")

	check := getTestDBAt(t, dsn)
	var n int64
	check.Model(&models.Product{}).Count(&n)
	assert.Equal(t, int64(10), n)
}

func getTestDBAt(t *testing.T, dsn string) *gorm.DB {
	t.Helper()
	st, err := store.Open(context.Background(), store.Config{Driver: config.DriverSQLite, DSN: dsn}, logging.Discard())
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st.DB()
}

func TestRootCommand(t *testing.T) {
	root := newRootCmd()

	names := []string{}
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	assert.Contains(t, names, "serve")
	assert.Contains(t, names, "seed")
	assert.NotNil(t, root.PersistentFlags().Lookup("env-file"))
}
