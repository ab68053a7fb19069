package handler

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"msi-system/internal/database"
	"msi-system/internal/database/models"
)

func setup(t *testing.T) (*gorm.DB, *gin.Engine) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	if err := database.Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	h := NewBillingHandler(db, nil)
	r := gin.New()
	r.GET("/get_skus_by_category/:category_id", h.GetSKUsByCategory)
	r.POST("/generate_bill/", h.GenerateBill)
	r.GET("/bills", h.ListBills)
	r.GET("/bills/:id", h.GetBill)
	r.POST("/returns", h.CreateReturn)
	r.GET("/returns", h.ListReturns)
	return db, r
}

func seedItems(t *testing.T, db *gorm.DB) (models.InventoryCategory, models.InventoryItem, models.InventoryItem) {
	t.Helper()
	category := models.InventoryCategory{Name: "Grains"}
	if err := db.Create(&category).Error; err != nil {
		t.Fatalf("seed category: %v", err)
	}
	itemA := models.InventoryItem{
		SKU: "SKU-A", Name: "Rice", CategoryID: category.ID,
		TotalStockQuantity: 10, UnitOfMeasure: models.UnitKG, SalePrice: "100.00",
	}
	itemB := models.InventoryItem{
		SKU: "SKU-B", Name: "Flour", CategoryID: category.ID,
		TotalStockQuantity: 5, UnitOfMeasure: models.UnitKG, SalePrice: "50.00",
	}
	if err := db.Create(&itemA).Error; err != nil {
		t.Fatalf("seed item A: %v", err)
	}
	if err := db.Create(&itemB).Error; err != nil {
		t.Fatalf("seed item B: %v", err)
	}
	return category, itemA, itemB
}

func postForm(t *testing.T, r *gin.Engine, path string, form url.Values) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func postJSON(t *testing.T, r *gin.Engine, path string, payload interface{}) *httptest.ResponseRecorder {
	t.Helper()
	body, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func billForm(customerName, billItems string) url.Values {
	form := url.Values{}
	form.Set("customer_name", customerName)
	form.Set("bill_items", billItems)
	return form
}

// assertAmount compares money numerically; column affinity may strip
// trailing zeros from stored amounts.
func assertAmount(t *testing.T, label, got, want string) {
	t.Helper()
	g, err := decimal.NewFromString(got)
	if err != nil {
		t.Fatalf("%s: bad amount %q: %v", label, got, err)
	}
	if !g.Equal(decimal.RequireFromString(want)) {
		t.Fatalf("%s = %s, want %s", label, got, want)
	}
}

func stockOf(t *testing.T, db *gorm.DB, id int64) int {
	t.Helper()
	var item models.InventoryItem
	if err := db.First(&item, id).Error; err != nil {
		t.Fatalf("load item %d: %v", id, err)
	}
	return item.TotalStockQuantity
}

func TestEffectiveUnitPrice(t *testing.T) {
	price := decimal.RequireFromString("200")

	cases := []struct {
		name         string
		discountType string
		amount       string
		want         string
	}{
		{"none", "none", "0", "200"},
		{"empty type means none", "", "0", "200"},
		{"fixed", "fixed", "15", "185"},
		{"percentage", "percentage", "10", "180"},
		{"full percentage", "percentage", "100", "0"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := effectiveUnitPrice(price, tc.discountType, decimal.RequireFromString(tc.amount))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !got.Equal(decimal.RequireFromString(tc.want)) {
				t.Fatalf("effective price = %s, want %s", got, tc.want)
			}
		})
	}

	if _, err := effectiveUnitPrice(price, "bogus", decimal.Zero); err == nil {
		t.Fatalf("expected error for unknown discount type")
	}
}

func TestGenerateBillComputesTotalAndDecrementsStock(t *testing.T) {
	db, r := setup(t)
	_, itemA, itemB := seedItems(t, db)

	// A: 3 x 100 = 300; B: 2 x (50 - 5) = 90; rent borne by company.
	form := billForm("Ali Khan", `[
		{"itemId": `+itoa(itemA.ID)+`, "quantity": 3, "retailPrice": 100, "itemDiscountType": "none", "itemDiscountAmount": 0},
		{"itemId": `+itoa(itemB.ID)+`, "quantity": 2, "retailPrice": 50, "itemDiscountType": "fixed", "itemDiscountAmount": 5}
	]`)
	form.Set("rent_amount", "50")
	form.Set("rent_payer", "company")
	form.Set("payment_method", "cash")
	form.Set("cash_received", "400")

	w := postForm(t, r, "/generate_bill/", form)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}

	if got := stockOf(t, db, itemA.ID); got != 7 {
		t.Fatalf("item A stock = %d, want 7", got)
	}
	if got := stockOf(t, db, itemB.ID); got != 3 {
		t.Fatalf("item B stock = %d, want 3", got)
	}

	var bills []models.Bill
	if err := db.Preload("Items").Find(&bills).Error; err != nil {
		t.Fatalf("load bills: %v", err)
	}
	if len(bills) != 1 {
		t.Fatalf("bill count = %d, want 1", len(bills))
	}
	bill := bills[0]
	assertAmount(t, "total", bill.TotalAmount, "390.00")
	assertAmount(t, "amount paid", bill.AmountPaid, "400.00")
	if len(bill.Items) != 2 {
		t.Fatalf("bill item count = %d, want 2", len(bill.Items))
	}
}

func TestGenerateBillRentAllocation(t *testing.T) {
	cases := []struct {
		rentPayer string
		wantTotal string
	}{
		{"customer", "400.00"},
		{"shared", "400.00"},
		{"company", "360.00"},
	}

	for _, tc := range cases {
		t.Run(tc.rentPayer, func(t *testing.T) {
			db, r := setup(t)
			_, itemA, _ := seedItems(t, db)

			// 2 x (200 - 10%) = 360, plus 40 rent when the customer bears it.
			form := billForm("Sara", `[
				{"itemId": `+itoa(itemA.ID)+`, "quantity": 2, "retailPrice": 200, "itemDiscountType": "percentage", "itemDiscountAmount": 10}
			]`)
			form.Set("rent_amount", "40")
			form.Set("rent_payer", tc.rentPayer)

			w := postForm(t, r, "/generate_bill/", form)
			if w.Code != http.StatusOK {
				t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
			}

			var bill models.Bill
			if err := db.First(&bill).Error; err != nil {
				t.Fatalf("load bill: %v", err)
			}
			assertAmount(t, "total", bill.TotalAmount, tc.wantTotal)
		})
	}
}

func TestGenerateBillInsufficientStockRollsBackEverything(t *testing.T) {
	db, r := setup(t)
	_, itemA, itemB := seedItems(t, db)

	// First line succeeds, second asks for more than the 5 on hand; the
	// whole transaction must unwind.
	form := billForm("Bilal", `[
		{"itemId": `+itoa(itemA.ID)+`, "quantity": 3, "retailPrice": 100, "itemDiscountType": "none", "itemDiscountAmount": 0},
		{"itemId": `+itoa(itemB.ID)+`, "quantity": 6, "retailPrice": 50, "itemDiscountType": "none", "itemDiscountAmount": 0}
	]`)

	w := postForm(t, r, "/generate_bill/", form)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400, body = %s", w.Code, w.Body.String())
	}

	var resp struct {
		Success bool   `json:"success"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Success {
		t.Fatalf("expected success=false")
	}
	if !strings.Contains(resp.Message, "Flour") || !strings.Contains(resp.Message, "5") {
		t.Fatalf("message %q should name the short item and its available quantity", resp.Message)
	}

	if got := stockOf(t, db, itemA.ID); got != 10 {
		t.Fatalf("item A stock = %d, want 10 (untouched)", got)
	}
	if got := stockOf(t, db, itemB.ID); got != 5 {
		t.Fatalf("item B stock = %d, want 5 (untouched)", got)
	}

	var billCount, billItemCount, customerCount int64
	db.Model(&models.Bill{}).Count(&billCount)
	db.Model(&models.BillItem{}).Count(&billItemCount)
	db.Model(&models.Customer{}).Count(&customerCount)
	if billCount != 0 || billItemCount != 0 || customerCount != 0 {
		t.Fatalf("rows leaked past rollback: bills=%d items=%d customers=%d", billCount, billItemCount, customerCount)
	}
}

func TestGenerateBillRejectsBeforeAnyWrite(t *testing.T) {
	db, r := setup(t)
	_, itemA, _ := seedItems(t, db)

	line := `[{"itemId": ` + itoa(itemA.ID) + `, "quantity": 1, "retailPrice": 100, "itemDiscountType": "none", "itemDiscountAmount": 0}]`

	cases := []struct {
		name string
		form url.Values
	}{
		{"missing customer name", billForm("", line)},
		{"empty item list", billForm("Ali", `[]`)},
		{"malformed payload", billForm("Ali", `not-json`)},
		{"zero quantity", billForm("Ali", `[{"itemId": `+itoa(itemA.ID)+`, "quantity": 0, "retailPrice": 100}]`)},
		{"unknown discount type", billForm("Ali", `[{"itemId": `+itoa(itemA.ID)+`, "quantity": 1, "retailPrice": 100, "itemDiscountType": "half-off"}]`)},
		{"negative discount amount", billForm("Ali", `[{"itemId": `+itoa(itemA.ID)+`, "quantity": 1, "retailPrice": 100, "itemDiscountType": "fixed", "itemDiscountAmount": -5}]`)},
		{"negative rent", func() url.Values {
			f := billForm("Ali", line)
			f.Set("rent_amount", "-50")
			return f
		}()},
		{"negative cash received", func() url.Values {
			f := billForm("Ali", line)
			f.Set("cash_received", "-10")
			return f
		}()},
		{"invalid rent payer", func() url.Values {
			f := billForm("Ali", line)
			f.Set("rent_payer", "landlord")
			return f
		}()},
		{"invalid payment method", func() url.Values {
			f := billForm("Ali", line)
			f.Set("payment_method", "barter")
			return f
		}()},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := postForm(t, r, "/generate_bill/", tc.form)
			if w.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400, body = %s", w.Code, w.Body.String())
			}
		})
	}

	var billCount, customerCount int64
	db.Model(&models.Bill{}).Count(&billCount)
	db.Model(&models.Customer{}).Count(&customerCount)
	if billCount != 0 || customerCount != 0 {
		t.Fatalf("rejected requests must not write: bills=%d customers=%d", billCount, customerCount)
	}
	if got := stockOf(t, db, itemA.ID); got != 10 {
		t.Fatalf("item A stock = %d, want 10", got)
	}
}

func TestGenerateBillCustomerLastWriteWins(t *testing.T) {
	db, r := setup(t)
	_, itemA, _ := seedItems(t, db)

	line := `[{"itemId": ` + itoa(itemA.ID) + `, "quantity": 1, "retailPrice": 100, "itemDiscountType": "none", "itemDiscountAmount": 0}]`

	first := billForm("Ahmed", line)
	first.Set("customer_phone", "0300-1111111")
	first.Set("customer_address", "Old Town")
	if w := postForm(t, r, "/generate_bill/", first); w.Code != http.StatusOK {
		t.Fatalf("first bill: status = %d, body = %s", w.Code, w.Body.String())
	}

	second := billForm("Ahmed", line)
	second.Set("customer_phone", "0300-2222222")
	second.Set("customer_address", "New Town")
	if w := postForm(t, r, "/generate_bill/", second); w.Code != http.StatusOK {
		t.Fatalf("second bill: status = %d, body = %s", w.Code, w.Body.String())
	}

	var customers []models.Customer
	if err := db.Find(&customers).Error; err != nil {
		t.Fatalf("load customers: %v", err)
	}
	if len(customers) != 1 {
		t.Fatalf("customer count = %d, want 1", len(customers))
	}
	if customers[0].Phone != "0300-2222222" || customers[0].Address != "New Town" {
		t.Fatalf("contact fields not overwritten: %+v", customers[0])
	}
}

func TestGetSKUsByCategory(t *testing.T) {
	db, r := setup(t)
	category, _, _ := seedItems(t, db)

	other := models.InventoryCategory{Name: "Spices"}
	if err := db.Create(&other).Error; err != nil {
		t.Fatalf("seed other category: %v", err)
	}
	outside := models.InventoryItem{
		SKU: "SKU-C", Name: "Pepper", CategoryID: other.ID,
		TotalStockQuantity: 3, UnitOfMeasure: models.UnitPiece, SalePrice: "20.00",
	}
	if err := db.Create(&outside).Error; err != nil {
		t.Fatalf("seed outside item: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/get_skus_by_category/"+itoa(category.ID), nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}

	var resp struct {
		SKUs []struct {
			ID            int64  `json:"id"`
			SKU           string `json:"sku"`
			Name          string `json:"name"`
			SalePrice     string `json:"sale_price"`
			UnitOfMeasure string `json:"unit_of_measure"`
		} `json:"skus"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.SKUs) != 2 {
		t.Fatalf("sku count = %d, want 2", len(resp.SKUs))
	}
	for _, sku := range resp.SKUs {
		if sku.SKU == "SKU-C" {
			t.Fatalf("item from another category leaked into response")
		}
		if sku.Name == "" || sku.SalePrice == "" || sku.UnitOfMeasure == "" {
			t.Fatalf("incomplete sku payload: %+v", sku)
		}
	}
}

func TestCreateReturnCannotExceedSoldQuantity(t *testing.T) {
	db, r := setup(t)
	_, itemA, _ := seedItems(t, db)

	form := billForm("Zara", `[{"itemId": `+itoa(itemA.ID)+`, "quantity": 4, "retailPrice": 100, "itemDiscountType": "none", "itemDiscountAmount": 0}]`)
	if w := postForm(t, r, "/generate_bill/", form); w.Code != http.StatusOK {
		t.Fatalf("generate bill: status = %d, body = %s", w.Code, w.Body.String())
	}

	var billItem models.BillItem
	if err := db.First(&billItem).Error; err != nil {
		t.Fatalf("load bill item: %v", err)
	}

	if w := postJSON(t, r, "/returns", gin.H{"bill_item_id": billItem.ID, "quantity_returned": 3}); w.Code != http.StatusOK {
		t.Fatalf("first return: status = %d, body = %s", w.Code, w.Body.String())
	}

	// Only one unit left to return.
	w := postJSON(t, r, "/returns", gin.H{"bill_item_id": billItem.ID, "quantity_returned": 2})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("over-return: status = %d, want 400, body = %s", w.Code, w.Body.String())
	}

	// Returns never restock on their own.
	if got := stockOf(t, db, itemA.ID); got != 6 {
		t.Fatalf("item A stock = %d, want 6", got)
	}

	var returnCount int64
	db.Model(&models.Return{}).Count(&returnCount)
	if returnCount != 1 {
		t.Fatalf("return count = %d, want 1", returnCount)
	}
}

func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}
