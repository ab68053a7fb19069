package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"msi-system/internal/api"
	"msi-system/internal/database/models"
)

const (
	SKU_CACHE_PREFIX = "billing:skus:"
	CACHE_TTL_MEDIUM = 30 * time.Minute
)

type BillingHandler struct {
	db    *gorm.DB
	redis *redis.Client
}

func NewBillingHandler(db *gorm.DB, redisClient *redis.Client) *BillingHandler {
	return &BillingHandler{
		db:    db,
		redis: redisClient,
	}
}

// InvalidateSKUCaches drops the cached SKU list of each category.
func (h *BillingHandler) InvalidateSKUCaches(ctx context.Context, categoryIDs ...int64) {
	if h.redis == nil {
		return
	}
	for _, id := range categoryIDs {
		cacheKey := fmt.Sprintf("%s%d", SKU_CACHE_PREFIX, id)
		_ = h.redis.Del(ctx, cacheKey)
	}
}

// -- SKU lookup --

func (h *BillingHandler) GetSKUsByCategory(c *gin.Context) {
	categoryID, err := strconv.ParseInt(c.Param("category_id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, api.ErrorResponse("Invalid category ID"))
		return
	}

	cacheKey := fmt.Sprintf("%s%d", SKU_CACHE_PREFIX, categoryID)
	if h.redis != nil {
		if cached, err := h.redis.Get(c.Request.Context(), cacheKey).Result(); err == nil {
			c.Data(http.StatusOK, "application/json; charset=utf-8", []byte(cached))
			return
		}
	}

	var items []models.InventoryItem
	if err := h.db.Where("category_id = ?", categoryID).Order("name").Find(&items).Error; err != nil {
		c.JSON(http.StatusInternalServerError, api.ErrorResponse("Database error"))
		return
	}

	skus := make([]gin.H, 0, len(items))
	for _, item := range items {
		skus = append(skus, gin.H{
			"id":              item.ID,
			"sku":             item.SKU,
			"name":            item.Name,
			"sale_price":      item.SalePrice,
			"unit_of_measure": item.UnitOfMeasure,
		})
	}

	payload := gin.H{"skus": skus}
	if h.redis != nil {
		if raw, err := json.Marshal(payload); err == nil {
			h.redis.Set(c.Request.Context(), cacheKey, raw, CACHE_TTL_MEDIUM)
		}
	}

	c.JSON(http.StatusOK, payload)
}

// -- Bill issuance --

type billItemRequest struct {
	ItemID             int64       `json:"itemId"`
	Quantity           int         `json:"quantity"`
	RetailPrice        json.Number `json:"retailPrice"`
	ItemDiscountType   string      `json:"itemDiscountType"`
	ItemDiscountAmount json.Number `json:"itemDiscountAmount"`
}

type pricedLine struct {
	itemID         int64
	quantity       int
	unitPrice      decimal.Decimal
	discountType   string
	discountAmount decimal.Decimal
}

// stockShortError aborts the billing transaction and names the offending
// item so the caller can tell which line was short.
type stockShortError struct {
	ItemName  string
	Available int
}

func (e *stockShortError) Error() string {
	return fmt.Sprintf("Insufficient stock for %s: only %d available", e.ItemName, e.Available)
}

var errUnknownItem = errors.New("bill references an unknown item")

// overReturnError rejects a return that exceeds the quantity still
// outstanding on the bill line.
type overReturnError struct {
	Remaining int
}

func (e *overReturnError) Error() string {
	return fmt.Sprintf("Cannot return more than sold: only %d left to return", e.Remaining)
}

func parseMoney(raw string) (decimal.Decimal, error) {
	if raw == "" {
		return decimal.Zero, nil
	}
	amount, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, err
	}
	if amount.IsNegative() {
		return decimal.Zero, errors.New("amount cannot be negative")
	}
	return amount, nil
}

// effectiveUnitPrice applies one discount to a unit price. Fixed discounts
// subtract the amount directly; percentage discounts subtract that share of
// the price. The discount is applied exactly once, per unit.
func effectiveUnitPrice(price decimal.Decimal, discountType string, discountAmount decimal.Decimal) (decimal.Decimal, error) {
	switch discountType {
	case "", models.DiscountNone:
		return price, nil
	case models.DiscountFixed:
		return price.Sub(discountAmount), nil
	case models.DiscountPercentage:
		return price.Sub(price.Mul(discountAmount).Div(decimal.NewFromInt(100))), nil
	default:
		return decimal.Zero, fmt.Errorf("unknown discount type %q", discountType)
	}
}

func (h *BillingHandler) GenerateBill(c *gin.Context) {
	customerName := strings.TrimSpace(c.PostForm("customer_name"))
	if customerName == "" {
		c.JSON(http.StatusBadRequest, api.ErrorResponse("customer_name is required"))
		return
	}

	rawItems := c.PostForm("bill_items")
	if rawItems == "" {
		c.JSON(http.StatusBadRequest, api.ErrorResponse("bill_items is required"))
		return
	}

	var lines []billItemRequest
	if err := json.Unmarshal([]byte(rawItems), &lines); err != nil {
		c.JSON(http.StatusBadRequest, api.ErrorResponse("Invalid bill_items payload"))
		return
	}
	if len(lines) == 0 {
		c.JSON(http.StatusBadRequest, api.ErrorResponse("Bill must contain at least one item"))
		return
	}

	rentPayer := c.DefaultPostForm("rent_payer", models.RentPayerCustomer)
	switch rentPayer {
	case models.RentPayerCustomer, models.RentPayerCompany, models.RentPayerShared:
	default:
		c.JSON(http.StatusBadRequest, api.ErrorResponse("Invalid rent_payer"))
		return
	}

	paymentMethod := c.DefaultPostForm("payment_method", models.PaymentCash)
	switch paymentMethod {
	case models.PaymentCash, models.PaymentOnline:
	default:
		c.JSON(http.StatusBadRequest, api.ErrorResponse("Invalid payment_method"))
		return
	}

	rentAmount, err := parseMoney(c.PostForm("rent_amount"))
	if err != nil {
		c.JSON(http.StatusBadRequest, api.ErrorResponse("Invalid rent_amount"))
		return
	}
	cashReceived, err := parseMoney(c.PostForm("cash_received"))
	if err != nil {
		c.JSON(http.StatusBadRequest, api.ErrorResponse("Invalid cash_received"))
		return
	}

	// Price every line up front so validation failures reject the request
	// before any write.
	total := decimal.Zero
	priced := make([]pricedLine, 0, len(lines))
	for _, line := range lines {
		if line.ItemID == 0 || line.Quantity <= 0 {
			c.JSON(http.StatusBadRequest, api.ErrorResponse("Each bill item needs an item id and a positive quantity"))
			return
		}

		price, err := decimal.NewFromString(line.RetailPrice.String())
		if err != nil {
			c.JSON(http.StatusBadRequest, api.ErrorResponse("Invalid retail price"))
			return
		}

		discount := decimal.Zero
		if line.ItemDiscountAmount != "" {
			discount, err = decimal.NewFromString(line.ItemDiscountAmount.String())
			if err != nil {
				c.JSON(http.StatusBadRequest, api.ErrorResponse("Invalid discount amount"))
				return
			}
			if discount.IsNegative() {
				c.JSON(http.StatusBadRequest, api.ErrorResponse("Discount amount cannot be negative"))
				return
			}
		}

		effective, err := effectiveUnitPrice(price, line.ItemDiscountType, discount)
		if err != nil {
			c.JSON(http.StatusBadRequest, api.ErrorResponse("Invalid discount type"))
			return
		}
		if effective.IsNegative() {
			c.JSON(http.StatusBadRequest, api.ErrorResponse("Discount exceeds unit price"))
			return
		}

		discountType := line.ItemDiscountType
		if discountType == "" {
			discountType = models.DiscountNone
		}

		total = total.Add(effective.Mul(decimal.NewFromInt(int64(line.Quantity))))
		priced = append(priced, pricedLine{
			itemID:         line.ItemID,
			quantity:       line.Quantity,
			unitPrice:      price,
			discountType:   discountType,
			discountAmount: discount,
		})
	}

	// Rent borne by the company is absorbed externally and never reaches
	// the customer-facing total.
	if rentPayer == models.RentPayerCustomer || rentPayer == models.RentPayerShared {
		total = total.Add(rentAmount)
	}

	err = h.db.Transaction(func(tx *gorm.DB) error {
		var customer models.Customer
		err := tx.Where("name = ?", customerName).First(&customer).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			customer = models.Customer{
				Name:    customerName,
				CNIC:    c.PostForm("customer_cnic"),
				Phone:   c.PostForm("customer_phone"),
				Address: c.PostForm("customer_address"),
			}
			if err := tx.Create(&customer).Error; err != nil {
				return err
			}
		case err != nil:
			return err
		default:
			// Last write wins on repeat purchase under the same name.
			customer.CNIC = c.PostForm("customer_cnic")
			customer.Phone = c.PostForm("customer_phone")
			customer.Address = c.PostForm("customer_address")
			if err := tx.Save(&customer).Error; err != nil {
				return err
			}
		}

		bill := models.Bill{
			CustomerID:    &customer.ID,
			CreatedAt:     time.Now(),
			TotalAmount:   total.StringFixed(2),
			AmountPaid:    cashReceived.StringFixed(2),
			RentAmount:    rentAmount.StringFixed(2),
			RentPayer:     rentPayer,
			PaymentMethod: paymentMethod,
		}
		if err := tx.Create(&bill).Error; err != nil {
			return err
		}

		for _, pl := range priced {
			// Compare-and-decrement: the quantity guard sits in the
			// UPDATE itself, so two concurrent bills cannot both pass a
			// stale stock check.
			res := tx.Model(&models.InventoryItem{}).
				Where("id = ? AND total_stock_quantity >= ?", pl.itemID, pl.quantity).
				UpdateColumn("total_stock_quantity", gorm.Expr("total_stock_quantity - ?", pl.quantity))
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				var item models.InventoryItem
				if err := tx.First(&item, pl.itemID).Error; err != nil {
					if errors.Is(err, gorm.ErrRecordNotFound) {
						return fmt.Errorf("%w: item %d", errUnknownItem, pl.itemID)
					}
					return err
				}
				return &stockShortError{ItemName: item.Name, Available: item.TotalStockQuantity}
			}

			billItem := models.BillItem{
				BillID:         bill.ID,
				ItemID:         pl.itemID,
				Quantity:       pl.quantity,
				PricePerUnit:   pl.unitPrice.StringFixed(2),
				DiscountType:   pl.discountType,
				DiscountAmount: pl.discountAmount.StringFixed(2),
				CreatedAt:      time.Now(),
			}
			if err := tx.Create(&billItem).Error; err != nil {
				return err
			}
		}

		return nil
	})

	if err != nil {
		var short *stockShortError
		if errors.As(err, &short) {
			c.JSON(http.StatusBadRequest, api.ErrorResponse(short.Error()))
			return
		}
		if errors.Is(err, errUnknownItem) {
			c.JSON(http.StatusBadRequest, api.ErrorResponse(err.Error()))
			return
		}
		c.JSON(http.StatusInternalServerError, api.ErrorResponse("Failed to generate bill"))
		return
	}

	h.invalidateForItems(c.Request.Context(), priced)

	c.JSON(http.StatusOK, api.SuccessResponse("Bill generated successfully", nil))
}

func (h *BillingHandler) invalidateForItems(ctx context.Context, priced []pricedLine) {
	if h.redis == nil {
		return
	}
	itemIDs := make([]int64, 0, len(priced))
	for _, pl := range priced {
		itemIDs = append(itemIDs, pl.itemID)
	}
	var categoryIDs []int64
	if err := h.db.Model(&models.InventoryItem{}).
		Where("id IN ?", itemIDs).
		Distinct().
		Pluck("category_id", &categoryIDs).Error; err != nil {
		return
	}
	h.InvalidateSKUCaches(ctx, categoryIDs...)
}

// -- Bill reads --

func (h *BillingHandler) ListBills(c *gin.Context) {
	page, pageSize := pagination(c, 20)

	var total int64
	if err := h.db.Model(&models.Bill{}).Count(&total).Error; err != nil {
		c.JSON(http.StatusInternalServerError, api.ErrorResponse("Database error"))
		return
	}

	var bills []models.Bill
	if err := h.db.
		Preload("Customer").
		Preload("Items.Item").
		Order("created_at DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&bills).Error; err != nil {
		c.JSON(http.StatusInternalServerError, api.ErrorResponse("Database error"))
		return
	}

	c.JSON(http.StatusOK, api.SuccessWithMetaResponse("Bills retrieved successfully", bills, gin.H{
		"total":     total,
		"page":      page,
		"page_size": pageSize,
	}))
}

func (h *BillingHandler) GetBill(c *gin.Context) {
	billID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, api.ErrorResponse("Invalid bill ID"))
		return
	}

	var bill models.Bill
	if err := h.db.
		Preload("Customer").
		Preload("Items.Item").
		First(&bill, billID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, api.ErrorResponse("Bill not found"))
			return
		}
		c.JSON(http.StatusInternalServerError, api.ErrorResponse("Database error"))
		return
	}

	c.JSON(http.StatusOK, api.SuccessResponse("Bill retrieved successfully", bill))
}

// -- Returns --

type createReturnRequest struct {
	BillItemID       int64 `json:"bill_item_id" binding:"required"`
	QuantityReturned int   `json:"quantity_returned" binding:"required,min=1"`
}

func (h *BillingHandler) CreateReturn(c *gin.Context) {
	var req createReturnRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, api.ErrorResponse("Invalid return payload"))
		return
	}

	var created models.Return
	err := h.db.Transaction(func(tx *gorm.DB) error {
		var billItem models.BillItem
		if err := tx.First(&billItem, req.BillItemID).Error; err != nil {
			return err
		}

		var alreadyReturned int64
		if err := tx.Model(&models.Return{}).
			Where("bill_item_id = ?", req.BillItemID).
			Select("COALESCE(SUM(quantity_returned), 0)").
			Scan(&alreadyReturned).Error; err != nil {
			return err
		}

		remaining := billItem.Quantity - int(alreadyReturned)
		if req.QuantityReturned > remaining {
			return &overReturnError{Remaining: remaining}
		}

		created = models.Return{
			BillItemID:       req.BillItemID,
			QuantityReturned: req.QuantityReturned,
			CreatedAt:        time.Now(),
		}
		return tx.Create(&created).Error
	})

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, api.ErrorResponse("Bill item not found"))
			return
		}
		var over *overReturnError
		if errors.As(err, &over) {
			c.JSON(http.StatusBadRequest, api.ErrorResponse(over.Error()))
			return
		}
		c.JSON(http.StatusInternalServerError, api.ErrorResponse("Failed to create return"))
		return
	}

	c.JSON(http.StatusOK, api.SuccessResponse("Return recorded successfully", created))
}

func (h *BillingHandler) ListReturns(c *gin.Context) {
	page, pageSize := pagination(c, 20)

	var total int64
	if err := h.db.Model(&models.Return{}).Count(&total).Error; err != nil {
		c.JSON(http.StatusInternalServerError, api.ErrorResponse("Database error"))
		return
	}

	var returns []models.Return
	if err := h.db.
		Preload("BillItem.Item").
		Order("created_at DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&returns).Error; err != nil {
		c.JSON(http.StatusInternalServerError, api.ErrorResponse("Database error"))
		return
	}

	c.JSON(http.StatusOK, api.SuccessWithMetaResponse("Returns retrieved successfully", returns, gin.H{
		"total":     total,
		"page":      page,
		"page_size": pageSize,
	}))
}

func pagination(c *gin.Context, defaultSize int) (page, pageSize int) {
	page = 1
	if n, err := strconv.Atoi(c.Query("page")); err == nil && n > 0 {
		page = n
	}
	pageSize = defaultSize
	if n, err := strconv.Atoi(c.Query("page_size")); err == nil && n > 0 {
		pageSize = n
	}
	return page, pageSize
}
