package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"msi-system/internal/api"
	"msi-system/internal/database/models"
)

const (
	ITEM_CACHE_PREFIX = "stock:item:"
	// Shared with the billing SKU lookup; restocks and item edits must
	// drop the cached SKU list of the touched category.
	SKU_CACHE_PREFIX = "billing:skus:"
	CACHE_TTL_SHORT  = 5 * time.Minute
)

type StockHandler struct {
	db    *gorm.DB
	redis *redis.Client
}

func NewStockHandler(db *gorm.DB, redisClient *redis.Client) *StockHandler {
	return &StockHandler{
		db:    db,
		redis: redisClient,
	}
}

func (h *StockHandler) InvalidateItemCaches(ctx context.Context, categoryID int64, itemIDs ...int64) {
	if h.redis == nil {
		return
	}
	_ = h.redis.Del(ctx, fmt.Sprintf("%s%d", SKU_CACHE_PREFIX, categoryID))
	for _, id := range itemIDs {
		_ = h.redis.Del(ctx, fmt.Sprintf("%s%d", ITEM_CACHE_PREFIX, id))
	}
}

func itemToJSON(item models.InventoryItem) gin.H {
	categoryName := ""
	if item.Category != nil {
		categoryName = item.Category.Name
	}
	return gin.H{
		"id":                   item.ID,
		"sku":                  item.SKU,
		"name":                 item.Name,
		"category_id":          item.CategoryID,
		"category_name":        categoryName,
		"total_stock_quantity": item.TotalStockQuantity,
		"unit_of_measure":      item.UnitOfMeasure,
		"is_sold_in_kgs":       item.IsSoldInKgs,
		"sale_price":           item.SalePrice,
	}
}

// -- Items --

func (h *StockHandler) ListItems(c *gin.Context) {
	page := 1
	if n, err := strconv.Atoi(c.Query("page")); err == nil && n > 0 {
		page = n
	}
	pageSize := 10
	if n, err := strconv.Atoi(c.Query("page_size")); err == nil && n > 0 {
		pageSize = n
	}

	query := h.db.Model(&models.InventoryItem{}).Preload("Category").Order("name")

	if categoryID := c.Query("category_id"); categoryID != "" {
		query = query.Where("category_id = ?", categoryID)
	}
	if searchTerm := c.Query("item_name"); searchTerm != "" {
		pattern := "%" + searchTerm + "%"
		query = query.Where("LOWER(name) LIKE LOWER(?) OR LOWER(sku) LIKE LOWER(?)", pattern, pattern)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		c.JSON(http.StatusInternalServerError, api.ErrorResponse("Database error"))
		return
	}

	var items []models.InventoryItem
	if err := query.Offset((page - 1) * pageSize).Limit(pageSize).Find(&items).Error; err != nil {
		c.JSON(http.StatusInternalServerError, api.ErrorResponse("Database error"))
		return
	}

	itemsData := make([]gin.H, 0, len(items))
	for _, item := range items {
		itemsData = append(itemsData, itemToJSON(item))
	}

	c.JSON(http.StatusOK, api.SuccessWithMetaResponse("Items retrieved successfully", itemsData, gin.H{
		"total":     total,
		"page":      page,
		"page_size": pageSize,
	}))
}

func (h *StockHandler) GetItem(c *gin.Context) {
	itemID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, api.ErrorResponse("Invalid item ID"))
		return
	}

	cacheKey := fmt.Sprintf("%s%d", ITEM_CACHE_PREFIX, itemID)
	if h.redis != nil {
		if cached, err := h.redis.Get(c.Request.Context(), cacheKey).Result(); err == nil {
			c.Data(http.StatusOK, "application/json; charset=utf-8", []byte(cached))
			return
		}
	}

	var item models.InventoryItem
	if err := h.db.Preload("Category").First(&item, itemID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, api.ErrorResponse("Item not found"))
			return
		}
		c.JSON(http.StatusInternalServerError, api.ErrorResponse("Database error"))
		return
	}

	payload := api.SuccessResponse("Item retrieved successfully", itemToJSON(item))
	if h.redis != nil {
		if raw, err := json.Marshal(payload); err == nil {
			h.redis.Set(c.Request.Context(), cacheKey, raw, CACHE_TTL_SHORT)
		}
	}

	c.JSON(http.StatusOK, payload)
}

type saveItemRequest struct {
	SKU           string      `json:"sku" binding:"required"`
	Name          string      `json:"name" binding:"required"`
	CategoryID    int64       `json:"category_id" binding:"required"`
	UnitOfMeasure string      `json:"unit_of_measure"`
	IsSoldInKgs   bool        `json:"is_sold_in_kgs"`
	SalePrice     json.Number `json:"sale_price"`
}

func (req *saveItemRequest) validate() (salePrice decimal.Decimal, err error) {
	switch req.UnitOfMeasure {
	case "":
		req.UnitOfMeasure = models.UnitKG
	case models.UnitKG, models.UnitPiece:
	default:
		return decimal.Zero, fmt.Errorf("unit_of_measure must be %s or %s", models.UnitKG, models.UnitPiece)
	}

	salePrice = decimal.Zero
	if req.SalePrice != "" {
		salePrice, err = decimal.NewFromString(req.SalePrice.String())
		if err != nil || salePrice.IsNegative() {
			return decimal.Zero, errors.New("sale_price must be a non-negative amount")
		}
	}
	return salePrice, nil
}

func (h *StockHandler) CreateItem(c *gin.Context) {
	var req saveItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, api.ErrorResponse("Invalid item payload"))
		return
	}
	salePrice, err := req.validate()
	if err != nil {
		c.JSON(http.StatusBadRequest, api.ErrorResponse(err.Error()))
		return
	}

	var category models.InventoryCategory
	if err := h.db.First(&category, req.CategoryID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusBadRequest, api.ErrorResponse("Category not found"))
			return
		}
		c.JSON(http.StatusInternalServerError, api.ErrorResponse("Database error"))
		return
	}

	item := models.InventoryItem{
		SKU:           req.SKU,
		Name:          req.Name,
		CategoryID:    req.CategoryID,
		UnitOfMeasure: req.UnitOfMeasure,
		IsSoldInKgs:   req.IsSoldInKgs,
		SalePrice:     salePrice.StringFixed(2),
	}
	if err := h.db.Create(&item).Error; err != nil {
		c.JSON(http.StatusBadRequest, api.ErrorResponse("Failed to create item: SKU may already exist"))
		return
	}

	h.InvalidateItemCaches(c.Request.Context(), item.CategoryID, item.ID)
	c.JSON(http.StatusOK, api.SuccessResponse("Item saved successfully", itemToJSON(item)))
}

func (h *StockHandler) UpdateItem(c *gin.Context) {
	itemID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, api.ErrorResponse("Invalid item ID"))
		return
	}

	var req saveItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, api.ErrorResponse("Invalid item payload"))
		return
	}
	salePrice, err := req.validate()
	if err != nil {
		c.JSON(http.StatusBadRequest, api.ErrorResponse(err.Error()))
		return
	}

	var item models.InventoryItem
	if err := h.db.First(&item, itemID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, api.ErrorResponse("Item not found"))
			return
		}
		c.JSON(http.StatusInternalServerError, api.ErrorResponse("Database error"))
		return
	}

	previousCategory := item.CategoryID

	item.SKU = req.SKU
	item.Name = req.Name
	item.CategoryID = req.CategoryID
	item.UnitOfMeasure = req.UnitOfMeasure
	item.IsSoldInKgs = req.IsSoldInKgs
	item.SalePrice = salePrice.StringFixed(2)

	if err := h.db.Save(&item).Error; err != nil {
		c.JSON(http.StatusInternalServerError, api.ErrorResponse("Failed to update item"))
		return
	}

	h.InvalidateItemCaches(c.Request.Context(), previousCategory, item.ID)
	if item.CategoryID != previousCategory {
		h.InvalidateItemCaches(c.Request.Context(), item.CategoryID)
	}
	c.JSON(http.StatusOK, api.SuccessResponse("Item saved successfully", itemToJSON(item)))
}

func (h *StockHandler) DeleteItem(c *gin.Context) {
	itemID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, api.ErrorResponse("Invalid item ID"))
		return
	}

	var item models.InventoryItem
	if err := h.db.First(&item, itemID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, api.ErrorResponse("Item not found"))
			return
		}
		c.JSON(http.StatusInternalServerError, api.ErrorResponse("Database error"))
		return
	}

	if err := h.db.Delete(&item).Error; err != nil {
		c.JSON(http.StatusInternalServerError, api.ErrorResponse("Failed to delete item"))
		return
	}

	h.InvalidateItemCaches(c.Request.Context(), item.CategoryID, item.ID)
	c.JSON(http.StatusOK, api.SuccessResponse("Item deleted successfully", nil))
}

// -- Restock --

type restockRequest struct {
	Quantity           int         `json:"quantity" binding:"required,min=1"`
	UnitPrice          json.Number `json:"unit_price" binding:"required"`
	RetailPricePerUnit json.Number `json:"retail_price_per_unit" binding:"required"`
	SupplierID         *int64      `json:"supplier_id"`
	ExpiryDate         string      `json:"expiry_date"`
}

// RestockItem increments on-hand stock, appends a history entry and
// re-derives the sale price as the average retail price over the item's
// restock history.
func (h *StockHandler) RestockItem(c *gin.Context) {
	itemID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, api.ErrorResponse("Invalid item ID"))
		return
	}

	var req restockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, api.ErrorResponse("Invalid restock payload"))
		return
	}

	unitPrice, err := decimal.NewFromString(req.UnitPrice.String())
	if err != nil || unitPrice.IsNegative() {
		c.JSON(http.StatusBadRequest, api.ErrorResponse("Invalid unit_price"))
		return
	}
	retailPrice, err := decimal.NewFromString(req.RetailPricePerUnit.String())
	if err != nil || retailPrice.IsNegative() {
		c.JSON(http.StatusBadRequest, api.ErrorResponse("Invalid retail_price_per_unit"))
		return
	}

	var expiryDate *time.Time
	if req.ExpiryDate != "" {
		parsed, err := time.Parse("2006-01-02", req.ExpiryDate)
		if err != nil {
			c.JSON(http.StatusBadRequest, api.ErrorResponse("Invalid expiry_date, expected YYYY-MM-DD"))
			return
		}
		expiryDate = &parsed
	}

	var item models.InventoryItem
	err = h.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&item, itemID).Error; err != nil {
			return err
		}

		if req.SupplierID != nil {
			var supplier models.Supplier
			if err := tx.First(&supplier, *req.SupplierID).Error; err != nil {
				return err
			}
		}

		res := tx.Model(&models.InventoryItem{}).
			Where("id = ?", itemID).
			UpdateColumn("total_stock_quantity", gorm.Expr("total_stock_quantity + ?", req.Quantity))
		if res.Error != nil {
			return res.Error
		}

		entry := models.InventoryHistory{
			ItemID:             itemID,
			Quantity:           req.Quantity,
			UnitPrice:          unitPrice.StringFixed(2),
			RetailPricePerUnit: retailPrice.StringFixed(2),
			ExpiryDate:         expiryDate,
			SupplierID:         req.SupplierID,
		}
		if err := tx.Create(&entry).Error; err != nil {
			return err
		}

		var retailPrices []string
		if err := tx.Model(&models.InventoryHistory{}).
			Where("item_id = ?", itemID).
			Pluck("retail_price_per_unit", &retailPrices).Error; err != nil {
			return err
		}

		prices := make([]decimal.Decimal, 0, len(retailPrices))
		for _, raw := range retailPrices {
			p, err := decimal.NewFromString(raw)
			if err != nil {
				return err
			}
			prices = append(prices, p)
		}
		if len(prices) > 0 {
			average := decimal.Avg(prices[0], prices[1:]...)
			if err := tx.Model(&models.InventoryItem{}).
				Where("id = ?", itemID).
				UpdateColumn("sale_price", average.StringFixed(2)).Error; err != nil {
				return err
			}
		}

		return tx.Preload("Category").First(&item, itemID).Error
	})

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, api.ErrorResponse("Item or supplier not found"))
			return
		}
		c.JSON(http.StatusInternalServerError, api.ErrorResponse("Failed to restock item"))
		return
	}

	h.InvalidateItemCaches(c.Request.Context(), item.CategoryID, item.ID)
	c.JSON(http.StatusOK, api.SuccessResponse("Item restocked successfully", itemToJSON(item)))
}

func (h *StockHandler) ItemHistory(c *gin.Context) {
	itemID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, api.ErrorResponse("Invalid item ID"))
		return
	}

	var item models.InventoryItem
	if err := h.db.First(&item, itemID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, api.ErrorResponse("Item not found"))
			return
		}
		c.JSON(http.StatusInternalServerError, api.ErrorResponse("Database error"))
		return
	}

	var history []models.InventoryHistory
	if err := h.db.Preload("Supplier").
		Where("item_id = ?", itemID).
		Order("timestamp DESC").
		Find(&history).Error; err != nil {
		c.JSON(http.StatusInternalServerError, api.ErrorResponse("Database error"))
		return
	}

	historyData := make([]gin.H, 0, len(history))
	for _, entry := range history {
		supplierName := ""
		if entry.Supplier != nil {
			supplierName = entry.Supplier.Name
		}
		var expiry string
		if entry.ExpiryDate != nil {
			expiry = entry.ExpiryDate.Format("2006-01-02")
		}
		historyData = append(historyData, gin.H{
			"quantity":              entry.Quantity,
			"unit_price":            entry.UnitPrice,
			"retail_price_per_unit": entry.RetailPricePerUnit,
			"supplier_name":         supplierName,
			"expiry_date":           expiry,
			"timestamp":             entry.Timestamp,
		})
	}

	c.JSON(http.StatusOK, api.SuccessResponse("Item history retrieved successfully", gin.H{
		"item_name": item.Name,
		"history":   historyData,
	}))
}

// -- Categories --

func (h *StockHandler) ListCategories(c *gin.Context) {
	var categories []models.InventoryCategory
	if err := h.db.Order("name").Find(&categories).Error; err != nil {
		c.JSON(http.StatusInternalServerError, api.ErrorResponse("Database error"))
		return
	}

	data := make([]gin.H, 0, len(categories))
	for _, category := range categories {
		var itemCount int64
		if err := h.db.Model(&models.InventoryItem{}).
			Where("category_id = ?", category.ID).
			Count(&itemCount).Error; err != nil {
			c.JSON(http.StatusInternalServerError, api.ErrorResponse("Database error"))
			return
		}
		data = append(data, gin.H{
			"id":         category.ID,
			"name":       category.Name,
			"item_count": itemCount,
		})
	}

	c.JSON(http.StatusOK, api.SuccessResponse("Categories retrieved successfully", data))
}

type saveCategoryRequest struct {
	Name string `json:"name" binding:"required"`
}

func (h *StockHandler) CreateCategory(c *gin.Context) {
	var req saveCategoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, api.ErrorResponse("Category name is required"))
		return
	}

	category := models.InventoryCategory{Name: req.Name}
	if err := h.db.Create(&category).Error; err != nil {
		c.JSON(http.StatusInternalServerError, api.ErrorResponse("Failed to create category"))
		return
	}

	c.JSON(http.StatusOK, api.SuccessResponse("Category saved successfully", category))
}

func (h *StockHandler) UpdateCategory(c *gin.Context) {
	categoryID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, api.ErrorResponse("Invalid category ID"))
		return
	}

	var req saveCategoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, api.ErrorResponse("Category name is required"))
		return
	}

	var category models.InventoryCategory
	if err := h.db.First(&category, categoryID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, api.ErrorResponse("Category not found"))
			return
		}
		c.JSON(http.StatusInternalServerError, api.ErrorResponse("Database error"))
		return
	}

	category.Name = req.Name
	if err := h.db.Save(&category).Error; err != nil {
		c.JSON(http.StatusInternalServerError, api.ErrorResponse("Failed to update category"))
		return
	}

	h.InvalidateItemCaches(c.Request.Context(), category.ID)
	c.JSON(http.StatusOK, api.SuccessResponse("Category saved successfully", category))
}

func (h *StockHandler) DeleteCategory(c *gin.Context) {
	categoryID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, api.ErrorResponse("Invalid category ID"))
		return
	}

	result := h.db.Delete(&models.InventoryCategory{}, categoryID)
	if result.Error != nil {
		c.JSON(http.StatusInternalServerError, api.ErrorResponse("Failed to delete category"))
		return
	}
	if result.RowsAffected == 0 {
		c.JSON(http.StatusNotFound, api.ErrorResponse("Category not found"))
		return
	}

	h.InvalidateItemCaches(c.Request.Context(), categoryID)
	c.JSON(http.StatusOK, api.SuccessResponse("Category deleted successfully", nil))
}

// -- Suppliers --

func (h *StockHandler) ListSuppliers(c *gin.Context) {
	var suppliers []models.Supplier
	if err := h.db.Order("name").Find(&suppliers).Error; err != nil {
		c.JSON(http.StatusInternalServerError, api.ErrorResponse("Database error"))
		return
	}
	c.JSON(http.StatusOK, api.SuccessResponse("Suppliers retrieved successfully", suppliers))
}

type saveSupplierRequest struct {
	Name    string `json:"name" binding:"required"`
	Phone   string `json:"phone"`
	Address string `json:"address"`
}

func (h *StockHandler) CreateSupplier(c *gin.Context) {
	var req saveSupplierRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, api.ErrorResponse("Supplier name is required"))
		return
	}

	supplier := models.Supplier{
		Name:    req.Name,
		Phone:   req.Phone,
		Address: req.Address,
	}
	if err := h.db.Create(&supplier).Error; err != nil {
		c.JSON(http.StatusInternalServerError, api.ErrorResponse("Failed to create supplier"))
		return
	}

	c.JSON(http.StatusOK, api.SuccessResponse("Supplier saved successfully", supplier))
}
