package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"msi-system/internal/api"
	"msi-system/internal/database/models"
)

type ExpenseHandler struct {
	db *gorm.DB
}

func NewExpenseHandler(db *gorm.DB) *ExpenseHandler {
	return &ExpenseHandler{db: db}
}

func (h *ExpenseHandler) ListExpenses(c *gin.Context) {
	page := 1
	if n, err := strconv.Atoi(c.Query("page")); err == nil && n > 0 {
		page = n
	}
	pageSize := 20
	if n, err := strconv.Atoi(c.Query("page_size")); err == nil && n > 0 {
		pageSize = n
	}

	var total int64
	if err := h.db.Model(&models.Expense{}).Count(&total).Error; err != nil {
		c.JSON(http.StatusInternalServerError, api.ErrorResponse("Database error"))
		return
	}

	var expenses []models.Expense
	if err := h.db.Order("created_at DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&expenses).Error; err != nil {
		c.JSON(http.StatusInternalServerError, api.ErrorResponse("Database error"))
		return
	}

	c.JSON(http.StatusOK, api.SuccessWithMetaResponse("Expenses retrieved successfully", expenses, gin.H{
		"total":     total,
		"page":      page,
		"page_size": pageSize,
	}))
}

type createExpenseRequest struct {
	Description string `json:"description" binding:"required"`
	Amount      string `json:"amount" binding:"required"`
}

func (h *ExpenseHandler) CreateExpense(c *gin.Context) {
	var req createExpenseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, api.ErrorResponse("description and amount are required"))
		return
	}

	amount, err := decimal.NewFromString(req.Amount)
	if err != nil || !amount.IsPositive() {
		c.JSON(http.StatusBadRequest, api.ErrorResponse("amount must be a positive number"))
		return
	}

	expense := models.Expense{
		Description: req.Description,
		Amount:      amount.StringFixed(2),
		CreatedAt:   time.Now(),
	}
	if err := h.db.Create(&expense).Error; err != nil {
		c.JSON(http.StatusInternalServerError, api.ErrorResponse("Failed to record expense"))
		return
	}

	c.JSON(http.StatusOK, api.SuccessResponse("Expense recorded successfully", expense))
}

func (h *ExpenseHandler) DeleteExpense(c *gin.Context) {
	expenseID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, api.ErrorResponse("Invalid expense ID"))
		return
	}

	result := h.db.Delete(&models.Expense{}, expenseID)
	if result.Error != nil {
		c.JSON(http.StatusInternalServerError, api.ErrorResponse("Failed to delete expense"))
		return
	}
	if result.RowsAffected == 0 {
		c.JSON(http.StatusNotFound, api.ErrorResponse("Expense not found"))
		return
	}

	c.JSON(http.StatusOK, api.SuccessResponse("Expense deleted successfully", nil))
}
