package handler

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"msi-system/internal/api"
	"msi-system/internal/database/models"
)

type EmployeeHandler struct {
	db *gorm.DB
}

func NewEmployeeHandler(db *gorm.DB) *EmployeeHandler {
	return &EmployeeHandler{db: db}
}

func (h *EmployeeHandler) ListAdvances(c *gin.Context) {
	query := h.db.Model(&models.EmployeeAdvance{}).Order("date_given DESC")
	if name := c.Query("employee_name"); name != "" {
		query = query.Where("employee_name = ?", name)
	}

	var advances []models.EmployeeAdvance
	if err := query.Find(&advances).Error; err != nil {
		c.JSON(http.StatusInternalServerError, api.ErrorResponse("Database error"))
		return
	}

	c.JSON(http.StatusOK, api.SuccessResponse("Advances retrieved successfully", advances))
}

type createAdvanceRequest struct {
	EmployeeName string `json:"employee_name" binding:"required"`
	Amount       string `json:"amount" binding:"required"`
}

func (h *EmployeeHandler) CreateAdvance(c *gin.Context) {
	var req createAdvanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, api.ErrorResponse("employee_name and amount are required"))
		return
	}

	amount, err := decimal.NewFromString(req.Amount)
	if err != nil || !amount.IsPositive() {
		c.JSON(http.StatusBadRequest, api.ErrorResponse("amount must be a positive number"))
		return
	}

	advance := models.EmployeeAdvance{
		EmployeeName: req.EmployeeName,
		Amount:       amount.StringFixed(2),
		DateGiven:    time.Now(),
	}
	if err := h.db.Create(&advance).Error; err != nil {
		c.JSON(http.StatusInternalServerError, api.ErrorResponse("Failed to record advance"))
		return
	}

	c.JSON(http.StatusOK, api.SuccessResponse("Advance recorded successfully", advance))
}

func (h *EmployeeHandler) MarkAdvancePaidBack(c *gin.Context) {
	advanceID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, api.ErrorResponse("Invalid advance ID"))
		return
	}

	var advance models.EmployeeAdvance
	if err := h.db.First(&advance, advanceID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, api.ErrorResponse("Advance not found"))
			return
		}
		c.JSON(http.StatusInternalServerError, api.ErrorResponse("Database error"))
		return
	}

	advance.PaidBack = true
	if err := h.db.Save(&advance).Error; err != nil {
		c.JSON(http.StatusInternalServerError, api.ErrorResponse("Failed to update advance"))
		return
	}

	c.JSON(http.StatusOK, api.SuccessResponse("Advance marked as paid back", advance))
}
