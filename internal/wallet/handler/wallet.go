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

// The wallet is a single aggregate row; every entry mutation runs in a
// transaction that re-reads the balance, so concurrent updates serialize
// on the storage layer.
const walletID = 1

type WalletHandler struct {
	db *gorm.DB
}

func NewWalletHandler(db *gorm.DB) *WalletHandler {
	return &WalletHandler{db: db}
}

func validTransactionType(t string) bool {
	switch t {
	case models.TxnSale, models.TxnReturn, models.TxnSalary, models.TxnExpense,
		models.TxnDeposit, models.TxnAdvanceSalary, models.TxnOther:
		return true
	}
	return false
}

// isInflow classifies an entry: deposits and return reimbursements add to
// the wallet, every other type pays out of it.
func isInflow(t string) bool {
	switch t {
	case models.TxnReturn, models.TxnDeposit:
		return true
	}
	return false
}

func signedDelta(transactionType string, amount decimal.Decimal) decimal.Decimal {
	if isInflow(transactionType) {
		return amount
	}
	return amount.Neg()
}

func loadWallet(tx *gorm.DB) (models.Wallet, error) {
	wallet := models.Wallet{ID: walletID, CurrentBalance: "0.00"}
	err := tx.Where(models.Wallet{ID: walletID}).FirstOrCreate(&wallet).Error
	return wallet, err
}

func applyBalanceDelta(tx *gorm.DB, delta decimal.Decimal) (decimal.Decimal, error) {
	wallet, err := loadWallet(tx)
	if err != nil {
		return decimal.Zero, err
	}

	current, err := decimal.NewFromString(wallet.CurrentBalance)
	if err != nil {
		return decimal.Zero, err
	}

	next := current.Add(delta)
	wallet.CurrentBalance = next.StringFixed(2)
	if err := tx.Save(&wallet).Error; err != nil {
		return decimal.Zero, err
	}
	return next, nil
}

// -- Endpoints --

func (h *WalletHandler) GetBalance(c *gin.Context) {
	wallet, err := loadWallet(h.db)
	if err != nil {
		c.JSON(http.StatusInternalServerError, api.ErrorResponse("Database error"))
		return
	}
	c.JSON(http.StatusOK, api.SuccessResponse("Wallet balance retrieved successfully", gin.H{
		"current_balance": wallet.CurrentBalance,
	}))
}

func (h *WalletHandler) ListEntries(c *gin.Context) {
	page := 1
	if n, err := strconv.Atoi(c.Query("page")); err == nil && n > 0 {
		page = n
	}
	pageSize := 20
	if n, err := strconv.Atoi(c.Query("page_size")); err == nil && n > 0 {
		pageSize = n
	}

	var total int64
	if err := h.db.Model(&models.WalletEntry{}).Count(&total).Error; err != nil {
		c.JSON(http.StatusInternalServerError, api.ErrorResponse("Database error"))
		return
	}

	var entries []models.WalletEntry
	if err := h.db.Order("id DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&entries).Error; err != nil {
		c.JSON(http.StatusInternalServerError, api.ErrorResponse("Database error"))
		return
	}

	c.JSON(http.StatusOK, api.SuccessWithMetaResponse("Wallet entries retrieved successfully", entries, gin.H{
		"total":     total,
		"page":      page,
		"page_size": pageSize,
	}))
}

type walletEntryRequest struct {
	TransactionType string `json:"transaction_type" binding:"required"`
	Amount          string `json:"amount" binding:"required"`
	Description     string `json:"description"`
}

func (req *walletEntryRequest) parse() (decimal.Decimal, error) {
	if !validTransactionType(req.TransactionType) {
		return decimal.Zero, errors.New("unknown transaction type")
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil || !amount.IsPositive() {
		return decimal.Zero, errors.New("amount must be a positive number")
	}
	return amount, nil
}

func (h *WalletHandler) CreateEntry(c *gin.Context) {
	var req walletEntryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, api.ErrorResponse("transaction_type and amount are required"))
		return
	}
	amount, err := req.parse()
	if err != nil {
		c.JSON(http.StatusBadRequest, api.ErrorResponse(err.Error()))
		return
	}

	var entry models.WalletEntry
	err = h.db.Transaction(func(tx *gorm.DB) error {
		balance, err := applyBalanceDelta(tx, signedDelta(req.TransactionType, amount))
		if err != nil {
			return err
		}

		entry = models.WalletEntry{
			TransactionType:         req.TransactionType,
			Amount:                  amount.StringFixed(2),
			Description:             req.Description,
			TransactionDate:         time.Now(),
			BalanceAfterTransaction: balance.StringFixed(2),
		}
		return tx.Create(&entry).Error
	})

	if err != nil {
		c.JSON(http.StatusInternalServerError, api.ErrorResponse("Failed to create wallet entry"))
		return
	}

	c.JSON(http.StatusOK, api.SuccessResponse("Wallet entry recorded successfully", entry))
}

// UpdateEntry reverses the entry's previous effect on the balance before
// applying the new classification and amount.
func (h *WalletHandler) UpdateEntry(c *gin.Context) {
	entryID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, api.ErrorResponse("Invalid entry ID"))
		return
	}

	var req walletEntryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, api.ErrorResponse("transaction_type and amount are required"))
		return
	}
	amount, err := req.parse()
	if err != nil {
		c.JSON(http.StatusBadRequest, api.ErrorResponse(err.Error()))
		return
	}

	var entry models.WalletEntry
	err = h.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&entry, entryID).Error; err != nil {
			return err
		}

		previousAmount, err := decimal.NewFromString(entry.Amount)
		if err != nil {
			return err
		}

		if _, err := applyBalanceDelta(tx, signedDelta(entry.TransactionType, previousAmount).Neg()); err != nil {
			return err
		}
		balance, err := applyBalanceDelta(tx, signedDelta(req.TransactionType, amount))
		if err != nil {
			return err
		}

		entry.TransactionType = req.TransactionType
		entry.Amount = amount.StringFixed(2)
		entry.Description = req.Description
		entry.BalanceAfterTransaction = balance.StringFixed(2)
		return tx.Save(&entry).Error
	})

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, api.ErrorResponse("Wallet entry not found"))
			return
		}
		c.JSON(http.StatusInternalServerError, api.ErrorResponse("Failed to update wallet entry"))
		return
	}

	c.JSON(http.StatusOK, api.SuccessResponse("Wallet entry updated successfully", entry))
}

func (h *WalletHandler) DeleteEntry(c *gin.Context) {
	entryID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, api.ErrorResponse("Invalid entry ID"))
		return
	}

	err = h.db.Transaction(func(tx *gorm.DB) error {
		var entry models.WalletEntry
		if err := tx.First(&entry, entryID).Error; err != nil {
			return err
		}

		amount, err := decimal.NewFromString(entry.Amount)
		if err != nil {
			return err
		}

		if _, err := applyBalanceDelta(tx, signedDelta(entry.TransactionType, amount).Neg()); err != nil {
			return err
		}
		return tx.Delete(&entry).Error
	})

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, api.ErrorResponse("Wallet entry not found"))
			return
		}
		c.JSON(http.StatusInternalServerError, api.ErrorResponse("Failed to delete wallet entry"))
		return
	}

	c.JSON(http.StatusOK, api.SuccessResponse("Wallet entry deleted successfully", nil))
}
