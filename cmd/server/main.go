package main

import (
	"log"

	"github.com/gin-gonic/gin"

	"msi-system/config"
	authhandler "msi-system/internal/auth/handler"
	billinghandler "msi-system/internal/billing/handler"
	"msi-system/internal/database"
	employeeshandler "msi-system/internal/employees/handler"
	expenseshandler "msi-system/internal/expenses/handler"
	"msi-system/internal/middleware"
	stockhandler "msi-system/internal/stock/handler"
	"msi-system/internal/utils"
	wallethandler "msi-system/internal/wallet/handler"
)

func main() {
	cfg := config.LoadConfig()
	utils.SetSecret(cfg.Auth.JWTSecret)

	db, err := database.NewConnection(cfg.DB.DSN())
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	redisClient := config.NewRedisClient(cfg.Redis)

	billingHandler := billinghandler.NewBillingHandler(db, redisClient)
	stockHandler := stockhandler.NewStockHandler(db, redisClient)
	walletHandler := wallethandler.NewWalletHandler(db)
	expenseHandler := expenseshandler.NewExpenseHandler(db)
	employeeHandler := employeeshandler.NewEmployeeHandler(db)
	authHandler := authhandler.NewAuthHandler(db, cfg.Auth.TokenTTL)

	r := gin.Default()
	r.Use(middleware.CORS())
	r.Use(middleware.RateLimit())

	// Legacy billing endpoints keep their original paths and response
	// shapes for the point-of-sale frontend.
	r.GET("/get_skus_by_category/:category_id", billingHandler.GetSKUsByCategory)
	r.POST("/generate_bill/", billingHandler.GenerateBill)

	public := r.Group("/api/v1")
	{
		auth := public.Group("/auth")
		{
			auth.POST("/register", authHandler.Register)
			auth.POST("/login", authHandler.Login)
		}
	}

	protected := r.Group("/api/v1")
	protected.Use(middleware.JWTAuth())
	{
		stock := protected.Group("/stock")
		{
			stock.GET("/items", stockHandler.ListItems)
			stock.POST("/items", stockHandler.CreateItem)
			stock.GET("/items/:id", stockHandler.GetItem)
			stock.PUT("/items/:id", stockHandler.UpdateItem)
			stock.DELETE("/items/:id", stockHandler.DeleteItem)
			stock.POST("/items/:id/restock", stockHandler.RestockItem)
			stock.GET("/items/:id/history", stockHandler.ItemHistory)

			stock.GET("/categories", stockHandler.ListCategories)
			stock.POST("/categories", stockHandler.CreateCategory)
			stock.PUT("/categories/:id", stockHandler.UpdateCategory)
			stock.DELETE("/categories/:id", stockHandler.DeleteCategory)

			stock.GET("/suppliers", stockHandler.ListSuppliers)
			stock.POST("/suppliers", stockHandler.CreateSupplier)
		}

		billing := protected.Group("/billing")
		{
			billing.GET("/bills", billingHandler.ListBills)
			billing.GET("/bills/:id", billingHandler.GetBill)
			billing.GET("/returns", billingHandler.ListReturns)
			billing.POST("/returns", billingHandler.CreateReturn)
		}

		wallet := protected.Group("/wallet")
		{
			wallet.GET("/balance", walletHandler.GetBalance)
			wallet.GET("/entries", walletHandler.ListEntries)
			wallet.POST("/entries", walletHandler.CreateEntry)
			wallet.PUT("/entries/:id", walletHandler.UpdateEntry)
			wallet.DELETE("/entries/:id", walletHandler.DeleteEntry)
		}

		expenses := protected.Group("/expenses")
		{
			expenses.GET("", expenseHandler.ListExpenses)
			expenses.POST("", expenseHandler.CreateExpense)
			expenses.DELETE("/:id", expenseHandler.DeleteExpense)
		}

		employees := protected.Group("/employees")
		{
			employees.GET("/advances", employeeHandler.ListAdvances)
			employees.POST("/advances", employeeHandler.CreateAdvance)
			employees.PUT("/advances/:id/payback", employeeHandler.MarkAdvancePaidBack)
		}
	}

	if err := r.Run(":" + cfg.Server.Port); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
}
