package models

import "time"

// Unit of measure choices for inventory items.
const (
	UnitKG    = "KG"
	UnitPiece = "PIECE"
)

// Rent payer choices on a bill.
const (
	RentPayerCustomer = "customer"
	RentPayerCompany  = "company"
	RentPayerShared   = "shared"
)

// Payment method choices on a bill.
const (
	PaymentCash   = "cash"
	PaymentOnline = "online"
)

// Discount type choices on a bill line.
const (
	DiscountNone       = "none"
	DiscountFixed      = "fixed"
	DiscountPercentage = "percentage"
)

// Wallet transaction types. Deposits and returns flow into the wallet,
// everything else flows out.
const (
	TxnSale          = "sale"
	TxnReturn        = "return"
	TxnSalary        = "salary"
	TxnExpense       = "expense"
	TxnDeposit       = "deposit"
	TxnAdvanceSalary = "advance_salary"
	TxnOther         = "other"
)

type Customer struct {
	ID        int64  `gorm:"primaryKey;autoIncrement"`
	Name      string `gorm:"type:varchar(100);uniqueIndex;not null"`
	CNIC      string `gorm:"type:varchar(15)"`
	Phone     string `gorm:"type:varchar(20)"`
	Address   string `gorm:"type:text"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

type InventoryCategory struct {
	ID        int64  `gorm:"primaryKey;autoIncrement"`
	Name      string `gorm:"type:varchar(100);not null"`
	CreatedAt time.Time
	UpdatedAt time.Time

	Items []InventoryItem `gorm:"foreignKey:CategoryID"`
}

type Supplier struct {
	ID        int64  `gorm:"primaryKey;autoIncrement"`
	Name      string `gorm:"type:varchar(100);not null"`
	Phone     string `gorm:"type:varchar(20)"`
	Address   string `gorm:"type:text"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

type InventoryItem struct {
	ID                 int64  `gorm:"primaryKey;autoIncrement"`
	SKU                string `gorm:"type:varchar(100);uniqueIndex;not null"`
	Name               string `gorm:"type:varchar(200);not null"`
	CategoryID         int64  `gorm:"index;not null"`
	TotalStockQuantity int    `gorm:"not null;default:0"`
	UnitOfMeasure      string `gorm:"type:varchar(10);not null;default:'KG'"`
	IsSoldInKgs        bool   `gorm:"not null;default:false"`
	SalePrice          string `gorm:"type:decimal(10,2);not null;default:0"`
	CreatedAt          time.Time
	UpdatedAt          time.Time

	Category *InventoryCategory `gorm:"foreignKey:CategoryID"`
	History  []InventoryHistory `gorm:"foreignKey:ItemID"`
}

// InventoryHistory records one restock of an item.
type InventoryHistory struct {
	ID                 int64  `gorm:"primaryKey;autoIncrement"`
	ItemID             int64  `gorm:"index;not null"`
	Quantity           int    `gorm:"not null"`
	UnitPrice          string `gorm:"type:decimal(10,2);not null"` // purchase price
	RetailPricePerUnit string `gorm:"type:decimal(10,2);not null"`
	ExpiryDate         *time.Time
	SupplierID         *int64
	Timestamp          time.Time `gorm:"autoCreateTime"`

	Item     *InventoryItem `gorm:"foreignKey:ItemID"`
	Supplier *Supplier      `gorm:"foreignKey:SupplierID"`
}

type Bill struct {
	ID            int64 `gorm:"primaryKey;autoIncrement"`
	CustomerID    *int64
	CreatedAt     time.Time
	TotalAmount   string `gorm:"type:decimal(12,2);not null"`
	AmountPaid    string `gorm:"type:decimal(12,2);not null;default:0"`
	RentAmount    string `gorm:"type:decimal(10,2);not null;default:0"`
	RentPayer     string `gorm:"type:varchar(10);not null;default:'customer'"`
	PaymentMethod string `gorm:"type:varchar(10);not null;default:'cash'"`

	Customer *Customer  `gorm:"foreignKey:CustomerID"`
	Items    []BillItem `gorm:"foreignKey:BillID;constraint:OnDelete:CASCADE"`
}

type BillItem struct {
	ID             int64  `gorm:"primaryKey;autoIncrement"`
	BillID         int64  `gorm:"index;not null"`
	ItemID         int64  `gorm:"not null"`
	Quantity       int    `gorm:"not null"`
	PricePerUnit   string `gorm:"type:decimal(10,2);not null"`
	DiscountType   string `gorm:"type:varchar(10);not null;default:'none'"`
	DiscountAmount string `gorm:"type:decimal(10,2);not null;default:0"`
	CreatedAt      time.Time

	Item *InventoryItem `gorm:"foreignKey:ItemID"`
}

// Return records returned quantity against a bill line. It does not
// restock the item; stock corrections go through the restock workflow.
type Return struct {
	ID               int64 `gorm:"primaryKey;autoIncrement"`
	BillItemID       int64 `gorm:"index;not null"`
	QuantityReturned int   `gorm:"not null"`
	CreatedAt        time.Time

	BillItem *BillItem `gorm:"foreignKey:BillItemID"`
}

// Wallet is a single-row aggregate holding the current cash balance.
type Wallet struct {
	ID             int64  `gorm:"primaryKey"`
	CurrentBalance string `gorm:"type:decimal(12,2);not null;default:0"`
	UpdatedAt      time.Time
}

type WalletEntry struct {
	ID                      int64  `gorm:"primaryKey;autoIncrement"`
	TransactionType         string `gorm:"type:varchar(20);not null;default:'sale'"`
	Amount                  string `gorm:"type:decimal(12,2);not null"`
	Description             string `gorm:"type:text"`
	TransactionDate         time.Time
	BalanceAfterTransaction string `gorm:"type:decimal(12,2);not null"`
}

type Expense struct {
	ID          int64  `gorm:"primaryKey;autoIncrement"`
	Description string `gorm:"type:varchar(255);not null"`
	Amount      string `gorm:"type:decimal(10,2);not null"`
	CreatedAt   time.Time
}

type EmployeeAdvance struct {
	ID           int64  `gorm:"primaryKey;autoIncrement"`
	EmployeeName string `gorm:"type:varchar(100);not null"`
	Amount       string `gorm:"type:decimal(10,2);not null"`
	DateGiven    time.Time
	PaidBack     bool `gorm:"not null;default:false"`
}

type User struct {
	ID        int64  `gorm:"primaryKey;autoIncrement"`
	Username  string `gorm:"type:varchar(64);uniqueIndex;not null"`
	Password  string `gorm:"not null"`
	CreatedAt time.Time
	UpdatedAt time.Time
}
