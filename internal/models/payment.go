package models

import "time"

// Accepted payment methods.
const (
	MethodCreditCard   = "credit_card"
	MethodDebitCard    = "debit_card"
	MethodPayPal       = "paypal"
	MethodCash         = "cash"
	MethodBankTransfer = "bank_transfer"
	MethodMobileMoney  = "mobile_money"
)

// Payment ledger statuses.
const (
	PaymentPending   = "pending"
	PaymentCompleted = "completed"
	PaymentFailed    = "failed"
	PaymentRefunded  = "refunded"
)

// PaymentMethod pairs a wire value with a display label.
type PaymentMethod struct {
	Value string `json:"value"`
	Label string `json:"label"`
}

// PaymentMethods enumerates the methods accepted for penalty settlement.
var PaymentMethods = []PaymentMethod{
	{Value: MethodCreditCard, Label: "Credit Card"},
	{Value: MethodDebitCard, Label: "Debit Card"},
	{Value: MethodPayPal, Label: "PayPal"},
	{Value: MethodCash, Label: "Cash"},
	{Value: MethodBankTransfer, Label: "Bank Transfer"},
	{Value: MethodMobileMoney, Label: "Mobile Money"},
}

// ValidPaymentMethod reports whether m is one of the accepted methods.
func ValidPaymentMethod(m string) bool {
	for _, pm := range PaymentMethods {
		if pm.Value == m {
			return true
		}
	}
	return false
}

// Payment is one append-only ledger row recording a penalty settlement.
// BookTitle and BookAuthor are joined in on history reads.
type Payment struct {
	ID            int64     `json:"id"`
	TransactionID string    `json:"transactionId"`
	UserID        int64     `json:"userId"`
	BookID        int64     `json:"bookId"`
	BookTitle     string    `json:"bookTitle,omitempty"`
	BookAuthor    string    `json:"bookAuthor,omitempty"`
	Amount        int64     `json:"amount"`
	Method        string    `json:"paymentMethod"`
	Status        string    `json:"status"`
	Gateway       string    `json:"paymentGateway,omitempty"`
	CardLastFour  string    `json:"cardLastFour,omitempty"`
	RecordedBy    *int64    `json:"recordedBy,omitempty"`
	CreatedAt     time.Time `json:"paymentDate"`
}
