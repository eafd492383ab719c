package dto

import (
	"time"

	"github.com/okhuang/libraria-be/internal/models"
)

type PayPenaltyRequest struct {
	PaymentMethod string `json:"paymentMethod"`
	CardLastFour  string `json:"cardLastFour"`
}

// PaymentReceipt is the caller-facing confirmation of a settlement.
type PaymentReceipt struct {
	TransactionID string    `json:"transactionId"`
	Amount        int64     `json:"amount"`
	PaymentMethod string    `json:"paymentMethod"`
	Date          time.Time `json:"date"`
}

type PayPenaltyResponse struct {
	Message string         `json:"message"`
	Payment PaymentReceipt `json:"payment"`
	Book    models.Book    `json:"book"`
}

type PaymentMethodsResponse struct {
	Methods []models.PaymentMethod `json:"methods"`
}
