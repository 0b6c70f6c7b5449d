package models

import "time"

type QuoteStatus string

const (
	QuoteStatusPending   QuoteStatus = "PENDING"
	QuoteStatusAccepted  QuoteStatus = "ACCEPTED"
	QuoteStatusPaid      QuoteStatus = "PAID"
	QuoteStatusExpired   QuoteStatus = "EXPIRED"
	QuoteStatusCancelled QuoteStatus = "CANCELLED"
)

type Quote struct {
	ID                 uint64
	Status             QuoteStatus
	CarrierOptionsJSON *string
	SelectedCarrier    string
	TotalAmount        int64 // minor units
	Currency           string
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

type PaymentStatus string

const (
	PaymentStatusPending    PaymentStatus = "PENDING"
	PaymentStatusProcessing PaymentStatus = "PROCESSING"
	PaymentStatusSucceeded  PaymentStatus = "SUCCEEDED"
	PaymentStatusFailed     PaymentStatus = "FAILED"
	PaymentStatusRefunded   PaymentStatus = "REFUNDED"
)

type Payment struct {
	ID               uint64
	QuoteID          uint64
	GatewayPaymentID string
	Status           PaymentStatus
	Amount           int64 // minor units
	Currency         string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}
