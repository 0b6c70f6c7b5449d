package carrier

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/pkg/errors"
)

var ErrInvalidNumber = errors.New("tracking number is empty")

// GatewayError is a failure reported by the carrier gateway itself.
type GatewayError struct {
	Code    int
	Message string
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("carrier gateway error %d: %s", e.Code, e.Message)
}

type RegisterItem struct {
	Number  string
	Carrier string
	Tag     string
}

type Rejection struct {
	Number  string
	Code    int
	Message string
}

type RegisterResult struct {
	Accepted []RegisterItem
	Rejected []Rejection
}

// RawEvent is one vendor checkpoint as reported, not yet deduplicated.
type RawEvent struct {
	Time        time.Time
	Code        string
	Description string
	Location    string
	Raw         json.RawMessage
}

type TrackingInfo struct {
	Number      string
	Tag         string
	CarrierCode string
	CarrierName string
	StatusCode  int
	Origin      string
	Destination string
	Weight      string
	Events      []RawEvent // oldest first
	Raw         json.RawMessage
}

// Gateway is a thin I/O client over the carrier-tracking network. It never retries.
type Gateway interface {
	Register(ctx context.Context, items []RegisterItem) (RegisterResult, error)
	GetInfo(ctx context.Context, numbers []string) ([]TrackingInfo, error)
	DetectCarrier(ctx context.Context, number string) ([]string, error)
	DeleteTracking(ctx context.Context, numbers []string) error
}

// ValidateNumbers rejects empty (or blank) tracking numbers.
func ValidateNumbers(numbers []string) error {
	if len(numbers) == 0 {
		return ErrInvalidNumber
	}
	for _, n := range numbers {
		if strings.TrimSpace(n) == "" {
			return ErrInvalidNumber
		}
	}
	return nil
}
