/**
 * @description
 * This file defines the core domain models for the payment tracker. These structs
 * mirror the payloads exchanged with the NPP simulation backend (payments, status
 * events, PayID resolutions and ISO 20022 message records) and are shared by the
 * client, the workflow page and the session cache.
 *
 * @notes
 * - Amounts use decimal.Decimal. Floating point values never touch money.
 * - Status codes are kept as a string type so an unknown code from the backend
 *   survives decoding and can be classified instead of rejected.
 */

package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// PaymentStatus is a lifecycle status code reported by the backend.
type PaymentStatus string

const (
	StatusInitiated PaymentStatus = "INITIATED"
	StatusClearing  PaymentStatus = "CLEARING"
	StatusSettled   PaymentStatus = "SETTLED"
	StatusConfirmed PaymentStatus = "CONFIRMED"
	StatusRejected  PaymentStatus = "REJECTED"
	StatusReturned  PaymentStatus = "RETURNED"
)

// PayIDType is the kind of alias a PayID is registered under.
type PayIDType string

const (
	PayIDPhone PayIDType = "PHONE"
	PayIDEmail PayIDType = "EMAIL"
	PayIDABN   PayIDType = "ABN"
)

// ParsePayIDType normalises a user supplied PayID type. The backend upper-cases
// the type before lookup, so "phone" and "PHONE" are equivalent.
func ParsePayIDType(raw string) (PayIDType, bool) {
	switch t := PayIDType(strings.ToUpper(strings.TrimSpace(raw))); t {
	case PayIDPhone, PayIDEmail, PayIDABN:
		return t, true
	default:
		return "", false
	}
}

// Timestamp decodes the backend's zone-less ISO timestamps as well as RFC 3339.
type Timestamp struct {
	time.Time
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return []byte(`"` + t.UTC().Format(time.RFC3339Nano) + `"`), nil
}

func (t *Timestamp) UnmarshalJSON(data []byte) error {
	raw := strings.Trim(string(data), `"`)
	if raw == "" || raw == "null" {
		t.Time = time.Time{}
		return nil
	}
	var lastErr error
	for _, layout := range timestampLayouts {
		parsed, err := time.Parse(layout, raw)
		if err == nil {
			t.Time = parsed.UTC()
			return nil
		}
		lastErr = err
	}
	return lastErr
}

// PaymentRecord is the backend's view of a submitted payment.
type PaymentRecord struct {
	ID                    int64           `json:"id"`
	PaymentID             string          `json:"paymentId"`
	EndToEndID            string          `json:"endToEndId"`
	Amount                decimal.Decimal `json:"amount"`
	Currency              string          `json:"currency"`
	Status                PaymentStatus   `json:"status"`
	RemittanceInfo        string          `json:"remittanceInfo,omitempty"`
	PayIDUsed             string          `json:"payIdUsed,omitempty"`
	RejectionReason       string          `json:"rejectionReason,omitempty"`
	DebtorAccountName     string          `json:"debtorAccountName"`
	DebtorBSB             string          `json:"debtorBsb"`
	DebtorAccountNumber   string          `json:"debtorAccountNumber"`
	DebtorBankName        string          `json:"debtorBankName"`
	CreditorAccountName   string          `json:"creditorAccountName"`
	CreditorBSB           string          `json:"creditorBsb"`
	CreditorAccountNumber string          `json:"creditorAccountNumber"`
	CreditorBankName      string          `json:"creditorBankName"`
	CreatedAt             Timestamp       `json:"createdAt"`
	UpdatedAt             Timestamp       `json:"updatedAt"`
}

// PaymentRequest is the submission payload. Exactly one of the PayID pair or the
// creditor BSB/account pair is populated.
type PaymentRequest struct {
	Amount                decimal.Decimal `json:"-"`
	PayIDType             PayIDType       `json:"payIdType,omitempty"`
	PayIDValue            string          `json:"payIdValue,omitempty"`
	CreditorBSB           string          `json:"creditorBsb,omitempty"`
	CreditorAccountNumber string          `json:"creditorAccountNumber,omitempty"`
	DebtorBSB             string          `json:"debtorBsb"`
	DebtorAccountNumber   string          `json:"debtorAccountNumber"`
	RemittanceInfo        string          `json:"remittanceInfo,omitempty"`
}

// StatusEvent is one "status" frame from the payment event stream.
type StatusEvent struct {
	Status  PaymentStatus `json:"status"`
	Message string        `json:"message"`
}

// PayeeResolution is the bank account a PayID resolves to.
type PayeeResolution struct {
	PayIDType     PayIDType `json:"payIdType"`
	Value         string    `json:"value"`
	DisplayName   string    `json:"displayName"`
	BSB           string    `json:"bsb"`
	AccountNumber string    `json:"accountNumber"`
	BankName      string    `json:"bankName"`
	BankBIC       string    `json:"bankBic"`
}

// MessageRecord is an ISO 20022 message generated by the backend.
type MessageRecord struct {
	ID          int64     `json:"id"`
	MessageType string    `json:"messageType"`
	MessageID   string    `json:"messageId"`
	Direction   string    `json:"direction"`
	SenderBIC   string    `json:"senderBic"`
	ReceiverBIC string    `json:"receiverBic"`
	XMLContent  string    `json:"xmlContent"`
	PaymentID   string    `json:"paymentId"`
	CreatedAt   Timestamp `json:"createdAt"`
}

// DisplayType renders PACS_008 as PACS.008.
func (m MessageRecord) DisplayType() string {
	return strings.Replace(m.MessageType, "_", ".", 1)
}

// TrackingOutcome is published when tracking of a payment ends.
type TrackingOutcome struct {
	PaymentID  string          `json:"payment_id"`
	EndToEndID string          `json:"end_to_end_id"`
	Status     PaymentStatus   `json:"status"`
	Message    string          `json:"message"`
	Amount     decimal.Decimal `json:"amount"`
	Messages   int             `json:"related_messages"`
	OccurredAt time.Time       `json:"occurred_at"`
}
