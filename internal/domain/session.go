/**
 * @description
 * This file defines the session a send page keeps across navigation: the raw
 * form, the resolved payee, the tracked payment and its related messages.
 */

package domain

// Mode selects how the creditor is addressed on the send form.
type Mode string

const (
	ModePayID Mode = "payid"
	ModeBSB   Mode = "bsb"
)

// PayeeSource selects between the registered-PayID picker and free entry.
type PayeeSource string

const (
	PayeeSourceNew      PayeeSource = "new"
	PayeeSourceExisting PayeeSource = "existing"
)

// Default sender reference pre-filled on a fresh form.
const (
	DefaultDebtorBSB           = "638-060"
	DefaultDebtorAccountNumber = "12345678"
)

// PaymentForm holds the raw field values as the user typed them.
type PaymentForm struct {
	Amount                string    `json:"amount"`
	PayIDType             PayIDType `json:"payIdType"`
	PayIDValue            string    `json:"payIdValue"`
	CreditorBSB           string    `json:"creditorBsb"`
	CreditorAccountNumber string    `json:"creditorAccountNumber"`
	DebtorBSB             string    `json:"debtorBsb"`
	DebtorAccountNumber   string    `json:"debtorAccountNumber"`
	RemittanceInfo        string    `json:"remittanceInfo"`
}

// DefaultForm returns the values a first visit starts with.
func DefaultForm() PaymentForm {
	return PaymentForm{
		PayIDType:           PayIDPhone,
		DebtorBSB:           DefaultDebtorBSB,
		DebtorAccountNumber: DefaultDebtorAccountNumber,
	}
}

// UIState is auxiliary selection state that has no effect on the payment.
type UIState struct {
	ExpandedMessageID int64       `json:"expandedMessageId,omitempty"`
	PayeeSource       PayeeSource `json:"payeeSource"`
}

// TrackingSession is everything the send page needs to restore itself after
// a remount. It is always written as a whole.
type TrackingSession struct {
	Mode                Mode             `json:"mode"`
	Form                PaymentForm      `json:"form"`
	ResolvedPayee       *PayeeResolution `json:"resolvedPayee,omitempty"`
	PaymentResult       *PaymentRecord   `json:"paymentResult,omitempty"`
	CurrentStatus       PaymentStatus    `json:"currentStatus,omitempty"`
	StatusMessage       string           `json:"statusMessage"`
	RelatedMessages     []MessageRecord  `json:"relatedMessages"`
	UI                  UIState          `json:"ui"`
	TrackingUnavailable bool             `json:"trackingUnavailable"`
	MessagesFetched     bool             `json:"messagesFetched"`
	Generation          uint64           `json:"generation"`
}

// DefaultSession is the state of a slot that has never been written.
func DefaultSession() TrackingSession {
	return TrackingSession{
		Mode:            ModePayID,
		Form:            DefaultForm(),
		RelatedMessages: []MessageRecord{},
		UI:              UIState{PayeeSource: PayeeSourceNew},
	}
}

// Tracking reports whether the session holds a submitted payment.
func (s TrackingSession) Tracking() bool {
	return s.PaymentResult != nil
}

// Clone returns a deep copy so callers can never mutate a stored session.
func (s TrackingSession) Clone() TrackingSession {
	out := s
	if s.ResolvedPayee != nil {
		payee := *s.ResolvedPayee
		out.ResolvedPayee = &payee
	}
	if s.PaymentResult != nil {
		record := *s.PaymentResult
		out.PaymentResult = &record
	}
	if s.RelatedMessages != nil {
		out.RelatedMessages = make([]MessageRecord, len(s.RelatedMessages))
		copy(out.RelatedMessages, s.RelatedMessages)
	}
	return out
}
