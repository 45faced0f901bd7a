/**
 * @description
 * This file validates the send form and turns it into a submission request.
 * It also holds the fixed quick-select PayIDs and the known sender accounts.
 *
 * @dependencies
 * - github.com/shopspring/decimal: Amount parsing and the two-place check.
 */

package app

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/njabbott/npp-simulation/internal/domain"
)

// QuickPayID is a fixed PayID shortcut offered next to the resolver.
type QuickPayID struct {
	Type  domain.PayIDType `json:"type"`
	Value string           `json:"value"`
	Label string           `json:"label"`
}

// QuickPayIDs are the PayIDs seeded in the simulation backend.
var QuickPayIDs = []QuickPayID{
	{domain.PayIDPhone, "+61412345678", "John (+61412...)"},
	{domain.PayIDPhone, "+61498765432", "Mike (+61498...)"},
	{domain.PayIDEmail, "sarah.j@email.com", "Sarah (email)"},
	{domain.PayIDEmail, "james.b@email.com", "James (email)"},
	{domain.PayIDABN, "51824753556", "ACME (ABN)"},
	{domain.PayIDABN, "12345678901", "TechCorp (ABN)"},
	{domain.PayIDABN, "98765432100", "Green Energy (ABN)"},
	{domain.PayIDPhone, "+61423456789", "Emma (+61423...)"},
}

// FindQuickPayID looks a preset up by its value.
func FindQuickPayID(value string) (QuickPayID, bool) {
	for _, q := range QuickPayIDs {
		if q.Value == value {
			return q, true
		}
	}
	return QuickPayID{}, false
}

// SenderAccount is an account the simulation lets a user send from.
type SenderAccount struct {
	AccountNumber string `json:"accountNumber"`
	Name          string `json:"name"`
	Bank          string `json:"bank"`
}

// SenderBSBs are the branch codes offered for the debtor.
var SenderBSBs = map[string]string{
	"062-000": "CBA",
	"083-000": "NAB",
	"012-000": "ANZ",
	"032-000": "Westpac",
	"638-060": "People First Bank",
}

// SenderAccounts are the accounts offered for the debtor.
var SenderAccounts = []SenderAccount{
	{"12345678", "John Smith", "PFB"},
	{"87654321", "Sarah Johnson", "CBA"},
	{"11112222", "ACME Pty Ltd", "CBA"},
	{"22334455", "Mike Wilson", "NAB"},
	{"55667788", "TechCorp", "NAB"},
	{"33445566", "Emma Davis", "ANZ"},
	{"66778899", "Green Energy", "ANZ"},
	{"44556677", "James Brown", "Westpac"},
	{"99887766", "OzTrade", "Westpac"},
}

var minimumAmount = decimal.RequireFromString("0.01")

// formFields are the names accepted by Page.Change.
var formFields = map[string]func(f *domain.PaymentForm, v string){
	"amount":                func(f *domain.PaymentForm, v string) { f.Amount = v },
	"payIdType":             func(f *domain.PaymentForm, v string) { f.PayIDType = domain.PayIDType(v) },
	"payIdValue":            func(f *domain.PaymentForm, v string) { f.PayIDValue = v },
	"creditorBsb":           func(f *domain.PaymentForm, v string) { f.CreditorBSB = v },
	"creditorAccountNumber": func(f *domain.PaymentForm, v string) { f.CreditorAccountNumber = v },
	"debtorBsb":             func(f *domain.PaymentForm, v string) { f.DebtorBSB = v },
	"debtorAccountNumber":   func(f *domain.PaymentForm, v string) { f.DebtorAccountNumber = v },
	"remittanceInfo":        func(f *domain.PaymentForm, v string) { f.RemittanceInfo = v },
}

// BuildRequest validates the form for mode and converts it to a submission.
func BuildRequest(mode domain.Mode, form domain.PaymentForm) (domain.PaymentRequest, error) {
	rawAmount := strings.TrimSpace(form.Amount)
	if rawAmount == "" {
		return domain.PaymentRequest{}, validationf("amount is required")
	}
	amount, err := decimal.NewFromString(rawAmount)
	if err != nil {
		return domain.PaymentRequest{}, validationf("amount %q is not a number", rawAmount)
	}
	if amount.LessThan(minimumAmount) {
		return domain.PaymentRequest{}, validationf("amount must be at least 0.01")
	}
	if !amount.Equal(amount.Round(2)) {
		return domain.PaymentRequest{}, validationf("amount cannot have more than two decimal places")
	}

	req := domain.PaymentRequest{
		Amount:              amount,
		DebtorBSB:           strings.TrimSpace(form.DebtorBSB),
		DebtorAccountNumber: strings.TrimSpace(form.DebtorAccountNumber),
		RemittanceInfo:      strings.TrimSpace(form.RemittanceInfo),
	}
	if req.DebtorBSB == "" || req.DebtorAccountNumber == "" {
		return domain.PaymentRequest{}, validationf("sender BSB and account number are required")
	}

	switch mode {
	case domain.ModePayID:
		payIDType, ok := domain.ParsePayIDType(string(form.PayIDType))
		if !ok {
			return domain.PaymentRequest{}, validationf("unsupported PayID type %q", form.PayIDType)
		}
		value := strings.TrimSpace(form.PayIDValue)
		if value == "" {
			return domain.PaymentRequest{}, validationf("PayID value is required")
		}
		req.PayIDType = payIDType
		req.PayIDValue = value
	case domain.ModeBSB:
		req.CreditorBSB = strings.TrimSpace(form.CreditorBSB)
		req.CreditorAccountNumber = strings.TrimSpace(form.CreditorAccountNumber)
		if req.CreditorBSB == "" || req.CreditorAccountNumber == "" {
			return domain.PaymentRequest{}, validationf("recipient BSB and account number are required")
		}
	default:
		return domain.PaymentRequest{}, validationf("unknown mode %q", mode)
	}
	return req, nil
}
