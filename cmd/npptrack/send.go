package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/njabbott/npp-simulation/internal/app"
	"github.com/njabbott/npp-simulation/internal/domain"
	"github.com/njabbott/npp-simulation/internal/lifecycle"
	"github.com/njabbott/npp-simulation/internal/server"
	"github.com/njabbott/npp-simulation/internal/store"
)

type sendOptions struct {
	amount        string
	payIDType     string
	payID         string
	bsb           string
	account       string
	debtorBSB     string
	debtorAccount string
	remittance    string
	wait          time.Duration
	showXML       bool
}

func sendCmd() *cobra.Command {
	opts := sendOptions{}
	cmd := &cobra.Command{
		Use:   "send",
		Short: "Send a payment and follow its status",
		Long: `Send a payment by PayID or by BSB and account number, then print each
lifecycle stage as it arrives. When the payment reaches a final status the
ISO 20022 messages generated for it are listed.`,
		Example: `  npptrack send --amount 25.00 --payid +61412345678
  npptrack send --amount 100 --bsb 062-000 --account 12345678 --remittance "Rent"`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSend(cmd.Context(), cmd.OutOrStdout(), opts)
		},
	}

	defaults := domain.DefaultForm()
	cmd.Flags().StringVarP(&opts.amount, "amount", "a", "", "Amount in AUD (required)")
	cmd.Flags().StringVarP(&opts.payIDType, "payid-type", "t", string(defaults.PayIDType), "PayID type: PHONE, EMAIL or ABN")
	cmd.Flags().StringVarP(&opts.payID, "payid", "p", "", "Payee PayID")
	cmd.Flags().StringVar(&opts.bsb, "bsb", "", "Payee BSB (account mode)")
	cmd.Flags().StringVar(&opts.account, "account", "", "Payee account number (account mode)")
	cmd.Flags().StringVar(&opts.debtorBSB, "debtor-bsb", defaults.DebtorBSB, "Sending BSB")
	cmd.Flags().StringVar(&opts.debtorAccount, "debtor-account", defaults.DebtorAccountNumber, "Sending account number")
	cmd.Flags().StringVarP(&opts.remittance, "remittance", "r", "", "Remittance information")
	cmd.Flags().DurationVar(&opts.wait, "wait", 2*time.Minute, "How long to follow the payment")
	cmd.Flags().BoolVar(&opts.showXML, "xml", false, "Print the XML of each related message")
	_ = cmd.MarkFlagRequired("amount")
	cmd.MarkFlagsMutuallyExclusive("payid", "bsb")
	return cmd
}

func (o sendOptions) mode() (domain.Mode, error) {
	switch {
	case o.payID != "":
		return domain.ModePayID, nil
	case o.bsb != "" || o.account != "":
		return domain.ModeBSB, nil
	default:
		return "", errors.New("either --payid or --bsb with --account is required")
	}
}

func runSend(ctx context.Context, out io.Writer, opts sendOptions) error {
	mode, err := opts.mode()
	if err != nil {
		return err
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	components := server.Build(cfg)
	defer components.Close()

	printer := newStagePrinter(out)
	deps := components.Dependencies()
	deps.OnChange = printer.observe

	// The terminal session is a single-page shell with no mirror.
	registry := store.NewRegistry("", nil)
	cell, _ := registry.Cell(store.SlotSend)
	page := app.Mount(cell, deps)
	defer page.Unmount()

	if err := page.SetMode(mode); err != nil {
		return err
	}
	fields := map[string]string{
		"amount":              opts.amount,
		"debtorBsb":           opts.debtorBSB,
		"debtorAccountNumber": opts.debtorAccount,
		"remittanceInfo":      opts.remittance,
	}
	if mode == domain.ModePayID {
		fields["payIdType"] = strings.ToUpper(opts.payIDType)
		fields["payIdValue"] = opts.payID
	} else {
		fields["creditorBsb"] = opts.bsb
		fields["creditorAccountNumber"] = opts.account
	}
	for field, value := range fields {
		if err := page.Change(field, value); err != nil {
			return err
		}
	}

	if mode == domain.ModePayID {
		if err := page.Blur(ctx); err != nil {
			if app.KindOf(err) == app.KindValidation {
				return err
			}
			fmt.Fprintf(out, "Payee lookup failed: %v\n", err)
		}
		if payee := page.Snapshot().Session.ResolvedPayee; payee != nil {
			fmt.Fprintf(out, "Payee: %s, %s %s (%s)\n", payee.DisplayName, payee.BSB, payee.AccountNumber, payee.BankName)
		}
	}

	record, err := page.Submit(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Submitted %s (end-to-end %s) for $%s\n", record.PaymentID, record.EndToEndID, record.Amount.StringFixed(2))
	if !lifecycle.AutoCloses(record.Status) {
		// A final status is printed once the stream replays it and the message fetch has started.
		printer.observe(cell.Read())
	}

	waitCtx, cancel := context.WithTimeout(ctx, opts.wait)
	defer cancel()
	select {
	case <-printer.done:
	case <-waitCtx.Done():
		fmt.Fprintf(out, "Stopped following after %s; last status %s\n", opts.wait, cell.Read().CurrentStatus)
		return nil
	}
	page.WaitBackground()

	view := page.Snapshot()
	if view.Session.TrackingUnavailable {
		return fmt.Errorf("live tracking unavailable: %s", view.Error)
	}
	printMessages(out, view.Session.RelatedMessages, opts.showXML)
	return nil
}

// stagePrinter prints each status once, in the order the page applies them.
type stagePrinter struct {
	out io.Writer

	mu   sync.Mutex
	last domain.PaymentStatus
	once sync.Once
	done chan struct{}
}

func newStagePrinter(out io.Writer) *stagePrinter {
	return &stagePrinter{out: out, done: make(chan struct{})}
}

func (p *stagePrinter) observe(session domain.TrackingSession) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if session.CurrentStatus != "" && session.CurrentStatus != p.last {
		p.last = session.CurrentStatus
		line := fmt.Sprintf("  [%s] %s", time.Now().Format("15:04:05"), session.CurrentStatus)
		if session.StatusMessage != "" {
			line += ": " + session.StatusMessage
		}
		fmt.Fprintln(p.out, line)
		fmt.Fprintln(p.out, "  "+progressBar(session.CurrentStatus))
	}
	if lifecycle.AutoCloses(session.CurrentStatus) || session.TrackingUnavailable {
		p.once.Do(func() { close(p.done) })
	}
}

func progressBar(status domain.PaymentStatus) string {
	steps := lifecycle.Progress(status)
	parts := make([]string, 0, len(steps))
	for _, s := range steps {
		label := string(s.Label)
		if s.State == lifecycle.StepPending {
			label = strings.ToLower(label)
		}
		parts = append(parts, fmt.Sprintf("(%s) %s", s.Marker, label))
	}
	return strings.Join(parts, "  ")
}

func printMessages(out io.Writer, messages []domain.MessageRecord, showXML bool) {
	if len(messages) == 0 {
		fmt.Fprintln(out, "No ISO 20022 messages recorded for this payment.")
		return
	}
	fmt.Fprintf(out, "ISO 20022 messages (%d):\n", len(messages))
	for _, m := range messages {
		fmt.Fprintf(out, "  %-9s %-8s %s -> %s  %s\n", m.DisplayType(), m.Direction, m.SenderBIC, m.ReceiverBIC, m.MessageID)
		if showXML {
			fmt.Fprintln(out, m.XMLContent)
		}
	}
}
