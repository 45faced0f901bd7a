/**
 * @description
 * Payee resolution for the send page. Manual entry, quick-select presets and
 * the registered PayID picker all end in Resolve, so every path shares the
 * same result handling.
 *
 * @dependencies
 * - internal/domain: PayID types and the resolved payee.
 */

package app

import (
	"context"
	"fmt"
	"strings"

	"github.com/njabbott/npp-simulation/internal/domain"
)

// Resolve looks up the account behind a PayID. It is the one entry point for
// blur, quick select and the registered picker, and it is safe to repeat. An
// empty value does nothing.
func (p *Page) Resolve(ctx context.Context, payIDType domain.PayIDType, value string) error {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	parsed, ok := domain.ParsePayIDType(string(payIDType))
	if !ok {
		err := validationf("unsupported PayID type %q", payIDType)
		p.recordError(err)
		return err
	}

	session := p.cell.Update(func(s *domain.TrackingSession) {
		if s.Form.PayIDType == parsed && s.Form.PayIDValue == value {
			return
		}
		s.Form.PayIDType = parsed
		s.Form.PayIDValue = value
		s.ResolvedPayee = nil
	})

	payee, err := p.deps.Backend.ResolvePayID(ctx, parsed, value)

	p.mu.Lock()
	defer p.mu.Unlock()

	superseded := false
	p.cell.Update(func(s *domain.TrackingSession) {
		if s.Generation != session.Generation || s.Form.PayIDType != parsed || s.Form.PayIDValue != value {
			superseded = true
			return
		}
		if err != nil {
			s.ResolvedPayee = nil
			return
		}
		resolved := *payee
		s.ResolvedPayee = &resolved
	})
	if superseded {
		return nil
	}
	if err != nil {
		appErr := newError(KindResolution, err)
		p.lastErr = appErr
		return appErr
	}
	p.lastErr = nil
	return nil
}

// Blur resolves whatever PayID the form currently holds.
func (p *Page) Blur(ctx context.Context) error {
	form := p.cell.Read().Form
	return p.Resolve(ctx, form.PayIDType, form.PayIDValue)
}

// QuickSelect fills the form from a preset and resolves it.
func (p *Page) QuickSelect(ctx context.Context, value string) error {
	preset, ok := FindQuickPayID(value)
	if !ok {
		err := validationf("unknown quick PayID %q", value)
		p.recordError(err)
		return err
	}
	return p.Resolve(ctx, preset.Type, preset.Value)
}

// LoadRegisteredPayees fetches the PayIDs offered by the registered picker.
func (p *Page) LoadRegisteredPayees(ctx context.Context) ([]domain.PayeeResolution, error) {
	payees, err := p.deps.Backend.ListPayIDs(ctx)
	if err != nil {
		appErr := newError(KindResolution, fmt.Errorf("load registered PayIDs: %w", err))
		p.recordError(appErr)
		return nil, appErr
	}
	if payees == nil {
		payees = []domain.PayeeResolution{}
	}

	p.mu.Lock()
	p.registered = payees
	p.mu.Unlock()
	return append([]domain.PayeeResolution(nil), payees...), nil
}

// SelectRegistered picks a registered PayID by value, as if it had been typed
// and the field left. The list is loaded first if the page has none.
func (p *Page) SelectRegistered(ctx context.Context, value string) error {
	p.mu.Lock()
	loaded := p.registered != nil
	p.mu.Unlock()
	if !loaded {
		if _, err := p.LoadRegisteredPayees(ctx); err != nil {
			return err
		}
	}

	p.mu.Lock()
	var (
		match domain.PayeeResolution
		found bool
	)
	for _, payee := range p.registered {
		if payee.Value == value {
			match, found = payee, true
			break
		}
	}
	p.mu.Unlock()

	if !found {
		err := newError(KindValidation, fmt.Errorf("%w: %s", ErrUnknownPayee, value))
		p.recordError(err)
		return err
	}
	return p.Resolve(ctx, match.PayIDType, match.Value)
}
