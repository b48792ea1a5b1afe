// internal/autofill/dropdown.go
package autofill

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/formpilot/api/schemas"
)

const (
	strategySettle = 2 * time.Second
	keySettle      = 1500 * time.Millisecond
	roundGap       = 2 * time.Second
)

// visibleOptionsXPath matches rendered option elements of an open custom menu.
const visibleOptionsXPath = "//*[@role='option' or @role='listitem']"

var errNothingToClick = errors.New("no element for strategy")

// openStrategy is one way of getting a custom dropdown to render its options.
type openStrategy struct {
	name string
	run  func(ctx context.Context, p Page, ref schemas.ElementRef, log *zap.Logger) error
}

// defaultOpenStrategies returns the opener sequence tried in each round.
func defaultOpenStrategies() []openStrategy {
	return []openStrategy{
		{"direct_click", func(ctx context.Context, p Page, ref schemas.ElementRef, log *zap.Logger) error {
			if err := p.Click(ctx, ref); err != nil {
				return err
			}
			return p.Sleep(ctx, strategySettle)
		}},
		{"parent_click", func(ctx context.Context, p Page, ref schemas.ElementRef, log *zap.Logger) error {
			if err := p.Click(ctx, xpathRef(relative(ref, "/.."))); err != nil {
				return err
			}
			return p.Sleep(ctx, strategySettle)
		}},
		{"icon_click", func(ctx context.Context, p Page, ref schemas.ElementRef, log *zap.Logger) error {
			icons, err := p.QueryVisible(ctx, relative(ref, "/..//*[contains(@class,'arrow') or contains(@class,'icon') or local-name()='svg']"))
			if err != nil {
				return err
			}
			if len(icons) == 0 {
				return errNothingToClick
			}
			for _, icon := range icons {
				if err := p.Click(ctx, icon); err != nil {
					log.Debug("Dropdown icon click failed.", zap.Stringer("icon", icon), zap.Error(err))
				}
			}
			return p.Sleep(ctx, strategySettle)
		}},
		{"keyboard", func(ctx context.Context, p Page, ref schemas.ElementRef, log *zap.Logger) error {
			if err := p.PressKey(ctx, ref, KeySpace); err != nil {
				return err
			}
			if err := p.Sleep(ctx, keySettle); err != nil {
				return err
			}
			if err := p.PressKey(ctx, ref, KeyEnter); err != nil {
				return err
			}
			return p.Sleep(ctx, keySettle)
		}},
		{"pointer_events", func(ctx context.Context, p Page, ref schemas.ElementRef, log *zap.Logger) error {
			if err := p.DispatchPointer(ctx, ref); err != nil {
				return err
			}
			return p.Sleep(ctx, strategySettle)
		}},
	}
}

// openDropdown runs the strategy list for up to maxRounds rounds. After each
// strategy it polls for visible options; the first strategy to reveal them wins.
func (fl *Filler) openDropdown(ctx context.Context, ref schemas.ElementRef) ([]schemas.ElementRef, error) {
	for round := 1; round <= fl.maxRounds; round++ {
		for _, s := range fl.strategies {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			if err := s.run(ctx, fl.page, ref, fl.logger); err != nil {
				fl.logger.Debug("Dropdown strategy could not run.", zap.String("strategy", s.name), zap.Int("round", round), zap.Error(err))
				continue
			}
			opts, err := fl.page.QueryVisible(ctx, visibleOptionsXPath)
			if err == nil && len(opts) > 0 {
				fl.logger.Debug("Dropdown opened.", zap.String("strategy", s.name), zap.Int("round", round), zap.Int("options", len(opts)))
				return opts, nil
			}
		}
		if round < fl.maxRounds {
			if err := fl.page.Sleep(ctx, roundGap); err != nil {
				return nil, err
			}
		}
	}
	return nil, fmt.Errorf("%w: %s after %d rounds", ErrDropdownOpen, ref, fl.maxRounds)
}

// selectCustom opens a non-native dropdown and clicks the best matching option.
func (fl *Filler) selectCustom(ctx context.Context, ref schemas.ElementRef, value string) error {
	optRefs, err := fl.openDropdown(ctx, ref)
	if err != nil {
		return err
	}

	opts := make([]schemas.Option, len(optRefs))
	for i, r := range optRefs {
		text, err := fl.page.Text(ctx, r)
		if err != nil {
			continue
		}
		opts[i] = schemas.Option{Text: text}
	}

	idx := chooseOption(opts, value)
	if idx < 0 {
		return fmt.Errorf("dropdown %s has no selectable option", ref)
	}
	if err := fl.page.Click(ctx, optRefs[idx]); err != nil {
		return fmt.Errorf("click option %q: %w", opts[idx].Text, err)
	}
	fl.logger.Debug("Custom option selected.", zap.String("target", value), zap.String("chosen", opts[idx].Text))
	return fl.page.Sleep(ctx, optionSettle)
}
