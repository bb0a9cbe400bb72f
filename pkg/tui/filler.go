// Package tui fills a form session from terminal prompts. Prompts are
// driven through PromptDriver so the flow can run against survey in a real
// terminal and against a scripted driver in tests.
package tui

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/goliatone/go-ticketform/pkg/schema"
	"github.com/goliatone/go-ticketform/pkg/session"
)

const skipChoice = "(skip)"

// Filler walks the visible fields of a session in declaration order,
// prompting for each editable value. After every answer the session is
// re-evaluated, so fields revealed by an earlier answer get prompted in
// the same pass.
type Filler struct {
	driver    PromptDriver
	maxPasses int
}

// FillerOption customises a Filler.
type FillerOption func(*Filler)

// WithDriver swaps the prompt driver. The default talks to the terminal
// through survey.
func WithDriver(driver PromptDriver) FillerOption {
	return func(f *Filler) {
		if driver != nil {
			f.driver = driver
		}
	}
}

// WithMaxPasses bounds how many correction rounds run after a failed
// submit before the validation error is returned.
func WithMaxPasses(passes int) FillerOption {
	return func(f *Filler) {
		if passes > 0 {
			f.maxPasses = passes
		}
	}
}

// NewFiller builds a filler with the survey-backed driver.
func NewFiller(opts ...FillerOption) *Filler {
	f := &Filler{
		driver:    &surveyDriver{},
		maxPasses: 3,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Run prompts for every visible editable field, submits, and re-prompts
// the failing fields until the form validates or the pass budget runs
// out. On success it returns the submitted values.
func (f *Filler) Run(ctx context.Context, sess *session.Session) (map[string]any, error) {
	snapshot := sess.Snapshot()

	// nil means prompt everything; later passes narrow to failed fields.
	var only map[string]struct{}
	var lastErr error

	for pass := 0; pass < f.maxPasses; pass++ {
		for _, field := range sess.Schema().Fields() {
			state, ok := snapshot.Fields[field.ID]
			if !ok || !state.Visible || state.ReadOnly {
				continue
			}
			if only != nil {
				if _, want := only[field.ID]; !want {
					continue
				}
			}

			value, answered, err := f.prompt(ctx, field, state)
			if err != nil {
				return nil, err
			}
			if !answered {
				continue
			}
			if snapshot, err = sess.Update(field.ID, value); err != nil {
				return nil, err
			}
		}

		values, err := sess.Submit()
		if err == nil {
			return values, nil
		}

		var validationErr *session.ValidationError
		if !errors.As(err, &validationErr) {
			return nil, err
		}
		lastErr = err

		only = make(map[string]struct{}, len(validationErr.Fields))
		for id := range validationErr.Fields {
			only[id] = struct{}{}
		}
		if err := f.driver.Info(ctx, fmt.Sprintf("%d field(s) need attention", len(validationErr.Fields))); err != nil {
			return nil, err
		}
		snapshot = sess.Snapshot()
	}
	return nil, lastErr
}

func (f *Filler) prompt(ctx context.Context, field *schema.CompiledField, state session.FieldSnapshot) (any, bool, error) {
	if len(state.Errors) > 0 {
		msg := fmt.Sprintf("%s: %s", field.DisplayLabel(), strings.Join(state.Errors, "; "))
		if err := f.driver.Info(ctx, msg); err != nil {
			return nil, false, err
		}
	}

	message := field.DisplayLabel()

	switch field.Type {
	case schema.FieldTypeCheckbox:
		checked, _ := state.Value.(bool)
		answer, err := f.driver.Confirm(ctx, ConfirmConfig{
			Message: message,
			Default: checked,
			Help:    field.Help,
		})
		return answer, err == nil, err

	case schema.FieldTypeSelect, schema.FieldTypeRadio:
		return f.promptChoice(ctx, field, state)

	case schema.FieldTypeTextarea:
		answer, err := f.driver.TextArea(ctx, TextAreaConfig{
			Message: message,
			Default: asString(state.Value),
			Help:    field.Help,
		})
		return answer, err == nil, err

	case schema.FieldTypeNumber:
		answer, err := f.driver.Input(ctx, InputConfig{
			Message:   message,
			Default:   asString(state.Value),
			Help:      field.Help,
			Validator: numberValidator,
		})
		if err != nil {
			return nil, false, err
		}
		trimmed := strings.TrimSpace(answer)
		if trimmed == "" {
			return nil, true, nil
		}
		number, err := strconv.ParseFloat(trimmed, 64)
		if err != nil {
			return nil, false, fmt.Errorf("tui: parse number: %w", err)
		}
		return number, true, nil

	case schema.FieldTypeDate:
		answer, err := f.driver.Input(ctx, InputConfig{
			Message:   message,
			Default:   asString(state.Value),
			Help:      field.Help,
			Validator: dateValidator,
		})
		return strings.TrimSpace(answer), err == nil, err

	case schema.FieldTypeFile:
		err := f.driver.Info(ctx, fmt.Sprintf("skipping %s: attachments are not collected here", field.DisplayLabel()))
		return nil, false, err

	default:
		answer, err := f.driver.Input(ctx, InputConfig{
			Message: message,
			Default: asString(state.Value),
			Help:    field.Help,
		})
		return answer, err == nil, err
	}
}

// promptChoice renders option labels, keeping the stored value distinct
// from what is shown. Optional fields get a leading skip entry.
func (f *Filler) promptChoice(ctx context.Context, field *schema.CompiledField, state session.FieldSnapshot) (any, bool, error) {
	optional := !field.Required && field.RequiredExpr == nil

	labels := make([]string, 0, len(field.Options)+1)
	if optional {
		labels = append(labels, skipChoice)
	}
	defaultIndex := 0
	current := asString(state.Value)
	for i, option := range field.Options {
		labels = append(labels, option.DisplayLabel())
		if option.Value == current && current != "" {
			defaultIndex = i
			if optional {
				defaultIndex++
			}
		}
	}

	idx, err := f.driver.Select(ctx, SelectConfig{
		Message:      field.DisplayLabel(),
		Options:      labels,
		DefaultIndex: defaultIndex,
		Help:         field.Help,
	})
	if err != nil {
		return nil, false, err
	}

	if optional {
		if idx == 0 {
			return nil, true, nil
		}
		idx--
	}
	if idx < 0 || idx >= len(field.Options) {
		return nil, false, fmt.Errorf("tui: choice index %d out of range for %s", idx, field.ID)
	}
	return field.Options[idx].Value, true, nil
}

func numberValidator(value string) error {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil
	}
	if _, err := strconv.ParseFloat(trimmed, 64); err != nil {
		return errors.New("enter a number")
	}
	return nil
}

func dateValidator(value string) error {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil
	}
	if _, err := time.Parse(time.DateOnly, trimmed); err != nil {
		return errors.New("enter a date as YYYY-MM-DD")
	}
	return nil
}

func asString(value any) string {
	if value == nil {
		return ""
	}
	if s, ok := value.(string); ok {
		return s
	}
	return fmt.Sprint(value)
}
