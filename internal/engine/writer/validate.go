package writer

import (
	"fmt"
	"net/mail"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/draftline/draftline/internal/engine/record"
	"github.com/draftline/draftline/internal/engine/schema"
	"github.com/draftline/draftline/internal/engine/value"
)

type operation int

const (
	opCreate operation = iota
	opUpdate
)

var (
	dateValuePattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}([T ]\d{2}:\d{2}(:\d{2})?([+-]\d{2}:\d{2}|Z)?)?$`)
	integerPattern   = regexp.MustCompile(`^-?\d+$`)
	numericPattern   = regexp.MustCompile(`^-?\d+(\.\d+)?$`)
)

// validatePayload checks a write payload against the table schema. All
// violations are collected before reporting, so a caller sees every problem
// at once. Validation happens before any storage mutation is attempted.
func validatePayload(t *schema.TableSchema, payload *value.Object, op operation) error {
	verr := &record.ValidationError{}

	for _, name := range payload.Keys() {
		v, _ := payload.Get(name)

		if name == t.Control.PrimaryKey {
			verr.Add(name, "primary key cannot be set through a payload")
			continue
		}
		if name == t.Control.Container {
			if op != opCreate {
				verr.Add(name, "parent container can only be set on create")
			}
			continue
		}
		if t.IsControlField(name) {
			verr.Add(name, "control field cannot be written")
			continue
		}

		field, ok := t.Field(name)
		if !ok {
			return fmt.Errorf("%w: %s.%s", record.ErrUnknownField, t.Name, name)
		}

		if field.IsRelation() {
			validateRelationValue(field, v, verr)
			continue
		}
		validateScalarValue(field, v, verr)
	}

	if op == opCreate {
		for name, field := range t.Fields {
			if field.Constraints.Required && !payload.Has(name) {
				verr.Add(name, "is required")
			}
		}
	}

	if verr.HasErrors() {
		return verr
	}
	return nil
}

// validateRelationValue checks relation payloads by shape rather than by the
// generic scalar rules: independent relations take a list of positive ids,
// embedded relations a list of non-empty objects.
func validateRelationValue(field *schema.FieldSchema, v value.Value, verr *record.ValidationError) {
	if v.IsNull() {
		return
	}
	items, ok := v.AsList()
	if !ok {
		verr.Add(field.Name, "relation value must be a list")
		return
	}

	if field.Relation.Shape == schema.RelationInlineEmbedded {
		for i, item := range items {
			obj, ok := item.AsObject()
			if !ok || obj.Len() == 0 {
				verr.Add(field.Name, fmt.Sprintf("item %d must be a non-empty object", i))
			}
		}
		return
	}

	for i, item := range items {
		id, ok := item.AsInt()
		if !ok || id <= 0 {
			verr.Add(field.Name, fmt.Sprintf("item %d must be a positive id", i))
		}
	}
	if !field.Relation.Multiple && len(items) > 1 {
		verr.Add(field.Name, "relation accepts a single id")
	}
}

func validateScalarValue(field *schema.FieldSchema, v value.Value, verr *record.ValidationError) {
	c := field.Constraints

	if v.IsNull() {
		if c.Required {
			verr.Add(field.Name, "is required")
		}
		return
	}

	if s, ok := v.AsText(); ok {
		if c.Required && strings.TrimSpace(s) == "" {
			verr.Add(field.Name, "is required")
		}
		if c.MaxLength > 0 && utf8.RuneCountInString(s) > c.MaxLength {
			verr.Add(field.Name, fmt.Sprintf("must be at most %d characters", c.MaxLength))
		}
	}

	if c.Integer || field.Kind == schema.FieldInteger {
		if !isIntegerLike(v) {
			verr.Add(field.Name, "must be an integer")
		}
	}
	if c.Float || field.Kind == schema.FieldFloat {
		if !isNumericLike(v) {
			verr.Add(field.Name, "must be numeric")
		}
	}

	if c.Email {
		if s, ok := v.AsText(); !ok || emailInvalid(s) {
			verr.Add(field.Name, "must be a valid email address")
		}
	}

	if c.Temporal != schema.TemporalNone {
		if s, ok := v.AsText(); ok && !dateValuePattern.MatchString(s) {
			verr.Add(field.Name, "must be an ISO-8601 date or datetime")
		}
	}

	if len(field.Options) > 0 && (field.Kind == schema.FieldSelect || field.Kind == schema.FieldMultiSelect) {
		validateEnumValue(field, v, verr)
	}
}

func validateEnumValue(field *schema.FieldSchema, v value.Value, verr *record.ValidationError) {
	allowed := make(map[string]bool, len(field.Options))
	for _, opt := range field.Options {
		if !opt.IsDivider() {
			allowed[opt.Value] = true
		}
	}

	for _, sel := range enumSelections(v) {
		if !allowed[sel] {
			verr.Add(field.Name, fmt.Sprintf("%q is not an allowed value", sel))
		}
	}
}

func enumSelections(v value.Value) []string {
	switch v.Kind() {
	case value.KindText:
		s, _ := v.AsText()
		parts := make([]string, 0)
		for _, part := range strings.Split(s, ",") {
			if part = strings.TrimSpace(part); part != "" {
				parts = append(parts, part)
			}
		}
		return parts
	case value.KindInt:
		return []string{v.String()}
	case value.KindList:
		items, _ := v.AsList()
		parts := make([]string, 0, len(items))
		for _, item := range items {
			parts = append(parts, item.String())
		}
		return parts
	}
	return nil
}

func isIntegerLike(v value.Value) bool {
	switch v.Kind() {
	case value.KindInt:
		return true
	case value.KindFloat:
		f, _ := v.AsFloat()
		return f == float64(int64(f))
	case value.KindText:
		s, _ := v.AsText()
		return integerPattern.MatchString(strings.TrimSpace(s))
	}
	return false
}

func isNumericLike(v value.Value) bool {
	switch v.Kind() {
	case value.KindInt, value.KindFloat:
		return true
	case value.KindText:
		s, _ := v.AsText()
		return numericPattern.MatchString(strings.TrimSpace(s))
	}
	return false
}

func emailInvalid(s string) bool {
	if strings.TrimSpace(s) == "" {
		return true
	}
	_, err := mail.ParseAddress(s)
	return err != nil
}
