package validation

import (
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/hyperengineering/fieldsync/internal/schema"
	"github.com/hyperengineering/fieldsync/internal/types"
)

const (
	// MaxIDLength bounds row ids.
	MaxIDLength = 128

	// MaxTextLength bounds text fields.
	MaxTextLength = 10000
)

// ValidationError represents a single field validation failure.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Collector accumulates validation errors without failing on first.
type Collector struct {
	errors []ValidationError
}

// Add appends a validation error to the collector if non-nil.
func (c *Collector) Add(err *ValidationError) {
	if err != nil {
		c.errors = append(c.errors, *err)
	}
}

// HasErrors returns true if the collector has accumulated any errors.
func (c *Collector) HasErrors() bool {
	return len(c.errors) > 0
}

// Errors returns all accumulated validation errors.
func (c *Collector) Errors() []ValidationError {
	return c.errors
}

// ValidateUTF8 returns an error if the value is not valid UTF-8.
func ValidateUTF8(field, value string) *ValidationError {
	if !utf8.ValidString(value) {
		return &ValidationError{
			Field:   field,
			Message: "must be valid UTF-8",
		}
	}
	return nil
}

// ValidateNoNullBytes returns an error if the value contains null bytes.
func ValidateNoNullBytes(field, value string) *ValidationError {
	if strings.Contains(value, "\x00") {
		return &ValidationError{
			Field:   field,
			Message: "must not contain null bytes",
		}
	}
	return nil
}

// ValidateMaxLength returns an error if the value exceeds max runes.
func ValidateMaxLength(field, value string, max int) *ValidationError {
	if utf8.RuneCountInString(value) > max {
		return &ValidationError{
			Field:   field,
			Message: fmt.Sprintf("exceeds maximum length of %d characters", max),
		}
	}
	return nil
}

// ValidateRequired returns an error if the value is empty or whitespace-only.
func ValidateRequired(field, value string) *ValidationError {
	if strings.TrimSpace(value) == "" {
		return &ValidationError{
			Field:   field,
			Message: "is required",
		}
	}
	return nil
}

// ValidateRange returns an error if the value is outside [min, max].
func ValidateRange(field string, value, min, max float64) *ValidationError {
	if value < min || value > max {
		return &ValidationError{
			Field:   field,
			Message: fmt.Sprintf("must be between %.1f and %.1f", min, max),
		}
	}
	return nil
}

// ValidateTimestamp returns an error if value is neither NULL nor a
// parseable timestamp string.
func ValidateTimestamp(field string, value any) *ValidationError {
	switch v := value.(type) {
	case nil:
		return nil
	case string:
		if v == "" {
			return nil
		}
		if _, err := types.ParseTime(v); err != nil {
			return &ValidationError{Field: field, Message: "must be an RFC 3339 timestamp"}
		}
		return nil
	default:
		return &ValidationError{Field: field, Message: "must be an RFC 3339 timestamp"}
	}
}

// ranges holds numeric bounds for specific fields, keyed by table then
// remote field name.
var ranges = map[string]map[string][2]float64{
	types.TableScans: {
		"latitude":  {-90, 90},
		"longitude": {-180, 180},
	},
	types.TableDiagnoses: {
		"confidence": {0, 1},
	},
}

// ValidateRow checks a full row offered for upsert into table: id and
// updated_at are required, every field must be known to the table and
// carry a value of the column's type.
func ValidateRow(table schema.Table, row types.Row) []ValidationError {
	var c Collector

	id, ok := row[schema.RemoteID].(string)
	if !ok {
		c.Add(&ValidationError{Field: schema.RemoteID, Message: "is required"})
	} else {
		c.Add(ValidateRequired(schema.RemoteID, id))
		c.Add(ValidateMaxLength(schema.RemoteID, id, MaxIDLength))
		c.Add(ValidateNoNullBytes(schema.RemoteID, id))
	}

	if s, _ := row[schema.RemoteUpdatedAt].(string); s == "" {
		c.Add(&ValidationError{Field: schema.RemoteUpdatedAt, Message: "is required"})
	}

	validateFields(&c, table, row, schema.RemoteID)
	return c.Errors()
}

// ValidatePatch checks a partial row applied by update. The id field is
// immutable and may not be patched.
func ValidatePatch(table schema.Table, patch types.Row) []ValidationError {
	var c Collector
	if len(patch) == 0 {
		c.Add(&ValidationError{Field: "body", Message: "must contain at least one field"})
		return c.Errors()
	}
	if _, ok := patch[schema.RemoteID]; ok {
		c.Add(&ValidationError{Field: schema.RemoteID, Message: "is immutable"})
	}
	validateFields(&c, table, patch, schema.RemoteID)
	return c.Errors()
}

// ValidateFilter checks an equality filter against table's remote fields.
func ValidateFilter(table schema.Table, column, value string) []ValidationError {
	var c Collector
	c.Add(ValidateRequired("column", column))
	c.Add(ValidateRequired("value", value))
	if column != "" && !knownField(table, column) {
		c.Add(&ValidationError{Field: "column", Message: fmt.Sprintf("unknown field %q", column)})
	}
	return c.Errors()
}

func knownField(table schema.Table, name string) bool {
	for _, f := range table.RemoteFields() {
		if f == name {
			return true
		}
	}
	return false
}

func validateFields(c *Collector, table schema.Table, row types.Row, skip string) {
	keys := make([]string, 0, len(row))
	for k := range row {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	columns := make(map[string]schema.Column, len(table.Columns))
	for _, col := range table.Columns {
		columns[col.RemoteName()] = col
	}

	for _, k := range keys {
		if k == skip {
			continue
		}
		v := row[k]
		switch k {
		case schema.RemoteCreatedAt, schema.RemoteUpdatedAt, schema.RemoteDeletedAt:
			c.Add(ValidateTimestamp(k, v))
			continue
		case schema.RemoteDeviceID:
			c.Add(validateText(k, v))
			continue
		case schema.RemoteVersion:
			c.Add(validateNumber(k, v))
			continue
		}

		col, ok := columns[k]
		if !ok {
			c.Add(&ValidationError{Field: k, Message: "unknown field"})
			continue
		}
		switch col.Type {
		case schema.Timestamp:
			c.Add(ValidateTimestamp(k, v))
		case schema.Bool:
			if _, ok := v.(bool); !ok && v != nil {
				c.Add(&ValidationError{Field: k, Message: "must be a boolean"})
			}
		case schema.Real, schema.Integer:
			if err := validateNumber(k, v); err != nil {
				c.Add(err)
				continue
			}
			if bounds, ok := ranges[table.Name][k]; ok && v != nil {
				c.Add(ValidateRange(k, v.(float64), bounds[0], bounds[1]))
			}
		default:
			c.Add(validateText(k, v))
		}
	}
}

func validateText(field string, v any) *ValidationError {
	if v == nil {
		return nil
	}
	s, ok := v.(string)
	if !ok {
		return &ValidationError{Field: field, Message: "must be a string"}
	}
	if err := ValidateUTF8(field, s); err != nil {
		return err
	}
	if err := ValidateNoNullBytes(field, s); err != nil {
		return err
	}
	return ValidateMaxLength(field, s, MaxTextLength)
}

// validateNumber accepts NULL or a JSON number.
func validateNumber(field string, v any) *ValidationError {
	switch v.(type) {
	case nil, float64:
		return nil
	}
	return &ValidationError{Field: field, Message: "must be a number"}
}
