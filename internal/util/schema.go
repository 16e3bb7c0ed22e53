package util

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"unicode/utf8"
)

// ValidationError represents parameter validation errors with detailed information.
type ValidationError struct {
	Field   string `json:"field"`
	Value   any    `json:"value,omitempty"`
	Message string `json:"message"`
}

// Error implements the error interface for ValidationError.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s': %s", e.Field, e.Message)
}

// CreateSchema creates a JSON schema from a Go struct using reflection.
//
// Supported struct tags:
//
//	json:"name,omitempty"  property name; omitempty or pointer fields are optional
//	description:"..."      property description shown to the model
//	enum:"a,b,c"           allowed string values
//	minimum:"1"            inclusive lower bound for numbers
//	maximum:"100"          inclusive upper bound for numbers
//	maxLength:"200"        maximum string length in characters
func CreateSchema(structType any) map[string]any {
	t := reflect.TypeOf(structType)
	if t != nil && t.Kind() == reflect.Ptr {
		t = t.Elem()
	}

	if t == nil || t.Kind() != reflect.Struct {
		return map[string]any{
			"type":       "object",
			"properties": map[string]any{},
		}
	}

	properties := make(map[string]any)
	required := make([]string, 0)

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if !field.IsExported() {
			continue
		}

		jsonTag := field.Tag.Get("json")
		if jsonTag == "-" {
			continue
		}

		fieldName := field.Name
		if jsonTag != "" {
			if name, _, _ := strings.Cut(jsonTag, ","); name != "" {
				fieldName = name
			}
		}

		fieldSchema := map[string]any{
			"type": getJSONType(field.Type),
		}

		if description := field.Tag.Get("description"); description != "" {
			fieldSchema["description"] = description
		}

		if enum := field.Tag.Get("enum"); enum != "" {
			values := strings.Split(enum, ",")
			for i := range values {
				values[i] = strings.TrimSpace(values[i])
			}
			fieldSchema["enum"] = values
		}

		if minimum := field.Tag.Get("minimum"); minimum != "" {
			if v, err := strconv.ParseFloat(minimum, 64); err == nil {
				fieldSchema["minimum"] = v
			}
		}

		if maximum := field.Tag.Get("maximum"); maximum != "" {
			if v, err := strconv.ParseFloat(maximum, 64); err == nil {
				fieldSchema["maximum"] = v
			}
		}

		if maxLength := field.Tag.Get("maxLength"); maxLength != "" {
			if v, err := strconv.Atoi(maxLength); err == nil && v >= 0 {
				fieldSchema["maxLength"] = v
			}
		}

		properties[fieldName] = fieldSchema

		if !hasOmitEmpty(jsonTag) && !isPointer(field.Type) {
			required = append(required, fieldName)
		}
	}

	schema := map[string]any{
		"type":       "object",
		"properties": properties,
	}

	if len(required) > 0 {
		schema["required"] = required
	}

	return schema
}

// RequiredFields returns the required property names of a schema. The list
// may be declared as []string (Go literals) or []any (decoded JSON).
func RequiredFields(schema map[string]any) []string {
	switch req := schema["required"].(type) {
	case []string:
		return req
	case []any:
		out := make([]string, 0, len(req))
		for _, r := range req {
			if s, ok := r.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

// ValidateParameters validates parameters against a JSON schema.
func ValidateParameters(params map[string]any, schema map[string]any) error {
	for _, fieldName := range RequiredFields(schema) {
		if v, exists := params[fieldName]; !exists || v == nil {
			return &ValidationError{
				Field:   fieldName,
				Message: "required field is missing",
			}
		}
	}

	properties, _ := schema["properties"].(map[string]any)
	for fieldName, value := range params {
		propSchema, exists := properties[fieldName]
		if !exists {
			continue // extra fields are ignored
		}

		propMap, ok := propSchema.(map[string]any)
		if !ok {
			continue
		}

		expectedType, _ := propMap["type"].(string)
		if !isValidType(value, expectedType) {
			return &ValidationError{
				Field:   fieldName,
				Value:   value,
				Message: fmt.Sprintf("expected type %s, got %T", expectedType, value),
			}
		}

		if err := validateEnum(fieldName, value, propMap["enum"]); err != nil {
			return err
		}

		if err := validateMinimum(fieldName, value, propMap["minimum"]); err != nil {
			return err
		}

		if err := validateMaximum(fieldName, value, propMap["maximum"]); err != nil {
			return err
		}

		if err := validateMaxLength(fieldName, value, propMap["maxLength"]); err != nil {
			return err
		}
	}

	return nil
}

func validateEnum(field string, value any, enum any) error {
	var allowed []string
	switch e := enum.(type) {
	case []string:
		allowed = e
	case []any:
		for _, v := range e {
			allowed = append(allowed, fmt.Sprint(v))
		}
	default:
		return nil
	}
	if value == nil || len(allowed) == 0 {
		return nil
	}

	got := fmt.Sprint(value)
	for _, a := range allowed {
		if a == got {
			return nil
		}
	}

	return &ValidationError{
		Field:   field,
		Value:   value,
		Message: fmt.Sprintf("must be one of [%s]", strings.Join(allowed, ", ")),
	}
}

func validateMinimum(field string, value any, minimum any) error {
	min, ok := toFloat(minimum)
	if !ok {
		return nil
	}
	v, ok := toFloat(value)
	if !ok {
		return nil
	}
	if v < min {
		return &ValidationError{
			Field:   field,
			Value:   value,
			Message: fmt.Sprintf("must be >= %v", min),
		}
	}
	return nil
}

func validateMaximum(field string, value any, maximum any) error {
	max, ok := toFloat(maximum)
	if !ok {
		return nil
	}
	v, ok := toFloat(value)
	if !ok {
		return nil
	}
	if v > max {
		return &ValidationError{
			Field:   field,
			Value:   value,
			Message: fmt.Sprintf("must be <= %v", max),
		}
	}
	return nil
}

func validateMaxLength(field string, value any, maxLength any) error {
	max, ok := toFloat(maxLength)
	if !ok {
		return nil
	}
	s, ok := value.(string)
	if !ok {
		return nil
	}
	if n := utf8.RuneCountInString(s); float64(n) > max {
		return &ValidationError{
			Field:   field,
			Message: fmt.Sprintf("must be at most %v characters, got %d", max, n),
		}
	}
	return nil
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}

// getJSONType returns the JSON schema type for a given Go type.
func getJSONType(t reflect.Type) string {
	switch t.Kind() {
	case reflect.String:
		return "string"
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return "integer"
	case reflect.Float32, reflect.Float64:
		return "number"
	case reflect.Bool:
		return "boolean"
	case reflect.Slice, reflect.Array:
		return "array"
	case reflect.Map, reflect.Struct:
		return "object"
	case reflect.Ptr:
		return getJSONType(t.Elem())
	default:
		return "string"
	}
}

func hasOmitEmpty(tag string) bool {
	parts := strings.Split(tag, ",")
	for _, part := range parts[1:] {
		if strings.TrimSpace(part) == "omitempty" {
			return true
		}
	}
	return false
}

func isPointer(t reflect.Type) bool {
	return t.Kind() == reflect.Ptr
}

// isValidType checks if a value is valid according to the expected JSON schema type.
func isValidType(value any, expectedType string) bool {
	if value == nil {
		return true
	}

	switch expectedType {
	case "string":
		_, ok := value.(string)
		return ok
	case "integer":
		switch v := value.(type) {
		case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
			return true
		case float64: // JSON numbers decode as float64
			return v == float64(int64(v))
		}
		return false
	case "number":
		_, ok := toFloat(value)
		return ok
	case "boolean":
		_, ok := value.(bool)
		return ok
	case "array":
		_, ok := value.([]any)
		return ok
	case "object":
		_, ok := value.(map[string]any)
		return ok
	default:
		return true
	}
}
