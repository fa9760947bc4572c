package tool

import "fmt"

// ValidateInput checks a tool input against the declared schema.
func ValidateInput(schema Schema, input map[string]interface{}) error {
	for _, field := range schema.Fields {
		val, exists := input[field.Name]
		if field.Required && !exists {
			return fmt.Errorf("%s is required", field.Name)
		}
		if !exists {
			continue
		}
		switch field.Type {
		case "string":
			if _, ok := val.(string); !ok {
				return fmt.Errorf("%s must be string", field.Name)
			}
		case "boolean":
			if _, ok := val.(bool); !ok {
				return fmt.Errorf("%s must be boolean", field.Name)
			}
		case "number":
			switch val.(type) {
			case float64, int, int64:
			default:
				return fmt.Errorf("%s must be number", field.Name)
			}
		}
		if len(field.Enum) > 0 {
			s, _ := val.(string)
			valid := false
			for _, allowed := range field.Enum {
				if s == allowed {
					valid = true
					break
				}
			}
			if !valid {
				return fmt.Errorf("%s must be one of %v", field.Name, field.Enum)
			}
		}
	}
	return nil
}
