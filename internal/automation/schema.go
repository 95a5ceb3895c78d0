package automation

import (
	"github.com/meetpoint/meetpoint/internal/shared"
)

// FieldType enumerates the value types a config field may carry.
type FieldType string

const (
	FieldString FieldType = "string"
	FieldInt    FieldType = "int"
	FieldBool   FieldType = "bool"
)

// FieldSpec describes one config field of an action kind.
type FieldSpec struct {
	Type     FieldType
	Required bool
	// Enum restricts string fields to a fixed value set when non-empty.
	Enum []string
}

// ConfigSchema maps field names to their specs. Schemas are closed:
// fields not declared here are rejected.
type ConfigSchema map[string]FieldSpec

// Policy fields accepted by every kind in addition to its own schema.
const (
	fieldBlocking         = "blocking"
	fieldDependsOnTrigger = "depends_on_trigger"
	fieldTimeoutSeconds   = "timeout_seconds"
)

var policyFields = ConfigSchema{
	fieldBlocking:         {Type: FieldBool},
	fieldDependsOnTrigger: {Type: FieldInt},
	fieldTimeoutSeconds:   {Type: FieldInt},
}

// Validate checks config field-by-field against the schema. Unknown
// fields, missing required fields and type mismatches are validation
// errors; nothing is ever partially accepted.
func (s ConfigSchema) Validate(config Config) error {
	for name, spec := range s {
		value, present := config[name]
		if !present {
			if spec.Required {
				return shared.Validationf("config field %q is required", name)
			}
			continue
		}
		if err := checkField(name, spec, value); err != nil {
			return err
		}
	}
	for name, value := range config {
		if _, declared := s[name]; declared {
			continue
		}
		spec, policy := policyFields[name]
		if !policy {
			return shared.Validationf("unknown config field %q", name)
		}
		if err := checkField(name, spec, value); err != nil {
			return err
		}
	}
	return nil
}

func checkField(name string, spec FieldSpec, value any) error {
	switch spec.Type {
	case FieldString:
		s, ok := value.(string)
		if !ok {
			return shared.Validationf("config field %q must be a string", name)
		}
		if len(spec.Enum) > 0 && !containsString(spec.Enum, s) {
			return shared.Validationf("config field %q must be one of %v", name, spec.Enum)
		}
	case FieldInt:
		if !isIntegral(value) {
			return shared.Validationf("config field %q must be an integer", name)
		}
	case FieldBool:
		if _, ok := value.(bool); !ok {
			return shared.Validationf("config field %q must be a boolean", name)
		}
	default:
		return shared.Consistencyf("schema field %q has unknown type %q", name, spec.Type)
	}
	return nil
}

// isIntegral accepts native ints and JSON float64s with no fraction.
func isIntegral(value any) bool {
	switch v := value.(type) {
	case int, int32, int64:
		return true
	case float64:
		return v == float64(int64(v))
	}
	return false
}

func containsString(haystack []string, needle string) bool {
	for _, s := range haystack {
		if s == needle {
			return true
		}
	}
	return false
}
