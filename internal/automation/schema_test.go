package automation

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meetpoint/meetpoint/internal/shared"
)

func TestSchemaValidate(t *testing.T) {
	schema := ConfigSchema{
		"channel": {Type: FieldString, Required: true, Enum: []string{"email", "chat"}},
		"count":   {Type: FieldInt},
		"urgent":  {Type: FieldBool},
	}

	cases := []struct {
		name   string
		config Config
		ok     bool
	}{
		{"complete", Config{"channel": "email", "count": 3, "urgent": true}, true},
		{"required only", Config{"channel": "chat"}, true},
		{"missing required", Config{"count": 1}, false},
		{"unknown field", Config{"channel": "email", "extra": "x"}, false},
		{"enum violation", Config{"channel": "sms"}, false},
		{"type mismatch string", Config{"channel": 7}, false},
		{"type mismatch int", Config{"channel": "email", "count": "three"}, false},
		{"type mismatch bool", Config{"channel": "email", "urgent": "yes"}, false},
		{"integral float accepted", Config{"channel": "email", "count": float64(5)}, true},
		{"fractional float rejected", Config{"channel": "email", "count": 5.5}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := schema.Validate(tc.config)
			if tc.ok {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.True(t, errors.Is(err, shared.ErrValidation))
			}
		})
	}
}

func TestSchemaPolicyFields(t *testing.T) {
	schema := ConfigSchema{
		"message": {Type: FieldString, Required: true},
	}

	err := schema.Validate(Config{
		"message":            "hi",
		"blocking":           true,
		"depends_on_trigger": float64(2),
		"timeout_seconds":    30,
	})
	assert.NoError(t, err)

	err = schema.Validate(Config{"message": "hi", "blocking": "yes"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, shared.ErrValidation))

	err = schema.Validate(Config{"message": "hi", "timeout_seconds": "soon"})
	assert.True(t, errors.Is(err, shared.ErrValidation))
}

func TestBuiltinSchemas(t *testing.T) {
	reg := NewRegistry()

	move, err := reg.Get(KindMoveStatus)
	require.NoError(t, err)
	assert.NoError(t, move.Schema.Validate(Config{FieldTargetStatus: 4}))
	assert.Error(t, move.Schema.Validate(Config{}))

	expiry, err := reg.Get(KindTimeExpiration)
	require.NoError(t, err)
	assert.NoError(t, expiry.Schema.Validate(Config{
		FieldInterval: "days", FieldValue: 3, FieldField: "created_at",
	}))
	assert.Error(t, expiry.Schema.Validate(Config{
		FieldInterval: "weeks", FieldValue: 3, FieldField: "created_at",
	}))

	cmp, err := reg.Get(KindFieldComparison)
	require.NoError(t, err)
	assert.Error(t, cmp.Schema.Validate(Config{
		FieldField: "priority", FieldOperator: ">=", FieldValue: "3",
	}))
}

func TestRegistryDisabledKind(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.SetEnabled(KindNotification, false))

	_, err := reg.Get(KindNotification)
	require.Error(t, err)
	assert.True(t, errors.Is(err, shared.ErrValidation))

	// Execution still resolves disabled kinds.
	k, ok := reg.Lookup(KindNotification)
	require.True(t, ok)
	assert.False(t, k.Enabled)

	err = reg.SetEnabled("robot.unknown", true)
	assert.True(t, errors.Is(err, shared.ErrNotFound))
}
