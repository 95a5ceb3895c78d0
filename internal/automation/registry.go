package automation

import (
	"fmt"
	"sort"

	"github.com/meetpoint/meetpoint/internal/shared"
)

// Action kind keys. The set is closed: operators pick from these, they
// never define their own.
const (
	KindMoveStatus      = "robot.move_status"
	KindNotification    = "robot.notification"
	KindTimeExpiration  = "trigger.time_expiration"
	KindStatusCheck     = "trigger.status_check"
	KindFieldComparison = "trigger.field_comparison"
)

// Config field names shared by the built-in kinds.
const (
	FieldTargetStatus = "target_status"
	FieldChannel      = "channel"
	FieldRecipient    = "recipient"
	FieldMessage      = "message"
	FieldInterval     = "interval"
	FieldValue        = "value"
	FieldField        = "field"
	FieldStatus       = "status"
	FieldOperator     = "operator"
)

// Kind is a registered category of bound action with a declared
// configuration schema.
type Kind struct {
	Key         string       `json:"key"`
	DisplayName string       `json:"display_name"`
	Category    Category     `json:"category"`
	Schema      ConfigSchema `json:"-"`
	Enabled     bool         `json:"enabled"`
}

// Registry holds the closed action-kind set.
type Registry struct {
	kinds map[string]Kind
}

// NewRegistry returns the registry populated with the built-in kinds.
func NewRegistry() *Registry {
	r := &Registry{kinds: make(map[string]Kind)}
	for _, k := range builtinKinds() {
		r.kinds[k.Key] = k
	}
	return r
}

// Get resolves a kind key. Unknown or disabled kinds are validation errors.
func (r *Registry) Get(key string) (Kind, error) {
	k, ok := r.kinds[key]
	if !ok {
		return Kind{}, shared.Validationf("unknown action kind %q", key)
	}
	if !k.Enabled {
		return Kind{}, shared.Validationf("action kind %q is disabled", key)
	}
	return k, nil
}

// Lookup resolves a kind key regardless of its enabled flag. Disabling a
// kind stops new attachments, not execution of already-bound actions.
func (r *Registry) Lookup(key string) (Kind, bool) {
	k, ok := r.kinds[key]
	return k, ok
}

// List returns all kinds sorted by key, for the management API.
func (r *Registry) List() []Kind {
	out := make([]Kind, 0, len(r.kinds))
	for _, k := range r.kinds {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// SetEnabled flips a kind's availability for new attachments.
func (r *Registry) SetEnabled(key string, enabled bool) error {
	k, ok := r.kinds[key]
	if !ok {
		return fmt.Errorf("%w: action kind %q", shared.ErrNotFound, key)
	}
	k.Enabled = enabled
	r.kinds[key] = k
	return nil
}

func builtinKinds() []Kind {
	return []Kind{
		{
			Key:         KindMoveStatus,
			DisplayName: "Move to stage",
			Category:    CategoryRobot,
			Enabled:     true,
			Schema: ConfigSchema{
				FieldTargetStatus: {Type: FieldInt, Required: true},
			},
		},
		{
			Key:         KindNotification,
			DisplayName: "Send notification",
			Category:    CategoryRobot,
			Enabled:     true,
			Schema: ConfigSchema{
				FieldChannel:   {Type: FieldString, Required: true, Enum: []string{"email", "chat"}},
				FieldRecipient: {Type: FieldString, Required: true},
				FieldMessage:   {Type: FieldString, Required: true},
			},
		},
		{
			Key:         KindTimeExpiration,
			DisplayName: "Time expired",
			Category:    CategoryTrigger,
			Enabled:     true,
			Schema: ConfigSchema{
				FieldInterval: {Type: FieldString, Required: true, Enum: []string{"days", "hours", "minutes"}},
				FieldValue:    {Type: FieldInt, Required: true},
				FieldField:    {Type: FieldString, Required: true},
			},
		},
		{
			Key:         KindStatusCheck,
			DisplayName: "Stage check",
			Category:    CategoryTrigger,
			Enabled:     true,
			Schema: ConfigSchema{
				FieldStatus: {Type: FieldInt, Required: true},
			},
		},
		{
			Key:         KindFieldComparison,
			DisplayName: "Field comparison",
			Category:    CategoryTrigger,
			Enabled:     true,
			Schema: ConfigSchema{
				FieldField:    {Type: FieldString, Required: true},
				FieldOperator: {Type: FieldString, Required: true, Enum: []string{">", "<", "==", "!="}},
				FieldValue:    {Type: FieldString, Required: true},
			},
		},
	}
}
