package envelope

import (
	"math"
	"regexp"
)

// Value patterns shared across payload rules.
var (
	workPackageIDPattern = regexp.MustCompile(`^WP\d{2}$`)
	featureSlugPattern   = regexp.MustCompile(`^\d{3}-[a-z0-9-]+$`)
)

// fieldRule constrains one payload field. Rules only apply to fields
// they name; unknown extra fields are always permitted.
type fieldRule struct {
	name     string
	required bool

	// pattern, when set, must match the (string) value.
	pattern *regexp.Regexp

	// enum, when set, lists the allowed (string) values.
	enum []string

	// nonEmpty requires a non-empty string value.
	nonEmpty bool

	// integer requires an integral number. JSON decoding hands numbers
	// over as float64, so whole-valued floats are accepted.
	integer bool
}

// payloadRules is the per-type rule table. Missing required fields and
// pattern/enum mismatches fail with a ValidationError naming the field.
var payloadRules = map[Type][]fieldRule{
	TypeWPStatusChanged: {
		{name: "work_package_id", required: true, pattern: workPackageIDPattern},
		{name: "previous_status", required: true, enum: syncLaneValues},
		{name: "new_status", required: true, enum: syncLaneValues},
		{name: "feature_slug", pattern: featureSlugPattern},
		{name: "changed_by", nonEmpty: true},
	},
	TypeWPCreated: {
		{name: "work_package_id", required: true, pattern: workPackageIDPattern},
		{name: "title", required: true, nonEmpty: true},
		{name: "feature_slug", pattern: featureSlugPattern},
		{name: "lane", enum: laneValues},
	},
	TypeWPAssigned: {
		{name: "work_package_id", required: true, pattern: workPackageIDPattern},
		{name: "assignee", required: true, nonEmpty: true},
		{name: "feature_slug", pattern: featureSlugPattern},
	},
	TypeFeatureCreated: {
		{name: "feature_slug", required: true, pattern: featureSlugPattern},
		{name: "title", required: true, nonEmpty: true},
		{name: "priority", integer: true},
	},
	TypeFeatureCompleted: {
		{name: "feature_slug", required: true, pattern: featureSlugPattern},
	},
	TypeHistoryAdded: {
		{name: "entry", required: true, nonEmpty: true},
		{name: "work_package_id", pattern: workPackageIDPattern},
	},
	TypeErrorLogged: {
		{name: "error_type", required: true, nonEmpty: true},
		{name: "message", required: true, nonEmpty: true},
		{name: "work_package_id", pattern: workPackageIDPattern},
	},
	TypeDependencyResolved: {
		{name: "work_package_id", required: true, pattern: workPackageIDPattern},
		{name: "depends_on", required: true, pattern: workPackageIDPattern},
		{name: "resolution_type", required: true, enum: []string{"completed", "skipped", "merged"}},
	},
}

var syncLaneValues = []string{
	string(SyncPlanned), string(SyncDoing), string(SyncForReview), string(SyncDone),
}

var laneValues = []string{
	string(LanePlanned), string(LaneClaimed), string(LaneInProgress),
	string(LaneForReview), string(LaneDone), string(LaneBlocked), string(LaneCanceled),
}

// ValidatePayload checks payload against the rule table for t.
// The event type must be known (the factory rejects unknown types before
// calling this).
func ValidatePayload(t Type, payload map[string]any) error {
	rules := payloadRules[t]

	for _, rule := range rules {
		raw, present := payload[rule.name]
		if !present {
			if rule.required {
				return newValidationError(rule.name, "missing required field")
			}
			continue
		}

		if rule.integer {
			if !isIntegral(raw) {
				return newValidationError(rule.name, "expected integer value, got %T", raw)
			}
			continue
		}

		// Remaining constraints apply to strings; rules never apply to
		// structured sub-values.
		s, ok := raw.(string)
		if !ok {
			return newValidationError(rule.name, "expected string value, got %T", raw)
		}

		if rule.nonEmpty && s == "" {
			return newValidationError(rule.name, "must not be empty")
		}
		if rule.pattern != nil && !rule.pattern.MatchString(s) {
			return newValidationError(rule.name, "value %q does not match pattern %s", s, rule.pattern)
		}
		if len(rule.enum) > 0 && !contains(rule.enum, s) {
			return newValidationError(rule.name, "value %q not in %v", s, rule.enum)
		}
	}

	return nil
}

func isIntegral(v any) bool {
	switch n := v.(type) {
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return true
	case float64:
		return n == math.Trunc(n)
	case float32:
		return float64(n) == math.Trunc(float64(n))
	default:
		return false
	}
}

func contains(values []string, s string) bool {
	for _, v := range values {
		if v == s {
			return true
		}
	}
	return false
}
