/*
Package factory provides JSON/YAML to Go policy conversion.

PURPOSE:
  Converts policy definitions into vacation.Policy values. This enables
  policy configuration without code changes - HR can define policies in a
  file, and the factory creates the proper Go structs and validates them.

SCHEMA (YAML shown; JSON uses the same keys):
  policies:
    - name: Annual leave 2025
      vacation_type: ANNUAL
      grant_method: manual_grant       # manual_grant | on_request | repeat_grant
      amount: 15                       # days, decimal
      effective: immediate             # immediate | next_day | start_of_next_month | start_of_next_year
      expiration: end_of_year          # one_month ... two_years | end_of_month | end_of_year | never
      assign_to: [alice, bob]
    - name: Wedding leave
      vacation_type: SPECIAL
      grant_method: on_request
      amount: 5
      flexible_amount: false
      approval_required_count: 2
      expiration: three_months
    - name: Monthly credit
      vacation_type: ANNUAL
      grant_method: repeat_grant
      amount: 1.25
      repeat: {unit: monthly, day: 1}

KEY FEATURES:
  - Case-insensitive enum names ("on-request" == "ON_REQUEST")
  - Sensible defaults (effective: immediate, expiration: one_year)
  - Full validation through Policy.Validate

USAGE:
  factory := NewPolicyFactory()
  defs, err := factory.LoadFile("policies.yaml")
  policies, err := factory.Seed(ctx, svc, defs)

SEE ALSO:
  - vacation/policy.go: Policy type definition
  - cmd/server: "seed" command
*/
package factory

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/vacation-engine/generic"
	"github.com/warp/vacation-engine/vacation"
	"gopkg.in/yaml.v3"
)

// =============================================================================
// SCHEMA TYPES
// =============================================================================

// PolicyFile is the top-level document of a policies file.
type PolicyFile struct {
	Policies []PolicyDefinition `json:"policies" yaml:"policies"`
}

// PolicyDefinition is the file representation of a policy.
type PolicyDefinition struct {
	Name                  string            `json:"name" yaml:"name"`
	VacationType          string            `json:"vacation_type" yaml:"vacation_type"`
	GrantMethod           string            `json:"grant_method" yaml:"grant_method"`
	Amount                decimal.Decimal   `json:"amount" yaml:"amount"`
	FlexibleAmount        bool              `json:"flexible_amount,omitempty" yaml:"flexible_amount,omitempty"`
	ApprovalRequiredCount *int              `json:"approval_required_count,omitempty" yaml:"approval_required_count,omitempty"`
	Effective             string            `json:"effective,omitempty" yaml:"effective,omitempty"`
	Expiration            string            `json:"expiration,omitempty" yaml:"expiration,omitempty"`
	Repeat                *RepeatDefinition `json:"repeat,omitempty" yaml:"repeat,omitempty"`

	// AssignTo lists users the seed command assigns the policy to.
	AssignTo []string `json:"assign_to,omitempty" yaml:"assign_to,omitempty"`
}

// RepeatDefinition represents a repeat schedule.
type RepeatDefinition struct {
	Unit  string `json:"unit" yaml:"unit"`                       // yearly, monthly
	Month int    `json:"month,omitempty" yaml:"month,omitempty"` // 1-12, yearly only
	Day   int    `json:"day" yaml:"day"`
}

// =============================================================================
// POLICY FACTORY
// =============================================================================

// PolicyFactory converts definitions to vacation.Policy values.
type PolicyFactory struct{}

// NewPolicyFactory creates a new policy factory.
func NewPolicyFactory() *PolicyFactory {
	return &PolicyFactory{}
}

// ParsePolicy parses a single JSON policy definition.
func (f *PolicyFactory) ParsePolicy(jsonStr string) (*vacation.Policy, error) {
	var def PolicyDefinition
	if err := json.Unmarshal([]byte(jsonStr), &def); err != nil {
		return nil, fmt.Errorf("failed to parse policy JSON: %w", err)
	}
	return f.FromDefinition(def)
}

// ParseFile parses a policies document. YAML is a superset of JSON, so both
// formats are accepted.
func (f *PolicyFactory) ParseFile(data []byte) ([]PolicyDefinition, error) {
	var file PolicyFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse policies file: %w", err)
	}
	for i, def := range file.Policies {
		if _, err := f.FromDefinition(def); err != nil {
			return nil, fmt.Errorf("policies[%d] %q: %w", i, def.Name, err)
		}
	}
	return file.Policies, nil
}

// LoadFile reads and parses a policies file.
func (f *PolicyFactory) LoadFile(path string) ([]PolicyDefinition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read policies file: %w", err)
	}
	return f.ParseFile(data)
}

// FromDefinition converts a definition to a validated vacation.Policy.
func (f *PolicyFactory) FromDefinition(def PolicyDefinition) (*vacation.Policy, error) {
	method, err := parseGrantMethod(def.GrantMethod)
	if err != nil {
		return nil, err
	}
	effective, err := parseEffectiveType(def.Effective)
	if err != nil {
		return nil, err
	}
	expiration, err := parseExpirationType(def.Expiration)
	if err != nil {
		return nil, err
	}

	policy := &vacation.Policy{
		Name:                  strings.TrimSpace(def.Name),
		VacationType:          vacation.VacationType(strings.TrimSpace(def.VacationType)),
		GrantMethod:           method,
		FixedAmount:           generic.Days(def.Amount),
		IsFlexibleGrant:       def.FlexibleAmount,
		ApprovalRequiredCount: def.ApprovalRequiredCount,
		EffectiveType:         effective,
		ExpirationType:        expiration,
	}
	if def.Repeat != nil {
		policy.Repeat = &vacation.RepeatSchedule{
			Unit:  vacation.RepeatUnit(normalize(def.Repeat.Unit)),
			Month: time.Month(def.Repeat.Month),
			Day:   def.Repeat.Day,
		}
	}

	if err := policy.Validate(); err != nil {
		return nil, err
	}
	return policy, nil
}

// ToDefinition converts a Policy back to its file representation.
func (f *PolicyFactory) ToDefinition(p *vacation.Policy) PolicyDefinition {
	def := PolicyDefinition{
		Name:                  p.Name,
		VacationType:          string(p.VacationType),
		GrantMethod:           strings.ToLower(string(p.GrantMethod)),
		Amount:                p.FixedAmount.Value,
		FlexibleAmount:        p.IsFlexibleGrant,
		ApprovalRequiredCount: p.ApprovalRequiredCount,
		Effective:             strings.ToLower(string(p.EffectiveType)),
		Expiration:            strings.ToLower(string(p.ExpirationType)),
	}
	if p.Repeat != nil {
		def.Repeat = &RepeatDefinition{
			Unit:  strings.ToLower(string(p.Repeat.Unit)),
			Month: int(p.Repeat.Month),
			Day:   p.Repeat.Day,
		}
	}
	return def
}

// =============================================================================
// PARSING HELPERS
// =============================================================================

// normalize upper-cases and turns '-' and ' ' into '_'.
func normalize(s string) string {
	s = strings.ToUpper(strings.TrimSpace(s))
	return strings.NewReplacer("-", "_", " ", "_").Replace(s)
}

func parseGrantMethod(s string) (vacation.GrantMethod, error) {
	m := vacation.GrantMethod(normalize(s))
	if !m.Valid() {
		return "", generic.Invalid("grant_method", "unknown grant method %q", s)
	}
	return m, nil
}

func parseEffectiveType(s string) (vacation.EffectiveType, error) {
	if strings.TrimSpace(s) == "" {
		return vacation.EffectiveImmediate, nil
	}
	e := vacation.EffectiveType(normalize(s))
	if !e.Valid() {
		return "", generic.Invalid("effective", "unknown effective type %q", s)
	}
	return e, nil
}

func parseExpirationType(s string) (vacation.ExpirationType, error) {
	if strings.TrimSpace(s) == "" {
		return vacation.ExpireOneYear, nil
	}
	e := vacation.ExpirationType(normalize(s))
	if !e.Valid() {
		return "", generic.Invalid("expiration", "unknown expiration type %q", s)
	}
	return e, nil
}
