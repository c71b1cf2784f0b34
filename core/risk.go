package core

import (
	"fmt"
	"slices"
	"strings"
)

type RiskClass int

const (
	RiskUnknown RiskClass = iota
	RiskReadOnly
	RiskDataModifying
	RiskSchemaModifying
	RiskAdministrative
	RiskDestructive
)

// RiskClasses lists every known class in ascending order of risk.
var RiskClasses = []RiskClass{
	RiskReadOnly,
	RiskDataModifying,
	RiskSchemaModifying,
	RiskAdministrative,
	RiskDestructive,
}

func RiskClassFromString(s string) RiskClass {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case RiskReadOnly.String():
		return RiskReadOnly
	case RiskDataModifying.String():
		return RiskDataModifying
	case RiskSchemaModifying.String():
		return RiskSchemaModifying
	case RiskAdministrative.String():
		return RiskAdministrative
	case RiskDestructive.String():
		return RiskDestructive
	default:
		return RiskUnknown
	}
}

func (r RiskClass) String() string {
	switch r {
	case RiskReadOnly:
		return "read_only"
	case RiskDataModifying:
		return "data_modifying"
	case RiskSchemaModifying:
		return "schema_modifying"
	case RiskAdministrative:
		return "administrative"
	case RiskDestructive:
		return "destructive"
	default:
		return "unknown"
	}
}

// Dangerous reports whether statements of this class are logged with a warning.
func (r RiskClass) Dangerous() bool {
	return r == RiskAdministrative || r == RiskDestructive
}

func (r RiskClass) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

func (r *RiskClass) UnmarshalText(text []byte) error {
	c := RiskClassFromString(string(text))
	if c == RiskUnknown && string(text) != RiskUnknown.String() {
		return fmt.Errorf("unknown risk class %q", string(text))
	}
	*r = c
	return nil
}

// Policy is the set of disabled risk classes. The zero value allows everything.
type Policy struct {
	disabled map[RiskClass]struct{}
}

func NewPolicy(disabled ...RiskClass) *Policy {
	p := &Policy{disabled: make(map[RiskClass]struct{}, len(disabled))}
	for _, c := range disabled {
		p.disabled[c] = struct{}{}
	}
	return p
}

func (p *Policy) Allows(c RiskClass) bool {
	if p == nil {
		return true
	}
	_, off := p.disabled[c]
	return !off
}

// Check returns an error wrapping ErrPolicyViolation when c is disabled.
func (p *Policy) Check(c RiskClass) error {
	if p.Allows(c) {
		return nil
	}
	return WithReason(fmt.Errorf("%w: %s statements are disabled", ErrPolicyViolation, c), ReasonRiskClassDisabled)
}

// Disabled returns the disabled classes in ascending order of risk.
func (p *Policy) Disabled() []RiskClass {
	if p == nil {
		return nil
	}
	out := make([]RiskClass, 0, len(p.disabled))
	for c := range p.disabled {
		out = append(out, c)
	}
	slices.Sort(out)
	return out
}
