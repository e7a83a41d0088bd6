// Package limits enforces operator guard rails on incoming requests before
// any engine call is made. Rules are condition strings from the config file,
// compiled once at startup.
package limits

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/etcbridge/etcbridge/pkg/etc"
	"github.com/etcbridge/etcbridge/server/internal/config"
)

// Request is the view of an incoming operation the rules are checked against.
type Request struct {
	Params    etc.ParamSet
	TargetSNR float64
}

// Violation is returned when a rule fires.
type Violation struct {
	Rule    string  `json:"rule"`
	Message string  `json:"message,omitempty"`
	Value   float64 `json:"value"`
}

func (v *Violation) Error() string {
	if v.Message != "" {
		return fmt.Sprintf("limits: rule %q: %s", v.Rule, v.Message)
	}
	return fmt.Sprintf("limits: rule %q rejected the request (value %g)", v.Rule, v.Value)
}

// rule is one compiled guard rail.
type rule struct {
	name      string
	message   string
	field     string
	op        string
	threshold float64
}

// Checker holds the compiled rule set.
type Checker struct {
	rules []rule
}

// Compile parses the configured rules.
//
// Supported expressions (field operator value):
//
//	mag_ab > 35
//	aperture_arcsec > 5
//	groups > 100
//	exposures > 10000
//	target_snr > 1000
func Compile(rules []config.Rule) (*Checker, error) {
	c := &Checker{}
	for _, r := range rules {
		parts := strings.Fields(r.Condition)
		if len(parts) != 3 {
			return nil, fmt.Errorf("limits: rule %q: condition must be \"field op value\"", r.Name)
		}
		field, op, rhs := parts[0], parts[1], parts[2]

		switch field {
		case "mag_ab", "aperture_arcsec", "groups", "exposures", "target_snr":
		default:
			return nil, fmt.Errorf("limits: rule %q: unknown field %q", r.Name, field)
		}
		switch op {
		case ">", ">=", "<", "<=", "==":
		default:
			return nil, fmt.Errorf("limits: rule %q: unknown operator %q", r.Name, op)
		}
		threshold, err := strconv.ParseFloat(rhs, 64)
		if err != nil {
			return nil, fmt.Errorf("limits: rule %q: threshold %q: %w", r.Name, rhs, err)
		}

		c.rules = append(c.rules, rule{
			name:      r.Name,
			message:   r.Message,
			field:     field,
			op:        op,
			threshold: threshold,
		})
	}
	return c, nil
}

// Check evaluates every rule against req. The first rule that fires is
// returned as a *Violation error; nil means the request may proceed.
func (c *Checker) Check(req Request) error {
	for _, r := range c.rules {
		v := numericField(r.field, req)
		if compareFloat(v, r.op, r.threshold) {
			return &Violation{Rule: r.name, Message: r.message, Value: v}
		}
	}
	return nil
}

// numericField maps a field name to its value in the request.
func numericField(field string, req Request) float64 {
	switch field {
	case "mag_ab":
		return req.Params.MagAB
	case "aperture_arcsec":
		return req.Params.ApertureArcsec
	case "groups":
		return float64(req.Params.Groups)
	case "exposures":
		return float64(req.Params.Exposures)
	case "target_snr":
		return req.TargetSNR
	default:
		return 0
	}
}

// compareFloat applies a comparison operator to two float64 values.
func compareFloat(v float64, op string, threshold float64) bool {
	switch op {
	case ">":
		return v > threshold
	case ">=":
		return v >= threshold
	case "<":
		return v < threshold
	case "<=":
		return v <= threshold
	case "==":
		return v == threshold
	default:
		return false
	}
}
