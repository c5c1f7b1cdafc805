package game

import "fmt"

// Role is the fixed part a slot plays for a whole session.
type Role int

const (
	RoleFirm Role = iota + 1
	RoleCustomer
)

func (r Role) String() string {
	switch r {
	case RoleFirm:
		return "firm"
	case RoleCustomer:
		return "customer"
	default:
		return "unknown"
	}
}

// ParseRole accepts "firm" and "customer".
func ParseRole(s string) (Role, error) {
	switch s {
	case "firm":
		return RoleFirm, nil
	case "customer":
		return RoleCustomer, nil
	default:
		return 0, fmt.Errorf("unknown role %q", s)
	}
}

func (r Role) MarshalText() ([]byte, error) {
	if r != RoleFirm && r != RoleCustomer {
		return nil, fmt.Errorf("invalid role %d", int(r))
	}
	return []byte(r.String()), nil
}

func (r *Role) UnmarshalText(text []byte) error {
	parsed, err := ParseRole(string(text))
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

// Status is the alternating part a firm plays within a turn.
type Status int

const (
	StatusActive Status = iota + 1
	StatusPassive
)

func (s Status) String() string {
	switch s {
	case StatusActive:
		return "active"
	case StatusPassive:
		return "passive"
	default:
		return "unknown"
	}
}

// Swap returns the status the firm takes next turn.
func (s Status) Swap() Status {
	if s == StatusActive {
		return StatusPassive
	}
	return StatusActive
}

// ParseStatus accepts "active" and "passive".
func ParseStatus(s string) (Status, error) {
	switch s {
	case "active":
		return StatusActive, nil
	case "passive":
		return StatusPassive, nil
	default:
		return 0, fmt.Errorf("unknown firm status %q", s)
	}
}

func (s Status) MarshalText() ([]byte, error) {
	if s != StatusActive && s != StatusPassive {
		return nil, fmt.Errorf("invalid firm status %d", int(s))
	}
	return []byte(s.String()), nil
}

func (s *Status) UnmarshalText(text []byte) error {
	parsed, err := ParseStatus(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}
