package model

import (
	"fmt"
	"strings"
)

// Role identifies the market role played by the local participant.
type Role int

const (
	RoleDSO Role = iota
	RoleAGR
	RoleBRP
	RoleMDC
	RoleCRO
)

// String returns the short market name of the role.
func (r Role) String() string {
	switch r {
	case RoleDSO:
		return "DSO"
	case RoleAGR:
		return "AGR"
	case RoleBRP:
		return "BRP"
	case RoleMDC:
		return "MDC"
	case RoleCRO:
		return "CRO"
	default:
		return "unknown"
	}
}

// ParseRole maps a configuration value to a Role.
func ParseRole(s string) (Role, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DSO":
		return RoleDSO, nil
	case "AGR":
		return RoleAGR, nil
	case "BRP":
		return RoleBRP, nil
	case "MDC":
		return RoleMDC, nil
	case "CRO":
		return RoleCRO, nil
	}
	return 0, fmt.Errorf("%w: unknown host role %q", ErrConfiguration, s)
}

// Bids reports whether the role takes part in flexibility bidding. Only the
// meter data company never bids.
func (r Role) Bids() bool {
	return r != RoleMDC
}
