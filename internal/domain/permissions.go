package domain

import (
	"strconv"
	"strings"
)

// Permission is a capability bitmask. The core only ever ANDs and compares it.
type Permission uint64

const (
	PermManagePurchaseOrders Permission = 1 << iota
	PermManageRFQs
	PermRecordOffers
	PermEvaluateOffers
	PermSelectOffers
	PermReceiveGoods
	PermManageProposals
	PermApproveProposals
	PermReconcile
	PermApproveMatches
	PermOverrideDiscrepancy
	PermAdmin
)

var permissionNames = map[Permission]string{
	PermManagePurchaseOrders: "MANAGE_PURCHASE_ORDERS",
	PermManageRFQs:           "MANAGE_RFQS",
	PermRecordOffers:         "RECORD_OFFERS",
	PermEvaluateOffers:       "EVALUATE_OFFERS",
	PermSelectOffers:         "SELECT_OFFERS",
	PermReceiveGoods:         "RECEIVE_GOODS",
	PermManageProposals:      "MANAGE_PROPOSALS",
	PermApproveProposals:     "APPROVE_PROPOSALS",
	PermReconcile:            "RECONCILE",
	PermApproveMatches:       "APPROVE_MATCHES",
	PermOverrideDiscrepancy:  "OVERRIDE_DISCREPANCY",
	PermAdmin:                "ADMIN",
}

// Has reports whether every bit of required is set.
func (p Permission) Has(required Permission) bool {
	return p&required == required
}

func (p Permission) String() string {
	if name, ok := permissionNames[p]; ok {
		return name
	}
	var parts []string
	for bit := Permission(1); bit != 0 && bit <= p; bit <<= 1 {
		if p&bit == 0 {
			continue
		}
		if name, ok := permissionNames[bit]; ok {
			parts = append(parts, name)
		} else {
			parts = append(parts, "0x"+strconv.FormatUint(uint64(bit), 16))
		}
	}
	if len(parts) == 0 {
		return "NONE"
	}
	return strings.Join(parts, "|")
}

// Actor identifies the user performing an operation.
type Actor struct {
	ID          string
	Name        string
	Permissions Permission
}

// ParsePermissions reads a bitmask given either as a decimal number or as
// permission names separated by "|" or ",".
func ParsePermissions(s string) (Permission, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	if n, err := strconv.ParseUint(s, 10, 64); err == nil {
		return Permission(n), nil
	}

	var p Permission
	for _, part := range strings.FieldsFunc(s, func(r rune) bool { return r == '|' || r == ',' }) {
		name := strings.ToUpper(strings.TrimSpace(part))
		bit, ok := permissionsByName[name]
		if !ok {
			return 0, Invalid("permissions", "unknown permission %q", name)
		}
		p |= bit
	}
	return p, nil
}

var permissionsByName = func() map[string]Permission {
	m := make(map[string]Permission, len(permissionNames))
	for bit, name := range permissionNames {
		m[name] = bit
	}
	return m
}()
