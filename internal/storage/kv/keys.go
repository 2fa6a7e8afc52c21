package kv

import (
	"strings"

	"github.com/yndnr/geoattend-go/internal/core/domain"
)

// Key prefixes.
const (
	PrefixSession   = "sess/"
	PrefixDateIndex = "sidx/"
	PrefixFix       = "fix/"
	PrefixResult    = "res/"
	PrefixAPIKey    = "key/"
)

// SessionKey returns the storage key of a session.
func SessionKey(k domain.SessionKey) string {
	return PrefixSession + k.String()
}

// DateIndexKey returns the index key recording that a session exists.
func DateIndexKey(k domain.SessionKey) string {
	return PrefixDateIndex + k.String()
}

// DateIndexPrefix returns the index prefix of one employee.
func DateIndexPrefix(tenantID, employeeID string) string {
	return PrefixDateIndex + domain.EmployeeKey(tenantID, employeeID) + "/"
}

// DateFromIndexKey extracts the date from a DateIndexKey.
func DateFromIndexKey(key string) string {
	if i := strings.LastIndexByte(key, '/'); i >= 0 {
		return key[i+1:]
	}
	return ""
}

// FixKey returns the key of an employee's last accepted fix.
func FixKey(tenantID, employeeID string) string {
	return PrefixFix + domain.EmployeeKey(tenantID, employeeID)
}

// ResultKey returns the idempotency key of a client event.
func ResultKey(tenantID, employeeID, clientEventID string) string {
	return PrefixResult + domain.EmployeeKey(tenantID, employeeID) + "/" + clientEventID
}

// APIKeyKey returns the key of an API key record.
func APIKeyKey(keyID string) string {
	return PrefixAPIKey + keyID
}

// InRange reports whether date lies in [from, to]. Empty bounds are open.
func InRange(date, from, to string) bool {
	if from != "" && date < from {
		return false
	}
	if to != "" && date > to {
		return false
	}
	return true
}
