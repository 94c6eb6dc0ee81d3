package service

import "strings"

const consigneeSeparator = "||"

// ParseConsignee splits "name||addr1||addr2" into a name and a space-joined address.
func ParseConsignee(field string) (name, address string) {
	parts := strings.Split(field, consigneeSeparator)
	name = strings.TrimSpace(parts[0])
	if len(parts) > 1 {
		address = strings.TrimSpace(strings.Join(parts[1:], " "))
	}
	return name, address
}

// Autofill remembers the last default written to each form field so that
// later defaults only replace empty fields or untouched defaults.
type Autofill struct {
	defaults map[string]string
}

func NewAutofill() *Autofill {
	return &Autofill{defaults: map[string]string{}}
}

// Apply writes value into *current unless the operator has edited the field.
// It reports whether the field was written.
func (a *Autofill) Apply(field string, current *string, value string) bool {
	prev, defaulted := a.defaults[field]
	untouched := *current == "" || (defaulted && *current == prev)
	if !untouched || *current == value {
		if untouched {
			a.defaults[field] = value
		}
		return false
	}
	*current = value
	a.defaults[field] = value
	return true
}

// IsDefault reports whether the field still holds the value Apply wrote.
func (a *Autofill) IsDefault(field, current string) bool {
	prev, ok := a.defaults[field]
	return ok && prev == current
}
