package content

import (
	"fmt"
	"strings"
)

// AccountKind distinguishes content providers from buyers (licensees).
type AccountKind string

const (
	AccountProvider AccountKind = "P"
	AccountBuyer    AccountKind = "B"
)

// ParseAccountKind accepts the single-letter code or the spelled-out name.
func ParseAccountKind(value string) (AccountKind, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "p", "provider":
		return AccountProvider, nil
	case "b", "buyer":
		return AccountBuyer, nil
	default:
		return "", fmt.Errorf("unknown account kind %q", value)
	}
}

// Account is a tenant: either a provider owning publications or a buyer
// receiving transmissions.
type Account struct {
	ID     int64
	Slug   string
	Title  string
	Kind   AccountKind
	Email  string
	Active bool
}

// Copyright returns the default copyright line for content owned by the account.
func (a Account) Copyright(year int, company string) string {
	return fmt.Sprintf("Copyright %d %s, distributed by %s", year, a.Title, company)
}

// Publication is a provider-owned content channel (a print edition, a website).
type Publication struct {
	ID           int64
	AccountID    int64
	Slug         string
	Title        string
	Copyright    string
	AutoSchedule bool
	Active       bool
	TimeZone     string
	Disclaimer   string
}
