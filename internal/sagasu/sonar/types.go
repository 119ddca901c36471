package sonar

import (
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

// Asset is the read-only projection of an inventory asset record.  Only the
// fields Sagasu actually renders are extracted; the remote record is never
// mutated or written back.
type Asset struct {
	ID              int64
	Name            string
	AIN             string
	SerialNumber    string
	PurchaseDate    time.Time
	AssignedTo      string
	AssignedToEmail string
	LocationName    string
	Manufacturer    string
	GroupName       string
}

// License is the read-only projection of a software license record.
type License struct {
	ID         int64
	Name       string
	ExpiryDate time.Time
	Vendor     string
	LicenseKey string
}

// Member is a person in the tenant's member directory.
type Member struct {
	ID        int64
	FirstName string
	LastName  string
	FullName  string
	Email     string
	Status    string
}

// DisplayName returns the member's display name, synthesising one from the
// first and last name when the directory record carries no full_name field.
func (m Member) DisplayName() string {
	if m.FullName != "" {
		return m.FullName
	}
	return strings.TrimSpace(m.FirstName + " " + m.LastName)
}

// AssetFromJSON builds an Asset from a raw record.  Tenants differ in which
// key each field lives under, so every field is read through a fallback chain.
func AssetFromJSON(rec gjson.Result) Asset {
	return Asset{
		ID:              firstInt(rec, "id", "sequence_num"),
		Name:            firstString(rec, "name", "asset_name"),
		AIN:             firstString(rec, "identifier", "asset_number", "ain", "tag"),
		SerialNumber:    firstString(rec, "serial_number", "serial", "sn"),
		PurchaseDate:    ParseDate(firstString(rec, "purchase_date", "purchased_on", "acquired_on")),
		AssignedTo:      firstString(rec, "assigned_to_user_name", "assigned_to_name", "assigned_to.name", "assigned_to.full_name"),
		AssignedToEmail: firstString(rec, "assigned_to_user_email", "assigned_to.email"),
		LocationName:    firstString(rec, "location_name", "location.name"),
		Manufacturer:    firstString(rec, "manufacturer", "brand", "make"),
		GroupName:       firstString(rec, "group_name", "group.name", "category.name", "category"),
	}
}

// LicenseFromJSON builds a License from a raw record.
func LicenseFromJSON(rec gjson.Result) License {
	return License{
		ID:         firstInt(rec, "id"),
		Name:       firstString(rec, "name", "title", "product_name"),
		ExpiryDate: ParseDate(firstString(rec, "expiry_date", "expires_on", "end_date")),
		Vendor:     firstString(rec, "vendor", "manufacturer"),
		LicenseKey: firstString(rec, "license_key", "key"),
	}
}

// MemberFromJSON builds a Member from a raw record.
func MemberFromJSON(rec gjson.Result) Member {
	m := Member{
		ID:        firstInt(rec, "id"),
		FirstName: firstString(rec, "first_name"),
		LastName:  firstString(rec, "last_name"),
		FullName:  firstString(rec, "full_name", "name"),
		Email:     firstString(rec, "email"),
		Status:    firstString(rec, "status", "state"),
	}
	return m
}

// dateLayouts are tried in order by ParseDate.  The remote API has been
// observed returning all of these across endpoints and tenants.
var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"2006/01/02",
	"01/02/2006",
	"Jan 02, 2006",
	"02 Jan 2006",
	"January 2, 2006",
}

// ParseDate leniently parses a date field.  Any value that fails every known
// layout yields the zero time, meaning "unknown date".  Callers must exclude
// zero dates from cutoff comparisons: a record with an unknown date cannot be
// proven to qualify.
func ParseDate(value string) time.Time {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t
		}
	}
	return time.Time{}
}

// firstString returns the first non-empty string found under the given gjson
// paths (nested paths like "location.name" are supported).
func firstString(rec gjson.Result, paths ...string) string {
	for _, p := range paths {
		if v := rec.Get(p); v.Exists() {
			if s := strings.TrimSpace(v.String()); s != "" {
				return s
			}
		}
	}
	return ""
}

// firstInt returns the first integer found under the given gjson paths.
func firstInt(rec gjson.Result, paths ...string) int64 {
	for _, p := range paths {
		if v := rec.Get(p); v.Exists() {
			if n := v.Int(); n != 0 {
				return n
			}
		}
	}
	return 0
}
