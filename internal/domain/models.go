// Package domain defines the core data model for insurance intake:
// validated customer and vehicle values, the field map accumulated over a
// conversation, and the persisted registration document. Registration is
// mapped with GORM and forms the data layer of the intake service.
package domain

import (
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"gorm.io/gorm"
)

// Conversation roles used in turn history.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Field names used as keys in FieldMap and in extraction output.
const (
	FieldCarType      = "car_type"
	FieldManufacturer = "manufacturer"
	FieldYear         = "year"
	FieldLicensePlate = "license_plate"
	FieldCustomerName = "customer_name"
	FieldBirthDate    = "birth_date"
)

// RequiredFields is the ordered set of fields a registration needs before it
// can be completed. The order also decides which field the agent asks about
// next when several are missing.
var RequiredFields = []string{
	FieldCarType,
	FieldManufacturer,
	FieldYear,
	FieldLicensePlate,
	FieldCustomerName,
	FieldBirthDate,
}

// Turn is a single utterance in the conversation history supplied by the
// caller on every request. History is append-only and ordered; the service
// keeps no session state of its own.
type Turn struct {
	Role    string `json:"role"    binding:"required"`
	Content string `json:"content"`
}

// FieldMap accumulates raw extracted values across turns, keyed by field
// name. Values are strings as extracted; typed validation happens in
// NewCustomer / NewVehicle.
type FieldMap map[string]string

// Clone returns an independent copy of the map.
func (m FieldMap) Clone() FieldMap {
	out := make(FieldMap, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Missing returns the required fields that are absent or empty, in the fixed
// RequiredFields order. The result is stable: the same map always yields the
// same ordered list.
func (m FieldMap) Missing() []string {
	out := make([]string, 0, len(RequiredFields))
	for _, f := range RequiredFields {
		if v, ok := m[f]; !ok || strings.TrimSpace(v) == "" {
			out = append(out, f)
		}
	}
	return out
}

// Complete reports whether every required field is present and non-empty.
func (m FieldMap) Complete() bool {
	return len(m.Missing()) == 0
}

// Customer is a validated customer. Construct via NewCustomer; the zero
// value is not meaningful.
type Customer struct {
	Name      string `json:"name"       gorm:"type:varchar(100);not null"`
	BirthDate string `json:"birth_date" gorm:"type:varchar(10);not null"`
}

// Vehicle is a validated car registration. Construct via NewVehicle.
type Vehicle struct {
	CarType      string `json:"car_type"      gorm:"type:varchar(50);not null"`
	Manufacturer string `json:"manufacturer"  gorm:"type:varchar(50);not null"`
	Year         int    `json:"year"          gorm:"not null"`
	LicensePlate string `json:"license_plate" gorm:"type:varchar(20);not null;index:idx_reg_plate"`
}

// Description renders the vehicle as "2019 Ford Sedan" for candidate
// summaries and user-facing confirmations.
func (v Vehicle) Description() string {
	return strings.TrimSpace(strings.Join([]string{strconv.Itoa(v.Year), v.Manufacturer, v.CarType}, " "))
}

// Registration is the persisted registration document.
//
// Fields:
//   - ID: stable UUID primary key (char(36)).
//   - Customer / Vehicle: embedded validated values.
//   - IsDuplicate: whether duplicates existed at save time.
//   - DuplicateMatchIDs: IDs of the closest matches (at most three), stored
//     as a comma-separated string.
//   - CreatedAt / UpdatedAt: timestamps managed by GORM.
//   - DeletedAt: soft deletion marker (retains row for audit/history).
type Registration struct {
	ID                string         `json:"id" gorm:"type:char(36);primaryKey"`
	Customer          Customer       `json:"customer" gorm:"embedded;embeddedPrefix:customer_"`
	Vehicle           Vehicle        `json:"vehicle"  gorm:"embedded;embeddedPrefix:vehicle_"`
	IsDuplicate       bool           `json:"is_duplicate"`
	DuplicateMatchIDs MatchIDs       `json:"duplicate_match_ids" gorm:"type:text"`
	CreatedAt         time.Time      `json:"created_at"`
	UpdatedAt         time.Time      `json:"updated_at"`
	DeletedAt         gorm.DeletedAt `json:"-" gorm:"index"`
}

// TableName returns the database table name for Registration.
func (Registration) TableName() string { return "registrations" }

// titleCaser lower-cases then title-cases per English rules; shared by the
// normalizers below.
var titleCaser = cases.Title(language.English)

// NormalizePlate upper-cases a license plate and strips spaces and hyphens.
// The normalized form is the comparison key for duplicate detection.
func NormalizePlate(s string) string {
	s = strings.ToUpper(strings.TrimSpace(s))
	s = strings.ReplaceAll(s, " ", "")
	return strings.ReplaceAll(s, "-", "")
}

// TitleCase trims and title-cases a free-text field ("ford" → "Ford",
// "jane doe" → "Jane Doe").
func TitleCase(s string) string {
	return titleCaser.String(strings.ToLower(strings.TrimSpace(s)))
}
