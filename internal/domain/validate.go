package domain

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Bounds applied during validation.
const (
	minCustomerAge = 18
	maxCustomerAge = 120
	minVehicleYear = 1900
	minNameLen     = 2
	maxNameLen     = 100
	minTextLen     = 2
	maxTextLen     = 50
	minPlateLen    = 2
	maxPlateLen    = 20
)

// NewCustomer validates and normalizes customer fields. The name is
// title-cased and the birth date must be a real YYYY-MM-DD date implying an
// age between 18 and 120 as of now. Violations are returned as user-facing
// messages; the Customer is only meaningful when the slice is empty.
func NewCustomer(name, birthDate string, now time.Time) (Customer, []string) {
	var errs []string

	name = TitleCase(name)
	if n := len([]rune(name)); n < minNameLen || n > maxNameLen {
		errs = append(errs, fmt.Sprintf("Customer name: must be between %d and %d characters", minNameLen, maxNameLen))
	}

	birthDate = strings.TrimSpace(birthDate)
	born, err := time.Parse("2006-01-02", birthDate)
	if err != nil {
		errs = append(errs, "Customer birth_date: must be a valid date in YYYY-MM-DD format")
	} else {
		age := ageAt(born, now)
		switch {
		case age < minCustomerAge:
			errs = append(errs, fmt.Sprintf("Customer birth_date: customer must be at least %d years old", minCustomerAge))
		case age > maxCustomerAge:
			errs = append(errs, "Customer birth_date: invalid birth date")
		}
	}

	if len(errs) > 0 {
		return Customer{}, errs
	}
	return Customer{Name: name, BirthDate: birthDate}, nil
}

// NewVehicle validates and normalizes vehicle fields. Car type and
// manufacturer are title-cased, the plate is normalized to its comparison
// form, and the year must fall in [1900, current year + 1].
func NewVehicle(carType, manufacturer, yearRaw, plate string, now time.Time) (Vehicle, []string) {
	var errs []string

	carType = TitleCase(carType)
	if n := len([]rune(carType)); n < minTextLen || n > maxTextLen {
		errs = append(errs, fmt.Sprintf("Car car_type: must be between %d and %d characters", minTextLen, maxTextLen))
	}

	manufacturer = TitleCase(manufacturer)
	if n := len([]rune(manufacturer)); n < minTextLen || n > maxTextLen {
		errs = append(errs, fmt.Sprintf("Car manufacturer: must be between %d and %d characters", minTextLen, maxTextLen))
	}

	year, err := strconv.Atoi(strings.TrimSpace(yearRaw))
	if err != nil {
		errs = append(errs, "Car year: must be a number")
	} else if year < minVehicleYear || year > now.Year()+1 {
		errs = append(errs, fmt.Sprintf("Car year: must be between %d and %d", minVehicleYear, now.Year()+1))
	}

	plate = NormalizePlate(plate)
	if n := len(plate); n < minPlateLen || n > maxPlateLen {
		errs = append(errs, "Car license_plate: invalid license plate")
	}

	if len(errs) > 0 {
		return Vehicle{}, errs
	}
	return Vehicle{CarType: carType, Manufacturer: manufacturer, Year: year, LicensePlate: plate}, nil
}

// Validate builds typed values from the accumulated field map. It only
// attempts each aggregate when its fields are all present, mirroring the
// collection flow: partial data is not an error, it is just incomplete.
// Errors are collected, never raised.
func Validate(m FieldMap, now time.Time) (customer *Customer, vehicle *Vehicle, errs []string) {
	if m[FieldCustomerName] != "" && m[FieldBirthDate] != "" {
		c, cerrs := NewCustomer(m[FieldCustomerName], m[FieldBirthDate], now)
		if len(cerrs) > 0 {
			errs = append(errs, cerrs...)
		} else {
			customer = &c
		}
	}

	if m[FieldCarType] != "" && m[FieldManufacturer] != "" && m[FieldYear] != "" && m[FieldLicensePlate] != "" {
		v, verrs := NewVehicle(m[FieldCarType], m[FieldManufacturer], m[FieldYear], m[FieldLicensePlate], now)
		if len(verrs) > 0 {
			errs = append(errs, verrs...)
		} else {
			vehicle = &v
		}
	}

	return customer, vehicle, errs
}

// ageAt computes full years between born and now.
func ageAt(born, now time.Time) int {
	age := now.Year() - born.Year()
	if now.Month() < born.Month() || (now.Month() == born.Month() && now.Day() < born.Day()) {
		age--
	}
	return age
}
