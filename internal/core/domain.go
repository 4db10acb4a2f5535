package core

import (
	"errors"
	"time"
)

type (
	// Date is a calendar date with day precision. The time component is
	// always midnight UTC; two bills can never share the same Date.
	Date struct {
		time.Time
	}

	// Bill is one recorded utility bill for a single calendar date.
	Bill struct {
		ID                         int64     `json:"id"`
		Date                       Date      `json:"date"`
		GasCost                    Money     `json:"gas_cost"`
		ElectricityDeliveryCost    Money     `json:"electricity_delivery_cost"`
		ElectricityGenerationCost  Money     `json:"electricity_generation_cost"`
		OtherCost                  Money     `json:"other_cost"`
		GasTherms                  float64   `json:"gas_therms"`
		ElectricityOnPeakKWh       float64   `json:"electricity_on_peak_kwh"`
		ElectricityOffPeakKWh      float64   `json:"electricity_off_peak_kwh"`
		ElectricitySuperOffPeakKWh float64   `json:"electricity_super_off_peak_kwh"`
		CreatedAt                  time.Time `json:"created_at"`
		UpdatedAt                  time.Time `json:"updated_at"`
	}

	// BillInput carries raw field values exactly as they arrived from a
	// client, one string per optional field. Both the JSON API and the
	// HTML form adapter build a BillInput and call Normalize, so the
	// blank-means-zero rule lives in exactly one place.
	BillInput struct {
		Date                       string
		GasCost                    string
		ElectricityDeliveryCost    string
		ElectricityGenerationCost  string
		OtherCost                  string
		GasTherms                  string
		ElectricityOnPeakKWh       string
		ElectricityOffPeakKWh      string
		ElectricitySuperOffPeakKWh string
	}
)

var (
	ErrMissingDate     = errors.New("date is required")
	ErrInvalidDate     = errors.New("invalid date, expected YYYY-MM-DD")
	ErrInvalidAmount   = errors.New("invalid amount")
	ErrInvalidQuantity = errors.New("invalid quantity")
)

const dateLayout = "2006-01-02"

// ParseDate parses an ISO YYYY-MM-DD string.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return Date{}, ErrInvalidDate
	}
	return Date{Time: t}, nil
}

// NewDate builds a Date from year, month, day.
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

func (d Date) String() string {
	return d.Format(dateLayout)
}

func (d Date) MarshalJSON() ([]byte, error) {
	return []byte(`"` + d.String() + `"`), nil
}

func (d *Date) UnmarshalJSON(data []byte) error {
	s := string(data)
	if len(s) < 2 || s[0] != '"' || s[len(s)-1] != '"' {
		return ErrInvalidDate
	}
	parsed, err := ParseDate(s[1 : len(s)-1])
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// TotalCost sums the four cost fields. Derived on read, never persisted.
func (b Bill) TotalCost() Money {
	return Money{Cents: b.GasCost.Cents +
		b.ElectricityDeliveryCost.Cents +
		b.ElectricityGenerationCost.Cents +
		b.OtherCost.Cents}
}

// TotalKWh sums the three electricity usage fields.
func (b Bill) TotalKWh() float64 {
	return b.ElectricityOnPeakKWh + b.ElectricityOffPeakKWh + b.ElectricitySuperOffPeakKWh
}

// Normalize validates the input and produces a Bill with every optional
// field defaulted. Absent or blank numeric values become zero; a non-empty
// value that does not parse, or a negative value, is an error. The date is
// the only required field.
func (in BillInput) Normalize() (Bill, error) {
	if in.Date == "" {
		return Bill{}, ErrMissingDate
	}
	date, err := ParseDate(in.Date)
	if err != nil {
		return Bill{}, err
	}

	b := Bill{Date: date}

	costs := []struct {
		raw  string
		dst  *Money
		name string
	}{
		{in.GasCost, &b.GasCost, "gas_cost"},
		{in.ElectricityDeliveryCost, &b.ElectricityDeliveryCost, "electricity_delivery_cost"},
		{in.ElectricityGenerationCost, &b.ElectricityGenerationCost, "electricity_generation_cost"},
		{in.OtherCost, &b.OtherCost, "other_cost"},
	}
	for _, c := range costs {
		cents, err := ParseAmountToCents(c.raw)
		if err != nil {
			return Bill{}, &FieldError{Field: c.name, Err: err}
		}
		c.dst.Cents = cents
	}

	quantities := []struct {
		raw  string
		dst  *float64
		name string
	}{
		{in.GasTherms, &b.GasTherms, "gas_therms"},
		{in.ElectricityOnPeakKWh, &b.ElectricityOnPeakKWh, "electricity_on_peak_kwh"},
		{in.ElectricityOffPeakKWh, &b.ElectricityOffPeakKWh, "electricity_off_peak_kwh"},
		{in.ElectricitySuperOffPeakKWh, &b.ElectricitySuperOffPeakKWh, "electricity_super_off_peak_kwh"},
	}
	for _, q := range quantities {
		v, err := ParseQuantity(q.raw)
		if err != nil {
			return Bill{}, &FieldError{Field: q.name, Err: err}
		}
		*q.dst = v
	}

	return b, nil
}

// FieldError reports which input field failed normalization while keeping
// the sentinel in the chain for errors.Is.
type FieldError struct {
	Field string
	Err   error
}

func (e *FieldError) Error() string {
	return e.Field + ": " + e.Err.Error()
}

func (e *FieldError) Unwrap() error {
	return e.Err
}
