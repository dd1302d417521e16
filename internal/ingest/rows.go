package ingest

import (
	"errors"
	"fmt"
	"io"
	"reflect"
	"strconv"

	"github.com/go-playground/validator/v10"

	"freightplan/internal/opt"
)

// Column names as they appear in uploads.
const (
	ColLocation  = "Location"
	ColLongitude = "Longitude"
	ColLatitude  = "Latitude"
	ColSupply    = "Supply"
	ColDemand    = "Demand"
	ColHours     = "Working Hours"
	ColMaxLoad   = "Max Load (units)"
	ColName      = "Name"
)

type SupplyRow struct {
	Location  string  `col:"Location"`
	Longitude float64 `col:"Longitude" validate:"gte=-180,lte=180"`
	Latitude  float64 `col:"Latitude" validate:"gte=-90,lte=90"`
	Supply    float64 `col:"Supply" validate:"gte=0"`
}

type DemandRow struct {
	Location  string  `col:"Location"`
	Longitude float64 `col:"Longitude" validate:"gte=-180,lte=180"`
	Latitude  float64 `col:"Latitude" validate:"gte=-90,lte=90"`
	Demand    float64 `col:"Demand" validate:"gte=0"`
}

type DriverRow struct {
	Name         string  `col:"Name"`
	WorkingHours float64 `col:"Working Hours" validate:"gte=0"`
	MaxLoad      float64 `col:"Max Load (units)" validate:"gte=0"`
}

var validate = func() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string { return f.Tag.Get("col") })
	return v
}()

// check runs struct validation and reports the first failing column.
func check(rowNum int, v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return &RowError{Row: rowNum, Column: fe.Field(), Err: fmt.Errorf("value %v fails %s=%s", fe.Value(), fe.Tag(), fe.Param())}
	}
	return &RowError{Row: rowNum, Err: err}
}

func number(h header, row []string, rowNum int, col string) (float64, error) {
	s := h.cell(row, col)
	if s == "" {
		return 0, &RowError{Row: rowNum, Column: col, Err: errors.New("empty value")}
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, &RowError{Row: rowNum, Column: col, Err: fmt.Errorf("not a number: %q", s)}
	}
	return f, nil
}

// parseRows reads the header, checks required columns and calls fn for each
// data row with its 1-based row number.
func parseRows(r io.Reader, f Format, required []string, fn func(h header, row []string, rowNum int) error) error {
	rows, err := readTable(r, f)
	if err != nil {
		return err
	}
	h := newHeader(rows[0])
	if err := h.require(required...); err != nil {
		return err
	}
	for n, row := range rows[1:] {
		if err := fn(h, row, n+2); err != nil {
			return err
		}
	}
	return nil
}

func ReadSupply(r io.Reader, f Format) ([]SupplyRow, error) {
	var out []SupplyRow
	err := parseRows(r, f, []string{ColLongitude, ColLatitude, ColSupply}, func(h header, row []string, n int) error {
		var s SupplyRow
		var err error
		s.Location = h.cell(row, ColLocation)
		if s.Longitude, err = number(h, row, n, ColLongitude); err != nil {
			return err
		}
		if s.Latitude, err = number(h, row, n, ColLatitude); err != nil {
			return err
		}
		if s.Supply, err = number(h, row, n, ColSupply); err != nil {
			return err
		}
		if err := check(n, s); err != nil {
			return err
		}
		out = append(out, s)
		return nil
	})
	return out, err
}

func ReadDemand(r io.Reader, f Format) ([]DemandRow, error) {
	var out []DemandRow
	err := parseRows(r, f, []string{ColLongitude, ColLatitude, ColDemand}, func(h header, row []string, n int) error {
		var d DemandRow
		var err error
		d.Location = h.cell(row, ColLocation)
		if d.Longitude, err = number(h, row, n, ColLongitude); err != nil {
			return err
		}
		if d.Latitude, err = number(h, row, n, ColLatitude); err != nil {
			return err
		}
		if d.Demand, err = number(h, row, n, ColDemand); err != nil {
			return err
		}
		if err := check(n, d); err != nil {
			return err
		}
		out = append(out, d)
		return nil
	})
	return out, err
}

func ReadDrivers(r io.Reader, f Format) ([]DriverRow, error) {
	var out []DriverRow
	err := parseRows(r, f, []string{ColHours, ColMaxLoad}, func(h header, row []string, n int) error {
		var d DriverRow
		var err error
		d.Name = h.cell(row, ColName)
		if d.WorkingHours, err = number(h, row, n, ColHours); err != nil {
			return err
		}
		if d.MaxLoad, err = number(h, row, n, ColMaxLoad); err != nil {
			return err
		}
		if err := check(n, d); err != nil {
			return err
		}
		out = append(out, d)
		return nil
	})
	return out, err
}

func (s SupplyRow) Point() opt.SupplyPoint {
	return opt.SupplyPoint{Name: s.Location, Location: opt.Location{Lat: s.Latitude, Lng: s.Longitude}, Available: s.Supply}
}

func (d DemandRow) Point() opt.DemandPoint {
	return opt.DemandPoint{Name: d.Location, Location: opt.Location{Lat: d.Latitude, Lng: d.Longitude}, Required: d.Demand}
}

func (d DriverRow) Driver() opt.Driver {
	return opt.Driver{Name: d.Name, MaxHours: d.WorkingHours, MaxLoad: d.MaxLoad}
}
