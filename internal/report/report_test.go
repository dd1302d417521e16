package report

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/xuri/excelize/v2"

	"freightplan/internal/opt"
)

func sample() (opt.Problem, opt.Result) {
	p := opt.Problem{
		Supply:  []opt.SupplyPoint{{Name: "Depot", Location: opt.Location{Lat: 30, Lng: 31}, Available: 100}, {Location: opt.Location{Lat: 31, Lng: 30}, Available: 50}},
		Demand:  []opt.DemandPoint{{Location: opt.Location{Lat: 30.5, Lng: 31.5}, Required: 80}},
		Drivers: []opt.Driver{{MaxHours: 8, MaxLoad: 200}},
		Cost:    [][]float64{{2}, {3}},
	}
	obj := 160.0
	res := opt.Result{
		Status:      opt.StatusOptimal,
		Allocations: []opt.Allocation{{Driver: 0, Supply: 0, Demand: 0, Quantity: 80, Cost: 160}},
		Objective:   &obj,
		Constraints: []opt.ConstraintReport{{Name: "supply[0]", Family: opt.FamilySupply, Sense: "<=", RHS: 100, Activity: 80, Slack: 20}},
		DualNote:    "fixed LP duals",
	}
	return p, res
}

func TestText(t *testing.T) {
	p, res := sample()
	var buf bytes.Buffer
	if err := Text(&buf, p, res); err != nil {
		t.Fatalf("text: %v", err)
	}
	out := buf.String()
	for _, want := range []string{
		"Status: Optimal\n",
		"Driver 1 delivers 80 units from Depot to Client 1\n",
		"Total Cost: 160\n",
		"supply[0]: Dual = 0, Slack = 20\n",
		"Note: fixed LP duals\n",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("missing %q in:\n%s", want, out)
		}
	}

	inf := opt.Result{Status: opt.StatusInfeasible, Diagnostics: []opt.Diagnostic{{Kind: opt.DiagSupplyShortfall, Message: "short"}}}
	buf.Reset()
	_ = Text(&buf, p, inf)
	if strings.Contains(buf.String(), "Total Cost") || !strings.Contains(buf.String(), "[supply_shortfall] short") {
		t.Fatalf("infeasible report:\n%s", buf.String())
	}
}

func TestGeoJSON(t *testing.T) {
	p, res := sample()
	fc := GeoJSON(p, res, nil)
	if len(fc.Features) != 4 {
		t.Fatalf("features %d, want 4", len(fc.Features))
	}
	line := fc.Features[3]
	coords := line.Geometry.Coordinates.([][2]float64)
	if line.Geometry.Type != "LineString" || coords[0] != [2]float64{31, 30} || coords[1] != [2]float64{31.5, 30.5} {
		t.Fatalf("straight line %+v", line.Geometry)
	}
	if line.Properties["stroke"] != DriverColor(0) || fc.Features[0].Properties["marker-color"] != SupplyColor {
		t.Fatalf("colours %+v", line.Properties)
	}

	routed := GeoJSON(p, res, func(i, j int) [][2]float64 { return [][2]float64{{31, 30}, {31.2, 30.2}, {31.5, 30.5}} })
	if n := len(routed.Features[3].Geometry.Coordinates.([][2]float64)); n != 3 {
		t.Fatalf("routed line has %d points", n)
	}
	if _, err := json.Marshal(fc); err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if DriverColor(3) != DriverColor(3) || DriverColor(0) == DriverColor(1) {
		t.Fatalf("driver colours must be stable and distinct")
	}
}

func TestXLSX(t *testing.T) {
	p, res := sample()
	var buf bytes.Buffer
	if err := XLSX(&buf, p, res); err != nil {
		t.Fatalf("xlsx: %v", err)
	}
	f, err := excelize.OpenReader(&buf)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()
	rows, err := f.GetRows(SheetAllocations)
	if err != nil {
		t.Fatalf("rows: %v", err)
	}
	if rows[0][0] != "Driver" || rows[1][1] != "Depot" || rows[1][3] != "80" {
		t.Fatalf("allocation rows %v", rows)
	}
	cons, _ := f.GetRows(SheetConstraints)
	if len(cons) < 2 || cons[1][0] != "supply[0]" {
		t.Fatalf("constraint rows %v", cons)
	}
}
