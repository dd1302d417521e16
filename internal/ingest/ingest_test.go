package ingest

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/xuri/excelize/v2"
)

func TestDetectFormat(t *testing.T) {
	for name, want := range map[string]Format{"a.CSV": FormatCSV, "b.xlsx": FormatXLSX, "dir/c.csv": FormatCSV} {
		got, err := DetectFormat(name)
		if err != nil || got != want {
			t.Fatalf("%s: %s %v", name, got, err)
		}
	}
	if _, err := DetectFormat("x.pdf"); !errors.Is(err, ErrFormat) {
		t.Fatalf("pdf: %v", err)
	}
}

func TestReadSupplyCSV(t *testing.T) {
	in := " location ,LONGITUDE,Latitude,Supply\nDepot A,31.2,30.0,100\n\nDepot B,29.9,31.2,50\n"
	rows, err := ReadSupply(strings.NewReader(in), FormatCSV)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(rows) != 2 || rows[0].Location != "Depot A" || rows[1].Supply != 50 {
		t.Fatalf("rows %+v", rows)
	}
	p := rows[0].Point()
	if p.Location.Lat != 30.0 || p.Location.Lng != 31.2 || p.Available != 100 {
		t.Fatalf("point %+v", p)
	}
}

func TestReadErrors(t *testing.T) {
	_, err := ReadDemand(strings.NewReader("Location,Longitude,Latitude\nx,1,2\n"), FormatCSV)
	if !errors.Is(err, ErrColumn) || !strings.Contains(err.Error(), "Demand") {
		t.Fatalf("missing column: %v", err)
	}

	_, err = ReadDemand(strings.NewReader("Location,Longitude,Latitude,Demand\nx,1,95,10\n"), FormatCSV)
	var re *RowError
	if !errors.As(err, &re) || re.Row != 2 || re.Column != "Latitude" {
		t.Fatalf("latitude out of range: %v", err)
	}

	_, err = ReadDrivers(strings.NewReader("Working Hours,Max Load (units)\n8,abc\n"), FormatCSV)
	if !errors.As(err, &re) || re.Column != ColMaxLoad {
		t.Fatalf("bad number: %v", err)
	}

	_, err = ReadDrivers(strings.NewReader("Working Hours,Max Load (units)\n-1,10\n"), FormatCSV)
	if !errors.As(err, &re) || re.Column != ColHours {
		t.Fatalf("negative hours: %v", err)
	}
}

func TestReadCostAndTravel(t *testing.T) {
	cost, err := ReadCost(strings.NewReader("from,C1,C2\nS1,1,5\nS2,4,2\n"), FormatCSV)
	if err != nil {
		t.Fatalf("cost: %v", err)
	}
	if len(cost) != 2 || cost[0][1] != 5 || cost[1][0] != 4 {
		t.Fatalf("cost %v", cost)
	}
	plain, err := ReadCost(strings.NewReader("C1,C2\n1,5\n"), FormatCSV)
	if err != nil || len(plain[0]) != 2 {
		t.Fatalf("unlabelled cost %v %v", plain, err)
	}

	tt, err := ReadTravelTimes(strings.NewReader("C1,C2,C3\n1.5,,NA\n"), FormatCSV)
	if err != nil {
		t.Fatalf("travel: %v", err)
	}
	if !tt[0][0].Known || tt[0][0].Hours != 1.5 || tt[0][1].Known || tt[0][2].Known {
		t.Fatalf("travel %v", tt)
	}

	if _, err := ReadCost(strings.NewReader("C1\nabc\n"), FormatCSV); err != nil {
		// a non-numeric first cell is taken as a label, leaving an empty row
		t.Fatalf("label-only row: %v", err)
	}
	if _, err := ReadCost(strings.NewReader("C1,C2\n1,x\n"), FormatCSV); err == nil {
		t.Fatalf("expected error for non-numeric cost")
	}
}

func TestReadCostCells(t *testing.T) {
	cost, err := ReadCost(strings.NewReader("C1,C2\n-3.5,1e3\n"), FormatCSV)
	if err != nil {
		t.Fatalf("cost: %v", err)
	}
	if cost[0][0] != -3.5 || cost[0][1] != 1000 {
		t.Fatalf("cost %v", cost)
	}
	_, err = ReadCost(strings.NewReader("C1,C2\n2,NA\n"), FormatCSV)
	var re *RowError
	if !errors.As(err, &re) || re.Row != 2 || re.Column != "C2" {
		t.Fatalf("unknown marker in cost matrix: %v", err)
	}
	_, err = ReadCost(strings.NewReader("C1,C2\n2,\n"), FormatCSV)
	if !errors.As(err, &re) || re.Column != "C2" || !strings.Contains(err.Error(), "empty cost") {
		t.Fatalf("blank cost: %v", err)
	}
}

func xlsxBytes(t *testing.T, rows [][]any) []byte {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	for r, row := range rows {
		for c, v := range row {
			cell, _ := excelize.CoordinatesToCellName(c+1, r+1)
			if err := f.SetCellValue("Sheet1", cell, v); err != nil {
				t.Fatalf("set cell: %v", err)
			}
		}
	}
	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		t.Fatalf("write: %v", err)
	}
	return buf.Bytes()
}

func TestReadDriversXLSX(t *testing.T) {
	b := xlsxBytes(t, [][]any{{"Name", "Working Hours", "Max Load (units)"}, {"Ali", 8, 200}, {"Mona", 10, 150}})
	rows, err := ReadDrivers(bytes.NewReader(b), FormatXLSX)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(rows) != 2 || rows[1].Name != "Mona" || rows[1].WorkingHours != 10 || rows[0].MaxLoad != 200 {
		t.Fatalf("rows %+v", rows)
	}
}

func TestLoad(t *testing.T) {
	files := Files{
		Supply:  File{Name: "supply.csv", Reader: strings.NewReader("Location,Longitude,Latitude,Supply\nA,31,30,100\nB,30,31,50\n")},
		Demand:  File{Name: "demand.csv", Reader: strings.NewReader("Location,Longitude,Latitude,Demand\nC,31.1,30.1,80\n")},
		Drivers: File{Name: "drivers.xlsx", Reader: bytes.NewReader(xlsxBytes(t, [][]any{{"Working Hours", "Max Load (units)"}, {8, 200}}))},
		Cost:    File{Name: "cost.csv", Reader: strings.NewReader("C\n1\n2\n")},
	}
	p, err := Load(files)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(p.Supply) != 2 || len(p.Demand) != 1 || len(p.Drivers) != 1 || p.Supply[1].Name != "B" {
		t.Fatalf("problem %+v", p)
	}
	if len(p.TravelTimes) != 2 || len(p.TravelTimes[0]) != 1 || p.TravelTimes[0][0].Known {
		t.Fatalf("travel times must default to unknown: %v", p.TravelTimes)
	}

	files.Supply = File{Name: "supply.json", Reader: strings.NewReader("{}")}
	if _, err := Load(files); !errors.Is(err, ErrFormat) {
		t.Fatalf("bad format: %v", err)
	}
}
