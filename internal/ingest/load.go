package ingest

import (
	"fmt"
	"io"

	"freightplan/internal/opt"
)

// File is one uploaded table.
type File struct {
	Name   string
	Format Format
	Reader io.Reader
}

// Files carries the four required tables and an optional travel-time table.
type Files struct {
	Supply  File
	Demand  File
	Drivers File
	Cost    File
	Travel  *File
}

func (f File) format() (Format, error) {
	if f.Format != "" {
		return f.Format, nil
	}
	return DetectFormat(f.Name)
}

// Load assembles a Problem. Without a travel table every lane is unknown and
// must be filled in before optimizing.
func Load(files Files) (opt.Problem, error) {
	var p opt.Problem
	wrap := func(kind string, f File, err error) error {
		if f.Name != "" {
			return fmt.Errorf("%s (%s): %w", kind, f.Name, err)
		}
		return fmt.Errorf("%s: %w", kind, err)
	}

	fmtS, err := files.Supply.format()
	if err != nil {
		return p, wrap("supply", files.Supply, err)
	}
	supply, err := ReadSupply(files.Supply.Reader, fmtS)
	if err != nil {
		return p, wrap("supply", files.Supply, err)
	}
	fmtD, err := files.Demand.format()
	if err != nil {
		return p, wrap("demand", files.Demand, err)
	}
	demand, err := ReadDemand(files.Demand.Reader, fmtD)
	if err != nil {
		return p, wrap("demand", files.Demand, err)
	}
	fmtK, err := files.Drivers.format()
	if err != nil {
		return p, wrap("drivers", files.Drivers, err)
	}
	drivers, err := ReadDrivers(files.Drivers.Reader, fmtK)
	if err != nil {
		return p, wrap("drivers", files.Drivers, err)
	}
	fmtC, err := files.Cost.format()
	if err != nil {
		return p, wrap("cost", files.Cost, err)
	}
	if p.Cost, err = ReadCost(files.Cost.Reader, fmtC); err != nil {
		return p, wrap("cost", files.Cost, err)
	}

	for _, s := range supply {
		p.Supply = append(p.Supply, s.Point())
	}
	for _, d := range demand {
		p.Demand = append(p.Demand, d.Point())
	}
	for _, d := range drivers {
		p.Drivers = append(p.Drivers, d.Driver())
	}

	if files.Travel != nil {
		fmtT, err := files.Travel.format()
		if err != nil {
			return p, wrap("travel", *files.Travel, err)
		}
		if p.TravelTimes, err = ReadTravelTimes(files.Travel.Reader, fmtT); err != nil {
			return p, wrap("travel", *files.Travel, err)
		}
		return p, nil
	}
	p.TravelTimes = make([][]opt.TravelTime, len(p.Supply))
	for i := range p.TravelTimes {
		p.TravelTimes[i] = make([]opt.TravelTime, len(p.Demand))
	}
	return p, nil
}
