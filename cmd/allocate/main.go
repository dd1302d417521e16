// Command allocate solves one freight allocation from csv or xlsx tables and
// prints the report.
//
// Exit codes: 0 optimal, 2 bad input, 3 any other solver status.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"freightplan/internal/config"
	"freightplan/internal/ingest"
	"freightplan/internal/opt"
	"freightplan/internal/report"
	"freightplan/internal/traveltime"
)

const (
	exitOptimal    = 0
	exitInput      = 2
	exitNotOptimal = 3
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("allocate", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var (
		cfgPath  = fs.String("config", "", "YAML config file (default $FREIGHTPLAN_CONFIG)")
		supply   = fs.String("supply", "", "supply table (csv or xlsx)")
		demand   = fs.String("demand", "", "demand table (csv or xlsx)")
		drivers  = fs.String("drivers", "", "drivers table (csv or xlsx)")
		cost     = fs.String("cost", "", "unit cost matrix, supply rows by demand columns")
		travel   = fs.String("travel", "", "travel hours matrix; blank cells are unknown")
		orsKey   = fs.String("ors-key", "", "OpenRouteService API key (default $ORS_API_KEY)")
		speed    = fs.Float64("speed", 0, "km/h for straight-line estimates (default from config)")
		missing  = fs.String("missing", "", "unknown travel time policy: reject, exclude or forbid")
		duals    = fs.String("duals", "", "dual values: fixed or none")
		limit    = fs.Duration("time-limit", 0, "solver wall-clock limit")
		maxNodes = fs.Int("max-nodes", 0, "branch-and-bound node limit")
		geoOut   = fs.String("geojson", "", "write a GeoJSON map to this path")
		xlsxOut  = fs.String("xlsx", "", "write an xlsx workbook to this path")
	)
	if err := fs.Parse(args); err != nil {
		return exitInput
	}
	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return exitInput
	}
	for _, req := range []struct{ name, v string }{
		{"supply", *supply}, {"demand", *demand}, {"drivers", *drivers}, {"cost", *cost},
	} {
		if req.v == "" {
			fmt.Fprintf(stderr, "-%s is required\n", req.name)
			return exitInput
		}
	}

	o := cfg.SolverOptions()
	if *missing != "" {
		if o.MissingTravelTime, err = opt.ParseMissingTimePolicy(*missing); err != nil {
			fmt.Fprintln(stderr, err)
			return exitInput
		}
	}
	if *duals != "" {
		if o.Duals, err = opt.ParseDualPolicy(*duals); err != nil {
			fmt.Fprintln(stderr, err)
			return exitInput
		}
	}
	if *limit > 0 {
		o.TimeLimit = *limit
	}
	if *maxNodes > 0 {
		o.MaxNodes = *maxNodes
	}

	files, closeAll, err := openFiles(*supply, *demand, *drivers, *cost, *travel)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return exitInput
	}
	p, err := ingest.Load(files)
	closeAll()
	if err != nil {
		fmt.Fprintln(stderr, err)
		return exitInput
	}

	var lanes traveltime.Lanes
	if *travel == "" {
		key := *orsKey
		if key == "" {
			key = cfg.Travel.ORSAPIKey
		}
		if *speed > 0 {
			cfg.Travel.SpeedKMH = *speed
		}
		var prov traveltime.Provider = traveltime.Haversine{SpeedKMH: cfg.Travel.SpeedKMH}
		if key != "" {
			prov = traveltime.NewORS(cfg.Travel.ORSBaseURL, key, cfg.Travel.ORSRPS)
		}
		lanes, err = traveltime.Matrix(ctx, prov, p.Supply, p.Demand, cfg.Travel.Concurrency)
		if err != nil {
			fmt.Fprintln(stderr, err)
			return exitNotOptimal
		}
		p.TravelTimes = lanes.Times
	}

	res, err := opt.Optimize(ctx, p, o)
	if err != nil {
		fmt.Fprintln(stderr, err)
		var ie *opt.InputError
		if errors.As(err, &ie) && len(ie.Lanes) > 0 {
			fmt.Fprintln(stderr, "use -missing exclude or -missing forbid to solve anyway")
		}
		return exitInput
	}
	if err := report.Text(stdout, p, res); err != nil {
		fmt.Fprintln(stderr, err)
	}
	if *geoOut != "" {
		if err := writeGeoJSON(*geoOut, report.GeoJSON(p, res, lanes.Route)); err != nil {
			fmt.Fprintln(stderr, err)
		}
	}
	if *xlsxOut != "" {
		if err := writeXLSX(*xlsxOut, p, res); err != nil {
			fmt.Fprintln(stderr, err)
		}
	}
	if res.Status != opt.StatusOptimal {
		return exitNotOptimal
	}
	return exitOptimal
}

func openFiles(supply, demand, drivers, cost, travel string) (ingest.Files, func(), error) {
	var opened []*os.File
	closeAll := func() {
		for _, f := range opened {
			_ = f.Close()
		}
	}
	open := func(path string) (ingest.File, error) {
		f, err := os.Open(path)
		if err != nil {
			return ingest.File{}, err
		}
		opened = append(opened, f)
		return ingest.File{Name: path, Reader: f}, nil
	}
	var files ingest.Files
	var err error
	for _, part := range []struct {
		path string
		dst  *ingest.File
	}{{supply, &files.Supply}, {demand, &files.Demand}, {drivers, &files.Drivers}, {cost, &files.Cost}} {
		if *part.dst, err = open(part.path); err != nil {
			closeAll()
			return files, func() {}, err
		}
	}
	if travel != "" {
		f, err := open(travel)
		if err != nil {
			closeAll()
			return files, func() {}, err
		}
		files.Travel = &f
	}
	return files, closeAll, nil
}

func writeGeoJSON(path string, fc report.FeatureCollection) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(fc); err != nil {
		_ = f.Close()
		return fmt.Errorf("geojson: %w", err)
	}
	return f.Close()
}

func writeXLSX(path string, p opt.Problem, res opt.Result) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := report.XLSX(f, p, res); err != nil {
		_ = f.Close()
		return fmt.Errorf("xlsx: %w", err)
	}
	return f.Close()
}
