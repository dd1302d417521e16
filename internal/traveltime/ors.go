package traveltime

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"freightplan/internal/opt"
)

const (
	DefaultORSBaseURL = "https://api.openrouteservice.org"
	DefaultProfile    = "driving-car"
)

// ORS queries the OpenRouteService directions API.
type ORS struct {
	BaseURL string
	APIKey  string
	Profile string
	HTTP    *http.Client
	Limiter *rate.Limiter
}

// NewORS builds a client limited to rps requests per second. A non-positive
// rps disables limiting.
func NewORS(baseURL, apiKey string, rps float64) *ORS {
	if baseURL == "" {
		baseURL = DefaultORSBaseURL
	}
	lim := rate.NewLimiter(rate.Inf, 1)
	if rps > 0 {
		lim = rate.NewLimiter(rate.Limit(rps), 1)
	}
	return &ORS{
		BaseURL: strings.TrimRight(baseURL, "/"),
		APIKey:  apiKey,
		Profile: DefaultProfile,
		HTTP:    &http.Client{Timeout: 15 * time.Second},
		Limiter: lim,
	}
}

func (o *ORS) Name() string { return "ors" }

type orsRequest struct {
	Coordinates [][2]float64 `json:"coordinates"`
}

type orsResponse struct {
	Features []struct {
		Properties struct {
			Summary struct {
				Duration float64 `json:"duration"`
				Distance float64 `json:"distance"`
			} `json:"summary"`
		} `json:"properties"`
		Geometry struct {
			Coordinates [][2]float64 `json:"coordinates"`
		} `json:"geometry"`
	} `json:"features"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Route asks for a driving route. A zero duration, an empty feature list or
// a non-2xx status returns ErrNoRoute with an unknown Route.
func (o *ORS) Route(ctx context.Context, from, to opt.Location) (Route, error) {
	if o.Limiter != nil {
		if err := o.Limiter.Wait(ctx); err != nil {
			return Route{}, err
		}
	}
	profile := o.Profile
	if profile == "" {
		profile = DefaultProfile
	}
	body, err := json.Marshal(orsRequest{Coordinates: [][2]float64{{from.Lng, from.Lat}, {to.Lng, to.Lat}}})
	if err != nil {
		return Route{}, err
	}
	url := fmt.Sprintf("%s/v2/directions/%s/geojson", o.BaseURL, profile)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return Route{}, fmt.Errorf("ors: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/geo+json")
	req.Header.Set("Authorization", o.APIKey)

	client := o.HTTP
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return Route{}, fmt.Errorf("ors: %w", err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return Route{}, fmt.Errorf("ors: read response: %w", err)
	}

	var out orsResponse
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := resp.Status
		if json.Unmarshal(raw, &out) == nil && out.Error != nil && out.Error.Message != "" {
			msg = out.Error.Message
		}
		return Route{}, fmt.Errorf("%w: ors status %d: %s", ErrNoRoute, resp.StatusCode, msg)
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return Route{}, fmt.Errorf("ors: decode response: %w", err)
	}
	if len(out.Features) == 0 {
		return Route{}, fmt.Errorf("%w: ors returned no features", ErrNoRoute)
	}
	f := out.Features[0]
	secs := f.Properties.Summary.Duration
	if secs <= 0 {
		return Route{}, fmt.Errorf("%w: ors returned zero duration", ErrNoRoute)
	}
	return Route{Hours: secs / 3600, Known: true, Geometry: f.Geometry.Coordinates}, nil
}
