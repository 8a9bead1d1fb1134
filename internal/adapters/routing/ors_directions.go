package routing

import (
	"context"
	"encoding/json"
	"fmt"
	"location-tracker/internal/domain"
	"location-tracker/internal/platform/obs"
	"math"
	"net/http"
)

type directionsResponse struct {
	Features []directionsFeature `json:"features"`
}

type directionsFeature struct {
	Geometry struct {
		Coordinates [][]float64 `json:"coordinates"`
	} `json:"geometry"`
	Properties struct {
		Segments []struct {
			Steps []struct {
				Distance    float64 `json:"distance"`
				Duration    float64 `json:"duration"`
				Instruction string  `json:"instruction"`
				WayPoints   []int   `json:"way_points"`
			} `json:"steps"`
		} `json:"segments"`
		Summary struct {
			Distance float64 `json:"distance"`
			Duration float64 `json:"duration"`
		} `json:"summary"`
	} `json:"properties"`
}

// Directions retrieves the ordered steps between two points from the
// OpenRouteService directions endpoint. Failures are *ports.RouteError.
func (o *ORSProvider) Directions(
	ctx context.Context,
	origin, destination domain.LatLng,
) (_ *domain.Route, err error) {
	defer obs.Time(ctx, "ors.Directions")(&err)

	feature, err := o.fetchDirections(ctx, origin, destination)
	if err != nil {
		return nil, err
	}

	return buildRoute(origin, destination, feature)
}

// TravelTime returns the driving duration between two points. Results are
// served from the ETA cache when present.
func (o *ORSProvider) TravelTime(
	ctx context.Context,
	origin, destination domain.LatLng,
) (_ domain.ETA, err error) {
	defer obs.Time(ctx, "ors.TravelTime")(&err)

	if o.etaCache != nil {
		eta, ok, err := o.etaCache.Get(ctx, origin, destination)
		if err == nil && ok {
			return eta, nil
		}
	}

	feature, err := o.fetchDirections(ctx, origin, destination)
	if err != nil {
		return domain.ETA{}, err
	}

	seconds := int(math.Round(feature.Properties.Summary.Duration))
	eta := domain.ETA{
		DurationSeconds: seconds,
		DurationText:    domain.FormatDuration(seconds),
	}

	if o.etaCache != nil {
		// Cache failures only cost a future lookup.
		_ = o.etaCache.Put(ctx, origin, destination, eta)
	}

	return eta, nil
}

func (o *ORSProvider) fetchDirections(
	ctx context.Context,
	origin, destination domain.LatLng,
) (*directionsFeature, error) {
	endpoint := fmt.Sprintf("%s/v2/directions/%s", o.baseURL, o.profile)

	resp, err := o.doWithRetry(ctx, func() (*http.Request, error) {
		req, err := o.newRequest(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return nil, err
		}
		q := req.URL.Query()
		q.Set("start", lngLat(origin))
		q.Set("end", lngLat(destination))
		req.URL.RawQuery = q.Encode()
		return req, nil
	})
	if err != nil {
		return nil, classify(fmt.Errorf("directions request failed: %w", err))
	}
	defer resp.Body.Close()

	var dr directionsResponse
	if err := json.NewDecoder(resp.Body).Decode(&dr); err != nil {
		return nil, classify(fmt.Errorf("decode directions response: %w", err))
	}

	if len(dr.Features) == 0 {
		return nil, classify(&httpStatusError{
			Code: http.StatusNotFound,
			Body: fmt.Sprintf(`{"error":{"code":%d}}`, orsCodeRouteNotFound),
		})
	}

	return &dr.Features[0], nil
}

// buildRoute flattens segment steps into legs. Each leg starts at the
// geometry point indexed by the step's first way point.
func buildRoute(origin, destination domain.LatLng, f *directionsFeature) (*domain.Route, error) {
	coords := f.Geometry.Coordinates

	pointAt := func(i int) (domain.LatLng, error) {
		if i < 0 || i >= len(coords) || len(coords[i]) < 2 {
			return domain.LatLng{}, fmt.Errorf("way point %d outside geometry of %d points", i, len(coords))
		}
		return domain.LatLng{Lat: coords[i][1], Lng: coords[i][0]}, nil
	}

	route := &domain.Route{
		Origin:      origin,
		Destination: destination,
	}

	for _, seg := range f.Properties.Segments {
		for _, step := range seg.Steps {
			if len(step.WayPoints) != 2 {
				return nil, classify(fmt.Errorf("step %q has %d way points", step.Instruction, len(step.WayPoints)))
			}
			start, err := pointAt(step.WayPoints[0])
			if err != nil {
				return nil, classify(err)
			}
			end, err := pointAt(step.WayPoints[1])
			if err != nil {
				return nil, classify(err)
			}

			seconds := int(math.Round(step.Duration))
			route.Legs = append(route.Legs, domain.Leg{
				Start:           start,
				End:             end,
				Instruction:     step.Instruction,
				DistanceMeters:  int(math.Round(step.Distance)),
				DurationSeconds: seconds,
				DurationText:    domain.FormatDuration(seconds),
			})
		}
	}

	route.TotalDistanceMeters = int(math.Round(f.Properties.Summary.Distance))
	route.TotalDurationSeconds = int(math.Round(f.Properties.Summary.Duration))
	route.TotalDistanceText = domain.FormatDistance(route.TotalDistanceMeters)
	route.TotalDurationText = domain.FormatDuration(route.TotalDurationSeconds)

	return route, nil
}

func lngLat(c domain.LatLng) string {
	return fmt.Sprintf("%f,%f", c.Lng, c.Lat)
}
