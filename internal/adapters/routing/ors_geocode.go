package routing

import (
	"context"
	"encoding/json"
	"fmt"
	"location-tracker/internal/domain"
	"location-tracker/internal/platform/obs"
	"location-tracker/internal/ports"
	"net/http"
	"strconv"
)

type geocodeResponse struct {
	Features []struct {
		Geometry struct {
			Coordinates []float64 `json:"coordinates"`
		} `json:"geometry"`
		Properties struct {
			Label string `json:"label"`
		} `json:"properties"`
	} `json:"features"`
}

// Geocode resolves a free-text query to its best match. Cached places are
// returned without calling the API.
func (o *ORSProvider) Geocode(ctx context.Context, query string) (_ domain.Place, err error) {
	defer obs.Time(ctx, "ors.Geocode")(&err)

	norm := o.normalize(query)
	if norm == "" {
		return domain.Place{}, ports.ErrPlaceNotFound
	}

	if o.geocodeCache != nil {
		cached, err := o.geocodeCache.GetMany(ctx, []string{norm})
		if err == nil {
			if p, ok := cached[norm]; ok {
				return p, nil
			}
		}
	}

	places, err := o.search(ctx, "/geocode/search", norm, 1)
	if err != nil {
		return domain.Place{}, err
	}
	if len(places) == 0 {
		return domain.Place{}, fmt.Errorf("%w: %q", ports.ErrPlaceNotFound, norm)
	}

	if o.geocodeCache != nil {
		_ = o.geocodeCache.PutMany(ctx, map[string]domain.Place{norm: places[0]})
	}

	return places[0], nil
}

// Autocomplete returns up to limit suggestions for a partial query.
// Suggestions are not cached.
func (o *ORSProvider) Autocomplete(ctx context.Context, query string, limit int) (_ []domain.Place, err error) {
	defer obs.Time(ctx, "ors.Autocomplete")(&err)

	norm := o.normalize(query)
	if norm == "" {
		return []domain.Place{}, nil
	}
	if limit <= 0 {
		limit = 5
	}

	return o.search(ctx, "/geocode/autocomplete", norm, limit)
}

func (o *ORSProvider) search(ctx context.Context, path, text string, size int) ([]domain.Place, error) {
	endpoint := o.baseURL + path

	resp, err := o.doWithRetry(ctx, func() (*http.Request, error) {
		req, err := o.newRequest(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return nil, err
		}
		q := req.URL.Query()
		q.Set("text", text)
		q.Set("size", strconv.Itoa(size))
		req.URL.RawQuery = q.Encode()
		return req, nil
	})
	if err != nil {
		return nil, classify(fmt.Errorf("geocode request failed: %w", err))
	}
	defer resp.Body.Close()

	var decoded geocodeResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("decode geocode response: %w", err)
	}

	out := make([]domain.Place, 0, len(decoded.Features))
	for _, f := range decoded.Features {
		coords := f.Geometry.Coordinates
		if len(coords) != 2 {
			continue
		}
		c := domain.LatLng{Lat: coords[1], Lng: coords[0]}
		if !c.Valid() {
			continue
		}
		out = append(out, domain.Place{
			FormattedAddress: f.Properties.Label,
			Coordinate:       c,
		})
		if len(out) == size {
			break
		}
	}

	return out, nil
}
