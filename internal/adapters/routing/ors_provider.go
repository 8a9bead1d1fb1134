package routing

import (
	"errors"
	"location-tracker/internal/ports"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// ORSProvider implements RoutingProvider and Geocoder using OpenRouteService.
//
// It coordinates:
//   - Query normalization
//   - Persistent geocode caching
//   - Short-lived travel time caching
//   - External API calls with rate limiting and retry/backoff
//
// The provider is safe for concurrent use.
type ORSProvider struct {
	session      *http.Client
	apiKey       string
	baseURL      string
	profile      string
	limiter      *rate.Limiter
	geocodeCache ports.GeocodeCache
	etaCache     ports.ETACache
}

type ORSConfig struct {
	APIKey  string
	BaseURL string
	Profile string
	// Zero disables client-side rate limiting.
	RequestsPerMinute int
	Timeout           time.Duration
}

func NewORSProvider(
	cfg ORSConfig,
	geocodeCache ports.GeocodeCache,
	etaCache ports.ETACache,
) (*ORSProvider, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("ORS api key is empty")
	}

	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.openrouteservice.org"
	}

	profile := cfg.Profile
	if profile == "" {
		profile = "driving-car"
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	limit := rate.Inf
	if cfg.RequestsPerMinute > 0 {
		limit = rate.Limit(float64(cfg.RequestsPerMinute) / 60)
	}

	provider := &ORSProvider{
		session:      &http.Client{Timeout: timeout},
		apiKey:       cfg.APIKey,
		baseURL:      baseURL,
		profile:      profile,
		limiter:      rate.NewLimiter(limit, 1),
		geocodeCache: geocodeCache,
		etaCache:     etaCache,
	}

	return provider, nil
}

// normalize ensures consistent cache keys by collapsing whitespace.
func (o *ORSProvider) normalize(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
