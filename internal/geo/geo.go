// Package geo turns a longitude/latitude pair into a human-readable place name.
package geo

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"googlemaps.github.io/maps"
)

// ErrNoPlace is returned when the geocoder has no result for a point.
var ErrNoPlace = errors.New("geo: no place found for coordinates")

// Resolver looks up the place name for a point.
type Resolver interface {
	PlaceName(ctx context.Context, longitude, latitude float64) (string, error)
}

// GoogleResolver calls the Google Maps reverse-geocoding API.
type GoogleResolver struct {
	client *maps.Client
}

// NewGoogle builds a resolver for apiKey. Extra options (maps.WithBaseURL,
// maps.WithHTTPClient) are passed through to the maps client.
func NewGoogle(apiKey string, opts ...maps.ClientOption) (*GoogleResolver, error) {
	opts = append([]maps.ClientOption{maps.WithAPIKey(apiKey)}, opts...)
	client, err := maps.NewClient(opts...)
	if err != nil {
		return nil, fmt.Errorf("geo: creating maps client: %w", err)
	}
	return &GoogleResolver{client: client}, nil
}

// PlaceName returns the locality (city) of the best match, or its formatted
// address when the match has no locality component.
func (g *GoogleResolver) PlaceName(ctx context.Context, longitude, latitude float64) (string, error) {
	results, err := g.client.ReverseGeocode(ctx, &maps.GeocodingRequest{
		LatLng: &maps.LatLng{Lat: latitude, Lng: longitude},
	})
	if err != nil {
		return "", fmt.Errorf("geo: reverse geocoding %f,%f: %w", latitude, longitude, err)
	}
	if len(results) == 0 {
		return "", ErrNoPlace
	}

	best := results[0]
	for _, c := range best.AddressComponents {
		if slices.Contains(c.Types, "locality") {
			return c.LongName, nil
		}
	}
	if best.FormattedAddress == "" {
		return "", ErrNoPlace
	}
	return best.FormattedAddress, nil
}

// CoordinateResolver names a point by its rounded coordinates. It is used
// when no Maps API key is configured, so development setups still store a
// non-empty place name.
type CoordinateResolver struct{}

func (CoordinateResolver) PlaceName(_ context.Context, longitude, latitude float64) (string, error) {
	return fmt.Sprintf("%.4f, %.4f", latitude, longitude), nil
}
