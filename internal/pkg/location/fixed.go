package location

import (
	"context"
	"math/rand"
	"time"

	"github.com/jagawarga/jagawarga/internal/pkg/models"
	"github.com/jagawarga/jagawarga/internal/utils"
)

// metersPerDegree approximates one degree of latitude at the equator.
const metersPerDegree = 111320.0

// Fixed serves a configured coordinate, optionally jittered by a few meters
// per read to mimic GPS noise. This is the provider a headless deployment
// runs with; a real device adapter implements the same interface.
type Fixed struct {
	coord  models.Coordinate
	jitter float64 // meters
}

// NewFixed creates a provider pinned to the given coordinate.
func NewFixed(coord models.Coordinate, jitterMeters float64) (*Fixed, error) {
	if err := utils.ValidateCoordinate(coord); err != nil {
		return nil, err
	}
	return &Fixed{coord: coord, jitter: jitterMeters}, nil
}

// Current returns the configured coordinate with jitter applied.
func (f *Fixed) Current(ctx context.Context) (models.Coordinate, error) {
	select {
	case <-ctx.Done():
		return models.Coordinate{}, ctx.Err()
	default:
	}
	return f.read(), nil
}

// Watch emits a fix at every interval until the subscription is stopped or
// the context ends.
func (f *Fixed) Watch(ctx context.Context, interval time.Duration) (*Subscription, error) {
	if interval <= 0 {
		return nil, ErrUnavailable
	}

	sub := newSubscription()
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		defer close(sub.fixes)

		for {
			select {
			case <-ctx.Done():
				return
			case <-sub.stop:
				return
			case <-ticker.C:
				select {
				case sub.fixes <- f.read():
				default:
					// Slow consumer keeps only the freshest fix.
				}
			}
		}
	}()
	return sub, nil
}

func (f *Fixed) read() models.Coordinate {
	if f.jitter <= 0 {
		return f.coord
	}
	offset := func() float64 { return (rand.Float64()*2 - 1) * f.jitter / metersPerDegree }
	return models.Coordinate{
		Latitude:  f.coord.Latitude + offset(),
		Longitude: f.coord.Longitude + offset(),
	}
}
