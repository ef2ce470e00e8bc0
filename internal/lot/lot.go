// Package lot owns the spot collection of a parking lot. Spots keep the order
// they were created in; that order is the tie-break for nearest-spot search.
//
// Lot is not safe for concurrent use. The engine guards it with its own mutex.
package lot

import (
	"errors"
	"fmt"

	"github.com/parkpilot/server/internal/domain/geometry"
	"github.com/parkpilot/server/internal/domain/parking"
)

var (
	ErrSpotNotFound    = errors.New("spot not found")
	ErrSpotUnavailable = errors.New("spot not available")
	ErrNoSpotAvailable = errors.New("no spot available")
	ErrDuplicateSpot   = errors.New("duplicate spot id")
	ErrInvalidCategory = errors.New("invalid spot category")
)

// Lot is the single owner of all spots.
type Lot struct {
	ID    string
	spots []parking.Spot
	index map[string]int
}

// Counts summarises the lot by status.
type Counts struct {
	Total     int `json:"total"`
	Available int `json:"available"`
	Occupied  int `json:"occupied"`
	Reserved  int `json:"reserved"`
}

// New builds a lot from spots. Coordinates are clamped, an empty status
// becomes available.
func New(id string, spots []parking.Spot) (*Lot, error) {
	l := &Lot{
		ID:    id,
		spots: make([]parking.Spot, 0, len(spots)),
		index: make(map[string]int, len(spots)),
	}
	for _, s := range spots {
		if _, dup := l.index[s.ID]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateSpot, s.ID)
		}
		if !s.Category.Valid() {
			return nil, fmt.Errorf("%w: %q on %s", ErrInvalidCategory, s.Category, s.ID)
		}
		if !s.Status.Valid() {
			s.Status = parking.StatusAvailable
		}
		s.X = geometry.Clamp(s.X, geometry.MinCoord, geometry.MaxCoord)
		s.Y = geometry.Clamp(s.Y, geometry.MinCoord, geometry.MaxCoord)
		l.index[s.ID] = len(l.spots)
		l.spots = append(l.spots, s)
	}
	return l, nil
}

// Spot resolves a spot by ID.
func (l *Lot) Spot(id string) (parking.Spot, bool) {
	i, ok := l.index[id]
	if !ok {
		return parking.Spot{}, false
	}
	return l.spots[i], true
}

// Spots returns a copy of all spots in list order.
func (l *Lot) Spots() []parking.Spot {
	out := make([]parking.Spot, len(l.spots))
	copy(out, l.spots)
	return out
}

// Len returns the number of spots.
func (l *Lot) Len() int {
	return len(l.spots)
}

// ApplyOccupancy replaces every non-reserved status in one pass: spots in
// occupied become occupied, all others available. Reserved spots are left
// alone. It returns the IDs whose status changed.
func (l *Lot) ApplyOccupancy(occupied map[string]struct{}) []string {
	var changed []string
	for i := range l.spots {
		s := &l.spots[i]
		if s.Status == parking.StatusReserved {
			continue
		}
		next := parking.StatusAvailable
		if _, ok := occupied[s.ID]; ok {
			next = parking.StatusOccupied
		}
		if s.Status != next {
			s.Status = next
			changed = append(changed, s.ID)
		}
	}
	return changed
}

// Reserve marks an available spot as reserved.
func (l *Lot) Reserve(id string) (parking.Spot, error) {
	i, ok := l.index[id]
	if !ok {
		return parking.Spot{}, fmt.Errorf("%w: %s", ErrSpotNotFound, id)
	}
	if l.spots[i].Status != parking.StatusAvailable {
		return parking.Spot{}, fmt.Errorf("%w: %s is %s", ErrSpotUnavailable, id, l.spots[i].Status)
	}
	l.spots[i].Status = parking.StatusReserved
	return l.spots[i], nil
}

// Release returns a reserved spot to available. Releasing a spot that is not
// reserved is an error.
func (l *Lot) Release(id string) (parking.Spot, error) {
	i, ok := l.index[id]
	if !ok {
		return parking.Spot{}, fmt.Errorf("%w: %s", ErrSpotNotFound, id)
	}
	if l.spots[i].Status != parking.StatusReserved {
		return parking.Spot{}, fmt.Errorf("%w: %s is not reserved", ErrSpotUnavailable, id)
	}
	l.spots[i].Status = parking.StatusAvailable
	return l.spots[i], nil
}

// MarkOccupied sets a spot occupied regardless of its previous status. Used
// when the driven vehicle parks.
func (l *Lot) MarkOccupied(id string) error {
	i, ok := l.index[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrSpotNotFound, id)
	}
	l.spots[i].Status = parking.StatusOccupied
	return nil
}

// SetStatus overwrites a status. Used when restoring a persisted snapshot.
func (l *Lot) SetStatus(id string, status parking.Status) error {
	i, ok := l.index[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrSpotNotFound, id)
	}
	if !status.Valid() {
		return fmt.Errorf("invalid status %q for %s", status, id)
	}
	l.spots[i].Status = status
	return nil
}

// Counts tallies spots by status.
func (l *Lot) Counts() Counts {
	c := Counts{Total: len(l.spots)}
	for _, s := range l.spots {
		switch s.Status {
		case parking.StatusAvailable:
			c.Available++
		case parking.StatusOccupied:
			c.Occupied++
		case parking.StatusReserved:
			c.Reserved++
		}
	}
	return c
}
