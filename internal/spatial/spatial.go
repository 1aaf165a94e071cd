// Package spatial implements the viewport spatial query supplement from
// SPEC_FULL.md Part D.4: an R-tree index over each room's shapes so a
// client can ask "what's visible in this rectangle" instead of replaying
// the entire shape snapshot.
//
// Grounded on the teacher's root_spatial.go (SpatialIndex/IndexedStroke),
// trimmed to what a viewport query needs: insert, update, delete, clear,
// and search. The teacher's GetStats/ValidateIndex/getTreeHeight
// introspection helpers and the QueryCircle/QueryViewportWithMetrics
// variants (metrics use a stubbed getCurrentTimeNanos that always returns
// 0) are dropped rather than adapted — nothing in SPEC_FULL.md exercises
// circular selection or index health reporting.
package spatial

import (
	"errors"
	"sync"

	"github.com/tidwall/rtree"
)

// ErrInvalidBounds is returned when a box's min exceeds its max on an axis.
var ErrInvalidBounds = errors.New("spatial: invalid bounds")

// Box is an axis-aligned rectangle in canvas coordinates.
type Box struct {
	X1, Y1, X2, Y2 float64
}

func (b Box) valid() bool {
	return b.X1 < b.X2 && b.Y1 < b.Y2
}

// Entry is one shape tracked by the index.
type Entry struct {
	ShapeID string
	RoomID  string
	Box     Box
}

// Index is a per-process R-tree over every room's shapes, keyed by room so
// a query never crosses room boundaries.
type Index struct {
	mu   sync.RWMutex
	tree *rtree.RTree
}

func New() *Index {
	return &Index{tree: &rtree.RTree{}}
}

func minMax(b Box) (min, max [2]float64) {
	return [2]float64{b.X1, b.Y1}, [2]float64{b.X2, b.Y2}
}

// Upsert inserts or replaces the entry for shapeID within roomID.
func (idx *Index) Upsert(roomID, shapeID string, box Box) error {
	if !box.valid() {
		return ErrInvalidBounds
	}
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.removeLocked(roomID, shapeID)
	min, max := minMax(box)
	idx.tree.Insert(min, max, &Entry{ShapeID: shapeID, RoomID: roomID, Box: box})
	return nil
}

// Remove deletes the entry for shapeID within roomID, if present.
func (idx *Index) Remove(roomID, shapeID string) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.removeLocked(roomID, shapeID)
}

func (idx *Index) removeLocked(roomID, shapeID string) {
	var found *Entry
	var foundMin, foundMax [2]float64
	idx.tree.Scan(func(min, max [2]float64, item interface{}) bool {
		e := item.(*Entry)
		if e.RoomID == roomID && e.ShapeID == shapeID {
			found, foundMin, foundMax = e, min, max
			return false
		}
		return true
	})
	if found != nil {
		idx.tree.Delete(foundMin, foundMax, found)
	}
}

// ClearRoom removes every entry belonging to roomID, mirroring §4.3 clear.
func (idx *Index) ClearRoom(roomID string) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	type hit struct {
		item     *Entry
		min, max [2]float64
	}
	var hits []hit
	idx.tree.Scan(func(min, max [2]float64, item interface{}) bool {
		e := item.(*Entry)
		if e.RoomID == roomID {
			hits = append(hits, hit{e, min, max})
		}
		return true
	})
	for _, h := range hits {
		idx.tree.Delete(h.min, h.max, h.item)
	}
}

// QueryViewport returns every shape ID in roomID whose box intersects the
// viewport.
func (idx *Index) QueryViewport(roomID string, viewport Box) ([]string, error) {
	if !viewport.valid() {
		return nil, ErrInvalidBounds
	}
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	min, max := minMax(viewport)
	var ids []string
	idx.tree.Search(min, max, func(_, _ [2]float64, item interface{}) bool {
		e := item.(*Entry)
		if e.RoomID == roomID {
			ids = append(ids, e.ShapeID)
		}
		return true
	})
	return ids, nil
}
