package dispatcher

import (
	"sync"

	"github.com/elliotchance/orderedmap/v2"
	"go.dedis.ch/kdht/types"
)

// DefaultHistorySize is the number of response ids remembered by default.
const DefaultHistorySize = 512

// responseHistory remembers the most recent response ids. The oldest id is
// evicted once the capacity is reached.
type responseHistory struct {
	sync.Mutex
	capacity int
	ids      *orderedmap.OrderedMap[types.MessageID, struct{}]
}

func newResponseHistory(capacity int) *responseHistory {
	if capacity <= 0 {
		capacity = DefaultHistorySize
	}

	return &responseHistory{
		capacity: capacity,
		ids:      orderedmap.NewOrderedMap[types.MessageID, struct{}](),
	}
}

// add records the id. It returns false if the id is already in the history.
func (h *responseHistory) add(id types.MessageID) bool {
	h.Lock()
	defer h.Unlock()

	_, seen := h.ids.Get(id)
	if seen {
		return false
	}

	h.ids.Set(id, struct{}{})
	for h.ids.Len() > h.capacity {
		h.ids.Delete(h.ids.Front().Key)
	}

	return true
}

func (h *responseHistory) len() int {
	h.Lock()
	defer h.Unlock()

	return h.ids.Len()
}
