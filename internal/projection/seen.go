package projection

// seenWindow remembers the most recent message ids of one chat.
// Once full, the oldest id is evicted first.
type seenWindow struct {
	ids  []string
	set  map[string]struct{}
	next int
	size int
}

func newSeenWindow(size int) *seenWindow {
	if size < 1 {
		size = 1
	}
	return &seenWindow{
		ids:  make([]string, 0, size),
		set:  make(map[string]struct{}, size),
		size: size,
	}
}

func (w *seenWindow) has(id string) bool {
	_, ok := w.set[id]
	return ok
}

func (w *seenWindow) add(id string) {
	if id == "" || w.has(id) {
		return
	}
	if len(w.ids) < w.size {
		w.ids = append(w.ids, id)
	} else {
		delete(w.set, w.ids[w.next])
		w.ids[w.next] = id
		w.next = (w.next + 1) % w.size
	}
	w.set[id] = struct{}{}
}

func (w *seenWindow) len() int {
	return len(w.ids)
}
