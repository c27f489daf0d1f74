package slot

import "sync"

// RecordingBootFlow is a BootFlow for tests: it
// just remembers which slots were committed, in order, rather than
// doing anything a real boot-loader integration would.
type RecordingBootFlow struct {
	mu        sync.Mutex
	committed []string
}

var _ BootFlow = (*RecordingBootFlow)(nil)

// NewRecordingBootFlow creates an empty RecordingBootFlow.
func NewRecordingBootFlow() *RecordingBootFlow {
	return &RecordingBootFlow{}
}

func (b *RecordingBootFlow) Committed(slot string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.committed = append(b.committed, slot)

	return nil
}

// CommittedSlots returns every slot name reported so far, in commit order.
func (b *RecordingBootFlow) CommittedSlots() []string {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]string, len(b.committed))
	copy(out, b.committed)

	return out
}
