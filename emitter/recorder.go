package emitter

import (
	"context"
	"sync"

	"github.com/chihqiang/dbxnotify/types"
)

// Recorder keeps emitted intents in memory, deduplicated by key.
// It backs dry runs and tests.
type Recorder struct {
	mu      sync.Mutex
	seen    map[string]struct{}
	intents []types.Intent
	// Err, when set, fails every Emit without recording.
	Err error
}

var _ Emitter = (*Recorder)(nil)

func NewRecorder() *Recorder {
	return &Recorder{seen: map[string]struct{}{}}
}

func (r *Recorder) Emit(_ context.Context, intents ...types.Intent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}
	for _, intent := range intents {
		key, err := intent.Key()
		if err != nil {
			return err
		}
		if _, ok := r.seen[key]; ok {
			continue
		}
		r.seen[key] = struct{}{}
		r.intents = append(r.intents, intent)
	}
	return nil
}

// Intents returns a copy of what was recorded, in emission order.
func (r *Recorder) Intents() []types.Intent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]types.Intent(nil), r.intents...)
}

func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seen = map[string]struct{}{}
	r.intents = nil
}
