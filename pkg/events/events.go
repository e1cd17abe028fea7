package events

import (
	"sync"
	"time"

	"github.com/stressforge/harness-go/pkg/log"
	"github.com/stressforge/harness-go/pkg/types"
)

const defaultCapacity = 256

// Recorder keeps a bounded in-memory trail of chaos lifecycle events.
// The oldest entries are dropped once the capacity is reached, so a
// long-running campaign cannot grow the recorder without bound.
type Recorder struct {
	mu       sync.Mutex
	capacity int
	events   []types.EventDetails
}

// NewRecorder returns a Recorder with the default capacity.
func NewRecorder() *Recorder {
	return &Recorder{capacity: defaultCapacity}
}

//SetEventAttributes initialise all the event attributes
func SetEventAttributes(eventsDetails *types.EventDetails, reason, eventType, message, resource string) {
	eventsDetails.Reason = reason
	eventsDetails.Type = eventType
	eventsDetails.Message = message
	eventsDetails.Resource = resource
	eventsDetails.Time = time.Now()
}

//GenerateEvents records the event and mirrors it to the log
func (r *Recorder) GenerateEvents(eventsDetails *types.EventDetails) {
	r.mu.Lock()
	if len(r.events) >= r.capacity {
		r.events = r.events[1:]
	}
	r.events = append(r.events, *eventsDetails)
	r.mu.Unlock()

	log.InfoWithValues("[Event]: "+eventsDetails.Message, map[string]interface{}{
		"Reason":   eventsDetails.Reason,
		"Resource": eventsDetails.Resource,
		"Type":     eventsDetails.Type,
	})
}

// Events returns a copy of the recorded trail in arrival order.
func (r *Recorder) Events() []types.EventDetails {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]types.EventDetails, len(r.events))
	copy(out, r.events)
	return out
}
