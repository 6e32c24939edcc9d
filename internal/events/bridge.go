package events

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/JaimeStill/refine/internal/stages"
	"github.com/JaimeStill/refine/internal/workbench"
	"github.com/JaimeStill/refine/pkg/lifecycle"
	"github.com/JaimeStill/refine/pkg/reactive"
)

// Status is the pipeline snapshot published to <prefix>.status.
type Status struct {
	DocumentID     string                         `json:"document_id,omitempty"`
	SessionID      *uuid.UUID                     `json:"session_id,omitempty"`
	IsGenerating   bool                           `json:"is_generating"`
	IterationCount int                            `json:"iteration_count"`
	Stages         map[stages.Stage]stages.Status `json:"stages"`
}

// StatusSubject returns the subject status snapshots are published to.
func StatusSubject(prefix string) string {
	return prefix + ".status"
}

// ResultSubject returns the subject results of stage are published to.
func ResultSubject(prefix string, stage stages.Stage) string {
	return prefix + ".result." + string(stage)
}

// Bridge publishes store changes. Results already in history when the bridge
// starts, or loaded later from a stored session, are not published.
type Bridge struct {
	store   *workbench.Store
	pub     Publisher
	prefix  string
	started time.Time
	logger  *slog.Logger

	mu          sync.Mutex
	published   map[uuid.UUID]struct{}
	lastStatus  []byte
	unsubscribe func()
}

// NewBridge creates a Bridge publishing under prefix.
func NewBridge(store *workbench.Store, pub Publisher, prefix string, logger *slog.Logger) *Bridge {
	return &Bridge{
		store:     store,
		pub:       pub,
		prefix:    prefix,
		started:   time.Now().UTC(),
		published: make(map[uuid.UUID]struct{}),
		logger:    logger.With("system", "events"),
	}
}

// Watch subscribes the bridge to the pipeline and history slices.
func (b *Bridge) Watch() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.unsubscribe != nil {
		return
	}
	b.unsubscribe = b.store.Subscribe(
		[]reactive.Slice{workbench.SlicePipeline, workbench.SliceHistory},
		b.publish,
	)
}

// Close stops the bridge.
func (b *Bridge) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.unsubscribe != nil {
		b.unsubscribe()
		b.unsubscribe = nil
	}
}

// Start watches the store until shutdown.
func (b *Bridge) Start(lc *lifecycle.Coordinator) error {
	b.Watch()
	lc.OnShutdown(func() {
		<-lc.Context().Done()
		b.Close()
	})
	return nil
}

func (b *Bridge) publish() {
	st, ok := b.store.Snapshot()
	if !ok {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.publishStatus(&st)
	b.publishResults(st.IterationHistory)
}

func (b *Bridge) publishStatus(st *workbench.State) {
	status := Status{
		IsGenerating:   st.IsGenerating,
		IterationCount: st.IterationCount,
		Stages:         st.StageStatus,
	}
	if st.Document != nil {
		status.DocumentID = st.Document.ID
	}
	if st.ActiveSessionID != uuid.Nil {
		id := st.ActiveSessionID
		status.SessionID = &id
	}

	data, err := json.Marshal(status)
	if err != nil {
		b.logger.Error("encode status failed", "error", err)
		return
	}
	if bytes.Equal(data, b.lastStatus) {
		return
	}

	if err := b.pub.Publish(StatusSubject(b.prefix), data); err != nil {
		b.logger.Warn("publish status failed", "error", err)
		return
	}
	b.lastStatus = data
}

func (b *Bridge) publishResults(history []stages.Result) {
	for _, r := range history {
		if _, ok := b.published[r.ID]; ok {
			continue
		}
		b.published[r.ID] = struct{}{}

		if r.Timestamp.Before(b.started) {
			continue
		}

		data, err := json.Marshal(r)
		if err != nil {
			b.logger.Error("encode result failed", "id", r.ID, "error", err)
			continue
		}
		if err := b.pub.Publish(ResultSubject(b.prefix, r.Stage), data); err != nil {
			b.logger.Warn("publish result failed", "id", r.ID, "stage", r.Stage, "error", err)
		}
	}
}
