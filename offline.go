// Offline layer: connectivity probe, durable list cache, and the FIFO write
// queue that holds message/post intents created while disconnected.
//
// The cache and queue persist through a KVStore (sqlite on device, memory in
// tests). Queue mutations go through a single mutex: the underlying storage
// has no atomic append, so read-modify-write of the queue list must be
// serialized within the process.
package haven

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Connectivity reports current online/offline status on demand. The result is
// never cached between calls.
type Connectivity interface {
	Online(ctx context.Context) bool
}

// NetProbe is a point-in-time reachability check against the backend health
// endpoint. A failed or erroring probe reads as offline: writes must not be
// attempted on an uncertain link.
type NetProbe struct {
	url        string
	httpClient *http.Client
}

func NewNetProbe(baseURL string) *NetProbe {
	return &NetProbe{
		url:        baseURL + "/health",
		httpClient: &http.Client{Timeout: 3 * time.Second},
	}
}

func (p *NetProbe) Online(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url, nil)
	if err != nil {
		return false
	}
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode < 500
}

// ============================================================================
// Queue items
// ============================================================================

type QueueItemType string

const (
	QueuePost    QueueItemType = "post"
	QueueMessage QueueItemType = "message"
)

// QueueItem is one persisted write intent. Payload stays opaque JSON so the
// queue never has to understand (or migrate) the drafts it carries.
type QueueItem struct {
	Type    QueueItemType   `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// Processor replays one queued payload against the backend.
type Processor func(ctx context.Context, payload json.RawMessage) error

type cacheEntry struct {
	CachedAt int64           `json:"cachedAt"`
	Data     json.RawMessage `json:"data"`
}

const (
	cachePrefix = "cache:"
	queueKey    = "queue"
)

// ============================================================================
// Offline
// ============================================================================

// Offline bundles the durable cache and the offline write queue over one
// KVStore. A single Offline instance is shared by all stores of a client.
type Offline struct {
	store KVStore
	net   Connectivity
	log   *zap.Logger

	// serializes every read-modify-write of the queue list, including a full
	// Flush, so a concurrent Enqueue cannot lose updates
	queueMu sync.Mutex
}

func NewOffline(store KVStore, net Connectivity, log *zap.Logger) *Offline {
	if log == nil {
		log = zap.NewNop()
	}
	return &Offline{store: store, net: net, log: log}
}

// Online reports the current connectivity state.
func (o *Offline) Online(ctx context.Context) bool {
	return o.net.Online(ctx)
}

// ── Cache ────────────────────────────────────────────────

// CacheSet persists data under a namespaced key. Best-effort: any marshal or
// storage fault is logged and swallowed, never surfaced to the caller.
func (o *Offline) CacheSet(ctx context.Context, key string, data any) {
	raw, err := json.Marshal(data)
	if err != nil {
		o.log.Warn("cache marshal failed", zap.String("key", key), zap.Error(err))
		return
	}
	entry, err := json.Marshal(cacheEntry{CachedAt: time.Now().UnixMilli(), Data: raw})
	if err != nil {
		o.log.Warn("cache marshal failed", zap.String("key", key), zap.Error(err))
		return
	}
	if err := o.store.Set(ctx, cachePrefix+key, string(entry)); err != nil {
		o.log.Warn("cache write failed", zap.String("key", key), zap.Error(err))
	}
}

// CacheGet loads a cached value into out, reporting whether anything usable
// was found. Missing keys, storage faults, and parse errors all read as "no
// cached data". The cache enforces no TTL; staleness is the caller's call.
func (o *Offline) CacheGet(ctx context.Context, key string, out any) bool {
	raw, err := o.store.Get(ctx, cachePrefix+key)
	if err != nil {
		o.log.Warn("cache read failed", zap.String("key", key), zap.Error(err))
		return false
	}
	if raw == "" {
		return false
	}
	var entry cacheEntry
	if err := json.Unmarshal([]byte(raw), &entry); err != nil {
		return false
	}
	if err := json.Unmarshal(entry.Data, out); err != nil {
		return false
	}
	return true
}

// ── Queue ────────────────────────────────────────────────

// Enqueue appends one write intent to the persisted queue.
func (o *Offline) Enqueue(ctx context.Context, item QueueItem) error {
	o.queueMu.Lock()
	defer o.queueMu.Unlock()

	items, err := o.readQueue(ctx)
	if err != nil {
		return err
	}
	items = append(items, item)
	return o.writeQueue(ctx, items)
}

// Queued returns a copy of the persisted queue, oldest first.
func (o *Offline) Queued(ctx context.Context) ([]QueueItem, error) {
	o.queueMu.Lock()
	defer o.queueMu.Unlock()
	return o.readQueue(ctx)
}

// Flush replays queued items strictly in enqueue order. Offline, it is a
// no-op and the queue is untouched. An item is dropped once its processor
// succeeds, or when the processor reports a permanent rejection (replaying a
// write the backend will reject again can never succeed). Items failing with
// retryable errors are kept, in their original relative order, for the next
// flush. Flush does not self-schedule; the application triggers it on startup
// and on reconnect.
func (o *Offline) Flush(ctx context.Context, procs map[QueueItemType]Processor) error {
	if !o.net.Online(ctx) {
		return nil
	}

	o.queueMu.Lock()
	defer o.queueMu.Unlock()

	items, err := o.readQueue(ctx)
	if err != nil {
		return err
	}
	if len(items) == 0 {
		return nil
	}

	retained := make([]QueueItem, 0, len(items))
	for _, it := range items {
		proc, ok := procs[it.Type]
		if !ok {
			o.log.Warn("no processor for queued item", zap.String("type", string(it.Type)))
			retained = append(retained, it)
			continue
		}
		if err := proc(ctx, it.Payload); err != nil {
			if IsPermanent(err) {
				o.log.Warn("dropping permanently rejected queue item",
					zap.String("type", string(it.Type)), zap.Error(err))
				continue
			}
			retained = append(retained, it)
		}
	}
	return o.writeQueue(ctx, retained)
}

func (o *Offline) readQueue(ctx context.Context) ([]QueueItem, error) {
	raw, err := o.store.Get(ctx, queueKey)
	if err != nil {
		return nil, err
	}
	if raw == "" {
		return nil, nil
	}
	var items []QueueItem
	if err := json.Unmarshal([]byte(raw), &items); err != nil {
		return nil, err
	}
	return items, nil
}

func (o *Offline) writeQueue(ctx context.Context, items []QueueItem) error {
	if items == nil {
		items = []QueueItem{}
	}
	raw, err := json.Marshal(items)
	if err != nil {
		return err
	}
	return o.store.Set(ctx, queueKey, string(raw))
}
