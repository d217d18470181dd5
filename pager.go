package haven

import "sync"

// Fixed page sizes per resource type. loadFirst and loadMore must agree on
// the size for a given key or the range arithmetic skips or duplicates rows.
const (
	pageSizeMessages        = 30
	pageSizeChannelMessages = 50
	pageSizePosts           = 20
)

// pager tracks per-resource page counters for backward history loading. After
// the first page load the counter for a key is 1; each further non-empty page
// advances it by one. An empty page leaves the counter unchanged, so a retry
// is harmless.
type pager struct {
	mu    sync.Mutex
	pages map[string]int
}

func newPager() *pager {
	return &pager{pages: make(map[string]int)}
}

// reset records a completed first-page load.
func (p *pager) reset(key string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pages[key] = 1
}

// next returns the offset and limit of the next page for key.
func (p *pager) next(key string, size int) (offset, limit int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	page := p.pages[key]
	if page == 0 {
		page = 1
	}
	return page * size, size
}

// advance bumps the page counter after a non-empty page was appended.
func (p *pager) advance(key string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	page := p.pages[key]
	if page == 0 {
		page = 1
	}
	p.pages[key] = page + 1
}
