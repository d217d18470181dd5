package haven

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Default posting-rate windows. The backend enforces the real policy; these
// only shape the advisory gate.
const (
	DefaultMessageWindow = time.Minute
	DefaultPostWindow    = 7 * 24 * time.Hour
)

// Gate is the advisory cooldown check run before a post or channel-message
// write. It consults a local rate limiter first (skipping the round trip when
// this device has just written) and then the backend's last-write-time RPC.
// Enforcement proper lives in the backend; the gate exists to give immediate
// feedback and avoid a doomed request. Two devices of the same user can still
// race past it.
type Gate struct {
	rpc *RPCClient
	log *zap.Logger

	messageWindow time.Duration
	postWindow    time.Duration

	msgLimiter  *rate.Limiter
	postLimiter *rate.Limiter

	now func() time.Time
}

type GateOption func(*Gate)

func WithMessageWindow(w time.Duration) GateOption {
	return func(g *Gate) { g.messageWindow = w }
}

func WithPostWindow(w time.Duration) GateOption {
	return func(g *Gate) { g.postWindow = w }
}

// withClock overrides the gate's time source. Used by tests.
func withClock(now func() time.Time) GateOption {
	return func(g *Gate) { g.now = now }
}

func NewGate(c *Client, opts ...GateOption) *Gate {
	g := &Gate{
		rpc:           c.RPC,
		log:           c.log,
		messageWindow: DefaultMessageWindow,
		postWindow:    DefaultPostWindow,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	g.msgLimiter = rate.NewLimiter(rate.Every(g.messageWindow), 1)
	g.postLimiter = rate.NewLimiter(rate.Every(g.postWindow), 1)
	return g
}

// AllowMessage reports whether userID may send a channel chat message now.
func (g *Gate) AllowMessage(ctx context.Context, userID string) bool {
	return g.allow(ctx, userID, g.msgLimiter, g.messageWindow, g.rpc.LastMessageTime)
}

// AllowPost reports whether userID may create a community post now.
func (g *Gate) AllowPost(ctx context.Context, userID string) bool {
	return g.allow(ctx, userID, g.postLimiter, g.postWindow, g.rpc.LastPostTime)
}

func (g *Gate) allow(
	ctx context.Context, userID string,
	lim *rate.Limiter, window time.Duration,
	lastWrite func(context.Context, string) (time.Time, bool, error),
) bool {
	now := g.now()

	// Local pre-check: if this device wrote inside the window there is no
	// point asking the backend.
	if !lim.AllowN(now, 1) {
		return false
	}

	last, ok, err := lastWrite(ctx, userID)
	if err != nil {
		// Advisory only: fail open and let the backend be the judge.
		g.log.Debug("cooldown rpc failed, permitting", zap.Error(err))
		return true
	}
	if !ok {
		return true // no prior write of this kind
	}
	return now.Sub(last) >= window
}
