package locktable

import (
	"context"
	"strconv"
	"sync/atomic"
)

// lockEntry is the canonical lock for one key.
type lockEntry[K comparable] struct {
	key K

	// sem is a one-slot semaphore: a token in the channel means "held".
	// A channel (rather than sync.Mutex) lets Lock honour ctx cancellation.
	sem chan struct{}

	// refs counts live handles (holders and waiters). Guarded by the shard mutex.
	refs int

	// depth counts nested holds. Only touched by the current holder.
	depth int

	// owner is the logical owner of the current hold (nil if untagged).
	owner atomic.Pointer[Owner]
}

func newLockEntry[K comparable](key K) *lockEntry[K] {
	return &lockEntry[K]{key: key, sem: make(chan struct{}, 1)}
}

// handle is the Handle implementation returned by table.GetLock.
type handle[K comparable] struct {
	t        *table[K]
	e        *lockEntry[K]
	depth    int // holds taken through this handle
	released bool
}

func (h *handle[K]) Lock(ctx context.Context) error {
	h.mustBeLive()
	if h.depth > 0 {
		h.reenter()
		return nil
	}
	o := OwnerFrom(ctx)
	if o != nil && h.e.owner.Load() == o {
		h.reenter()
		return nil
	}

	select {
	case h.e.sem <- struct{}{}:
	default:
		select {
		case h.e.sem <- struct{}{}:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	h.acquired(o)
	return nil
}

func (h *handle[K]) TryLock() bool {
	h.mustBeLive()
	if h.depth > 0 {
		h.reenter()
		return true
	}
	select {
	case h.e.sem <- struct{}{}:
		h.acquired(nil)
		return true
	default:
		return false
	}
}

func (h *handle[K]) Unlock() {
	if h.depth == 0 {
		panic("locktable: unlock of unlocked handle")
	}
	h.depth--
	h.e.depth--
	if h.e.depth == 0 {
		h.e.owner.Store(nil)
		<-h.e.sem
	}
}

func (h *handle[K]) Held() bool { return h.depth > 0 }

func (h *handle[K]) Release() {
	if h.released {
		return
	}
	if h.depth > 0 {
		panic("locktable: release of held handle")
	}
	h.released = true
	h.t.release(h.e)
}

func (h *handle[K]) acquired(o *Owner) {
	h.e.depth = 1
	h.depth = 1
	if o != nil {
		h.e.owner.Store(o)
	}
}

func (h *handle[K]) reenter() {
	h.depth++
	h.e.depth++
}

func (h *handle[K]) mustBeLive() {
	if h.released {
		panic("locktable: use of released handle")
	}
}

// Owner identifies a logical lock holder (the Go stand-in for "the same
// thread"). Carry it through a call chain with WithOwner.
type Owner struct{ id uint64 }

var ownerSeq atomic.Uint64

// NewOwner returns a fresh, unique owner.
func NewOwner() *Owner { return &Owner{id: ownerSeq.Add(1)} }

// ID returns the owner's unique id.
func (o *Owner) ID() uint64 { return o.id }

func (o *Owner) String() string { return "owner-" + strconv.FormatUint(o.id, 10) }

type ownerKey struct{}

// WithOwner returns a context carrying o.
func WithOwner(ctx context.Context, o *Owner) context.Context {
	return context.WithValue(ctx, ownerKey{}, o)
}

// OwnerFrom returns the owner carried by ctx, or nil.
func OwnerFrom(ctx context.Context) *Owner {
	if ctx == nil {
		return nil
	}
	o, _ := ctx.Value(ownerKey{}).(*Owner)
	return o
}
