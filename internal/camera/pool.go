package camera

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrUnknownViewpoint reports an id outside the pool.
	ErrUnknownViewpoint = errors.New("unknown viewpoint")
	// ErrEmptyPool reports an operation that needs at least one viewpoint.
	ErrEmptyPool = errors.New("viewpoint pool is empty")
)

// PoolOptions configure the one-time initialisation applied to every viewpoint.
type PoolOptions struct {
	// FarClip overrides every viewpoint's far plane when positive.
	FarClip float64
	// Channels names the auxiliary capture passes created per viewpoint.
	Channels []string
}

// Pool owns the session's candidate viewpoints. At most one is active; the
// active viewpoint's pre-activation pose is remembered and restored the moment
// it is deactivated. A Pool is not safe for concurrent use.
type Pool struct {
	viewpoints []*Viewpoint
	active     *Viewpoint
}

// NewPool takes ownership of the viewpoints, assigns ids by position and
// performs static initialisation (far plane, auxiliary channels). Nil entries
// are dropped. An empty pool is valid; the director reports it as having no
// candidates.
func NewPool(viewpoints []*Viewpoint, opts PoolOptions) *Pool {
	pool := &Pool{viewpoints: make([]*Viewpoint, 0, len(viewpoints))}
	for _, v := range viewpoints {
		if v == nil {
			continue
		}
		//1.- Stable ids let change notifications and capture folders refer to viewpoints by index.
		v.ID = len(pool.viewpoints)
		if strings.TrimSpace(v.Name) == "" {
			v.Name = fmt.Sprintf("viewpoint-%d", v.ID)
		}
		if v.FieldOfView <= 0 {
			v.FieldOfView = DefaultFieldOfView
		}
		if v.Aspect <= 0 {
			v.Aspect = DefaultAspect
		}
		if v.Near <= 0 {
			v.Near = DefaultNear
		}
		if opts.FarClip > 0 {
			v.Far = opts.FarClip
		} else if v.Far <= 0 {
			v.Far = DefaultFar
		}
		//2.- Auxiliary channels start disabled and mirror the base field of view.
		v.Channels = v.Channels[:0]
		for _, kind := range opts.Channels {
			kind = strings.TrimSpace(kind)
			if kind == "" {
				continue
			}
			v.Channels = append(v.Channels, &Channel{Kind: kind, FieldOfView: v.FieldOfView})
		}
		v.active = false
		pool.viewpoints = append(pool.viewpoints, v)
	}
	return pool
}

// Len returns the number of viewpoints.
func (p *Pool) Len() int {
	if p == nil {
		return 0
	}
	return len(p.viewpoints)
}

// All returns the viewpoints in id order. The slice is a copy; the viewpoints are shared.
func (p *Pool) All() []*Viewpoint {
	if p == nil {
		return nil
	}
	return append([]*Viewpoint(nil), p.viewpoints...)
}

// Get returns the viewpoint with the given id.
func (p *Pool) Get(id int) (*Viewpoint, error) {
	if p == nil || id < 0 || id >= len(p.viewpoints) {
		return nil, fmt.Errorf("%w: %d", ErrUnknownViewpoint, id)
	}
	return p.viewpoints[id], nil
}

// First returns the lowest-id viewpoint.
func (p *Pool) First() (*Viewpoint, error) {
	if p.Len() == 0 {
		return nil, ErrEmptyPool
	}
	return p.viewpoints[0], nil
}

// Active returns the active viewpoint, or nil before the first activation.
func (p *Pool) Active() *Viewpoint {
	if p == nil {
		return nil
	}
	return p.active
}

// Activate makes id the active viewpoint. The previous one is deactivated and
// restored first, then the new viewpoint's current pose is remembered as its
// baseline, prepare (if any) may reorient it, and only then is it flagged active.
func (p *Pool) Activate(id int, prepare func(*Viewpoint)) (*Viewpoint, error) {
	next, err := p.Get(id)
	if err != nil {
		return nil, err
	}
	p.Deactivate()
	next.baseline = next.Pose()
	if prepare != nil {
		prepare(next)
	}
	next.active = true
	for _, channel := range next.Channels {
		channel.Enabled = true
	}
	p.active = next
	return next, nil
}

// Deactivate restores the active viewpoint to its pre-activation pose and clears
// the active slot. Calling it with nothing active is a no-op.
func (p *Pool) Deactivate() {
	if p == nil || p.active == nil {
		return
	}
	prev := p.active
	prev.Restore(prev.baseline)
	prev.active = false
	for _, channel := range prev.Channels {
		channel.Enabled = false
	}
	p.active = nil
}

// Baseline returns the remembered pre-activation pose of the active viewpoint.
func (p *Pool) Baseline() (Pose, bool) {
	if p == nil || p.active == nil {
		return Pose{}, false
	}
	return p.active.baseline, true
}
