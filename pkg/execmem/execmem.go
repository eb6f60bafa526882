// Package execmem hands out pages that are readable, writable and executable
// at the same time, and gives them back to the operating system.
//
// The mapping primitive is chosen at build time (mmap on unix, VirtualAlloc
// on windows). Callers only see the Provider interface.
package execmem

import (
	stderrors "errors"
	"fmt"
	"unsafe"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/ascrivener/jitseed/pkg/errors"
)

// PageSize is the allocation granularity of the target architecture.
const PageSize = 4096

var (
	// ErrReleased is returned when a region is released a second time.
	ErrReleased = stderrors.New("execmem: region already released")

	// ErrUnsupportedPlatform is the cause of every allocation failure on
	// platforms with no executable memory backend.
	ErrUnsupportedPlatform = stderrors.New("execmem: no executable memory backend for this platform")
)

// Provider reserves and releases executable memory.
type Provider interface {
	// Reserve maps at least n bytes, rounded up to a whole number of pages.
	Reserve(n int) (*Region, error)
	// Release unmaps r. A region must be released exactly once.
	Release(r *Region) error
}

// Region is one OS-level read+write+execute allocation. It is owned by a
// single holder; Bytes must not be used after the region is released.
type Region struct {
	mem      []byte
	size     int
	released bool
}

// NewRegion wraps memory obtained by a Provider implementation.
func NewRegion(mem []byte) *Region {
	return &Region{mem: mem, size: len(mem)}
}

// Addr returns the base address, or 0 once released.
func (r *Region) Addr() uintptr {
	if r.released || len(r.mem) == 0 {
		return 0
	}
	return uintptr(unsafe.Pointer(&r.mem[0]))
}

// Size returns the mapped size in bytes (a multiple of PageSize).
func (r *Region) Size() int {
	return r.size
}

// Bytes returns a writable view of the region, or nil once released.
func (r *Region) Bytes() []byte {
	if r.released {
		return nil
	}
	return r.mem
}

// Released reports whether the region has been handed back.
func (r *Region) Released() bool {
	return r.released
}

// markReleased records that the region's pages were returned to the OS. Only
// the provider that unmapped them may call it.
func (r *Region) markReleased() {
	r.released = true
	r.mem = nil
}

// RoundUp rounds n up to the next multiple of PageSize. Anything below one
// page becomes one page.
func RoundUp(n int) int {
	if n <= 0 {
		return PageSize
	}
	return ((n-1)/PageSize + 1) * PageSize
}

type metrics struct {
	reservedBytes prometheus.Gauge
	reservations  prometheus.Counter
	releases      prometheus.Counter
	failures      prometheus.Counter
}

func newMetrics(reg prometheus.Registerer) *metrics {
	return &metrics{
		reservedBytes: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "jit_execmem_reserved_bytes",
			Help: "Bytes of executable memory currently mapped.",
		}),
		reservations: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "jit_execmem_reservations_total",
			Help: "Total number of successful executable memory reservations.",
		}),
		releases: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "jit_execmem_releases_total",
			Help: "Total number of executable memory regions released.",
		}),
		failures: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "jit_execmem_reservation_failures_total",
			Help: "Total number of executable memory reservations refused by the OS.",
		}),
	}
}

// Option configures an OSProvider.
type Option func(*OSProvider)

// WithLogger sets the logger used for reserve/release events.
func WithLogger(logger log.Logger) Option {
	return func(p *OSProvider) {
		p.logger = logger
	}
}

// WithRegisterer registers the provider's metrics with reg.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(p *OSProvider) {
		p.reg = reg
	}
}

// OSProvider is the Provider backed by the platform mapping primitive.
type OSProvider struct {
	logger  log.Logger
	reg     prometheus.Registerer
	metrics *metrics
}

// NewProvider returns the provider for the platform this binary was built for.
func NewProvider(opts ...Option) *OSProvider {
	p := &OSProvider{
		logger: log.NewNopLogger(),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.metrics = newMetrics(p.reg)
	return p
}

// Reserve maps RoundUp(n) bytes of anonymous, private RWX memory.
func (p *OSProvider) Reserve(n int) (*Region, error) {
	size := RoundUp(n)

	mem, err := mapExecutable(size)
	if err != nil {
		p.metrics.failures.Inc()
		level.Warn(p.logger).Log("msg", "executable memory reservation refused", "size", size, "err", err)
		return nil, errors.WrapAllocationError(err, size)
	}

	p.metrics.reservations.Inc()
	p.metrics.reservedBytes.Add(float64(size))
	r := NewRegion(mem)
	level.Debug(p.logger).Log("msg", "reserved executable memory", "size", size, "addr", fmt.Sprintf("%#x", r.Addr()))
	return r, nil
}

// Release unmaps r. Releasing the same region twice returns ErrReleased and
// leaves the OS untouched.
func (p *OSProvider) Release(r *Region) error {
	if r == nil || r.released {
		return ErrReleased
	}

	addr := r.Addr()
	if err := unmapExecutable(r.mem); err != nil {
		return fmt.Errorf("release executable memory at %#x: %w", addr, err)
	}
	size := r.size
	r.markReleased()

	p.metrics.releases.Inc()
	p.metrics.reservedBytes.Sub(float64(size))
	level.Debug(p.logger).Log("msg", "released executable memory", "size", size, "addr", fmt.Sprintf("%#x", addr))
	return nil
}
