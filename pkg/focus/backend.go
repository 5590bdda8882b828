package focus

import(
	"fmt"
	"log"
	"sort"
	"sync"

	"github.com/abworrall/focus-stack/pkg/emath"
)

const(
	KindCPU = "cpu"
	KindGPU = "gpu"
)

// A Level is a pyramid level as a backend holds it. For the host backend
// it is the *emath.FloatImage itself; device backends hand out their own
// handles to levels held in device memory.
type Level interface {
	Dims() (w, h, c int)
}

// A Backend runs the per-pixel kernels of a fusion. Levels go in with
// Upload, and come back out with Download; in between, they stay
// wherever the backend keeps them.
type Backend interface {
	Name() string

	Upload(fi *emath.FloatImage) (Level, error)
	Download(l Level) (*emath.FloatImage, error)
	Release(l Level)

	// ComputeFocusMap compares the luminance of two same shaped levels
	ComputeFocusMap(a, b Level, k int) (*Map, error)

	// FuseLevel copies src into dst wherever m selects B, and returns the
	// result. dst is consumed: it may be overwritten, and the caller must
	// only use the returned level from then on.
	FuseLevel(dst, src Level, m *Map) (Level, error)
}

// A Device is something that can run the focus kernels away from the
// host, e.g. a GPU. Devices are looked up by id.
type Device interface {
	Name() string

	Upload(w, h, c int, pix []float32) (Level, error)
	Download(l Level, pix []float32) error
	Free(l Level)

	// FocusSelect fills in sel (w*h, row major) for the two levels
	FocusSelect(a, b Level, k int, sel []uint8) error

	// Select overwrites dst with src wherever sel is nonzero
	Select(dst, src Level, sel []uint8) error
}

var(
	devicesMu sync.RWMutex
	devices   = map[int]Device{}
)

// RegisterDevice makes a device available to NewBackend under id. A nil
// device removes any device registered under id.
func RegisterDevice(id int, d Device) {
	devicesMu.Lock()
	defer devicesMu.Unlock()
	if d == nil {
		delete(devices, id)
		return
	}
	devices[id] = d
}

// LookupDevice returns the device registered under id, or nil
func LookupDevice(id int) Device {
	devicesMu.RLock()
	defer devicesMu.RUnlock()
	return devices[id]
}

// DeviceIDs lists the registered device ids, in order
func DeviceIDs() []int {
	devicesMu.RLock()
	defer devicesMu.RUnlock()
	ids := []int{}
	for id := range devices {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

// NewBackend picks the backend for a run. kind is "cpu" (or empty) for
// the host backend, or "gpu" for the device registered under deviceID;
// if there is no such device, the fallback to the host backend is logged
// and the host backend is returned. workers bounds the host pool (<= 0
// means one per CPU).
func NewBackend(kind string, deviceID, workers int) (Backend, error) {
	switch kind {
	case "", KindCPU:
		return NewHostBackend(workers), nil

	case KindGPU:
		if d := LookupDevice(deviceID); d != nil {
			return NewDeviceBackend(d), nil
		}
		log.Printf("focus: no GPU device %d (have %v), falling back to the host backend\n", deviceID, DeviceIDs())
		return NewHostBackend(workers), nil
	}

	return nil, fmt.Errorf("backend '%s': unknown kind", kind)
}

func checkLevels(a, b Level) error {
	aw, ah, ac := a.Dims()
	bw, bh, bc := b.Dims()
	if aw != bw || ah != bh || ac != bc {
		return fmt.Errorf("levels %dx%dx%d vs %dx%dx%d: %w", aw, ah, ac, bw, bh, bc, ErrShape)
	}
	return nil
}

func checkMap(l Level, m *Map) error {
	w, h, _ := l.Dims()
	if m == nil || m.W != w || m.H != h {
		return fmt.Errorf("map for %dx%d level: %w", w, h, ErrShape)
	}
	return nil
}
