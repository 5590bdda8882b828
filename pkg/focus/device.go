package focus

import(
	"fmt"

	"github.com/abworrall/focus-stack/pkg/emath"
)

// DeviceBackend runs the kernels on a Device. Levels are copied onto the
// device by Upload and stay there, across as many fusion steps as the
// caller likes, until Download copies them back.
type DeviceBackend struct {
	Device Device
}

func NewDeviceBackend(d Device) *DeviceBackend {
	return &DeviceBackend{Device: d}
}

func (db *DeviceBackend)Name() string { return "device:" + db.Device.Name() }

func (db *DeviceBackend)Upload(fi *emath.FloatImage) (Level, error) {
	l, err := db.Device.Upload(fi.W, fi.H, fi.C, fi.Pix)
	if err != nil {
		return nil, fmt.Errorf("upload %s to %s: %w", fi, db.Device.Name(), err)
	}
	return l, nil
}

func (db *DeviceBackend)Download(l Level) (*emath.FloatImage, error) {
	w, h, c := l.Dims()
	fi := emath.NewFloatImage(w, h, c)
	if err := db.Device.Download(l, fi.Pix); err != nil {
		return nil, fmt.Errorf("download %s from %s: %w", fi, db.Device.Name(), err)
	}
	return fi, nil
}

func (db *DeviceBackend)Release(l Level) {
	if l != nil {
		db.Device.Free(l)
	}
}

func (db *DeviceBackend)ComputeFocusMap(a, b Level, k int) (*Map, error) {
	if err := checkLevels(a, b); err != nil {
		return nil, err
	}
	if k < 1 {
		return nil, fmt.Errorf("focus map kernel size %d: must be at least 1", k)
	}
	w, h, _ := a.Dims()
	m := NewMap(w, h)
	if err := db.Device.FocusSelect(a, b, k, m.Sel); err != nil {
		return nil, err
	}
	return m, nil
}

func (db *DeviceBackend)FuseLevel(dst, src Level, m *Map) (Level, error) {
	if err := checkLevels(dst, src); err != nil {
		return nil, err
	}
	if err := checkMap(dst, m); err != nil {
		return nil, err
	}
	if err := db.Device.Select(dst, src, m.Sel); err != nil {
		return nil, err
	}
	return dst, nil
}
