package stack

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/abworrall/focus-stack/pkg/register"
)

// A Frame records what happened to one input image during a run
type Frame struct {
	LoadFilename  string
	Index         int            // 1-based position in the stack
	ArchiveID     string         // set if the pyramid went via a store

	register.Shift               // How the image was moved to line up with the first one

	Elapsed       time.Duration
}

func (f Frame)String() string {
	str := fmt.Sprintf("%3d %s: %s, %.2fs", f.Index, f.Filename(), f.Shift, f.Elapsed.Seconds())
	if f.ArchiveID != "" {
		str += ", archive " + f.ArchiveID
	}
	return str
}

func (f Frame)Filename() string {
	return filepath.Base(f.LoadFilename)
}
