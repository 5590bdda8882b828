package stack

import(
	"fmt"
	"time"
)

// Stage labels carried by progress events
const(
	StageFinishedImage  = "finished_image"
	StageArchived       = "archived_pyramid"
	StageStoredFusion   = "laplacian_pyramid_focus_fusion"
)

// An Event reports that one image has been dealt with. Index counts
// from 1, and the first (reference) image counts.
type Event struct {
	Stage    string
	Index    int
	Total    int
	Elapsed  time.Duration  // time spent on this image alone
}

func (e Event)String() string {
	return fmt.Sprintf("%s [%d/%d] %.2fs", e.Stage, e.Index, e.Total, e.Elapsed.Seconds())
}

// A ProgressSink is told about each image as the run gets through it.
// Progress is called from the goroutine running the stack.
type ProgressSink interface {
	Progress(Event)
}

// SinkFunc lets a plain function act as a ProgressSink
type SinkFunc func(Event)

func (f SinkFunc)Progress(e Event) { f(e) }
