package emath

import(
	"runtime"
	"sync"
)

// rowsPerJob keeps the jobs big enough that channel traffic doesn't matter
const rowsPerJob = 16

type rowJob struct {
	y0, y1 int
}

// ParallelRows splits [0,height) into bands of rows, and uses a pool of
// goroutines to call fn on each band. It returns when every band is
// done. If workers <= 0, one worker per CPU is used. fn must only write
// to the rows it is given.
func ParallelRows(height, workers int, fn func(y0, y1 int)) {
	if height <= 0 {
		return
	}
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	nJobs := (height + rowsPerJob - 1) / rowsPerJob
	if workers > nJobs {
		workers = nJobs
	}
	if workers == 1 {
		fn(0, height)
		return
	}

	var wg sync.WaitGroup
	jobsChan := make(chan rowJob, nJobs)

	// Kick off worker pool
	for i:=0; i<workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for job := range jobsChan {
				fn(job.y0, job.y1)
			}
		}()
	}

	// Feed in jobs
	for y:=0; y<height; y+=rowsPerJob {
		y1 := y + rowsPerJob
		if y1 > height {
			y1 = height
		}
		jobsChan<- rowJob{y, y1}
	}

	close(jobsChan)
	wg.Wait()
}
