package pulse

import (
	"github.com/dustin/go-humanize"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/teranos/pwcmeta/errors"
	"github.com/teranos/pwcmeta/logger"
)

// perWorkerBytes is a rough ceiling for one in-flight item: decoded API
// responses plus the statement slice before it reaches disk.
const perWorkerBytes = 64 << 20

// memoryStats is swapped in tests.
var memoryStats = func() (total, available uint64, err error) {
	v, err := mem.VirtualMemory()
	if err != nil {
		return 0, 0, errors.Wrap(err, "failed to get memory stats")
	}
	return v.Total, v.Available, nil
}

// checkMemory warns when the configured worker count could exceed available
// memory. It never blocks a run.
func (wp *WorkerPool) checkMemory(workers int) {
	_, available, err := memoryStats()
	if err != nil {
		wp.logger.Debugw("Memory check unavailable", logger.FieldError, err)
		return
	}
	need := uint64(workers) * perWorkerBytes
	if available < need {
		wp.logger.Warnw("Worker count may exceed available memory",
			"workers", workers,
			"available", humanize.IBytes(available),
			"estimated", humanize.IBytes(need))
	}
}
