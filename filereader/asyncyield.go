package filereader

import (
	"github.com/BareMetalEngine/bm-core-sub002/taskscheduler"
)

// ReadAsyncYield implements spec §4.6's
// "read_async(task_context, range, dest_ptr) → (bool, bytes_read)":
// a convenience built on the callback variant with a temporary signal,
// parking the calling task's worker (via its Yielder) rather than
// busy-waiting until the read completes.
func ReadAsyncYield(ctx *taskscheduler.Context, r Reader, rng AbsoluteRange, dest []byte) (ok bool, bytesRead int) {
	sched := ctx.Scheduler()
	sg := sched.Signals()
	done := sg.Create(1, "filereader.read_async")

	r.ReadAsync(rng, dest, func(n int) {
		bytesRead = n
		sg.Trip(done, 1)
	})

	sg.WaitWithYield(done, ctx.Yielder())
	return bytesRead >= 0, bytesRead
}
