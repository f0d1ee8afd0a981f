// Package scopetime ports the source engine's scopeTimingBlock: a
// deferred scope-exit timer used to log slow operations. Grounded on
// the teacher's benchmark helpers in eventloop/performance.go.
package scopetime

import "time"

// StartIfSlow returns a stop function; calling it invokes report with
// the elapsed duration since StartIfSlow was called, but only if that
// duration meets or exceeds threshold. Typical use:
//
//	stop := scopetime.StartIfSlow(50*time.Millisecond, logSlowTask)
//	defer stop()
func StartIfSlow(threshold time.Duration, report func(time.Duration)) func() {
	begin := time.Now()
	return func() {
		if d := time.Since(begin); d >= threshold {
			report(d)
		}
	}
}
