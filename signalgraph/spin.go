package signalgraph

import "runtime"

// spinPause yields the processor briefly; Go has no portable PAUSE
// intrinsic exposed to user code, so runtime.Gosched is the idiomatic
// stand-in the teacher's own spin-wait loops use (e.g. eventloop's
// fast-path retry loops in loop.go).
func spinPause() {
	runtime.Gosched()
}
