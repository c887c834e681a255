package hal

// Elapsed reports whether the deadline has been reached, tolerating
// a wrap of the millisecond counter.
func Elapsed(now, deadline uint32) bool {
	return int32(now-deadline) >= 0
}

// Pending is the inverse of Elapsed.
func Pending(now, deadline uint32) bool {
	return !Elapsed(now, deadline)
}
