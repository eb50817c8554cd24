package utils

import "time"

func Now() time.Time {
	return time.Now().UTC()
}

func TimePtr(t time.Time) *time.Time {
	return &t
}

// MaxTime returns the later of a and b. A nil a yields b.
func MaxTime(a *time.Time, b time.Time) time.Time {
	if a == nil || b.After(*a) {
		return b
	}
	return *a
}
