package attendance

import "time"

// SetNowFunc replaces the service clock for tests and returns a restore func.
func SetNowFunc(fn func() time.Time) (restore func()) {
	orig := nowFunc
	nowFunc = fn
	return func() { nowFunc = orig }
}
