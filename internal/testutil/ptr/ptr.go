// Package ptr provides generic pointer helpers for tests.
package ptr

import "time"

// Bool returns a pointer to v.
func Bool(v bool) *bool { return &v }

// Int64 returns a pointer to v.
func Int64(v int64) *int64 { return &v }

// String returns a pointer to v.
func String(v string) *string { return &v }

// Unix returns a pointer to the epoch seconds of the given UTC date.
func Unix(year int, month time.Month, day int) *int64 {
	v := time.Date(year, month, day, 0, 0, 0, 0, time.UTC).Unix()
	return &v
}
