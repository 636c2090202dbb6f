package utils

import "time"

// FormatClock renders a Unix-millisecond timestamp as a local HH:MM clock
// time, the way case report times are displayed.
func FormatClock(unixMillis int64) string {
	return time.UnixMilli(unixMillis).Local().Format("15:04")
}
