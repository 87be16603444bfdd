package chat

import "time"

// Clock supplies the time used to stamp chat lines.
type Clock func() time.Time

const stampLayout = "15:04:05"

func Timestamp(t time.Time) string {
	return t.Local().Format(stampLayout)
}

// FormatMessage renders a chat line as "[HH:MM:SS] name: text".
func FormatMessage(t time.Time, name, text string) string {
	return "[" + Timestamp(t) + "] " + name + ": " + text
}
