package chat

import "time"

// FormatChatTime renders t relative to now the way conversation lists show it:
// a clock time for today, "Yesterday", a short date within the year, and a
// full date otherwise.
func FormatChatTime(t, now time.Time) string {
	if t.IsZero() {
		return ""
	}
	t = t.In(now.Location())

	y, m, d := now.Date()
	today := time.Date(y, m, d, 0, 0, 0, 0, now.Location())
	yesterday := today.AddDate(0, 0, -1)

	switch {
	case !t.Before(today) && t.Before(today.AddDate(0, 0, 1)):
		return t.Format("3:04 PM")
	case !t.Before(yesterday) && t.Before(today):
		return "Yesterday"
	case t.Year() == y:
		return t.Format("Jan 2")
	default:
		return t.Format("Jan 2, 2006")
	}
}
