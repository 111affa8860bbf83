package main

import "time"

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func formatDay(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format("2006-01-02")
}
