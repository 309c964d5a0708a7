package util

func Min(a int, b int) int {
	if a < b {
		return a
	}
	return b
}

// Truncate returns s truncated to at most n characters.
func Truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
