package helpers

// SafeLastN returns the last n elements without reslicing past the start.
func SafeLastN[T any](slice []T, n int) []T {
	if len(slice) > n {
		return slice[len(slice)-n:]
	}
	return slice
}
