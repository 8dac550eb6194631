package utils

// SafeDeref safely dereferences a string pointer and returns empty string if nil
func SafeDeref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// SafeDerefInt32 safely dereferences an int32 pointer and returns 0 if nil
func SafeDerefInt32(i *int32) int32 {
	if i == nil {
		return 0
	}
	return *i
}
