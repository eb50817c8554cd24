package utils

// GetOrDefault returns the value if the pointer is not nil, otherwise returns the default value
func GetOrDefault[T any](ptr *T, defaultVal T) T {
	if ptr == nil {
		return defaultVal
	}
	return *ptr
}

func StringPtr(s string) *string {
	return &s
}

// StringPtrOrNil returns nil for empty strings so optional unique columns stay NULL.
func StringPtrOrNil(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
