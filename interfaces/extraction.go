package interfaces

type ControlNumberExtractor interface {
	// Extract returns the control number and whether one was found.
	Extract(subject string, patterns []string) (string, bool)
}
