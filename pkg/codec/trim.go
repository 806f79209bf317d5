package codec

// DefaultMaxLength and DefaultEllipsis are the display bounds used in logs.
const (
	DefaultMaxLength = 75
	DefaultEllipsis  = "..."
)

// Trim shortens text for display. Text of at most maxLength runes is returned
// unchanged, otherwise its prefix of maxLength-len(ellipsis) runes followed by ellipsis.
func Trim(text string, maxLength int, ellipsis string) string {
	runes := []rune(text)
	if len(runes) <= maxLength {
		return text
	}
	keep := max(maxLength-len([]rune(ellipsis)), 0)
	return string(runes[:keep]) + ellipsis
}

// TrimDefault is Trim with the default bounds.
func TrimDefault(text string) string {
	return Trim(text, DefaultMaxLength, DefaultEllipsis)
}
