package colors

import "fmt"

// ColorFunc is an alias type for a coloring function that accepts anything and returns a colorized string
type ColorFunc = func(s any) string

// Reset is a ColorFunc that simply returns the input as a string. It is basically a no-op and is used for resetting the
// color context during complex logging operations.
func Reset(s any) string {
	return fmt.Sprintf("%v", s)
}

// Bold is a ColorFunc that returns a bolded string of the provided input
func Bold(s any) string {
	return Colorize(s, BOLD)
}

// boldColor returns a ColorFunc colorizing its input with the provided color and bolding it.
func boldColor(c Color) ColorFunc {
	return func(s any) string {
		return Colorize(Colorize(s, c), BOLD)
	}
}

// Bold variants of the colors used for log levels and highlighted output.
var (
	RedBold    = boldColor(RED)
	GreenBold  = boldColor(GREEN)
	YellowBold = boldColor(YELLOW)
	BlueBold   = boldColor(BLUE)
	CyanBold   = boldColor(CYAN)
)
