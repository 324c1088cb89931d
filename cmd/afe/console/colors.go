package console

import "github.com/fatih/color"

var (
	Red    = color.New(color.FgRed).SprintFunc()
	Green  = color.New(color.FgGreen).SprintFunc()
	Yellow = color.New(color.FgYellow).SprintFunc()
	// Value highlights measured and programmed quantities.
	Value   = color.New(color.FgHiWhite, color.Bold).SprintFunc()
	address = color.New(color.FgCyan).SprintfFunc()
)

// Address renders a 7-bit device address the way probe and scan tables
// print it.
func Address(a byte) string {
	return address("%#02x", a)
}

// Status renders the outcome of a device probe.
func Status(err error) string {
	if err != nil {
		return Red(err)
	}
	return Green("ok")
}
