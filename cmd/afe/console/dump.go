package console

import "github.com/l0nax/go-spew/spew"

var pprint = spew.ConfigState{
	Indent:                  "\t",
	DisablePointerAddresses: true,
	DisableCapacities:       true,
	ContinueOnMethod:        true,
	SortKeys:                true,
	HighlightValues:         true,
	HighlightHex:            true,
}

// Dump pretty prints values with their String methods and raw fields.
func Dump(values ...interface{}) {
	pprint.Fdump(writer, values...)
}
