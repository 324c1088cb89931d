package console

import (
	"fmt"

	"github.com/urfave/cli/v2"
)

// Exit codes of the bus tool. ExitCheckFailed means the command ran but the
// hardware did not pass: a silent device or a foreign EEPROM signature.
const (
	ExitError       = 1
	ExitCheckFailed = 2
)

func Exit(code int, msg string, args ...interface{}) cli.ExitCoder {
	return cli.Exit(fmt.Sprintf(msg, args...), code)
}

// Fail reports err as the cause of what with ExitError.
func Fail(what string, err error) cli.ExitCoder {
	return cli.Exit(fmt.Sprintf("%s: %s", what, Red(err)), ExitError)
}

// Fault reports err alone with ExitError.
func Fault(err error) cli.ExitCoder {
	return cli.Exit(Red(err), ExitError)
}
