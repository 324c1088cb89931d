package afetest

import "errors"

var ErrNack = errors.New("address not acknowledged")
