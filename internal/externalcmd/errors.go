package externalcmd

import (
	"errors"
)

var errTerminated = errors.New("terminated")
