package io

import (
	"errors"

	"github.com/ezrec/lc3sim/translate"
)

var f = translate.From

var (
	// Console errors
	ErrNoInput = errors.New(f("no input pending"))
	ErrClosed  = errors.New(f("console closed"))
)
