package monitor

import (
	"github.com/ezrec/lc3sim/translate"
)

var f = translate.From

// ErrExpression indicates a break condition that could not be evaluated.
type ErrExpression string

func (err ErrExpression) Error() string {
	return f("'%v' is not a break condition", string(err))
}

func (err ErrExpression) Is(target error) (ok bool) {
	_, ok = target.(ErrExpression)
	return
}
