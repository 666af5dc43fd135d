package domain

import "errors"

// Ошибки доменной модели.
var (
	// ErrIllegalTransition — недопустимый переход статуса.
	ErrIllegalTransition = errors.New("illegal status transition")
)
