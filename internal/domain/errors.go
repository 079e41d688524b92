package domain

import (
	"fmt"

	"fleettrack/pkg/apperror"
)

func errInvalidGeometry(msg string) error {
	return apperror.New(apperror.CodeInvalidGeometry, msg)
}

func errInvalidTransition(from, to CommandStatus) error {
	return apperror.New(apperror.CodeInvalidTransition,
		fmt.Sprintf("invalid command transition: %s -> %s", from, to))
}
