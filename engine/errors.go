package engine

import (
	"errors"

	"skillup/core"
)

func isNotFound(err error) bool { return errors.Is(err, core.ErrNotFound) }
