package app

import (
	"github.com/tokonoko12/playdeck/internal/ports"
)

var ErrNotFound = ports.ErrNotFound
