package collector

import "errors"

var errNoProduct = errors.New("collector: project has no product")
