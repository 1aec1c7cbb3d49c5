package coordinator

import "errors"

var errImmediateTimeout = errors.New("coordinator: immediate path exceeded its deadline")
