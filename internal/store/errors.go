package store

import "errors"

var errUnknownEntity = errors.New("store: entity not found")
var errDuplicateProject = errors.New("store: a project with this name already exists for this user")
