package governor

import (
	"errors"
	"fmt"
	"time"
)

var (
	errCongested       = errors.New("governor: congested, bounded wait exceeded")
	errBudgetExceeded  = errors.New("governor: daily or hourly snapshot budget exceeded")
)

func errCircuitOpen(domain string, until time.Time) error {
	return fmt.Errorf("governor: circuit open for domain %s until %s", domain, until.Format(time.RFC3339))
}
