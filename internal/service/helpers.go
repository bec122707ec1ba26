// Package service implements the use cases of the planning engine: session
// supervision, the agent planning loop, tool dispatch, artifact management,
// retrieval brokering, and background ingestion.
package service

import (
	"errors"

	"github.com/planforge/planforge/internal/domain"
)

func isNotFound(err error) bool {
	return errors.Is(err, domain.ErrNotFound)
}
