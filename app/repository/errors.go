package repository

import (
	"errors"
	"fmt"

	"github.com/ManuelReschke/TrialFunnel/internal/pkg/apperror"
	"gorm.io/gorm"
)

// notFound translates gorm's record-not-found into the domain sentinel.
func notFound(err error, what string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%s: %w", what, apperror.ErrNotFound)
	}
	return err
}
