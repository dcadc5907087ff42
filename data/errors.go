package data

import (
	"database/sql"
	"errors"

	"gorm.io/gorm"
)

// IsNotFound reports a lookup that matched no row. Such errors are an
// expected outcome, not a failure worth logging.
func IsNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound) || errors.Is(err, sql.ErrNoRows)
}
