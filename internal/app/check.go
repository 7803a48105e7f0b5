package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/roach88/sqlgate/internal/engine"
	"github.com/roach88/sqlgate/internal/querysql"
)

// ErrCodeSpatiaLiteMissing identifies a SpatiaLite database opened without
// the SpatiaLite extension.
const ErrCodeSpatiaLiteMissing = "SPATIALITE_NOT_LOADED"

const spatialIndexMissing = "no such module: VirtualSpatialIndex"

// SanityError reports a database the process cannot serve as configured.
type SanityError struct {
	Code     string
	Message  string
	Database string
	Table    string
	Err      error
}

// Error implements the error interface.
func (e *SanityError) Error() string {
	return fmt.Sprintf("%s: %s (%s.%s)", e.Code, e.Message, e.Database, e.Table)
}

// Unwrap returns the driver error.
func (e *SanityError) Unwrap() error {
	return e.Err
}

// IsSanityError returns true if err is, or wraps, a SanityError.
func IsSanityError(err error) bool {
	var se *SanityError
	return errors.As(err, &se)
}

// SanityCheck reads the column list of every table of every database.
// A table backed by the SpatiaLite virtual index fails with a *SanityError
// explaining that the extension must be loaded; other errors are returned
// as they are.
func (a *App) SanityCheck(ctx context.Context) error {
	for _, database := range a.catalog.Names() {
		tables, err := a.TableNames(ctx, database)
		if err != nil {
			return err
		}
		for _, table := range tables {
			_, err := a.pool.Execute(ctx, engine.Request{
				Database: database,
				SQL:      querysql.TableInfo(table),
			})
			if err != nil {
				return classifySanity(database, table, err)
			}
		}
	}
	return nil
}

func classifySanity(database, table string, err error) error {
	if strings.Contains(err.Error(), spatialIndexMissing) {
		return &SanityError{
			Code: ErrCodeSpatiaLiteMissing,
			Message: "It looks like you're trying to load a SpatiaLite database without first " +
				"loading the SpatiaLite module. Pass --load-extension with the path to mod_spatialite.",
			Database: database,
			Table:    table,
			Err:      err,
		}
	}
	return err
}
