package metadata

import (
	"errors"
	"fmt"
)

// ErrCodeTableWithoutDatabase identifies a table scope given without a database.
const ErrCodeTableWithoutDatabase = "TABLE_WITHOUT_DATABASE"

// ContractError reports a lookup the caller was never allowed to make.
type ContractError struct {
	Code    string
	Message string
	Table   string
}

func (e *ContractError) Error() string {
	return fmt.Sprintf("%s: %s (table=%s)", e.Code, e.Message, e.Table)
}

// IsContractError returns true if err is, or wraps, a ContractError.
func IsContractError(err error) bool {
	var ce *ContractError
	return errors.As(err, &ce)
}

// Scope selects where a lookup starts. The zero Scope is global.
type Scope struct {
	Database string
	Table    string
}

// Validate fails fast when Table is set without Database.
func (s Scope) Validate() error {
	if s.Table != "" && s.Database == "" {
		return &ContractError{
			Code:    ErrCodeTableWithoutDatabase,
			Message: "cannot look up metadata with a table but no database",
			Table:   s.Table,
		}
	}
	return nil
}

// Resolve returns the value of key from the first scope defining it.
// scopes are ordered innermost first. Without fallback only scopes[0] is
// consulted.
func Resolve(key string, scopes []map[string]any, fallback bool) (any, bool) {
	for _, scope := range searchList(scopes, fallback) {
		if v, ok := scope[key]; ok {
			return v, true
		}
	}
	return nil, false
}

// Merge folds scopes outer-to-inner so inner keys win.
// scopes are ordered innermost first. Without fallback only scopes[0] is used.
func Merge(scopes []map[string]any, fallback bool) map[string]any {
	list := searchList(scopes, fallback)
	merged := make(map[string]any)
	for i := len(list) - 1; i >= 0; i-- {
		for k, v := range list[i] {
			merged[k] = v
		}
	}
	return merged
}

func searchList(scopes []map[string]any, fallback bool) []map[string]any {
	if !fallback && len(scopes) > 1 {
		return scopes[:1]
	}
	return scopes
}
