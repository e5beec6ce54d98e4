package utils

import "gorm.io/gorm"

// DBOption lets a repository call run against a transaction handle instead
// of the root connection. Repositories accept `opts ...DBOption` and apply
// them before building queries.
type DBOption func(*gorm.DB) *gorm.DB

// WithTx substitutes the given transaction for the repository's own handle.
func WithTx(tx *gorm.DB) DBOption {
	return func(*gorm.DB) *gorm.DB {
		return tx
	}
}

func ApplyOptions(db *gorm.DB, opts ...DBOption) *gorm.DB {
	for _, opt := range opts {
		db = opt(db)
	}
	return db
}
