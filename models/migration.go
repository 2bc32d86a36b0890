package models

import "gorm.io/gorm"

// AllTables lists every persisted model for AutoMigrate.
func AllTables() []any {
	return []any{
		&Restaurant{}, &Auditor{}, &Certification{}, &IssuanceAttempt{}, &User{},
	}
}

func MigrateTable(db *gorm.DB) error {
	return db.AutoMigrate(AllTables()...)
}
