package database

import (
	"log"

	"gorm.io/gorm"
)

func InitDatabase(dbConfig *DatabaseConfig) (*gorm.DB, error) {
	db, err := NewConnection(dbConfig)
	if err != nil {
		log.Printf("Failed to connect to the database: %v", err)
		return nil, err
	}

	return db, nil
}
