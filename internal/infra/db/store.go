package db

import (
	"fmt"
	"log"

	"seald/internal/config"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

type Store struct {
	DB *gorm.DB
}

func NewStore(cfg config.Config) (*Store, error) {
	if cfg.PostgresDSN == "" {
		log.Printf("POSTGRES_DSN not set; starting in no-db mode.")
		return &Store{DB: nil}, nil
	}

	gdb, err := gorm.Open(postgres.Open(cfg.PostgresDSN), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	return &Store{DB: gdb}, nil
}

// Migrate creates the schema for a fresh database.
func (s *Store) Migrate() error {
	if s == nil || s.DB == nil {
		return nil
	}
	return s.DB.AutoMigrate(
		&ShipmentModel{},
		&DocumentModel{},
		&AuditEventModel{},
	)
}
