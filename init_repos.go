// Package main: Repository katmanı başlatma.
package main

import (
	"database/sql"

	"github.com/akinalp/chatflow/repository"
)

// Repositories, repository instance'larını tutan container struct.
type Repositories struct {
	File repository.FileRepository
}

// initRepositories, SQLite implementasyonlarını aynı bağlantı havuzu ile oluşturur.
func initRepositories(conn *sql.DB) *Repositories {
	return &Repositories{
		File: repository.NewSQLiteFileRepo(conn),
	}
}
