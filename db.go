package main

import (
	"errors"
	"log"
	"os"

	"grader/models"
	"grader/pkg/config"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func openDB(cfg config.Config) (*gorm.DB, error) {
	if cfg.DBDSN == "" {
		return nil, errors.New("DB_DSN is not set. This project requires a Postgres DSN in DB_DSN")
	}
	return gorm.Open(postgres.Open(cfg.DBDSN), &gorm.Config{})
}

// migrateDB creates the tables when migrate is set, then seeds the master
// roles and the admin account. Migration failures are logged and skipped so
// a read-only role can still start the server.
func migrateDB(db *gorm.DB, migrate bool) {
	// Roles first so users can reference them.
	if migrate {
		if err := db.AutoMigrate(&models.Role{}); err != nil {
			log.Printf("migration warning (roles): %v", err)
		}
	}
	seedRoles(db)
	if migrate {
		if err := db.AutoMigrate(&models.User{}); err != nil {
			log.Printf("migration warning (users): %v", err)
		}
		if err := db.AutoMigrate(&models.GradeRecord{}); err != nil {
			log.Printf("migration warning (grade_records): %v", err)
		}
		if err := db.AutoMigrate(&models.GradeItem{}); err != nil {
			log.Printf("migration warning (grade_items): %v", err)
		}
	}
	seedAdmin(db)
}

func seedRoles(db *gorm.DB) {
	for _, r := range models.MasterRoles() {
		var cnt int64
		db.Model(&models.Role{}).Where("name = ?", r.Name).Count(&cnt)
		if cnt == 0 {
			db.Create(&r)
		}
	}
}

func seedAdmin(db *gorm.DB) {
	var count int64
	db.Model(&models.User{}).Where("username = ?", "admin").Count(&count)
	if count > 0 {
		return
	}
	var role models.Role
	if err := db.Where("name = ?", models.RoleAdministrator).First(&role).Error; err != nil {
		log.Printf("failed to find administrator role: %v", err)
		return
	}
	rid := role.ID
	admin := models.User{Username: "admin", RoleID: &rid}
	admin.HashedPassword, _ = bcrypt.GenerateFromPassword([]byte("admin123"), bcrypt.DefaultCost)
	if err := db.Create(&admin).Error; err != nil {
		log.Printf("failed to seed admin: %v", err)
		return
	}
	log.Println("Seeded admin user: username=admin, password=admin123")
}

// ensureUploadBase creates the directory uploaded sheets are kept in.
func ensureUploadBase(base string) {
	if err := os.MkdirAll(base, 0755); err != nil {
		log.Printf("failed to create upload base dir %s: %v", base, err)
	}
}
