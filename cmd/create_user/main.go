package main

import (
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"grader/models"
	"grader/pkg/config"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

const minPasswordLen = 6

var errUserExists = errors.New("user already exists")

func main() {
	admin := flag.Bool("admin", false, "give a new user the administrator role (may edit the answer key)")
	reset := flag.Bool("reset", false, "set a new password for an existing user instead of creating one")
	flag.Parse()
	if flag.NArg() < 2 {
		fmt.Println("usage: go run ./cmd/create_user [-admin] [-reset] <username> <password>")
		os.Exit(2)
	}
	username, password := flag.Arg(0), flag.Arg(1)

	config.LoadDotEnv(".env")
	dsn := os.Getenv("DB_DSN")
	if strings.TrimSpace(dsn) == "" {
		log.Fatal("DB_DSN not set in environment")
	}
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		log.Fatalf("failed to open db: %v", err)
	}

	if *reset {
		if err := resetPassword(db, username, password); err != nil {
			log.Fatalf("reset password: %v", err)
		}
		fmt.Printf("Password reset for user %s\n", username)
		return
	}
	roleName := models.RoleUser
	if *admin {
		roleName = models.RoleAdministrator
	}
	user, err := createUser(db, username, password, roleName)
	if errors.Is(err, errUserExists) {
		fmt.Printf("user %s already exists (id=%d)\n", username, user.ID)
		return
	}
	if err != nil {
		log.Fatalf("failed to create user: %v", err)
	}
	fmt.Printf("created user %s id=%d role=%s\n", username, user.ID, roleName)
}

func hashPassword(password string) ([]byte, error) {
	if len(password) < minPasswordLen {
		return nil, fmt.Errorf("password too short (min %d)", minPasswordLen)
	}
	return bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
}

// createUser adds username with roleName. An existing user is returned with
// errUserExists.
func createUser(db *gorm.DB, username, password, roleName string) (models.User, error) {
	var existing models.User
	if err := db.Where("username = ?", username).First(&existing).Error; err == nil {
		return existing, errUserExists
	}
	role, err := ensureRole(db, roleName)
	if err != nil {
		return models.User{}, fmt.Errorf("ensure role %s: %w", roleName, err)
	}
	hpw, err := hashPassword(password)
	if err != nil {
		return models.User{}, err
	}
	rid := role.ID
	user := models.User{Username: username, HashedPassword: hpw, RoleID: &rid}
	if err := db.Create(&user).Error; err != nil {
		return models.User{}, err
	}
	return user, nil
}

func resetPassword(db *gorm.DB, username, password string) error {
	hpw, err := hashPassword(password)
	if err != nil {
		return err
	}
	var user models.User
	if err := db.Where("username = ?", username).First(&user).Error; err != nil {
		return fmt.Errorf("user not found: %w", err)
	}
	return db.Model(&user).Update("hashed_password", hpw).Error
}

func ensureRole(db *gorm.DB, name string) (models.Role, error) {
	for _, r := range models.MasterRoles() {
		if r.Name == name {
			role := r
			err := db.Where("name = ?", name).FirstOrCreate(&role).Error
			return role, err
		}
	}
	return models.Role{}, fmt.Errorf("unknown role %q", name)
}
