package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net/mail"
	"os"
	"strings"
	"syscall"

	"github.com/stemsi/certify-backend/internal/config"
	"github.com/stemsi/certify-backend/internal/database"
	"github.com/stemsi/certify-backend/internal/logger"
	"github.com/stemsi/certify-backend/internal/model"
	"github.com/stemsi/certify-backend/internal/repository"
	"github.com/stemsi/certify-backend/internal/service"
	"golang.org/x/term"
)

func main() {
	// ─── Load Configuration ────────────────────────────────────────────
	cfg := config.Load()

	// ─── Initialize Logger ─────────────────────────────────────────────
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)

	ctx := context.Background()

	// ─── Connect to PostgreSQL ─────────────────────────────────────────
	pool, err := database.NewPostgresPool(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()

	userRepo := repository.NewUserRepository(pool)
	authService := service.NewAuthService(cfg, userRepo)

	// ─── CLI Input ─────────────────────────────────────────────────────
	reader := bufio.NewReader(os.Stdin)

	fmt.Println("=== Create User Account ===")

	fmt.Print("Enter Name: ")
	name, _ := reader.ReadString('\n')
	name = strings.TrimSpace(name)
	if name == "" {
		fmt.Println("Error: Name is required")
		return
	}

	fmt.Print("Enter Email: ")
	email, _ := reader.ReadString('\n')
	email = strings.ToLower(strings.TrimSpace(email))
	if _, err := mail.ParseAddress(email); err != nil {
		fmt.Println("Error: A valid email is required")
		return
	}

	fmt.Print("Enter Password: ")
	bytePassword, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Println()
	if err != nil {
		fmt.Println("Error reading password")
		return
	}
	password := string(bytePassword)
	if len(password) < 6 {
		fmt.Println("Error: Password must be at least 6 characters")
		return
	}

	fmt.Print("Role [ADMIN/USER] (default ADMIN): ")
	roleStr, _ := reader.ReadString('\n')
	role := model.Role(strings.ToUpper(strings.TrimSpace(roleStr)))
	switch role {
	case "":
		role = model.RoleAdmin
	case model.RoleAdmin, model.RoleUser:
	default:
		fmt.Println("Error: Role must be ADMIN or USER")
		return
	}

	// ─── Create ────────────────────────────────────────────────────────
	hash, err := authService.HashPassword(password)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to hash password")
	}

	u := &model.User{Email: email, Name: name, PasswordHash: hash, Role: role}
	if err := userRepo.Create(ctx, u); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			fmt.Printf("Error: %s is already registered\n", email)
			return
		}
		log.Fatal().Err(err).Msg("Failed to create user")
	}

	fmt.Printf("\nSuccess! %s '%s' (%s) created with ID: %s\n", u.Role, u.Name, u.Email, u.ID)
}
