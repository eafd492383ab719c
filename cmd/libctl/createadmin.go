package main

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/term"

	"github.com/okhuang/libraria-be/internal/models"
	"github.com/okhuang/libraria-be/internal/storage"
)

func newCreateAdminCmd() *cobra.Command {
	var email, name string

	cmd := &cobra.Command{
		Use:   "create-admin",
		Short: "Create an admin account, or promote and re-key an existing one",
		RunE: func(cmd *cobra.Command, _ []string) error {
			email = strings.TrimSpace(email)
			if email == "" {
				return fmt.Errorf("--email is required")
			}
			if strings.TrimSpace(name) == "" {
				name = email
			}

			password, err := promptPassword()
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			store, err := openStore(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			hash, err := bcrypt.GenerateFromPassword([]byte(password), 12)
			if err != nil {
				return fmt.Errorf("hash password: %w", err)
			}

			existing, err := store.FindByEmail(ctx, email)
			switch {
			case err == nil:
				if err := store.UpdatePassword(ctx, existing.ID, string(hash)); err != nil {
					return fmt.Errorf("update password: %w", err)
				}
				if existing.Role != models.RoleAdmin {
					role := models.RoleAdmin
					if _, err := store.UpdateUser(ctx, existing.ID, storage.UserUpdate{Role: &role}); err != nil {
						return fmt.Errorf("promote to admin: %w", err)
					}
				}
				log.Printf("updated admin account %s", email)
			case errors.Is(err, storage.ErrNotFound):
				if _, err := store.CreateUser(ctx, models.User{
					Name:         name,
					Email:        email,
					PasswordHash: string(hash),
					Role:         models.RoleAdmin,
					IsActive:     true,
				}); err != nil {
					return fmt.Errorf("create admin: %w", err)
				}
				log.Printf("created admin account %s", email)
			default:
				return fmt.Errorf("look up %s: %w", email, err)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&email, "email", "", "admin email address")
	cmd.Flags().StringVar(&name, "name", "", "display name (defaults to email)")
	return cmd
}

func promptPassword() (string, error) {
	fmt.Fprint(os.Stderr, "Password: ")
	raw, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}
	password := string(raw)
	if len(password) < 6 {
		return "", fmt.Errorf("password must be at least 6 characters long")
	}
	return password, nil
}
