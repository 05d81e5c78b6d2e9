package seed

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"gopkg.in/yaml.v3"

	"github.com/spec-kit/helpdesk-service/internal/auth"
	"github.com/spec-kit/helpdesk-service/internal/service"
)

// File is the seed document.
//
//	departments: [Service, Parts]
//	users:
//	  - name: Administrator
//	    email: admin@example.com
//	    password: change-me
//	    admin: true
//	    must_change_password: true
type File struct {
	Departments []string `yaml:"departments"`
	Users       []User   `yaml:"users"`
}

// User is one seeded account. Department names a department by name.
type User struct {
	Name               string `yaml:"name"`
	Email              string `yaml:"email"`
	Password           string `yaml:"password"`
	Department         string `yaml:"department"`
	Admin              bool   `yaml:"admin"`
	MustChangePassword bool   `yaml:"must_change_password"`
}

// Result counts rows actually inserted.
type Result struct {
	Departments int
	Users       int
}

// Load reads and parses a seed file.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Parse decodes and validates a seed document.
func Parse(data []byte) (*File, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse seed file: %w", err)
	}

	seen := map[string]bool{}
	for i, name := range f.Departments {
		name = strings.TrimSpace(name)
		if name == "" {
			return nil, fmt.Errorf("departments[%d]: name is required", i)
		}
		f.Departments[i] = name
	}
	for i := range f.Users {
		u := &f.Users[i]
		u.Name = strings.TrimSpace(u.Name)
		u.Email = strings.ToLower(strings.TrimSpace(u.Email))
		u.Department = strings.TrimSpace(u.Department)
		switch {
		case u.Name == "" || u.Email == "":
			return nil, fmt.Errorf("users[%d]: name and email are required", i)
		case len(u.Password) < service.MinPasswordLength:
			return nil, fmt.Errorf("users[%d]: password must be at least %d characters", i, service.MinPasswordLength)
		case seen[u.Email]:
			return nil, fmt.Errorf("users[%d]: duplicate email %s", i, u.Email)
		}
		seen[u.Email] = true
	}
	if len(f.Departments) == 0 && len(f.Users) == 0 {
		return nil, errors.New("seed file is empty")
	}
	return &f, nil
}

// Apply inserts departments and users in one transaction. Rows that already
// exist are left untouched, so applying a file twice is harmless.
func Apply(ctx context.Context, pool *pgxpool.Pool, f *File, bcryptCost int) (Result, error) {
	var res Result
	err := pgx.BeginFunc(ctx, pool, func(tx pgx.Tx) error {
		for _, name := range f.Departments {
			tag, err := tx.Exec(ctx, `INSERT INTO departments (name) VALUES ($1) ON CONFLICT (name) DO NOTHING`, name)
			if err != nil {
				return fmt.Errorf("insert department %q: %w", name, err)
			}
			res.Departments += int(tag.RowsAffected())
		}

		for _, u := range f.Users {
			var deptID *string
			if u.Department != "" {
				var id string
				if err := tx.QueryRow(ctx, `SELECT id FROM departments WHERE name=$1`, u.Department).Scan(&id); err != nil {
					if errors.Is(err, pgx.ErrNoRows) {
						return fmt.Errorf("user %s: unknown department %q", u.Email, u.Department)
					}
					return err
				}
				deptID = &id
			}
			hash, err := auth.HashPassword(u.Password, bcryptCost)
			if err != nil {
				return err
			}
			tag, err := tx.Exec(ctx, `
                INSERT INTO users (name, email, password_hash, is_admin, is_active, must_change_password, department_id)
                VALUES ($1, $2, $3, $4, TRUE, $5, $6)
                ON CONFLICT (email) DO NOTHING`,
				u.Name, u.Email, hash, u.Admin, u.MustChangePassword, deptID)
			if err != nil {
				return fmt.Errorf("insert user %s: %w", u.Email, err)
			}
			res.Users += int(tag.RowsAffected())
		}
		return nil
	})
	return res, err
}
