package core

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"boutique-credit/internal/authz"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/crypto/bcrypt"
)

// ErrInvalidCredentials is returned by Authenticate for an unknown login or wrong password.
var ErrInvalidCredentials = errors.New("invalid login or password")

// UserService manages user accounts.
type UserService interface {
	// CreateUser hashes password with bcrypt. clientID, if set, must reference an existing client.
	CreateUser(ctx context.Context, login, password string, role authz.Role, clientID *int) (*User, error)
	GetByLogin(ctx context.Context, login string) (*User, error)
	GetByID(ctx context.Context, userID int) (*User, error)
	GetUsers(ctx context.Context) ([]User, error)
	// GetUsersByRole returns NotFound when no user has the role.
	GetUsersByRole(ctx context.Context, role authz.Role) ([]User, error)
	// UpdateUser changes login and/or password; empty strings leave the field unchanged.
	UpdateUser(ctx context.Context, userID int, login, password string) (*User, error)
	// Authenticate verifies credentials and returns the user on success.
	Authenticate(ctx context.Context, login, password string) (*User, error)
}

type userService struct {
	pool *pgxpool.Pool
}

// NewUserService constructs a UserService backed by PostgreSQL.
func NewUserService(pool *pgxpool.Pool) UserService {
	return &userService{pool: pool}
}

// checkRole rejects roles outside the authz role set.
func checkRole(role authz.Role) (authz.Role, error) {
	parsed, err := authz.ParseRole(role.String())
	if err != nil {
		return "", invalidInput("%v", err)
	}
	return parsed, nil
}

func hashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}

// insertUser creates a user inside q (pool or tx).
func insertUser(ctx context.Context, q pgxQuerier, login, password string, role authz.Role, clientID *int) (*User, error) {
	login = strings.TrimSpace(login)
	if login == "" || password == "" {
		return nil, invalidInput("login and password are required")
	}
	role, err := checkRole(role)
	if err != nil {
		return nil, err
	}
	hash, err := hashPassword(password)
	if err != nil {
		return nil, err
	}

	u := &User{}
	err = q.QueryRow(ctx, `
		INSERT INTO users (login, password_hash, role, client_id)
		VALUES ($1, $2, $3, $4)
		RETURNING id, login, password_hash, role, client_id, created_at`,
		login, hash, role.String(), clientID,
	).Scan(&u.ID, &u.Login, &u.PasswordHash, &u.Role, &u.ClientID, &u.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, conflict("login %q is already taken", login)
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	return u, nil
}

func (s *userService) CreateUser(ctx context.Context, login, password string, role authz.Role, clientID *int) (*User, error) {
	if clientID != nil {
		var exists bool
		if err := s.pool.QueryRow(ctx, "SELECT EXISTS(SELECT 1 FROM clients WHERE id = $1)", *clientID).Scan(&exists); err != nil {
			return nil, fmt.Errorf("failed to verify client: %w", err)
		}
		if !exists {
			return nil, notFound("client %d not found", *clientID)
		}
	}
	return insertUser(ctx, s.pool, login, password, role, clientID)
}

const userColumns = `id, login, password_hash, role, client_id, created_at`

func scanUser(row pgx.Row, u *User) error {
	return row.Scan(&u.ID, &u.Login, &u.PasswordHash, &u.Role, &u.ClientID, &u.CreatedAt)
}

func (s *userService) GetByLogin(ctx context.Context, login string) (*User, error) {
	u := &User{}
	if err := scanUser(s.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE login = $1`, login), u); err != nil {
		return nil, wrapNotFound(err, "user", fmt.Sprintf("%q", login))
	}
	return u, nil
}

func (s *userService) GetByID(ctx context.Context, userID int) (*User, error) {
	u := &User{}
	if err := scanUser(s.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, userID), u); err != nil {
		return nil, wrapNotFound(err, "user", userID)
	}
	return u, nil
}

func (s *userService) GetUsers(ctx context.Context) ([]User, error) {
	return s.queryUsers(ctx, `SELECT `+userColumns+` FROM users ORDER BY id`)
}

func (s *userService) GetUsersByRole(ctx context.Context, role authz.Role) ([]User, error) {
	role, err := checkRole(role)
	if err != nil {
		return nil, err
	}
	users, err := s.queryUsers(ctx, `SELECT `+userColumns+` FROM users WHERE role = $1 ORDER BY id`, role.String())
	if err != nil {
		return nil, err
	}
	if len(users) == 0 {
		return nil, notFound("no users with role %s", role)
	}
	return users, nil
}

func (s *userService) UpdateUser(ctx context.Context, userID int, login, password string) (*User, error) {
	var hash *string
	if password != "" {
		h, err := hashPassword(password)
		if err != nil {
			return nil, err
		}
		hash = &h
	}
	var newLogin *string
	if l := strings.TrimSpace(login); l != "" {
		newLogin = &l
	}

	u := &User{}
	err := scanUser(s.pool.QueryRow(ctx, `
		UPDATE users
		SET login = COALESCE($1, login), password_hash = COALESCE($2, password_hash)
		WHERE id = $3
		RETURNING `+userColumns,
		newLogin, hash, userID,
	), u)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, conflict("login %q is already taken", login)
		}
		return nil, wrapNotFound(err, "user", userID)
	}
	return u, nil
}

func (s *userService) Authenticate(ctx context.Context, login, password string) (*User, error) {
	u, err := s.GetByLogin(ctx, login)
	if err != nil {
		if KindOf(err) == KindNotFound {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	return u, nil
}

func (s *userService) queryUsers(ctx context.Context, sql string, args ...any) ([]User, error) {
	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query users: %w", err)
	}
	defer rows.Close()

	var users []User
	for rows.Next() {
		var u User
		if err := scanUser(rows, &u); err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}
