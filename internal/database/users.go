package database

import (
	"context"

	"github.com/google/uuid"
)

const userColumns = `id, full_name, email, hashed_password, role, created_at`

func scanUser(row interface{ Scan(dest ...interface{}) error }) (User, error) {
	var u User
	err := row.Scan(&u.ID, &u.FullName, &u.Email, &u.HashedPassword, &u.Role, &u.CreatedAt)
	return u, err
}

const getUserByEmail = `SELECT ` + userColumns + ` FROM users WHERE email = $1`

func (q *Queries) GetUserByEmail(ctx context.Context, email string) (User, error) {
	return scanUser(q.db.QueryRow(ctx, getUserByEmail, email))
}

const getUserByID = `SELECT ` + userColumns + ` FROM users WHERE id = $1`

func (q *Queries) GetUserByID(ctx context.Context, id uuid.UUID) (User, error) {
	return scanUser(q.db.QueryRow(ctx, getUserByID, id))
}

type CreateUserParams struct {
	FullName       string
	Email          string
	HashedPassword string
	Role           string
}

const createUser = `
INSERT INTO users (full_name, email, hashed_password, role)
VALUES ($1, $2, $3, $4)
RETURNING ` + userColumns

func (q *Queries) CreateUser(ctx context.Context, arg CreateUserParams) (User, error) {
	return scanUser(q.db.QueryRow(ctx, createUser, arg.FullName, arg.Email, arg.HashedPassword, arg.Role))
}
