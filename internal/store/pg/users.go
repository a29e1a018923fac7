package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"

	"anonpress.org/internal/auth"
	"anonpress.org/internal/ids"
)

const (
	pgErrUniqueViolation = "23505"
)

// Users persists user accounts on the shared connection pool.
type Users struct {
	db *sql.DB
}

var _ auth.UserStore = (*Users)(nil)

// Users returns the user account store backed by the same pool.
func (s *Store) Users() *Users { return &Users{db: s.db} }

func (s *Users) Create(ctx context.Context, u *auth.User) error {
	if s.db == nil {
		return errors.New("database connection unavailable")
	}
	if u.ID == "" {
		u.ID = ids.New()
	}
	roles, err := encodeJSONColumn(u.Roles)
	if err != nil {
		return err
	}
	row := s.db.QueryRowContext(ctx, `
		insert into users (id, username, password_hash, roles)
		values ($1, $2, $3, $4)
		returning created_at, updated_at
	`, u.ID, u.Username, u.PasswordHash, roles)
	if err := row.Scan(&u.CreatedAt, &u.UpdatedAt); err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
			return fmt.Errorf("%w: username %q", auth.ErrAlreadyExists, u.Username)
		}
		return err
	}
	return nil
}

func (s *Users) FindByUsername(ctx context.Context, username string) (*auth.User, error) {
	if s.db == nil {
		return nil, errors.New("database connection unavailable")
	}
	var (
		u     auth.User
		roles []byte
	)
	err := s.db.QueryRowContext(ctx, `
		select id, username, password_hash, roles, created_at, updated_at
		from users where username = $1
	`, username).Scan(&u.ID, &u.Username, &u.PasswordHash, &roles, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: user %q", auth.ErrNotFound, username)
	}
	if err != nil {
		return nil, err
	}
	if err := decodeJSONColumn(roles, &u.Roles); err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *Users) List(ctx context.Context) ([]*auth.User, error) {
	if s.db == nil {
		return nil, errors.New("database connection unavailable")
	}
	rows, err := s.db.QueryContext(ctx, `
		select id, username, password_hash, roles, created_at, updated_at
		from users order by username
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*auth.User
	for rows.Next() {
		var (
			u     auth.User
			roles []byte
		)
		if err := rows.Scan(&u.ID, &u.Username, &u.PasswordHash, &roles, &u.CreatedAt, &u.UpdatedAt); err != nil {
			return nil, err
		}
		if err := decodeJSONColumn(roles, &u.Roles); err != nil {
			return nil, err
		}
		result = append(result, &u)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Users) Update(ctx context.Context, username string, passwordHash *string, roles []string) (*auth.User, error) {
	if s.db == nil {
		return nil, errors.New("database connection unavailable")
	}
	var rolesJSON []byte
	if roles != nil {
		var err error
		rolesJSON, err = encodeJSONColumn(roles)
		if err != nil {
			return nil, err
		}
	}
	var (
		u        auth.User
		rawRoles []byte
	)
	err := s.db.QueryRowContext(ctx, `
		update users set
			password_hash = coalesce($1, password_hash),
			roles = coalesce($2, roles),
			updated_at = now()
		where username = $3
		returning id, username, password_hash, roles, created_at, updated_at
	`, passwordHash, rolesJSON, username).Scan(&u.ID, &u.Username, &u.PasswordHash, &rawRoles, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: user %q", auth.ErrNotFound, username)
	}
	if err != nil {
		return nil, err
	}
	if err := decodeJSONColumn(rawRoles, &u.Roles); err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *Users) Delete(ctx context.Context, username string) error {
	if s.db == nil {
		return errors.New("database connection unavailable")
	}
	res, err := s.db.ExecContext(ctx, `delete from users where username = $1`, username)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: user %q", auth.ErrNotFound, username)
	}
	return nil
}

// LoadPermissionTable reads the role to permission mapping for the resolver.
// Roles without permissions still appear with an empty set.
func (s *Store) LoadPermissionTable(ctx context.Context) (auth.Table, error) {
	if s.db == nil {
		return nil, errors.New("database connection unavailable")
	}
	rows, err := s.db.QueryContext(ctx, `
		select r.name, coalesce(p.permission, '')
		from roles r
		left join role_permissions p on p.role_name = r.name
		order by r.name, p.permission
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	table := auth.Table{}
	for rows.Next() {
		var role, permission string
		if err := rows.Scan(&role, &permission); err != nil {
			return nil, err
		}
		if _, ok := table[role]; !ok {
			table[role] = nil
		}
		if permission != "" {
			table[role] = append(table[role], permission)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return table, nil
}

func maybePgError(err error) (*pgconn.PgError, bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr, true
	}
	return nil, false
}
