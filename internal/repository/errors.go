package repository

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
)

// Sentinel errors shared by repositories. Missing rows surface as pgx.ErrNoRows.
var (
	ErrDuplicate     = errors.New("duplicate record")
	ErrDuplicateCode = errors.New("duplicate verification code")
	ErrNotUpdated    = errors.New("no rows updated")
)

const uniqueViolation = "23505"

// translate maps unique violations on named constraints to sentinel errors.
func translate(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != uniqueViolation {
		return err
	}
	if pgErr.ConstraintName == "certificates_code_unique" {
		return fmt.Errorf("%w: %s", ErrDuplicateCode, pgErr.ConstraintName)
	}
	return fmt.Errorf("%w: %s", ErrDuplicate, pgErr.ConstraintName)
}

// jsonOrNil keeps empty maps as SQL NULL instead of a JSON null literal.
func jsonOrNil(m map[string]any) any {
	if len(m) == 0 {
		return nil
	}
	return m
}
