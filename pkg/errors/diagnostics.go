package errors

import (
	stdErrors "errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

// Diagnostics is the log-only view of an error: its full unwrap chain plus
// the Postgres fields when a driver error is buried in it.
type Diagnostics struct {
	Code         Code
	Chain        []string
	SQLState     string
	PGConstraint string
	PGDetail     string
}

// Fields flattens d into structured log fields.
func (d Diagnostics) Fields() map[string]any {
	fields := map[string]any{"error_chain": d.Chain}
	if d.Code != "" {
		fields["error_code"] = d.Code
	}
	if d.SQLState != "" {
		fields["pg_code"] = d.SQLState
		fields["pg_constraint"] = d.PGConstraint
		fields["pg_detail"] = d.PGDetail
	}
	return fields
}

func Diagnose(err error) Diagnostics {
	var d Diagnostics
	if err == nil {
		return d
	}
	if typed := As(err); typed != nil {
		d.Code = typed.Code()
	}
	for e := err; e != nil; e = stdErrors.Unwrap(e) {
		d.Chain = append(d.Chain, fmt.Sprintf("%T: %v", e, e))
	}

	var pgxErr *pgconn.PgError
	var pqErr *pq.Error
	switch {
	case stdErrors.As(err, &pgxErr):
		d.SQLState, d.PGConstraint, d.PGDetail = pgxErr.Code, pgxErr.ConstraintName, pgxErr.Detail
	case stdErrors.As(err, &pqErr):
		d.SQLState, d.PGConstraint, d.PGDetail = string(pqErr.Code), pqErr.Constraint, pqErr.Detail
	}
	return d
}
