// Package pgdb provides a postgres backed cipherise.RemoteServiceStore.
package pgdb

import (
	"context"
	_ "embed"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/forticode/cipherise-sdk-go/pkg/cipherise"
)

// PGDB is implemented by pgx.Tx, pgx.Conn & pgxpool.Pool
// accessing a postgres database through this common interface simplifies testing
type PGDB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// ServiceStore persists Service snapshots in a postgres database.
type ServiceStore struct {
	DB PGDB
}

//go:embed service_store_schema.sql
var schemaScriptTpl string

// ServiceStoreMigrate creates the store schema in the database behind pgconn.
func ServiceStoreMigrate(pgconn *pgx.Conn, dbschema string) error {
	schemaName := pgx.Identifier{dbschema}.Sanitize()
	schemaScript := strings.ReplaceAll(schemaScriptTpl, "${schema_name}", schemaName)

	_, err := pgconn.Exec(context.Background(), schemaScript)

	return wrapError(err, "failed db schema initialization") // nil if err is nil
}

// NewServiceStore returns a ServiceStore backed by a connection pool to dsn.
func NewServiceStore(ctx context.Context, dsn string) (*ServiceStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if nil != err {
		return nil, wrapError(err, "failed connection pool creation")
	}

	return &ServiceStore{DB: pool}, nil
}

// SaveService saves svc snapshot in the ServiceStore.
// It errors if the snapshot could not be saved.
func (self *ServiceStore) SaveService(ctx context.Context, svc *cipherise.Service) error {
	if nil == svc {
		return newError("can not save nil Service")
	}
	data, err := svc.Serialize()
	if nil != err {
		return wrapError(err, "failed Service serialization")
	}

	_, err = self.DB.Exec(
		ctx,
		`INSERT INTO service(sid, snapshot) VALUES ($1, $2)
		 ON CONFLICT (sid) DO UPDATE SET
		 snapshot = EXCLUDED.snapshot,
		 updated_at = now()`,
		svc.Id,
		data,
	)

	return wrapError(err, "failed saving service") // nil if err is nil
}

// LoadService restores the Service with serviceId bound to client.
// It returns false if no snapshot is stored under serviceId.
func (self *ServiceStore) LoadService(ctx context.Context, serviceId string, client *cipherise.Client) (*cipherise.Service, bool, error) {
	var data []byte
	row := self.DB.QueryRow(
		ctx,
		`SELECT snapshot FROM service WHERE sid = $1`,
		serviceId,
	)
	err := row.Scan(&data)
	if nil != err {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, wrapError(err, "failed loading service")
	}

	svc, err := client.DeserializeService(data)
	if nil != err {
		return nil, false, wrapError(err, "failed Service restoration")
	}

	return svc, true, nil
}

// RemoveService removes the snapshot stored under serviceId.
// It returns true if a snapshot was effectively removed.
func (self *ServiceStore) RemoveService(ctx context.Context, serviceId string) (bool, error) {
	var deleted int
	row := self.DB.QueryRow(
		ctx,
		`WITH deleted AS (DELETE FROM service WHERE sid = $1 RETURNING id)
		 SELECT count(id) FROM deleted`,
		serviceId,
	)
	err := row.Scan(&deleted)
	if nil != err {
		return false, wrapError(err, "failed DELETE query")
	}

	return deleted > 0, nil
}

// ServiceCount returns the number of snapshots in the ServiceStore.
func (self *ServiceStore) ServiceCount(ctx context.Context) (int, error) {
	var rv int
	row := self.DB.QueryRow(
		ctx,
		`SELECT COUNT(*) FROM service`,
	)
	err := row.Scan(&rv)
	if nil != err {
		return 0, wrapError(err, "failed count query")
	}

	return rv, nil
}

var _ cipherise.RemoteServiceStore = &ServiceStore{}
