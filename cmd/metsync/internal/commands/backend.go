package commands

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/metsync/internal/docstore"
	fsdocs "github.com/wolfeidau/metsync/internal/docstore/fs"
	memorydocs "github.com/wolfeidau/metsync/internal/docstore/memory"
	s3docs "github.com/wolfeidau/metsync/internal/docstore/s3"
	"github.com/wolfeidau/metsync/internal/records"
	"github.com/wolfeidau/metsync/internal/store"
	memorystore "github.com/wolfeidau/metsync/internal/store/memory"
	postgresstore "github.com/wolfeidau/metsync/internal/store/postgres"
	sqlitestore "github.com/wolfeidau/metsync/internal/store/sqlite"
)

type BackendFlags struct {
	StoreType  string             `help:"record store type (sqlite, postgres or memory)" default:"sqlite" env:"METSYNC_STORE_TYPE" enum:"sqlite,postgres,memory"`
	SQLitePath string             `name:"sqlite-path" help:"SQLite database file" default:"metsync.db" env:"METSYNC_SQLITE_PATH"`
	Postgres   PostgresStoreFlags `embed:"" prefix:"postgres-"`

	DocStore string  `help:"metadata document store type (fs, s3 or memory)" default:"fs" env:"METSYNC_DOC_STORE" enum:"fs,s3,memory"`
	DocDir   string  `help:"directory for the fs document store" default:"./metadata" env:"METSYNC_DOC_DIR"`
	S3       S3Flags `embed:"" prefix:"s3-"`
}

type PostgresStoreFlags struct {
	// Connection Configuration
	ConnString string `help:"PostgreSQL connection string" env:"POSTGRES_CONNECTION_STRING"`

	// Connection Pool Configuration
	MaxConns        int32 `help:"maximum number of connections in pool" default:"10"`
	MinConns        int32 `help:"minimum number of connections in pool" default:"1"`
	MaxConnLifetime int32 `help:"maximum connection lifetime in seconds" default:"3600"`
	MaxConnIdleTime int32 `help:"maximum connection idle time in seconds" default:"1800"`

	// Migration Configuration
	AutoMigrate bool `help:"run database migrations on startup" default:"true" negatable:"" env:"METSYNC_POSTGRES_AUTO_MIGRATE"`
}

func (s *PostgresStoreFlags) Validate() error {
	if s.ConnString == "" {
		return errors.New("PostgreSQL connection string is required (--postgres-conn-string or POSTGRES_CONNECTION_STRING)")
	}
	if s.MinConns > s.MaxConns {
		return fmt.Errorf("min connections (%d) exceeds max connections (%d)", s.MinConns, s.MaxConns)
	}
	return nil
}

type S3Flags struct {
	Bucket    string `help:"S3 bucket for metadata documents" env:"METSYNC_S3_BUCKET"`
	Region    string `help:"S3 region" default:"us-east-1" env:"METSYNC_S3_REGION"`
	Prefix    string `help:"object key prefix" env:"METSYNC_S3_PREFIX"`
	Endpoint  string `help:"S3 endpoint URL override (for MinIO)" env:"METSYNC_S3_ENDPOINT"`
	PathStyle bool   `help:"use path style addressing" env:"METSYNC_S3_PATH_STYLE"`
}

func (s *S3Flags) Validate() error {
	if s.Bucket == "" {
		return errors.New("S3 bucket is required (--s3-bucket or METSYNC_S3_BUCKET)")
	}
	return nil
}

// Backend holds the opened record and document stores.
type Backend struct {
	Federations store.FederationStore
	Entities    store.EntityStore
	Documents   docstore.Store

	closers []func()
}

// Registry creates a record registry over the backend's stores.
func (b *Backend) Registry(opts ...records.Option) *records.Registry {
	return records.NewRegistry(b.Federations, b.Entities, b.Documents, opts...)
}

func (b *Backend) Close() {
	for i := len(b.closers) - 1; i >= 0; i-- {
		b.closers[i]()
	}
}

// Open connects the configured record store and document store.
func (f *BackendFlags) Open(ctx context.Context) (*Backend, error) {
	b := &Backend{}

	if err := f.openRecords(ctx, b); err != nil {
		return nil, err
	}

	docs, err := f.openDocuments(ctx)
	if err != nil {
		b.Close()
		return nil, err
	}

	compressed, err := docstore.NewCompressed(docs)
	if err != nil {
		b.Close()
		return nil, fmt.Errorf("failed to create compressed document store: %w", err)
	}
	b.Documents = compressed

	return b, nil
}

func (f *BackendFlags) openRecords(ctx context.Context, b *Backend) error {
	switch f.StoreType {
	case "postgres":
		pool, err := f.createPostgresPool(ctx)
		if err != nil {
			return err
		}
		b.Federations = postgresstore.NewFederationStore(pool)
		b.Entities = postgresstore.NewEntityStore(pool)
		b.closers = append(b.closers, pool.Close)
		log.Info().Msg("Using PostgreSQL record store")

	case "memory":
		b.Federations = memorystore.NewFederationStore()
		b.Entities = memorystore.NewEntityStore()
		log.Info().Msg("Using in-memory record store")

	default:
		db, err := sqlitestore.Open(ctx, f.SQLitePath)
		if err != nil {
			return err
		}
		b.Federations = sqlitestore.NewFederationStore(db)
		b.Entities = sqlitestore.NewEntityStore(db)
		b.closers = append(b.closers, closeDB(db))
		log.Info().Str("path", f.SQLitePath).Msg("Using SQLite record store")
	}
	return nil
}

func (f *BackendFlags) createPostgresPool(ctx context.Context) (*pgxpool.Pool, error) {
	if err := f.Postgres.Validate(); err != nil {
		return nil, err
	}

	pool, err := postgresstore.NewPool(ctx, &postgresstore.PoolConfig{
		ConnString:      f.Postgres.ConnString,
		MaxConns:        f.Postgres.MaxConns,
		MinConns:        f.Postgres.MinConns,
		MaxConnLifetime: f.Postgres.MaxConnLifetime,
		MaxConnIdleTime: f.Postgres.MaxConnIdleTime,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create postgres pool: %w", err)
	}

	if f.Postgres.AutoMigrate {
		if err := postgresstore.Migrate(ctx, pool); err != nil {
			pool.Close()
			return nil, fmt.Errorf("failed to run migrations: %w", err)
		}
	}
	return pool, nil
}

func (f *BackendFlags) openDocuments(ctx context.Context) (docstore.Store, error) {
	switch f.DocStore {
	case "s3":
		if err := f.S3.Validate(); err != nil {
			return nil, err
		}
		return s3docs.New(ctx, s3docs.Config{
			Bucket:    f.S3.Bucket,
			Region:    f.S3.Region,
			Prefix:    f.S3.Prefix,
			Endpoint:  f.S3.Endpoint,
			PathStyle: f.S3.PathStyle,
		})
	case "memory":
		return memorydocs.New(), nil
	default:
		return fsdocs.New(f.DocDir)
	}
}

func closeDB(db *sql.DB) func() {
	return func() {
		if err := db.Close(); err != nil {
			log.Error().Err(err).Msg("Failed to close database")
		}
	}
}
