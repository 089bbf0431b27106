package repository

import (
	"context"
	"database/sql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"media-orchestrator/constant"
)

// Repository is the versioned store for media and their unboxing jobs.
type Repository interface {
	Transactor
	MediaRepository
	UnboxingJobRepository
}

// Transactor runs callback in a single unit of work. Repository calls made
// with the context handed to callback join the same transaction; returning an
// error rolls back everything written inside it.
type Transactor interface {
	Transaction(ctx context.Context, callback func(ctx context.Context) error, opts ...*sql.TxOptions) error
}

type txKey struct{}

type repo struct {
	db *gorm.DB
}

func NewRepo(db *sql.DB, env constant.Environment) (Repository, error) {
	level := logger.Warn
	if env == constant.EnvironmentDevelop {
		level = logger.Info
	}

	gormDB, err := gorm.Open(postgres.New(postgres.Config{
		Conn: db}),
		&gorm.Config{
			Logger:                 logger.Default.LogMode(level),
			SkipDefaultTransaction: true,
		},
	)
	if err != nil {
		return nil, err
	}
	return &repo{
		db: gormDB,
	}, nil
}

func (r *repo) Transaction(ctx context.Context, callback func(ctx context.Context) error, opts ...*sql.TxOptions) error {
	return r.getDB(ctx).Transaction(func(tx *gorm.DB) error {
		return callback(context.WithValue(ctx, txKey{}, tx))
	}, opts...)
}

// getDB returns the transaction bound to ctx, if any.
func (r *repo) getDB(ctx context.Context) *gorm.DB {
	if tx, ok := ctx.Value(txKey{}).(*gorm.DB); ok {
		return tx
	}
	return r.db.WithContext(ctx)
}
