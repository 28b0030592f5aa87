// Copyright (c) 2022 Blockwatch Data Inc.
// Author: alex@blockwatch.cc

package cache

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/echa/log"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"blockwatch.cc/certreg/pkg/stx"
)

var (
	ErrNotFound      = errors.New("cache: not found")
	ErrUnknownDriver = errors.New("cache: unknown driver")
	ErrInvalidEmail  = errors.New("cache: invalid email")
)

const (
	DriverSqlite   = "sqlite"
	DriverPostgres = "postgres"
)

type Config struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
	Debug  bool   `yaml:"debug"`
}

type Cache struct {
	db *gorm.DB
}

// Open connects the configured driver and migrates the schema.
func Open(cfg Config) (*Cache, error) {
	var dial gorm.Dialector
	switch cfg.Driver {
	case DriverSqlite, "":
		dial = sqlite.Open(cfg.DSN)
	case DriverPostgres:
		dial = postgres.Open(cfg.DSN)
	default:
		return nil, fmt.Errorf("%w %q", ErrUnknownDriver, cfg.Driver)
	}
	level := logger.Silent
	if cfg.Debug {
		level = logger.Info
	}
	db, err := gorm.Open(dial, &gorm.Config{
		Logger: logger.Default.LogMode(level),
	})
	if err != nil {
		return nil, fmt.Errorf("cache: opening %s: %w", cfg.Driver, err)
	}
	if err := db.AutoMigrate(&Certificate{}, &Credential{}); err != nil {
		return nil, fmt.Errorf("cache: migrating: %w", err)
	}
	log.Infof("cache: using %s database", dial.Name())
	return &Cache{db: db}, nil
}

func (c *Cache) Close() error {
	sqlDB, err := c.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

// PutCertificate inserts or refreshes the record for rec.ChainCertID.
func (c *Cache) PutCertificate(ctx context.Context, rec *Certificate) error {
	return c.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "chain_cert_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"updated_at", "tx_id", "school_id", "student_wallet", "student_name", "course_title", "grade", "metadata_url", "data_hash", "hash_scheme", "revoked"}),
	}).Create(rec).Error
}

func (c *Cache) CertificateByID(ctx context.Context, id uint64) (*Certificate, error) {
	var rec Certificate
	if err := c.db.WithContext(ctx).Where("chain_cert_id = ?", id).First(&rec).Error; err != nil {
		return nil, notFound(err)
	}
	return &rec, nil
}

func (c *Cache) CertificateByTxID(ctx context.Context, id stx.TxID) (*Certificate, error) {
	var rec Certificate
	if err := c.db.WithContext(ctx).Where("tx_id = ?", id.String()).First(&rec).Error; err != nil {
		return nil, notFound(err)
	}
	return &rec, nil
}

// CertificatesBySchool lists records newest first.
func (c *Cache) CertificatesBySchool(ctx context.Context, school stx.Principal, limit int) ([]Certificate, error) {
	var recs []Certificate
	q := c.db.WithContext(ctx).Where("school_id = ?", school.String()).Order("chain_cert_id desc")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&recs).Error; err != nil {
		return nil, err
	}
	return recs, nil
}

// SetRevoked mirrors a confirmed revocation for display.
func (c *Cache) SetRevoked(ctx context.Context, id uint64, revoked bool) error {
	res := c.db.WithContext(ctx).Model(&Certificate{}).Where("chain_cert_id = ?", id).Update("revoked", revoked)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func normalizeEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if at := strings.IndexByte(email, '@'); at < 1 || at == len(email)-1 {
		return "", fmt.Errorf("%w %q", ErrInvalidEmail, email)
	}
	return email, nil
}

// PutCredential binds an email to a wallet, replacing earlier bindings.
func (c *Cache) PutCredential(ctx context.Context, email string, wallet stx.Principal) error {
	email, err := normalizeEmail(email)
	if err != nil {
		return err
	}
	return c.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "email"}},
		DoUpdates: clause.AssignmentColumns([]string{"updated_at", "wallet"}),
	}).Create(&Credential{Email: email, Wallet: wallet.String()}).Error
}

// ResolveEmail returns the wallet bound to email.
func (c *Cache) ResolveEmail(ctx context.Context, email string) (stx.Principal, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return "", err
	}
	var cred Credential
	if err := c.db.WithContext(ctx).Where("email = ?", email).First(&cred).Error; err != nil {
		return "", notFound(err)
	}
	return stx.Principal(cred.Wallet), nil
}
