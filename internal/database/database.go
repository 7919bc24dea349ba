package database

import (
	"fmt"
	"os"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"go.uber.org/zap"

	"vridge/internal/config"
)

type MethodsDB interface {
	CloseDB() error
	RunMigrations(migrationFilePath string) error
	HealthCheck() error
}

type DB struct {
	*sqlx.DB
	log *zap.Logger
}

func ConnectDB(cfg *config.Config, log *zap.Logger) (*DB, error) {
	log.Info("Подключаемся к БД",
		zap.String("host", cfg.DB.DbHOST),
		zap.String("dbname", cfg.DB.DbNAME))

	db, err := sqlx.Connect("postgres", cfg.DB.ConnString())
	if err != nil {
		return nil, fmt.Errorf("не удалось подключиться к БД: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	dbStruct := &DB{DB: db, log: log}

	if err := dbStruct.RunMigrations(cfg.MigrationsPath); err != nil {
		log.Warn("Внимание: ошибка при применении миграций", zap.Error(err))
	}

	if err := dbStruct.HealthCheck(); err != nil {
		db.Close()
		return nil, fmt.Errorf("проверка БД не пройдена: %w", err)
	}

	log.Info("Успешное подключение к PostgreSQL")
	return dbStruct, nil
}

func (db *DB) CloseDB() error {
	return db.DB.Close()
}

func (db *DB) RunMigrations(migrationFilePath string) error {
	if _, err := os.Stat(migrationFilePath); os.IsNotExist(err) {
		return fmt.Errorf("файл миграций не найден: %s", migrationFilePath)
	}

	migrationSQL, err := os.ReadFile(migrationFilePath)
	if err != nil {
		return fmt.Errorf("ошибка при чтении файла миграций: %w", err)
	}

	db.log.Info("Применяем миграции", zap.String("file", migrationFilePath))

	if _, err := db.Exec(string(migrationSQL)); err != nil {
		return fmt.Errorf("ошибка при выполнении миграций: %w", err)
	}

	db.log.Info("Миграции успешно применены")
	return nil
}

func (db *DB) HealthCheck() error {
	if db == nil || db.DB == nil {
		return fmt.Errorf("подключение к БД не инициализировано")
	}

	return db.Ping()
}
