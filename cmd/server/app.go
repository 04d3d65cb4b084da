package main

import (
	"database/sql"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"caterchat/internal/config"
	"caterchat/internal/domain"
	"caterchat/internal/security"
	"caterchat/internal/service"
	"caterchat/internal/store/postgres"
	"caterchat/internal/store/sqlite"
)

// app holds what every command needs: configuration, the database and
// the services built on it.
type app struct {
	cfg *config.Config
	db  *sql.DB

	users    domain.UserRepository
	rooms    domain.RoomRepository
	messages domain.MessageRepository

	auth    *service.AuthService
	userSvc *service.UserService
	chat    *service.ChatService
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Debug("no .env file loaded")
	}
	cfg, err := config.Load(configFile, cmd.Flags())
	if err != nil {
		return nil, errors.WithMessage(err, "could not load config")
	}
	if !cmd.Flags().Changed("log-level") {
		if level, err := log.ParseLevel(cfg.LogLevel); err == nil {
			log.SetLevel(level)
		}
	}
	return cfg, nil
}

func openDB(cfg *config.Config) (*sql.DB, error) {
	var (
		db  *sql.DB
		err error
	)
	switch cfg.DBDriver {
	case config.DriverSQLite:
		db, err = sqlite.Open(cfg.SQLitePath)
		if err == nil {
			err = sqlite.Migrate(db)
		}
	default:
		db, err = postgres.Open(cfg.DatabaseURL)
		if err == nil {
			err = postgres.Migrate(db)
		}
	}
	if err != nil {
		if db != nil {
			db.Close()
		}
		return nil, errors.WithMessage(err, "could not open database")
	}
	return db, nil
}

func newApp(cmd *cobra.Command) (*app, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	db, err := openDB(cfg)
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, db: db}
	switch cfg.DBDriver {
	case config.DriverSQLite:
		a.users, a.rooms, a.messages = sqlite.NewUserRepo(db), sqlite.NewRoomRepo(db), sqlite.NewMessageRepo(db)
	default:
		a.users, a.rooms, a.messages = postgres.NewUserRepo(db), postgres.NewRoomRepo(db), postgres.NewMessageRepo(db)
	}

	enc, err := security.NewEncryptor(cfg.EncryptKey, cfg.LegacyEncryptKeys)
	if err != nil {
		db.Close()
		return nil, errors.WithMessage(err, "could not initialize encryptor")
	}
	tokens := security.NewTokenService(cfg.JWTSecret, cfg.AccessTokenTTL())

	a.auth = service.NewAuthService(a.users, tokens, security.NewPasswordHasher(0))
	a.auth.RememberMeTTL = cfg.RememberMeTTL()
	a.userSvc = service.NewUserService(a.users)
	a.chat = service.NewChatService(a.users, a.rooms, a.messages, enc)
	a.chat.MaxMessageLength = cfg.MaxMessageLength

	log.WithFields(log.Fields{
		"driver": cfg.DBDriver,
		"env":    cfg.Env,
	}).Info("database ready")
	return a, nil
}

func (a *app) Close() error {
	return a.db.Close()
}
