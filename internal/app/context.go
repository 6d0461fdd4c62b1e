package app

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"consentwallet/internal/config"
	"consentwallet/internal/db"
	"consentwallet/internal/engine"
	"consentwallet/internal/migrate"
)

// ResolveConfig loads the workspace config and applies the viper overlay
// (CW_* environment and bound flags). It fails when the file is missing
// and no API base URL was given through the overlay.
func ResolveConfig(workspace string, v *viper.Viper) (*config.Config, error) {
	cfg, err := config.LoadOptional(workspace)
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		if v == nil || !v.IsSet("api.base_url") {
			return nil, fmt.Errorf("config %s not found; create one with cw config init --api <url>", config.Path(workspace))
		}
		cfg = config.Default(v.GetString("api.base_url"))
	}
	if err := cfg.Overlay(v); err != nil {
		return nil, err
	}
	return cfg, nil
}

// NewLogger builds the process logger from the logging section.
func NewLogger(cfg *config.Config, out io.Writer) *logrus.Logger {
	if out == nil {
		out = os.Stderr
	}
	log := logrus.New()
	log.SetOutput(out)
	level, err := logrus.ParseLevel(strings.ToLower(cfg.Logging.Level))
	if err != nil {
		level = logrus.InfoLevel
	}
	log.SetLevel(level)
	if cfg.Logging.Format == "json" {
		log.SetFormatter(&logrus.JSONFormatter{})
	} else {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return log
}

// Open opens and migrates the workspace database and builds an engine with
// the stored session restored. A missing session is not an error.
func Open(ctx context.Context, workspace string, cfg *config.Config, log logrus.FieldLogger) (*sql.DB, engine.Engine, error) {
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return nil, engine.Engine{}, err
	}
	if err := migrate.Migrate(conn); err != nil {
		_ = conn.Close()
		return nil, engine.Engine{}, err
	}
	eng := engine.New(conn, cfg, log)
	tok, err := eng.Repo.AccessToken(ctx)
	if err != nil {
		_ = conn.Close()
		return nil, engine.Engine{}, err
	}
	if tok != "" {
		if _, err := eng.Init(ctx); err != nil {
			log.WithError(err).Warn("could not restore session")
		}
	}
	return conn, eng, nil
}
