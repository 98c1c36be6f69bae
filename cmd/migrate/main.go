package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/angelmondragon/tradepost-backend/pkg/config"
	"github.com/angelmondragon/tradepost-backend/pkg/db"
	"github.com/angelmondragon/tradepost-backend/pkg/db/models"
	"github.com/angelmondragon/tradepost-backend/pkg/logger"
	"github.com/angelmondragon/tradepost-backend/pkg/migrate"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "migrate"})

	_ = godotenv.Load()

	cmd := flag.String("cmd", "up", "migration command: up|up-by-one|down|redo|reset|status|version|to|create|validate")
	dir := flag.String("dir", "", "migrations directory; empty uses the files compiled into the binary")
	name := flag.String("name", "", "migration name (for -cmd=create)")
	target := flag.String("target", "", "schema version YYYYMMDDHHMMSS (for -cmd=to)")
	flag.Parse()

	cfg, err := config.Load()
	exitOn(context.Background(), logg, "load config", err)

	logg = logger.New(logger.Options{
		ServiceName: "migrate",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":    cfg.App.Env,
		"cmd":    *cmd,
		"dir":    *dir,
		"driver": cfg.DB.Driver,
	})

	// create and validate work on files only.
	switch *cmd {
	case "create":
		if *name == "" {
			exitOn(ctx, logg, "create migration", fmt.Errorf("-name is required"))
		}
		path, err := migrate.CreateSQLMigration(onDisk(*dir), *name)
		exitOn(ctx, logg, "create migration", err)
		logg.Info(logg.WithField(ctx, "path", path), "migration created")
		return
	case "validate":
		exitOn(ctx, logg, "validate migrations", migrate.ValidateDir(onDisk(*dir)))
		logg.Info(ctx, "migrations valid")
		return
	}

	dbClient, err := db.New(ctx, cfg.DB, logg)
	exitOn(ctx, logg, "connect database", err)
	defer dbClient.Close()

	// The goose files use Postgres enums; sqlite databases get the model schema.
	if cfg.DB.IsSQLite() {
		if *cmd != "up" {
			exitOn(ctx, logg, "migrate sqlite", fmt.Errorf("sqlite databases only support -cmd=up"))
		}
		exitOn(ctx, logg, "auto migrate", dbClient.DB().WithContext(ctx).AutoMigrate(models.All()...))
		logg.Info(ctx, "sqlite schema migrated")
		return
	}

	sqlDB, err := dbClient.DB().DB()
	exitOn(ctx, logg, "extract sql database", err)

	if *cmd == "to" {
		if *target == "" {
			exitOn(ctx, logg, "migrate to version", fmt.Errorf("-target is required"))
		}
		exitOn(ctx, logg, "migrate to version", migrate.MigrateToVersion(ctx, sqlDB, *dir, *target))
	} else {
		exitOn(ctx, logg, "goose "+*cmd, migrate.Run(ctx, sqlDB, *dir, *cmd))
	}
	logg.Info(ctx, "migrate finished")
}

func onDisk(dir string) string {
	if dir == "" {
		return migrate.DefaultDir
	}
	return dir
}

func exitOn(ctx context.Context, logg *logger.Logger, step string, err error) {
	if err == nil {
		return
	}
	logg.Error(ctx, step+" failed", err)
	os.Exit(1)
}
