package main

import (
	"context"
	"time"

	aclean "github.com/airenas/async-api/pkg/clean"
	"github.com/airenas/async-api/pkg/miniofs"
	"github.com/airenas/go-app/pkg/goapp"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/gommon/color"
	"github.com/spf13/viper"

	"github.com/YB1425/Invoice-VAT-compliance-checker/internal/pkg/batch"
	"github.com/YB1425/Invoice-VAT-compliance-checker/internal/pkg/clean"
	"github.com/YB1425/Invoice-VAT-compliance-checker/internal/pkg/databricks"
	"github.com/YB1425/Invoice-VAT-compliance-checker/internal/pkg/postgres"
)

func main() {
	goapp.StartWithDefault()
	printBanner()

	cfg := goapp.Config
	ctx, cancelFunc := context.WithCancel(context.Background())
	defer cancelFunc()

	dbConfig, err := pgxpool.ParseConfig(cfg.GetString("db.url"))
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't parse db config")
	}
	dbPool, err := pgxpool.NewWithConfig(ctx, dbConfig)
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't init db pool")
	}
	defer dbPool.Close()

	cleaner := newCleanerGroup(ctx, cfg, dbPool)

	idsProvider, err := postgres.NewDBIdsProvider(dbPool, cfg.GetDuration("timer.expire"))
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't init expired IDs provider")
	}
	goapp.Log.Info().Dur("expire", cfg.GetDuration("timer.expire")).
		Dur("runEvery", cfg.GetDuration("timer.runEvery")).Msg("timer")

	doneCh, err := aclean.StartCleanTimer(ctx, &aclean.TimerData{
		IDsProvider: idsProvider,
		RunEvery:    cfg.GetDuration("timer.runEvery"),
		Cleaner:     cleaner,
	})
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't start clean timer")
	}

	if err := clean.StartWebServer(&clean.Data{
		Port:     cfg.GetInt("port"),
		Cleaner:  cleaner,
		Resetter: newResetter(cfg),
	}); err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't start web server")
	}

	cancelFunc()
	select {
	case <-doneCh:
		goapp.Log.Info().Msg("timer stopped, exiting")
	case <-time.After(time.Second * 15):
		goapp.Log.Warn().Msg("shutdown timed out")
	}
}

func newCleanerGroup(ctx context.Context, cfg *viper.Viper, dbPool *pgxpool.Pool) *aclean.CleanerGroup {
	dbCleaner, err := postgres.NewCleaner(dbPool)
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't init db cleaner")
	}
	fsCleaner, err := miniofs.NewFiler(ctx, miniofs.Options{Bucket: cfg.GetString("filer.bucket"),
		URL: cfg.GetString("filer.url"), User: cfg.GetString("filer.user"), Key: cfg.GetString("filer.key"),
		Secure: cfg.GetBool("filer.https")})
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't init file cleaner")
	}
	res := &aclean.CleanerGroup{}
	res.Jobs = append(res.Jobs, fsCleaner, dbCleaner)
	return res
}

func newResetter(cfg *viper.Viper) *clean.WorkspaceResetter {
	wsClient, err := databricks.NewClient(cfg.GetString("dbx.url"), cfg.GetString("dbx.token"),
		cfg.GetInt64("dbx.jobID"), cfg.GetString("dbx.warehouseID"))
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't init workspace client")
	}
	queries, err := batch.NewQueries(cfg.GetString("dbx.schema"))
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't init queries")
	}
	res, err := clean.NewWorkspaceResetter(wsClient, wsClient, queries, cfg.GetString("dbx.workingRoot"))
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't init resetter")
	}
	return res
}

var (
	version = "DEV"
)

func printBanner() {
	banner := `
  _    _____  ______________  ____ __
 | |  / /   |/_  __/ ____/ / / / //_/
 | | / / /| | / / / /   / /_/ / ,<
 | |/ / ___ |/ / / /___/ __  / /| |
 |___/_/  |_/_/  \____/_/ /_/_/ |_|

        __
  _____/ /__  ____ _____
 / ___/ / _ \/ __ ` + "`" + `/ __ \
/ /__/ /  __/ /_/ / / / /
\___/_/\___/\__,_/_/ /_/   v: %s

%s
________________________________________________________

`
	cl := color.New()
	cl.Printf(banner, cl.Red(version), cl.Green("https://github.com/YB1425/Invoice-VAT-compliance-checker"))
}
