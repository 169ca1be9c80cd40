package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/airenas/async-api/pkg/miniofs"
	"github.com/airenas/go-app/pkg/goapp"
	capi "github.com/hashicorp/consul/api"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/gommon/color"
	"github.com/vgarvardt/gue/v5"
	"github.com/vgarvardt/gue/v5/adapter/pgxv5"

	"github.com/YB1425/Invoice-VAT-compliance-checker/internal/pkg/batch"
	"github.com/YB1425/Invoice-VAT-compliance-checker/internal/pkg/consul"
	"github.com/YB1425/Invoice-VAT-compliance-checker/internal/pkg/databricks"
	"github.com/YB1425/Invoice-VAT-compliance-checker/internal/pkg/postgres"
	"github.com/YB1425/Invoice-VAT-compliance-checker/internal/pkg/utils"
)

func main() {
	goapp.StartWithDefault()
	cfg := goapp.Config

	data := &batch.ServiceData{}
	ctx := context.Background()

	dbConfig, err := pgxpool.ParseConfig(cfg.GetString("db.url"))
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't init db pool")
	}

	goapp.Log.Info().Int32("max_conn", dbConfig.MaxConns).Int32("min_conn", dbConfig.MinConns).Msg("db info")

	dbPool, err := pgxpool.NewWithConfig(ctx, dbConfig)
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't init db pool")
	}
	defer dbPool.Close()

	data.GueClient, err = gue.NewClient(pgxv5.NewConnPool(dbPool))
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't init gue")
	}
	data.WorkerCount = defaultV(cfg.GetInt("worker.count"), 1)
	data.Testing = cfg.GetBool("worker.testing")
	data.MsgSender, err = postgres.NewSender(dbPool)
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't init gue sender")
	}
	data.Filer, err = miniofs.NewFiler(ctx, miniofs.Options{Bucket: cfg.GetString("filer.bucket"),
		URL: cfg.GetString("filer.url"), User: cfg.GetString("filer.user"), Key: cfg.GetString("filer.key")})
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't init filer")
	}
	db, err := postgres.NewDB(dbPool)
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't init db")
	}

	data.DB = db

	wsClient, err := databricks.NewClient(cfg.GetString("dbx.url"), workspaceToken(ctx),
		cfg.GetInt64("dbx.jobID"), cfg.GetString("dbx.warehouseID"))
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't init workspace client")
	}
	data.Store = wsClient
	data.Jobs = wsClient
	data.Warehouse = wsClient

	data.Queries, err = batch.NewQueries(cfg.GetString("dbx.schema"))
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't init queries")
	}
	data.WorkingRoot = defaultV(cfg.GetString("dbx.workingRoot"), "/Volumes/dev_uc_catalog/default/vat_docs/working")
	data.ArchiveRoot = defaultV(cfg.GetString("dbx.archiveRoot"), "/Volumes/dev_uc_catalog/default/vat_docs/archive")

	printBanner()

	go utils.RunPerfEndpoint()

	ctx, cancelFunc := context.WithCancel(context.Background())
	doneCh, err := batch.StartWorkerService(ctx, data)
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't start worker service")
	}
	waitCh := make(chan os.Signal, 2)
	signal.Notify(waitCh, os.Interrupt, syscall.SIGTERM)
	select {
	case <-waitCh:
		goapp.Log.Info().Msg("got exit signal")
	case <-doneCh:
		goapp.Log.Info().Msg("service exit")
	}
	cancelFunc()
	select {
	case <-doneCh:
		goapp.Log.Info().Msg("workers stopped, exiting")
	case <-time.After(time.Second * 15):
		goapp.Log.Warn().Msg("shutdown timed out")
	}
}

// workspaceToken returns the remote API token, from consul when configured
func workspaceToken(ctx context.Context) string {
	cfg := goapp.Config
	consulURL := cfg.GetString("consul.url")
	if consulURL == "" {
		return cfg.GetString("dbx.token")
	}
	cCfg := capi.DefaultConfig()
	cCfg.Address = consulURL
	provider, err := consul.NewProvider(cCfg, cfg.GetString("consul.keyPrefix"))
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't init consul")
	}
	if _, err := provider.StartRefreshLoop(ctx, cfg.GetDuration("consul.checkInterval")); err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't start consul refresh")
	}
	token, err := provider.Token()
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't load workspace token")
	}
	return token
}

func defaultV[T comparable](v, def T) T {
	var zero T
	if v == zero {
		return def
	}
	return v
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
 |___/_/  |_/_/  \____/_/ /_/_/ |_|   v: %s

                      __
 _      ______  _____/ /_____  _____
| | /| / / __ \/ ___/ //_/ _ \/ ___/
| |/ |/ / /_/ / /  / ,< /  __/ /
|__/|__/\____/_/  /_/|_|\___/_/

%s
________________________________________________________

`
	cl := color.New()
	cl.Printf(banner, cl.Red(version), cl.Green("https://github.com/YB1425/Invoice-VAT-compliance-checker"))
}
