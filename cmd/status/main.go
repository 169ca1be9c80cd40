package main

import (
	"context"
	"time"

	"github.com/airenas/go-app/pkg/goapp"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/gommon/color"
	"github.com/vgarvardt/gue/v5"
	"github.com/vgarvardt/gue/v5/adapter/pgxv5"

	"github.com/YB1425/Invoice-VAT-compliance-checker/internal/pkg/postgres"
	"github.com/YB1425/Invoice-VAT-compliance-checker/internal/pkg/statusservice"
)

func main() {
	goapp.StartWithDefault()
	printBanner()

	cfg := goapp.Config
	ctx, cancelFunc := context.WithCancel(context.Background())
	defer cancelFunc()

	dbPool := newPool(ctx, cfg.GetString("db.url"))
	defer dbPool.Close()

	db, err := postgres.NewDB(dbPool)
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't init db")
	}
	gueClient, err := gue.NewClient(pgxv5.NewConnPool(dbPool))
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't init gue client")
	}

	keeper := statusservice.NewWSConnKeeper()

	goapp.Log.Info().Msg("starting status change listener")
	doneCh, err := statusservice.StartStatusHandler(ctx, &statusservice.HandlerData{
		GueClient:   gueClient,
		WorkerCount: cfg.GetInt("worker.count"),
		DB:          db,
		WSHandler:   keeper,
	})
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't start status change listener")
	}

	goapp.Log.Info().Msg("starting web service")
	if err := statusservice.StartWebServer(&statusservice.Data{
		Port:      cfg.GetInt("port"),
		DB:        db,
		WSHandler: keeper,
	}); err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't start web server")
	}
	goapp.Log.Info().Msg("web service stopped")

	cancelFunc()
	select {
	case <-doneCh:
		goapp.Log.Info().Msg("listener stopped, exiting")
	case <-time.After(time.Second * 15):
		goapp.Log.Warn().Msg("shutdown timed out")
	}
}

func newPool(ctx context.Context, url string) *pgxpool.Pool {
	dbConfig, err := pgxpool.ParseConfig(url)
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't parse db config")
	}
	goapp.Log.Info().Int32("max_conn", dbConfig.MaxConns).Int32("min_conn", dbConfig.MinConns).Msg("db info")
	res, err := pgxpool.NewWithConfig(ctx, dbConfig)
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't init db pool")
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

         __        __
   _____/ /_____ _/ /___  _______
  / ___/ __/ __ ` + "`" + `/ __/ / / / ___/
 (__  ) /_/ /_/ / /_/ /_/ (__  )
/____/\__/\__,_/\__/\__,_/____/   v: %s

%s
________________________________________________________

`
	cl := color.New()
	cl.Printf(banner, cl.Red(version), cl.Green("https://github.com/YB1425/Invoice-VAT-compliance-checker"))
}
