package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	ainform "github.com/airenas/async-api/pkg/inform"
	"github.com/airenas/go-app/pkg/goapp"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/gommon/color"
	"github.com/spf13/viper"
	"github.com/vgarvardt/gue/v5"
	"github.com/vgarvardt/gue/v5/adapter/pgxv5"

	"github.com/YB1425/Invoice-VAT-compliance-checker/internal/pkg/inform"
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

	data := &inform.ServiceData{WorkerCount: cfg.GetInt("worker.count")}

	data.GueClient, err = gue.NewClient(pgxv5.NewConnPool(dbPool))
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't init gue client")
	}
	data.DB, err = postgres.NewDB(dbPool)
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't init db")
	}
	data.EmailMaker, err = ainform.NewTemplateEmailMaker(cfg)
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't init email maker")
	}
	data.EmailSender = newEmailSender(cfg)
	data.Location = loadLocation(cfg.GetString("worker.location"))

	doneCh, err := inform.StartWorkerService(ctx, data)
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't start inform service")
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

func newEmailSender(cfg *viper.Viper) inform.Sender {
	if cfg.GetString("smtp.fakeUrl") != "" {
		goapp.Log.Info().Str("sender", "fake").Msg("smtp")
		res, err := inform.NewFakeEmailSender(cfg)
		if err != nil {
			goapp.Log.Fatal().Err(err).Msg("can't init fake email sender")
		}
		return res
	}
	goapp.Log.Info().Str("sender", "real").Msg("smtp")
	res, err := ainform.NewSimpleEmailSender(cfg)
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't init email sender")
	}
	return res
}

func loadLocation(name string) *time.Location {
	if name == "" {
		return nil
	}
	res, err := time.LoadLocation(name)
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't init location")
	}
	goapp.Log.Info().Str("local", time.Now().In(res).Format(time.RFC3339)).Msg("time")
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

     _       ____
    (_)___  / __/___  _________ ___
   / / __ \/ /_/ __ \/ ___/ __ ` + "`" + `__ \
  / / / / / __/ /_/ / /  / / / / / /
 /_/_/ /_/_/  \____/_/  /_/ /_/ /_/  v: %s

%s
________________________________________________________

`
	cl := color.New()
	cl.Printf(banner, cl.Red(version), cl.Green("https://github.com/YB1425/Invoice-VAT-compliance-checker"))
}
