package main

import (
	"context"
	"time"

	"github.com/airenas/async-api/pkg/miniofs"
	"github.com/airenas/go-app/pkg/goapp"
	capi "github.com/hashicorp/consul/api"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/gommon/color"

	"github.com/YB1425/Invoice-VAT-compliance-checker/internal/pkg/auth"
	"github.com/YB1425/Invoice-VAT-compliance-checker/internal/pkg/batch"
	"github.com/YB1425/Invoice-VAT-compliance-checker/internal/pkg/consul"
	"github.com/YB1425/Invoice-VAT-compliance-checker/internal/pkg/databricks"
	"github.com/YB1425/Invoice-VAT-compliance-checker/internal/pkg/portal"
	"github.com/YB1425/Invoice-VAT-compliance-checker/internal/pkg/postgres"
)

func main() {
	goapp.StartWithDefault()

	printBanner()

	cfg := goapp.Config
	data := &portal.Data{}
	data.Port = cfg.GetInt("port")
	data.MaxFiles = cfg.GetInt("batch.maxFiles")
	data.MaxFileSize = cfg.GetInt64("batch.maxFileSize")
	var err error

	ctx := context.Background()

	dbConfig, err := pgxpool.ParseConfig(cfg.GetString("db.url"))
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't init db pool")
	}
	addDBLog(dbConfig)

	dbPool, err := pgxpool.NewWithConfig(ctx, dbConfig)
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't init db pool")
	}
	defer dbPool.Close()

	db, err := postgres.NewDB(dbPool)
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't init db")
	}

	data.DB = db

	filer, err := miniofs.NewFiler(ctx, miniofs.Options{Bucket: cfg.GetString("filer.bucket"),
		URL: cfg.GetString("filer.url"), User: cfg.GetString("filer.user"), Key: cfg.GetString("filer.key")})
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't init filer")
	}
	data.Saver = filer
	data.Reader = filer

	data.MsgSender, err = postgres.NewSender(dbPool)
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't init gue sender")
	}

	secrets, token := initSecrets(ctx, cfg.GetString("dbx.token"))
	data.Gate, err = auth.NewGate(secrets)
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't init gate")
	}
	sessionTTL := cfg.GetDuration("auth.sessionTTL")
	if sessionTTL == 0 {
		sessionTTL = time.Hour * 8
	}
	data.Sessions, err = auth.NewSessions(sessionTTL)
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't init sessions")
	}

	wsClient, err := databricks.NewClient(cfg.GetString("dbx.url"), token,
		cfg.GetInt64("dbx.jobID"), cfg.GetString("dbx.warehouseID"))
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't init workspace client")
	}
	data.Warehouse = wsClient

	data.Queries, err = batch.NewQueries(cfg.GetString("dbx.schema"))
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't init queries")
	}

	err = portal.StartWebServer(data)
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't start web server")
	}
}

// initSecrets wires gate passwords and the workspace token from consul when
// configured, with a plain config fallback
func initSecrets(ctx context.Context, cfgToken string) (auth.SecretProvider, string) {
	cfg := goapp.Config
	consulURL := cfg.GetString("consul.url")
	if consulURL == "" {
		goapp.Log.Info().Str("secrets", "config").Msg("auth")
		return &auth.StaticSecrets{Values: auth.Secrets{
			OperationalPassword: cfg.GetString("auth.operationalPassword"),
			ReportingPassword:   cfg.GetString("auth.reportingPassword"),
		}}, cfgToken
	}
	goapp.Log.Info().Str("secrets", "consul").Str("url", consulURL).Msg("auth")
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
	return provider, token
}

func addDBLog(dbConfig *pgxpool.Config) {
	logFunc := goapp.Log.Info().Msg
	dbConfig.BeforeConnect = func(ctx context.Context, cc *pgx.ConnConfig) error {
		logFunc("before connect")
		return nil
	}
	dbConfig.AfterConnect = func(ctx context.Context, c *pgx.Conn) error {
		logFunc("after connect")
		return nil
	}
	dbConfig.BeforeAcquire = func(ctx context.Context, c *pgx.Conn) bool {
		logFunc("before acquire")
		return true
	}
	dbConfig.AfterRelease = func(c *pgx.Conn) bool {
		logFunc("after release")
		return true
	}
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
    ____  ____  _____/ /_____ _/ /
   / __ \/ __ \/ ___/ __/ __ ` + "`" + `/ /
  / /_/ / /_/ / /  / /_/ /_/ / /
 / .___/\____/_/   \__/\__,_/_/   v: %s
/_/

%s
________________________________________________________

`
	cl := color.New()
	cl.Printf(banner, cl.Red(version), cl.Green("https://github.com/YB1425/Invoice-VAT-compliance-checker"))
}
