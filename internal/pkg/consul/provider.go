package consul

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/airenas/go-app/pkg/goapp"
	"github.com/hashicorp/consul/api"
	"go.uber.org/multierr"

	"github.com/YB1425/Invoice-VAT-compliance-checker/internal/pkg/auth"
)

const (
	operationalKey = "operationalPassword"
	reportingKey   = "reportingPassword"
	tokenKey       = "workspaceToken"
)

type kvGetter interface {
	Get(key string, q *api.QueryOptions) (*api.KVPair, *api.QueryMeta, error)
}

// Provider loads gate and workspace secrets from consul KV
type Provider struct {
	kv     kvGetter
	prefix string

	lock    sync.RWMutex
	secrets *auth.Secrets
	token   string
}

// NewProvider creates consul secret provider
func NewProvider(cfg *api.Config, keyPrefix string) (*Provider, error) {
	c, err := api.NewClient(cfg)
	if err != nil {
		return nil, err
	}
	if keyPrefix == "" {
		return nil, fmt.Errorf("no key prefix")
	}
	return newProvider(c.KV(), keyPrefix), nil
}

func newProvider(kv kvGetter, keyPrefix string) *Provider {
	goapp.Log.Info().Str("prefix", keyPrefix).Msg("cfg: consul key prefix")
	return &Provider{kv: kv, prefix: keyPrefix}
}

// Secrets returns the gate passwords. Fails until the first successful load
func (c *Provider) Secrets() (*auth.Secrets, error) {
	c.lock.RLock()
	defer c.lock.RUnlock()
	if c.secrets == nil {
		return nil, fmt.Errorf("no secrets loaded")
	}
	return c.secrets, nil
}

// Token returns the remote workspace token
func (c *Provider) Token() (string, error) {
	c.lock.RLock()
	defer c.lock.RUnlock()
	if c.token == "" {
		return "", fmt.Errorf("no token loaded")
	}
	return c.token, nil
}

// StartRefreshLoop reloads secrets from consul until ctx is done.
// The first load is synchronous, callers may use the provider right away
func (c *Provider) StartRefreshLoop(ctx context.Context, checkInterval time.Duration) (<-chan struct{}, error) {
	goapp.Log.Info().Msgf("Starting consul secret check every %v", checkInterval)
	if err := c.check(ctx); err != nil {
		return nil, fmt.Errorf("can't load secrets: %w", err)
	}
	res := make(chan struct{}, 2)
	go func() {
		defer close(res)
		c.refreshLoop(ctx, checkInterval)
	}()
	return res, nil
}

func (c *Provider) refreshLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	for {
		select {
		case <-ticker.C:
			if err := c.check(ctx); err != nil {
				goapp.Log.Error().Err(err).Send()
			}
		case <-ctx.Done():
			ticker.Stop()
			goapp.Log.Info().Msgf("Stopped consul timer service")
			return
		}
	}
}

func (c *Provider) check(ctx context.Context) error {
	ctxInt, cf := context.WithTimeout(ctx, time.Second*5)
	defer cf()
	qo := (&api.QueryOptions{}).WithContext(ctxInt)

	var err error
	get := func(key string) string {
		pair, _, errInt := c.kv.Get(c.prefix+"/"+key, qo)
		if errInt != nil {
			err = multierr.Append(err, fmt.Errorf("can't get %s: %v", key, errInt))
			return ""
		}
		if pair == nil {
			err = multierr.Append(err, fmt.Errorf("no key %s/%s", c.prefix, key))
			return ""
		}
		return string(pair.Value)
	}
	op, rep, token := get(operationalKey), get(reportingKey), get(tokenKey)
	if err != nil {
		return err
	}
	c.update(&auth.Secrets{OperationalPassword: op, ReportingPassword: rep}, token)
	return nil
}

func (c *Provider) update(secrets *auth.Secrets, token string) {
	c.lock.Lock()
	defer c.lock.Unlock()
	if c.secrets == nil {
		goapp.Log.Info().Msg("loaded secrets from consul")
	}
	c.secrets, c.token = secrets, token
}
