package consul

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/hashicorp/consul/api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testKV struct {
	data map[string]string
	err  error
}

func (kv *testKV) Get(key string, q *api.QueryOptions) (*api.KVPair, *api.QueryMeta, error) {
	if kv.err != nil {
		return nil, nil, kv.err
	}
	v, ok := kv.data[key]
	if !ok {
		return nil, nil, nil
	}
	return &api.KVPair{Key: key, Value: []byte(v)}, nil, nil
}

func TestNewProvider_FailPrefix(t *testing.T) {
	_, err := NewProvider(api.DefaultConfig(), "")
	assert.NotNil(t, err)
}

func TestSecrets_FailBeforeLoad(t *testing.T) {
	p := newProvider(&testKV{}, "vatchk")
	_, err := p.Secrets()
	assert.NotNil(t, err)
	_, err = p.Token()
	assert.NotNil(t, err)
}

func TestCheck(t *testing.T) {
	p := newProvider(&testKV{data: map[string]string{
		"vatchk/operationalPassword": "op",
		"vatchk/reportingPassword":   "rep",
		"vatchk/workspaceToken":      "tok"}}, "vatchk")
	err := p.check(context.Background())
	require.Nil(t, err)
	s, err := p.Secrets()
	require.Nil(t, err)
	assert.Equal(t, "op", s.OperationalPassword)
	assert.Equal(t, "rep", s.ReportingPassword)
	token, err := p.Token()
	require.Nil(t, err)
	assert.Equal(t, "tok", token)
}

func TestStartRefreshLoop_LoadsBeforeReturn(t *testing.T) {
	p := newProvider(&testKV{data: map[string]string{
		"vatchk/operationalPassword": "op",
		"vatchk/reportingPassword":   "rep",
		"vatchk/workspaceToken":      "tok"}}, "vatchk")
	ctx, cancel := context.WithCancel(context.Background())
	done, err := p.StartRefreshLoop(ctx, time.Minute)
	require.Nil(t, err)
	token, err := p.Token()
	require.Nil(t, err)
	assert.Equal(t, "tok", token)
	cancel()
	<-done
}

func TestStartRefreshLoop_FailFirstLoad(t *testing.T) {
	p := newProvider(&testKV{err: fmt.Errorf("olia")}, "vatchk")
	_, err := p.StartRefreshLoop(context.Background(), time.Minute)
	assert.NotNil(t, err)
}

func TestCheck_FailMissingKey(t *testing.T) {
	p := newProvider(&testKV{data: map[string]string{
		"vatchk/operationalPassword": "op"}}, "vatchk")
	err := p.check(context.Background())
	assert.NotNil(t, err)
	_, err = p.Secrets()
	assert.NotNil(t, err)
}

func TestCheck_FailKV(t *testing.T) {
	p := newProvider(&testKV{err: fmt.Errorf("olia")}, "vatchk")
	err := p.check(context.Background())
	assert.NotNil(t, err)
}
