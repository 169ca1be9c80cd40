package inform

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/airenas/go-app/pkg/goapp"
	"github.com/jordan-wright/email"
	"github.com/spf13/viper"
)

// fakeEmailSender posts the mail as JSON to a test endpoint instead of SMTP.
// Used in compose/integration environments without a mail server
type fakeEmailSender struct {
	url        string
	httpclient *http.Client
}

// NewFakeEmailSender creates the fake sender from smtp.fakeUrl
func NewFakeEmailSender(c *viper.Viper) (*fakeEmailSender, error) {
	res := fakeEmailSender{}
	res.url = c.GetString("smtp.fakeUrl")
	if res.url == "" {
		return nil, fmt.Errorf("no URL")
	}
	res.httpclient = &http.Client{Timeout: time.Second * 5}
	goapp.Log.Info().Str("URL", res.url).Msg("fake email sender")
	return &res, nil
}

// Send posts the email to the configured endpoint
func (s *fakeEmailSender) Send(mail *email.Email) error {
	body, err := json.Marshal(mail)
	if err != nil {
		return fmt.Errorf("can't marshal email: %w", err)
	}
	goapp.Log.Info().Str("url", s.url).Msg("posting email")
	resp, err := s.httpclient.Post(s.url, "application/json", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("can't call: %w", err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 10000))
		_ = resp.Body.Close()
	}()
	if err := goapp.ValidateHTTPResp(resp, 100); err != nil {
		return fmt.Errorf("can't invoke '%s': %w", s.url, err)
	}
	return nil
}
