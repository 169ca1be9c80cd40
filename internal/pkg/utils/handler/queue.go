package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"time"

	amessages "github.com/airenas/async-api/pkg/messages"
	"github.com/airenas/go-app/pkg/goapp"
	"github.com/vgarvardt/gue/v5"
)

// MsgSender provides send msg functionality
type MsgSender interface {
	SendMessage(context.Context, amessages.Message, string) error
}

// FailureFunc decides what happens after a handler error:
// whether to retry, after what delay (zero means use the backoff), or to give up
type FailureFunc[TM any] func(ctx context.Context, m *TM, err error, j *gue.Job) (retry bool, delay time.Duration, errFatal error)

type Opts[TM any] struct {
	backoff   gue.Backoff
	timeout   time.Duration
	onFailure FailureFunc[TM]
}

// DefaultOpts returns opts with a 15 min handler timeout and
// a failure handler that gives up after several retries
func DefaultOpts[TM any]() *Opts[TM] {
	return &Opts[TM]{timeout: time.Minute * 15, onFailure: giveUpAfter[TM](3), backoff: DefaultBackoff()}
}

func (o *Opts[TM]) WithFailure(onFailure FailureFunc[TM]) *Opts[TM] {
	o.onFailure = onFailure
	return o
}

func (o *Opts[TM]) WithTimeout(timeout time.Duration) *Opts[TM] {
	o.timeout = timeout
	return o
}

func (o *Opts[TM]) WithBackoff(b gue.Backoff) *Opts[TM] {
	o.backoff = b
	return o
}

// Create wraps a typed handler func into a gue.WorkFunc:
// unmarshals the message, applies the timeout, routes errors to the failure handler
func Create[TM any, SD any](data *SD, hf func(context.Context, *TM, *SD) error, opts *Opts[TM]) gue.WorkFunc {
	if opts == nil {
		goapp.Log.Panic().Msg("no opts provided")
	}
	return func(ctx context.Context, j *gue.Job) error {
		goapp.Log.Info().Str("queue", j.Queue).Str("type", j.Type).Int32("errCount", j.ErrorCount).Msg("got msg")

		var m TM
		err := json.Unmarshal(j.Args, &m)
		if err != nil {
			err = fmt.Errorf("could not unmarshal message: %w", err)
		} else {
			wrkCtx, cf := context.WithTimeout(ctx, opts.timeout)
			defer cf()
			if err = hf(wrkCtx, &m, data); err != nil {
				goapp.Log.Warn().Err(err).Str("queue", j.Queue).Str("type", j.Type).Msg("handler failed")
			}
		}
		if err == nil {
			return nil
		}
		retry, delay, errFatal := opts.onFailure(ctx, &m, err, j)
		if errFatal != nil {
			goapp.Log.Error().Err(errFatal).Str("queue", j.Queue).Str("type", j.Type).Int32("errCount", j.ErrorCount).Send()
			// keep the job for a few rounds so the failure handler can recover
			if j.ErrorCount > 5 {
				return nil
			}
		}
		if !retry {
			goapp.Log.Warn().Str("queue", j.Queue).Str("type", j.Type).Int32("errCount", j.ErrorCount).Msg("dropping msg")
			return nil
		}
		if delay == 0 {
			delay = opts.backoff(int(j.ErrorCount + 1))
		}
		goapp.Log.Info().Str("queue", j.Queue).Str("type", j.Type).Dur("after", delay).Msg("retry scheduled")
		return gue.ErrRescheduleJobIn(delay, err.Error())
	}
}

// SendToQueueOnFailure returns a failure handler that retries several times and
// then posts the message with the error to the indicated queue
func SendToQueueOnFailure[TM any](sender MsgSender, makeMsg func(*TM, error) amessages.Message, queue string, maxRetries int32) FailureFunc[TM] {
	return func(ctx context.Context, m *TM, err error, j *gue.Job) (bool, time.Duration, error) {
		if j.ErrorCount < maxRetries {
			return true, 0, nil
		}
		goapp.Log.Info().Str("queue", j.Queue).Int32("errCount", j.ErrorCount).Msg("retries exhausted, passing to failure queue")
		if errSend := sender.SendMessage(ctx, makeMsg(m, err), queue); errSend != nil {
			return false, 0, fmt.Errorf("can't send failure msg: %w", errSend)
		}
		return false, 0, nil
	}
}

func giveUpAfter[TM any](maxRetries int32) FailureFunc[TM] {
	return func(ctx context.Context, m *TM, err error, j *gue.Job) (bool, time.Duration, error) {
		return j.ErrorCount <= maxRetries, 0, nil
	}
}

// DefaultBackoff grows linearly with full jitter, see
// https://aws.amazon.com/blogs/architecture/exponential-backoff-and-jitter/
func DefaultBackoff() gue.Backoff {
	return func(retries int) time.Duration {
		t := time.Duration(retries) * time.Second * 10
		return time.Duration(float64(t) * rand.Float64())
	}
}

func NoBackoff() gue.Backoff {
	return func(retries int) time.Duration {
		return 0
	}
}

func DefaultBackoffOrTest(test bool) gue.Backoff {
	if test {
		return NoBackoff()
	}
	return DefaultBackoff()
}
