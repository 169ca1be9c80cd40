package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/airenas/async-api/pkg/messages"
	"github.com/airenas/go-app/pkg/goapp"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/vgarvardt/gue/v5"
	"github.com/vgarvardt/gue/v5/adapter/pgxv5"
)

// Sender enqueues pipeline messages into gue over the bookkeeping DB pool
type Sender struct {
	gc *gue.Client
}

// NewSender creates the gue backed sender
func NewSender(pool *pgxpool.Pool) (*Sender, error) {
	gc, err := gue.NewClient(pgxv5.NewConnPool(pool))
	if err != nil {
		return nil, fmt.Errorf("can't init gue: %w", err)
	}
	return &Sender{gc: gc}, nil
}

// SendMessage puts the message into the queue, job type equals the queue name
func (sender *Sender) SendMessage(ctx context.Context, msg messages.Message, queue string) error {
	if queue == "" {
		return fmt.Errorf("no queue")
	}
	args, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("can't marshal msg: %w", err)
	}
	j := &gue.Job{Type: queue, Queue: queue, Args: args}
	if err := sender.gc.Enqueue(ctx, j); err != nil {
		return fmt.Errorf("can't send msg to %s: %w", queue, err)
	}
	goapp.Log.Debug().Str("queue", queue).Msg("msg sent")
	return nil
}
