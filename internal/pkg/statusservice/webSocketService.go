package statusservice

import (
	"strings"
	"sync"
	"time"

	"github.com/airenas/go-app/pkg/goapp"
)

// WsConn is the websocket connection surface used by the keeper
type WsConn interface {
	ReadMessage() (messageType int, p []byte, err error)
	Close() error
	WriteJSON(v interface{}) error
}

// WSConnKeeper tracks subscriber connections by batch ID.
// A client sends the batch ID it wants updates for as a text message,
// sending a new ID moves the connection to that batch
type WSConnKeeper struct {
	lock    sync.Mutex
	subs    map[string]map[WsConn]struct{}
	batchOf map[WsConn]string
	idle    time.Duration
}

// NewWSConnKeeper creates the keeper
func NewWSConnKeeper() *WSConnKeeper {
	return &WSConnKeeper{
		subs:    map[string]map[WsConn]struct{}{},
		batchOf: map[WsConn]string{},
		// a silent connection is dropped after this
		idle: time.Minute * 30,
	}
}

// HandleConnection serves one connection until it closes or goes idle
func (kp *WSConnKeeper) HandleConnection(conn WsConn) error {
	defer kp.unsubscribe(conn)
	defer conn.Close()

	readCh := make(chan string)
	go func() {
		defer close(readCh)
		for {
			_, message, err := conn.ReadMessage()
			if err != nil {
				goapp.Log.Debug().Err(err).Msg("ws read ended")
				return
			}
			if id := strings.TrimSpace(string(message)); id != "" {
				goapp.Log.Debug().Str("ID", goapp.Sanitize(id)).Msg("ws subscribe")
				readCh <- id
			}
		}
	}()

	deadline := time.After(kp.idle)
	for {
		select {
		case <-deadline:
			goapp.Log.Debug().Msg("ws conn idle, dropping")
			return nil
		case id, ok := <-readCh:
			if !ok {
				return nil
			}
			kp.subscribe(conn, id)
			deadline = time.After(kp.idle)
		}
	}
}

func (kp *WSConnKeeper) subscribe(conn WsConn, id string) {
	kp.lock.Lock()
	defer kp.lock.Unlock()
	kp.drop(conn)
	kp.batchOf[conn] = id
	conns, ok := kp.subs[id]
	if !ok {
		conns = map[WsConn]struct{}{}
		kp.subs[id] = conns
	}
	conns[conn] = struct{}{}
	goapp.Log.Info().Str("ID", id).Int("active", len(kp.batchOf)).Msg("ws subscribed")
}

func (kp *WSConnKeeper) unsubscribe(conn WsConn) {
	kp.lock.Lock()
	defer kp.lock.Unlock()
	kp.drop(conn)
	goapp.Log.Info().Int("active", len(kp.batchOf)).Msg("ws conn removed")
}

// drop detaches the connection from its batch, callers hold the lock
func (kp *WSConnKeeper) drop(conn WsConn) {
	if id, ok := kp.batchOf[conn]; ok {
		if conns, ok := kp.subs[id]; ok {
			delete(conns, conn)
			if len(conns) == 0 {
				delete(kp.subs, id)
			}
		}
	}
	delete(kp.batchOf, conn)
}

// GetConnections returns subscriber connections for the batch ID
func (kp *WSConnKeeper) GetConnections(id string) ([]WsConn, bool) {
	kp.lock.Lock()
	defer kp.lock.Unlock()
	conns, ok := kp.subs[id]
	if !ok {
		return nil, false
	}
	res := make([]WsConn, 0, len(conns))
	for c := range conns {
		res = append(res, c)
	}
	return res, true
}
