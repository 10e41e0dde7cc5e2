package comms

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/CodedInternet/pitank/onboard"
	deviceErrors "github.com/CodedInternet/pitank/onboard/errors"
	"github.com/edaniels/golog"
	"github.com/gorilla/websocket"
)

const (
	CMD_STICKS = "sticks"

	DefaultStatusInterval = 100 * time.Millisecond

	writeWait = time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Cmd is a single frame from the control socket. Cmd is either a symbolic
// command or "sticks", in which case the stick values are applied.
type Cmd struct {
	Cmd    string  `json:"cmd"`
	LeftY  float64 `json:"left_y"`
	RightY float64 `json:"right_y"`
}

// Reply acknowledges a Cmd.
type Reply struct {
	Status  string `json:"status"`
	Command string `json:"command"`
	Applied bool   `json:"applied"`
	Error   string `json:"error,omitempty"`
}

type ConductorInterface interface {
	ProcessCommand(ctx context.Context, cmd Cmd) Reply
}

// Conductor connects websocket clients to the tank: every status client
// receives periodic snapshots and at most one client holds the control socket.
type Conductor struct {
	Device   onboard.Tank
	interval time.Duration
	logger   golog.Logger

	lock    sync.Mutex
	clients map[*statusClient]struct{}
	control xMutex
}

var _ ConductorInterface = (*Conductor)(nil)

func NewConductor(device onboard.Tank, interval time.Duration, logger golog.Logger) *Conductor {
	if interval <= 0 {
		interval = DefaultStatusInterval
	}
	return &Conductor{
		Device:   device,
		interval: interval,
		logger:   logger,
		clients:  make(map[*statusClient]struct{}),
	}
}

func (c *Conductor) ProcessCommand(ctx context.Context, cmd Cmd) (reply Reply) {
	reply.Command = cmd.Cmd

	var err error
	switch cmd.Cmd {
	case CMD_STICKS:
		err = c.Device.ApplyStickInput(cmd.LeftY, cmd.RightY)
		reply.Applied = err == nil

	default:
		reply.Applied, err = c.Device.DispatchCommand(ctx, cmd.Cmd)
	}

	switch {
	case err == nil:
		reply.Status = "success"
	case deviceErrors.IsInvalidCommand(err):
		reply.Status = "invalid"
		reply.Error = err.Error()
	default:
		reply.Status = "error"
		reply.Error = err.Error()
	}
	return reply
}

// ControlHandler serves the exclusive control socket. Crane moves run in the
// background so a stop sent behind them is applied at once, each is answered
// when it finishes. When the operator disconnects pending moves are cancelled
// and the tracks are stopped.
func (c *Conductor) ControlHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Add("Cache-Control", "no-cache")
	if err := c.control.Lock(); err != nil {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}
	defer c.control.Unlock()

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		c.logger.Warnw("unable to upgrade control socket", "error", err)
		return
	}
	defer conn.Close()

	var (
		writeLock sync.Mutex
		moves     sync.WaitGroup
	)
	send := func(reply Reply) error {
		writeLock.Lock()
		defer writeLock.Unlock()
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		return conn.WriteJSON(reply)
	}

	ctx, cancel := context.WithCancel(r.Context())
	c.logger.Infow("operator connected", "remote", r.RemoteAddr)
	defer func() {
		cancel()
		moves.Wait()
		if _, err := c.Device.DispatchCommand(context.Background(), onboard.CMD_STOP); err != nil {
			c.logger.Errorw("unable to stop after operator left", "error", err)
		}
		c.logger.Infow("operator disconnected", "remote", r.RemoteAddr)
	}()

	for {
		var cmd Cmd
		if err := conn.ReadJSON(&cmd); err != nil {
			switch err.(type) {
			case *json.SyntaxError, *json.UnmarshalTypeError:
				if err := send(Reply{Status: "error", Error: "invalid json"}); err != nil {
					return
				}
				continue
			}
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.logger.Debugw("control socket read", "error", err)
			}
			return
		}

		if isGradual(cmd.Cmd) {
			moves.Add(1)
			go func(cmd Cmd) {
				defer moves.Done()
				if err := send(c.ProcessCommand(ctx, cmd)); err != nil {
					c.logger.Debugw("control socket write", "error", err)
				}
			}(cmd)
			continue
		}

		if err := send(c.ProcessCommand(ctx, cmd)); err != nil {
			c.logger.Debugw("control socket write", "error", err)
			return
		}
	}
}

// isGradual reports whether the command steps a servo over time.
func isGradual(command string) bool {
	switch command {
	case onboard.CMD_CRANE_UP, onboard.CMD_CRANE_DOWN, onboard.CMD_GRABBER_OPEN, onboard.CMD_GRABBER_CLOSE:
		return true
	}
	return false
}

// StatusHandler registers a status client until it disconnects.
func (c *Conductor) StatusHandler(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		c.logger.Warnw("unable to upgrade status socket", "error", err)
		return
	}

	client := newStatusClient(conn)
	c.lock.Lock()
	c.clients[client] = struct{}{}
	c.lock.Unlock()

	go client.writePump(c.logger)
	client.readPump()

	c.lock.Lock()
	delete(c.clients, client)
	c.lock.Unlock()
	client.close()
}

// Clients returns the number of connected status clients.
func (c *Conductor) Clients() int {
	c.lock.Lock()
	defer c.lock.Unlock()
	return len(c.clients)
}

// UpdateClients pushes the tank status to every status client until ctx is done.
func (c *Conductor) UpdateClients(ctx context.Context) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		msg, err := json.Marshal(c.Device.Status())
		if err != nil {
			c.logger.Errorw("unable to encode status", "error", err)
			continue
		}

		c.lock.Lock()
		for client := range c.clients {
			client.queue(msg)
		}
		c.lock.Unlock()
	}
}
