package comms

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/CodedInternet/pitank/onboard"
	deviceErrors "github.com/CodedInternet/pitank/onboard/errors"
	"github.com/edaniels/golog"
	"github.com/gorilla/websocket"
	. "github.com/smartystreets/goconvey/convey"
)

type mockTank struct {
	lock     sync.Mutex
	commands []string
	sticks   [2]float64
}

func (m *mockTank) DispatchCommand(ctx context.Context, command string) (bool, error) {
	m.lock.Lock()
	defer m.lock.Unlock()
	if command == "spin" {
		return false, deviceErrors.InvalidCommandError{Command: command}
	}
	m.commands = append(m.commands, command)
	return true, nil
}

func (m *mockTank) ApplyStickInput(leftY, rightY float64) error {
	m.lock.Lock()
	defer m.lock.Unlock()
	m.sticks = [2]float64{leftY, rightY}
	return nil
}

func (m *mockTank) received() []string {
	m.lock.Lock()
	defer m.lock.Unlock()
	return append([]string(nil), m.commands...)
}

func (m *mockTank) SetSpeeds(left, right int) error                  { return nil }
func (m *mockTank) SetAngle(a onboard.Actuator, angle float64) error { return nil }
func (m *mockTank) Commands() []onboard.Command                      { return nil }
func (m *mockTank) Close() error                                     { return nil }

func (m *mockTank) Status() onboard.TankStatus {
	return onboard.TankStatus{Motor: onboard.MotorState{Left: 100, Right: -100}}
}

func (m *mockTank) CraneStatus() onboard.CraneStatus {
	return onboard.CraneStatus{}
}

func wsURL(server *httptest.Server, path string) string {
	return "ws" + strings.TrimPrefix(server.URL, "http") + path
}

func TestConductor(t *testing.T) {
	Convey("Given a conductor behind a test server", t, func() {
		tank := new(mockTank)
		conductor := NewConductor(tank, 10*time.Millisecond, golog.NewTestLogger(t))

		mux := http.NewServeMux()
		mux.HandleFunc("/ws/control", conductor.ControlHandler)
		mux.HandleFunc("/ws/status", conductor.StatusHandler)
		server := httptest.NewServer(mux)
		defer server.Close()

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		Convey("commands are processed directly", func() {
			reply := conductor.ProcessCommand(ctx, Cmd{Cmd: onboard.CMD_FORWARD})
			So(reply, ShouldResemble, Reply{Status: "success", Command: "forward", Applied: true})

			reply = conductor.ProcessCommand(ctx, Cmd{Cmd: "spin"})
			So(reply.Status, ShouldEqual, "invalid")
			So(reply.Applied, ShouldBeFalse)

			reply = conductor.ProcessCommand(ctx, Cmd{Cmd: CMD_STICKS, LeftY: -1, RightY: 0.5})
			So(reply.Applied, ShouldBeTrue)
			So(tank.sticks, ShouldResemble, [2]float64{-1, 0.5})
		})

		Convey("the control socket acknowledges each frame", func() {
			conn, _, err := websocket.DefaultDialer.Dial(wsURL(server, "/ws/control"), nil)
			So(err, ShouldBeNil)

			So(conn.WriteJSON(Cmd{Cmd: onboard.CMD_CRANE_UP}), ShouldBeNil)
			var reply Reply
			So(conn.ReadJSON(&reply), ShouldBeNil)
			So(reply.Applied, ShouldBeTrue)
			So(reply.Command, ShouldEqual, onboard.CMD_CRANE_UP)

			Convey("a second operator is turned away", func() {
				_, resp, err := websocket.DefaultDialer.Dial(wsURL(server, "/ws/control"), nil)
				So(err, ShouldNotBeNil)
				So(resp.StatusCode, ShouldEqual, http.StatusConflict)
			})

			Convey("the tracks stop when the operator leaves", func() {
				conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				conn.Close()

				deadline := time.Now().Add(time.Second)
				for time.Now().Before(deadline) && conductor.control.InUse() {
					time.Sleep(5 * time.Millisecond)
				}
				So(conductor.control.InUse(), ShouldBeFalse)
				So(tank.received(), ShouldResemble, []string{onboard.CMD_CRANE_UP, onboard.CMD_STOP})
			})

			conn.Close()
		})

		Convey("a frame of the wrong shape is answered and the operator stays", func() {
			conn, _, err := websocket.DefaultDialer.Dial(wsURL(server, "/ws/control"), nil)
			So(err, ShouldBeNil)
			defer conn.Close()

			So(conn.WriteMessage(websocket.TextMessage, []byte(`{"cmd":5}`)), ShouldBeNil)
			var reply Reply
			So(conn.ReadJSON(&reply), ShouldBeNil)
			So(reply.Status, ShouldEqual, "error")

			So(conn.WriteJSON(Cmd{Cmd: onboard.CMD_FORWARD}), ShouldBeNil)
			reply = Reply{}
			So(conn.ReadJSON(&reply), ShouldBeNil)
			So(reply, ShouldResemble, Reply{Status: "success", Command: "forward", Applied: true})
		})

		Convey("status clients receive snapshots", func() {
			go conductor.UpdateClients(ctx)

			conn, _, err := websocket.DefaultDialer.Dial(wsURL(server, "/ws/status"), nil)
			So(err, ShouldBeNil)
			defer conn.Close()

			var status onboard.TankStatus
			conn.SetReadDeadline(time.Now().Add(time.Second))
			So(conn.ReadJSON(&status), ShouldBeNil)
			So(status.Motor, ShouldResemble, onboard.MotorState{Left: 100, Right: -100})
			So(conductor.Clients(), ShouldEqual, 1)
		})
	})
}

func TestControlDuringCraneMove(t *testing.T) {
	Convey("Given an operator driving a simulated tank", t, func() {
		logger := golog.NewTestLogger(t)
		config := onboard.DefaultTankConfig()
		config.Step = 1
		config.StepDelay = onboard.Duration(100 * time.Millisecond)
		config.SettleDelay = 0

		tank, err := onboard.NewActuatorTank(config, onboard.NewSimulatedDrivers(logger), nil, logger)
		So(err, ShouldBeNil)
		defer tank.Close()

		conductor := NewConductor(tank, 0, logger)
		server := httptest.NewServer(http.HandlerFunc(conductor.ControlHandler))
		defer server.Close()

		conn, _, err := websocket.DefaultDialer.Dial(wsURL(server, ""), nil)
		So(err, ShouldBeNil)
		defer conn.Close()

		Convey("a stop behind a crane move is applied while the lift is still moving", func() {
			for _, cmd := range []string{onboard.CMD_FORWARD, onboard.CMD_CRANE_DOWN, onboard.CMD_STOP} {
				So(conn.WriteJSON(Cmd{Cmd: cmd}), ShouldBeNil)
			}

			var replies []string
			conn.SetReadDeadline(time.Now().Add(500 * time.Millisecond))
			for {
				var reply Reply
				So(conn.ReadJSON(&reply), ShouldBeNil)
				replies = append(replies, reply.Command)
				if reply.Command == onboard.CMD_STOP {
					break
				}
			}

			So(replies, ShouldResemble, []string{onboard.CMD_FORWARD, onboard.CMD_STOP})
			So(tank.Status().Motor, ShouldResemble, onboard.MotorState{})
			So(tank.CraneStatus().LiftAngle, ShouldBeGreaterThan, 90)
		})
	})
}
