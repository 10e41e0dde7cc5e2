package onboard

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/edaniels/golog"
	. "github.com/smartystreets/goconvey/convey"
)

func testTankConfig() TankConfig {
	config := DefaultTankConfig()
	config.StepDelay = Duration(time.Millisecond)
	config.SettleDelay = 0
	return config
}

func TestActuatorTank(t *testing.T) {
	Convey("Given a tank with recording drivers and a gamepad", t, func() {
		left, right := &recordingMotor{}, &recordingMotor{}
		lift, grabber := &recordingServo{}, &recordingServo{}
		pad := newScriptedPad(6, 4)

		tank, err := NewActuatorTank(testTankConfig(), Drivers{left, right, lift, grabber}, pad, golog.NewTestLogger(t))
		So(err, ShouldBeNil)

		Convey("the initial status is at rest", func() {
			status := tank.Status()
			So(status.Motor, ShouldResemble, MotorState{0, 0})
			So(status.Servo.LiftAngle, ShouldEqual, 140)
			So(status.Servo.LiftPosition, ShouldEqual, "up")
			So(status.Servo.GrabberAngle, ShouldEqual, 90)
			So(status.Servo.GrabberPosition, ShouldEqual, "open")
			So(status.GamepadConnected, ShouldBeTrue)
			So(status.MotorsAttached, ShouldBeTrue)
		})

		Convey("status serialises with the documented keys", func() {
			raw, err := json.Marshal(tank.Status())
			So(err, ShouldBeNil)

			var doc map[string]interface{}
			So(json.Unmarshal(raw, &doc), ShouldBeNil)
			So(doc, ShouldContainKey, "motor")
			So(doc, ShouldContainKey, "gamepad_connected")
			servo := doc["servo"].(map[string]interface{})
			So(servo, ShouldContainKey, "lift_angle")
			So(servo, ShouldContainKey, "grabber_position")
		})

		Convey("commands are dispatched", func() {
			applied, err := tank.DispatchCommand(context.Background(), CMD_FORWARD)
			So(err, ShouldBeNil)
			So(applied, ShouldBeTrue)
			So(tank.Status().Motor, ShouldResemble, MotorState{DefaultDriveSpeed, DefaultDriveSpeed})

			applied, err = tank.DispatchCommand(context.Background(), "spin")
			So(err, ShouldNotBeNil)
			So(applied, ShouldBeFalse)
			So(tank.Status().Motor, ShouldResemble, MotorState{DefaultDriveSpeed, DefaultDriveSpeed})
		})

		Convey("stick input drives the tracks", func() {
			So(tank.ApplyStickInput(-1, 0.5), ShouldBeNil)
			motor := tank.Status().Motor
			So(motor.Left, ShouldEqual, DutyMax)
			So(motor.Right, ShouldBeLessThan, 0)
		})

		Convey("small web stick values are not swallowed", func() {
			So(tank.ApplyStickInput(-0.05, 0.05), ShouldBeNil)
			So(tank.Status().Motor, ShouldResemble, MotorState{Left: 205, Right: -205})
		})

		Convey("crane status matches the aggregate", func() {
			So(tank.SetAngle(Lift, 100), ShouldBeNil)
			So(tank.CraneStatus(), ShouldResemble, tank.Status().Servo)
			So(tank.CraneStatus().LiftPosition, ShouldEqual, "down")
		})

		Convey("shutdown parks everything and releases the drivers", func() {
			tank.Start(context.Background())
			So(tank.SetSpeeds(1000, 1000), ShouldBeNil)
			So(tank.SetAngle(Grabber, 150), ShouldBeNil)

			So(tank.Close(), ShouldBeNil)
			So(tank.Status().Motor, ShouldResemble, MotorState{0, 0})
			So(left.last, ShouldEqual, "stop")
			So(left.closed, ShouldBeTrue)
			So(right.closed, ShouldBeTrue)
			So(lift.last(), ShouldEqual, 140)
			So(grabber.last(), ShouldEqual, 90)
			So(lift.closed, ShouldBeTrue)
			So(pad.closed, ShouldBeTrue)
		})
	})

	Convey("Given a tank without any hardware", t, func() {
		tank, err := NewActuatorTank(testTankConfig(), Drivers{}, nil, golog.NewTestLogger(t))
		So(err, ShouldBeNil)

		Convey("drive commands are tracked", func() {
			applied, err := tank.DispatchCommand(context.Background(), CMD_LEFT)
			So(err, ShouldBeNil)
			So(applied, ShouldBeTrue)
			So(tank.Status().Motor, ShouldResemble, MotorState{-DefaultDriveSpeed, DefaultDriveSpeed})
			So(tank.Status().MotorsAttached, ShouldBeFalse)
		})

		Convey("crane commands fail and leave the servos alone", func() {
			applied, err := tank.DispatchCommand(context.Background(), CMD_CRANE_DOWN)
			So(err, ShouldNotBeNil)
			So(applied, ShouldBeFalse)
			So(tank.CraneStatus().LiftAngle, ShouldEqual, 140)
		})

		Convey("the gamepad is reported missing", func() {
			So(tank.Status().GamepadConnected, ShouldBeFalse)
		})

		Convey("shutdown succeeds", func() {
			tank.Start(context.Background())
			So(tank.Close(), ShouldBeNil)
		})
	})

	Convey("an invalid config is refused", t, func() {
		config := testTankConfig()
		config.Deadzone = 1
		_, err := NewActuatorTank(config, Drivers{}, nil, golog.NewTestLogger(t))
		So(err, ShouldNotBeNil)
	})
}
