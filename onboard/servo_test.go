package onboard

import (
	"context"
	"sync"
	"testing"
	"time"

	deviceErrors "github.com/CodedInternet/pitank/onboard/errors"
	"github.com/edaniels/golog"
	. "github.com/smartystreets/goconvey/convey"
)

type recordingServo struct {
	lock   sync.Mutex
	angles []float64
	closed bool
}

func (s *recordingServo) SetAngle(deg float64) error {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.angles = append(s.angles, deg)
	return nil
}

func (s *recordingServo) last() float64 {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.angles[len(s.angles)-1]
}

func (s *recordingServo) writes() int {
	s.lock.Lock()
	defer s.lock.Unlock()
	return len(s.angles)
}

func (s *recordingServo) Attached() bool { return true }
func (s *recordingServo) Close() error {
	s.closed = true
	return nil
}

func testCraneConfig() CraneConfig {
	config := DefaultTankConfig().CraneConfig()
	config.StepDelay = time.Millisecond
	config.SettleDelay = 0
	return config
}

func TestCrane(t *testing.T) {
	Convey("Given a crane on recording servos", t, func() {
		lift, grabber := &recordingServo{}, &recordingServo{}
		crane := NewCrane(testCraneConfig(), lift, grabber, golog.NewTestLogger(t))

		Convey("servos start at their initial angles", func() {
			status := crane.Status()
			So(status.LiftAngle, ShouldEqual, 140)
			So(status.GrabberAngle, ShouldEqual, 90)
			So(status.LiftPosition, ShouldEqual, "up")
			So(status.GrabberPosition, ShouldEqual, "open")
			So(status.DriverAvailable, ShouldBeTrue)
			So(lift.last(), ShouldEqual, 140)
		})

		Convey("angles are clamped to the actuator bounds", func() {
			So(crane.SetAngle(Lift, 200), ShouldBeNil)
			So(crane.Status().LiftAngle, ShouldEqual, 150)
			So(crane.SetAngle(Grabber, 10), ShouldBeNil)
			So(crane.Status().GrabberAngle, ShouldEqual, 90)
			So(grabber.last(), ShouldEqual, 90)
		})

		Convey("labels flip at the midpoint", func() {
			So(crane.SetAngle(Lift, 121), ShouldBeNil)
			So(crane.Position(Lift), ShouldEqual, "up")
			So(crane.SetAngle(Lift, 119), ShouldBeNil)
			So(crane.Position(Lift), ShouldEqual, "down")
			So(crane.SetAngle(Lift, 120), ShouldBeNil)
			So(crane.Position(Lift), ShouldEqual, "down")

			So(crane.SetAngle(Grabber, 121), ShouldBeNil)
			So(crane.Position(Grabber), ShouldEqual, "closed")
			So(crane.SetAngle(Grabber, 119), ShouldBeNil)
			So(crane.Position(Grabber), ShouldEqual, "open")
		})

		Convey("a gradual move ends exactly on target", func() {
			So(crane.SetAngle(Lift, 90), ShouldBeNil)
			So(crane.MoveTo(context.Background(), Lift, 150, 1), ShouldBeNil)
			So(crane.Status().LiftAngle, ShouldEqual, 150)

			Convey("passing through 2 degree steps", func() {
				So(lift.angles, ShouldContain, 92.0)
				So(lift.angles, ShouldContain, 148.0)
				So(lift.angles, ShouldNotContain, 91.0)
			})
		})

		Convey("an odd start angle still finishes on target", func() {
			So(crane.SetAngle(Lift, 131.5), ShouldBeNil)
			So(crane.MoveTo(context.Background(), Lift, 97.25, 4), ShouldBeNil)
			So(crane.Status().LiftAngle, ShouldEqual, 97.25)
		})

		Convey("named moves go to the bounds", func() {
			ctx := context.Background()
			So(crane.Lower(ctx, 10), ShouldBeNil)
			So(crane.Status().LiftAngle, ShouldEqual, 90)
			So(crane.Lift(ctx, 10), ShouldBeNil)
			So(crane.Status().LiftAngle, ShouldEqual, 150)
			So(crane.CloseGrabber(ctx, 10), ShouldBeNil)
			So(crane.Status().GrabberPosition, ShouldEqual, "closed")
			So(crane.OpenGrabber(ctx, 10), ShouldBeNil)
			So(crane.Status().GrabberPosition, ShouldEqual, "open")
		})

		Convey("stopping ends a move in flight without an error", func() {
			slow := testCraneConfig()
			slow.StepDelay = 20 * time.Millisecond
			crane := NewCrane(slow, lift, grabber, golog.NewTestLogger(t))

			result := make(chan error, 1)
			go func() {
				result <- crane.MoveTo(context.Background(), Grabber, 150, 1)
			}()
			time.Sleep(50 * time.Millisecond)
			So(crane.StopGrabber(), ShouldBeNil)

			So(<-result, ShouldBeNil)
			angle := crane.Status().GrabberAngle
			So(angle, ShouldBeGreaterThanOrEqualTo, 90)
			So(angle, ShouldBeLessThan, 150)

			Convey("and the angle holds afterwards", func() {
				time.Sleep(50 * time.Millisecond)
				So(crane.Status().GrabberAngle, ShouldEqual, angle)
			})
		})

		Convey("no step lands after a stop or close returns", func() {
			fine := testCraneConfig()
			fine.Step = 1
			crane := NewCrane(fine, lift, grabber, golog.NewTestLogger(t))

			result := make(chan error, 1)
			go func() {
				result <- crane.MoveTo(context.Background(), Grabber, 150, 1)
			}()
			for grabber.writes() < 5 {
				time.Sleep(time.Millisecond)
			}
			So(crane.StopGrabber(), ShouldBeNil)
			written := grabber.writes()
			So(<-result, ShouldBeNil)
			So(grabber.writes(), ShouldEqual, written)

			go func() {
				result <- crane.MoveTo(context.Background(), Grabber, 150, 1)
			}()
			for grabber.writes() < written+5 {
				time.Sleep(time.Millisecond)
			}
			So(crane.Close(), ShouldBeNil)
			So(<-result, ShouldBeNil)
			So(grabber.last(), ShouldEqual, 90)
		})

		Convey("a cancelled context interrupts the move", func() {
			ctx, cancel := context.WithCancel(context.Background())
			cancel()
			err := crane.MoveTo(ctx, Lift, 90, 1)
			So(err, ShouldEqual, context.Canceled)
			So(crane.Status().LiftAngle, ShouldBeGreaterThan, 130)
		})

		Convey("status reads are not blocked by a move", func() {
			slow := testCraneConfig()
			slow.StepDelay = 20 * time.Millisecond
			crane := NewCrane(slow, lift, grabber, golog.NewTestLogger(t))

			go crane.MoveTo(context.Background(), Grabber, 150, 1)
			time.Sleep(10 * time.Millisecond)

			start := time.Now()
			crane.Status()
			So(time.Since(start), ShouldBeLessThan, 10*time.Millisecond)
			So(crane.StopGrabber(), ShouldBeNil)
		})

		Convey("unknown actuators are refused", func() {
			So(crane.SetAngle(Actuator("turret"), 100), ShouldNotBeNil)
			So(crane.MoveTo(context.Background(), Actuator("turret"), 100, 1), ShouldNotBeNil)
		})

		Convey("close parks the servos and releases them", func() {
			So(crane.SetAngle(Lift, 95), ShouldBeNil)
			So(crane.SetAngle(Grabber, 150), ShouldBeNil)
			So(crane.Close(), ShouldBeNil)
			So(lift.last(), ShouldEqual, 140)
			So(grabber.last(), ShouldEqual, 90)
			So(lift.closed, ShouldBeTrue)
			So(grabber.closed, ShouldBeTrue)
		})
	})

	Convey("Given a crane without servo drivers", t, func() {
		crane := NewCrane(testCraneConfig(), nil, nil, golog.NewTestLogger(t))

		Convey("setting an angle reports the missing hardware", func() {
			err := crane.SetAngle(Lift, 100)
			So(deviceErrors.IsHardwareUnavailable(err), ShouldBeTrue)
			So(crane.Status().LiftAngle, ShouldEqual, 140)
			So(crane.Status().DriverAvailable, ShouldBeFalse)
		})

		Convey("close still succeeds", func() {
			So(crane.Close(), ShouldBeNil)
		})
	})
}
