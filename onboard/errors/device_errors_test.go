package errors

import (
	"testing"

	pkgerrors "github.com/pkg/errors"
	. "github.com/smartystreets/goconvey/convey"
)

func TestDeviceErrors(t *testing.T) {
	Convey("errors are matched through wrapping", t, func() {
		unavailable := pkgerrors.Wrap(pkgerrors.Wrapf(HardwareUnavailableError{Actuator: "lift"}, "setting %s", "lift"), "raising crane")
		So(IsHardwareUnavailable(unavailable), ShouldBeTrue)
		So(IsInvalidCommand(unavailable), ShouldBeFalse)
		So(unavailable.Error(), ShouldContainSubstring, "no driver attached for lift")

		invalid := pkgerrors.WithMessage(InvalidCommandError{Command: "spin"}, "dispatch")
		So(IsInvalidCommand(invalid), ShouldBeTrue)
		So(IsHardwareUnavailable(invalid), ShouldBeFalse)
	})

	Convey("unrelated and nil errors match nothing", t, func() {
		So(IsHardwareUnavailable(nil), ShouldBeFalse)
		So(IsInvalidCommand(pkgerrors.New("boom")), ShouldBeFalse)
	})

	Convey("an unnamed actuator is reported as unknown", t, func() {
		So(HardwareUnavailableError{}.Error(), ShouldEqual, "no driver attached for UNKNOWN")
	})
}
