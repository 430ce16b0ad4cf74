package wheel_test

import (
	"testing"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"go.viam.com/test"

	"go.viam.com/diffdrive/components/wheel"
	"go.viam.com/diffdrive/components/wheel/fake"
	"go.viam.com/diffdrive/logging"
)

func TestFromDependencies(t *testing.T) {
	logger := logging.NewTestLogger(t)
	left := fake.NewWheel("left", clock.NewMock(), logger)
	deps := wheel.Dependencies{
		"left":  left,
		"motor": "not a wheel",
	}

	w, err := wheel.FromDependencies(deps, "left")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, w.Name(), test.ShouldEqual, "left")

	_, err = wheel.FromDependencies(deps, "right")
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, `dependency "right" not found`)

	_, err = wheel.FromDependencies(deps, "motor")
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "should be an implementation of wheel.Wheel")
}

func TestUnavailableError(t *testing.T) {
	err := wheel.NewUnavailableError("left")
	test.That(t, err.Error(), test.ShouldEqual, `wheel "left": wheel unavailable`)
	test.That(t, wheel.IsUnavailable(err), test.ShouldBeTrue)
	test.That(t, wheel.IsUnavailable(errors.Wrap(err, "write")), test.ShouldBeTrue)
	test.That(t, wheel.IsUnavailable(errors.New("other")), test.ShouldBeFalse)
	test.That(t, wheel.IsUnavailable(nil), test.ShouldBeFalse)
}
