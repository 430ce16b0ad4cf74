// Package publisher defines the messages a drive controller produces every cycle and delivers them
// without ever blocking the control goroutine.
package publisher

import (
	"math"
	"time"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/num/quat"

	"go.viam.com/diffdrive/odometry"
)

// Topics messages are published on.
const (
	TopicOdometry     = "odom"
	TopicTransform    = "tf"
	TopicLimitedTwist = "cmd_vel_out"
)

// A Message is anything that can be published.
type Message interface {
	Topic() string
}

// Header carries the stamp and frame shared by every message.
type Header struct {
	Stamp   time.Time `json:"stamp"`
	FrameID string    `json:"frame_id"`
}

// Vector3 is a plain 3D vector.
type Vector3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Orientation is a unit quaternion.
type Orientation struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
	W float64 `json:"w"`
}

// OrientationFromHeading returns the rotation of heading radians about the z axis.
func OrientationFromHeading(heading float64) Orientation {
	half := heading / 2
	q := quat.Number{Real: math.Cos(half), Kmag: math.Sin(half)}
	return Orientation{X: q.Imag, Y: q.Jmag, Z: q.Kmag, W: q.Real}
}

// Heading returns the rotation about the z axis, in (-pi, pi].
func (o Orientation) Heading() float64 {
	q := quat.Number{Real: o.W, Imag: o.X, Jmag: o.Y, Kmag: o.Z}
	if n := quat.Abs(q); n > 0 {
		q = quat.Scale(1/n, q)
	}
	return math.Atan2(2*(q.Real*q.Kmag+q.Imag*q.Jmag), 1-2*(q.Jmag*q.Jmag+q.Kmag*q.Kmag))
}

// Covariance is a row-major 6x6 matrix over (x, y, z, roll, pitch, yaw).
type Covariance [36]float64

// CovarianceFromDiagonal places diag on the diagonal of an otherwise zero matrix.
func CovarianceFromDiagonal(diag [6]float64) Covariance {
	var cov Covariance
	m := mat.NewDiagDense(6, diag[:])
	r, c := m.Dims()
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			cov[i*c+j] = m.At(i, j)
		}
	}
	return cov
}

// Diagonal returns the diagonal entries.
func (c Covariance) Diagonal() [6]float64 {
	var diag [6]float64
	for i := range diag {
		diag[i] = c[i*6+i]
	}
	return diag
}

// OdometryMessage is the pose and velocity estimate of the base.
type OdometryMessage struct {
	Header          Header      `json:"header"`
	ChildFrameID    string      `json:"child_frame_id"`
	Position        Vector3     `json:"position"`
	Orientation     Orientation `json:"orientation"`
	PoseCovariance  Covariance  `json:"pose_covariance"`
	Linear          Vector3     `json:"linear"`
	Angular         Vector3     `json:"angular"`
	TwistCovariance Covariance  `json:"twist_covariance"`
}

// Topic implements Message.
func (OdometryMessage) Topic() string { return TopicOdometry }

// NewOdometryMessage builds an odometry message from a pose and twist.
func NewOdometryMessage(
	stamp time.Time,
	frameID, childFrameID string,
	pose odometry.Pose2D,
	twist odometry.Twist2D,
	poseCovariance, twistCovariance Covariance,
) OdometryMessage {
	return OdometryMessage{
		Header:          Header{Stamp: stamp, FrameID: frameID},
		ChildFrameID:    childFrameID,
		Position:        Vector3{X: pose.X, Y: pose.Y},
		Orientation:     OrientationFromHeading(pose.Heading),
		PoseCovariance:  poseCovariance,
		Linear:          Vector3{X: twist.Linear},
		Angular:         Vector3{Z: twist.Angular},
		TwistCovariance: twistCovariance,
	}
}

// TransformMessage places the child frame within the parent frame.
type TransformMessage struct {
	Header       Header      `json:"header"`
	ChildFrameID string      `json:"child_frame_id"`
	Translation  Vector3     `json:"translation"`
	Rotation     Orientation `json:"rotation"`
}

// Topic implements Message.
func (TransformMessage) Topic() string { return TopicTransform }

// NewTransformMessage builds the odometry frame to base frame transform for a pose.
func NewTransformMessage(stamp time.Time, frameID, childFrameID string, pose odometry.Pose2D) TransformMessage {
	return TransformMessage{
		Header:       Header{Stamp: stamp, FrameID: frameID},
		ChildFrameID: childFrameID,
		Translation:  Vector3{X: pose.X, Y: pose.Y},
		Rotation:     OrientationFromHeading(pose.Heading),
	}
}

// TwistMessage is a stamped body velocity, used to report the command after limiting.
type TwistMessage struct {
	Header  Header  `json:"header"`
	Linear  Vector3 `json:"linear"`
	Angular Vector3 `json:"angular"`
}

// Topic implements Message.
func (TwistMessage) Topic() string { return TopicLimitedTwist }

// NewTwistMessage builds a stamped twist.
func NewTwistMessage(stamp time.Time, frameID string, linear, angular float64) TwistMessage {
	return TwistMessage{
		Header:  Header{Stamp: stamp, FrameID: frameID},
		Linear:  Vector3{X: linear},
		Angular: Vector3{Z: angular},
	}
}
