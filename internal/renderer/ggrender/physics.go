package ggrender

import "math"

// Chain swing parameters. The chain hangs from the hook as a damped pendulum
// and is simulated at a fixed step regardless of the wall-clock frame rate,
// so a given Params always settles after the same number of frames.
const (
	simStep        = 1.0 / 60.0
	naturalFreq    = 6.0 // rad/s
	dampingRatio   = 0.5
	initialSwing   = 0.35 // rad
	restAngle      = 0.005
	restVelocity   = 0.005
	maxSimFrames   = 600
	minChainLength = 1
)

// chain is the physics state of the hanging chain.
type chain struct {
	angle    float64 // rad from vertical
	velocity float64 // rad/s
	frames   int
}

func newChain() *chain {
	return &chain{angle: initialSwing}
}

// step advances the simulation by one frame using semi-implicit Euler and
// reports whether the chain is at rest.
func (c *chain) step() bool {
	accel := -naturalFreq*naturalFreq*math.Sin(c.angle) - 2*dampingRatio*naturalFreq*c.velocity
	c.velocity += accel * simStep
	c.angle += c.velocity * simStep
	c.frames++
	return c.atRest()
}

func (c *chain) atRest() bool {
	if c.frames >= maxSimFrames {
		return true
	}
	return math.Abs(c.angle) < restAngle && math.Abs(c.velocity) < restVelocity
}
