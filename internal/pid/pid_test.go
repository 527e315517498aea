package pid_test

import (
	"errors"
	"math"
	"math/rand"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/san-kum/pidctl/internal/clock"
	"github.com/san-kum/pidctl/internal/pid"
)

const tol = 1e-9

var epoch = time.Unix(1_700_000_000, 0)

var _ = Describe("Controller", func() {
	var clk *clock.Manual

	BeforeEach(func() {
		clk = clock.NewManual(epoch)
	})

	step := func(c *pid.Controller, dt float64, e float64) float64 {
		clk.AdvanceSeconds(dt)
		return c.Update(e)
	}

	Describe("construction", func() {
		It("starts initialized with empty history", func() {
			c := pid.New(1, 2, 3, pid.WithClock(clk))
			s := c.Snapshot()
			Expect(s.Phase).To(Equal(pid.Initialized))
			Expect(s.Integral).To(BeZero())
			Expect(s.LastError).To(BeZero())
			Expect(s.LastSample).To(Equal(epoch))
			Expect(c.Gains()).To(Equal(pid.Gains{Kp: 1, Ki: 2, Kd: 3}))
		})

		It("is unbounded unless a limit is given", func() {
			_, ok := pid.New(1, 1, 1, pid.WithClock(clk)).IntegralLimit()
			Expect(ok).To(BeFalse())

			limit, ok := pid.New(1, 1, 1, pid.WithClock(clk), pid.WithIntegralLimit(-4)).IntegralLimit()
			Expect(ok).To(BeTrue())
			Expect(limit).To(Equal(4.0))
		})

		It("outputs zero with all-zero gains", func() {
			c := pid.New(0, 0, 0, pid.WithClock(clk))
			Expect(step(c, 1, 42)).To(BeZero())
		})

		It("reads the system clock by default", func() {
			before := time.Now()
			c := pid.New(1, 0, 0)
			Expect(c.Snapshot().LastSample).NotTo(BeTemporally("<", before))
		})
	})

	DescribeTable("proportional-only output equals Kp*error",
		func(kp, e, dt float64) {
			c := pid.New(kp, 0, 0, pid.WithClock(clk))
			Expect(step(c, dt, e)).To(BeNumerically("~", kp*e, tol))
			Expect(step(c, dt, -e)).To(BeNumerically("~", -kp*e, tol))
		},
		Entry("unit gain", 1.0, 3.0, 0.1),
		Entry("large gain, small dt", 250.0, 0.02, 0.001),
		Entry("negative gain", -2.5, 7.0, 2.0),
		Entry("zero error", 4.0, 0.0, 0.5),
	)

	Describe("integral accumulation", func() {
		It("sums error*dt over N updates", func() {
			const e, d, n = 2.5, 0.2, 25
			c := pid.New(0, 1, 0, pid.WithClock(clk))

			var out float64
			for i := 0; i < n; i++ {
				out = step(c, d, e)
			}
			Expect(out).To(BeNumerically("~", e*d*n, 1e-6))
			Expect(c.Snapshot().Integral).To(BeNumerically("~", e*d*n, 1e-6))
		})

		It("accumulates exactly once per update", func() {
			c := pid.New(0, 1, 0, pid.WithClock(clk))
			Expect(step(c, 1, 3)).To(BeNumerically("~", 3, tol))
			Expect(step(c, 1, 3)).To(BeNumerically("~", 6, tol))
			Expect(c.Terms().I).To(BeNumerically("~", 6, tol))
		})
	})

	Describe("anti-windup", func() {
		It("clamps the accumulator at the limit under sustained error", func() {
			c := pid.New(0, 1, 0, pid.WithClock(clk), pid.WithIntegralLimit(5))
			for i := 0; i < 20; i++ {
				step(c, 1, 1)
			}
			Expect(c.Snapshot().Integral).To(Equal(5.0))

			for i := 0; i < 20; i++ {
				step(c, 1, -1)
			}
			Expect(c.Snapshot().Integral).To(Equal(-5.0))
		})

		It("recovers from saturation immediately when the error reverses", func() {
			c := pid.New(0, 1, 0, pid.WithClock(clk), pid.WithIntegralLimit(2))
			for i := 0; i < 10; i++ {
				step(c, 1, 10)
			}
			Expect(step(c, 1, -1)).To(BeNumerically("~", 1, tol))
		})

		It("holds |integral| <= limit after every update", func() {
			const limit = 3.0
			rng := rand.New(rand.NewSource(7))
			c := pid.New(1, 1, 1, pid.WithClock(clk), pid.WithIntegralLimit(limit))

			for i := 0; i < 500; i++ {
				step(c, rng.Float64()*2, (rng.Float64()-0.5)*40)
				Expect(math.Abs(c.Snapshot().Integral)).To(BeNumerically("<=", limit))
			}
		})

		It("pins the integral at zero with a zero limit", func() {
			c := pid.New(0, 1, 0, pid.WithClock(clk), pid.WithIntegralLimit(0))
			Expect(step(c, 1, 9)).To(BeZero())
		})
	})

	Describe("derivative estimation", func() {
		It("is zero from the second update with constant error", func() {
			c := pid.New(0, 0, 1, pid.WithClock(clk))
			first := step(c, 0.5, 4)
			Expect(first).To(BeNumerically("~", 8, tol))

			for i := 0; i < 5; i++ {
				Expect(step(c, 0.5, 4)).To(BeZero())
				Expect(c.Terms().D).To(BeZero())
			}
		})

		It("uses (error - last_error)/dt", func() {
			c := pid.New(0, 0, 1, pid.WithClock(clk))
			step(c, 1, 10)
			Expect(step(c, 0.5, 6)).To(BeNumerically("~", -8, tol))
		})

		It("uses a supplied derivative verbatim", func() {
			kd := 0.3
			c := pid.New(0, 0, kd, pid.WithClock(clk))
			step(c, 1, 100)

			clk.AdvanceSeconds(0.01)
			out := c.UpdateWithDerivative(-50, 7)
			Expect(c.Terms().D).To(Equal(kd * 7))
			Expect(out).To(Equal(kd * 7))
		})

		It("treats a supplied zero derivative as a value, not an absence", func() {
			c := pid.New(0, 0, 1, pid.WithClock(clk))
			clk.AdvanceSeconds(1)
			Expect(c.UpdateWithDerivative(10, 0)).To(BeZero())
		})

		It("still records the error for the next estimate when overridden", func() {
			c := pid.New(0, 0, 1, pid.WithClock(clk))
			clk.AdvanceSeconds(1)
			c.UpdateWithDerivative(10, 0)
			Expect(c.Snapshot().LastError).To(Equal(10.0))
			Expect(step(c, 1, 12)).To(BeNumerically("~", 2, tol))
		})
	})

	Describe("non-positive time delta", func() {
		var c *pid.Controller

		BeforeEach(func() {
			c = pid.New(2, 0.5, 0.1, pid.WithClock(clk), pid.WithIntegralLimit(100))
			step(c, 1, 10)
		})

		It("returns 0 and leaves state untouched when the clock stalls", func() {
			before := c.Snapshot()
			terms := c.Terms()

			Expect(c.Update(3)).To(Equal(0.0))
			Expect(c.UpdateWithDerivative(3, 1)).To(Equal(0.0))
			Expect(c.Snapshot()).To(Equal(before))
			Expect(c.Terms()).To(Equal(terms))
		})

		It("returns 0 and keeps the old timestamp when the clock goes backwards", func() {
			before := c.Snapshot()
			clk.AdvanceSeconds(-5)

			Expect(c.Update(3)).To(Equal(0.0))
			Expect(c.Snapshot()).To(Equal(before))

			clk.AdvanceSeconds(6)
			c.Update(10)
			Expect(c.Snapshot().Integral).To(BeNumerically("~", 20, tol))
		})

		It("returns 0 when updated straight after construction without time passing", func() {
			fresh := pid.New(1, 1, 1, pid.WithClock(clk))
			Expect(fresh.Update(5)).To(Equal(0.0))
			Expect(fresh.Snapshot().Phase).To(Equal(pid.Initialized))
		})
	})

	Describe("reset", func() {
		It("matches a freshly constructed controller", func() {
			const dt, e = 0.25, 3.0
			c := pid.New(1.5, 0.7, 0.2, pid.WithClock(clk), pid.WithIntegralLimit(10))
			for i := 0; i < 10; i++ {
				step(c, 0.1, float64(i))
			}

			c.Reset()
			Expect(c.Snapshot().Phase).To(Equal(pid.Initialized))
			Expect(c.Snapshot().LastSample).To(Equal(clk.Now()))
			fresh := pid.New(1.5, 0.7, 0.2, pid.WithClock(clk), pid.WithIntegralLimit(10))

			clk.AdvanceSeconds(dt)
			Expect(c.Update(e)).To(Equal(fresh.Update(e)))
		})

		It("keeps the gains", func() {
			c := pid.New(1, 2, 3, pid.WithClock(clk))
			step(c, 1, 1)
			c.Reset()
			Expect(c.Gains()).To(Equal(pid.Gains{Kp: 1, Ki: 2, Kd: 3}))
			Expect(c.Terms()).To(Equal(pid.Terms{}))
		})

		It("measures the next delta from the reset, not the last update", func() {
			c := pid.New(0, 1, 0, pid.WithClock(clk))
			step(c, 1, 1)
			clk.AdvanceSeconds(10)
			c.Reset()
			Expect(step(c, 0.5, 2)).To(BeNumerically("~", 1, tol))
		})
	})

	Describe("lifecycle", func() {
		It("moves initialized -> running -> initialized", func() {
			c := pid.New(1, 0, 0, pid.WithClock(clk))
			Expect(c.Snapshot().Phase.String()).To(Equal("initialized"))

			step(c, 1, 1)
			Expect(c.Snapshot().Phase).To(Equal(pid.Running))
			step(c, 1, 1)
			Expect(c.Snapshot().Phase.String()).To(Equal("running"))

			c.Reset()
			Expect(c.Snapshot().Phase).To(Equal(pid.Initialized))
		})

		It("keeps last_sample_time non-decreasing", func() {
			c := pid.New(1, 1, 1, pid.WithClock(clk))
			last := c.Snapshot().LastSample
			for _, d := range []float64{0.1, 0, -0.3, 0.5, 0, 0.2} {
				step(c, d, 1)
				now := c.Snapshot().LastSample
				Expect(now).NotTo(BeTemporally("<", last))
				last = now
			}
		})
	})

	Describe("worked example", func() {
		It("produces 26 then 17", func() {
			c := pid.New(2, 0.5, 0.1, pid.WithClock(clk))

			Expect(step(c, 1, 10)).To(BeNumerically("~", 26.0, tol))
			Expect(c.Snapshot().Integral).To(BeNumerically("~", 10.0, tol))
			Expect(c.Terms().D).To(BeNumerically("~", 0.1*10, tol))

			Expect(step(c, 1, 5)).To(BeNumerically("~", 17.0, tol))
			Expect(c.Snapshot().Integral).To(BeNumerically("~", 15.0, tol))
			kd := 0.1
			Expect(c.Terms()).To(Equal(pid.Terms{P: 10, I: 7.5, D: kd * -5}))
		})
	})

	Describe("non-finite input", func() {
		It("propagates NaN without panicking", func() {
			c := pid.New(1, 1, 1, pid.WithClock(clk))
			Expect(math.IsNaN(step(c, 1, math.NaN()))).To(BeTrue())
		})

		It("propagates infinite gains", func() {
			c := pid.New(math.Inf(1), 0, 0, pid.WithClock(clk))
			Expect(math.IsInf(step(c, 1, 1), 1)).To(BeTrue())
		})
	})

	Describe("live tuning", func() {
		It("exposes and updates parameters", func() {
			c := pid.New(1, 2, 3, pid.WithClock(clk))
			Expect(c.Params()).To(Equal(map[string]float64{"Kp": 1, "Ki": 2, "Kd": 3}))

			Expect(c.SetParam("Kp", 4)).To(Succeed())
			Expect(c.SetParam("Ki", 5)).To(Succeed())
			Expect(c.SetParam("Kd", 6)).To(Succeed())
			Expect(c.Gains()).To(Equal(pid.Gains{Kp: 4, Ki: 5, Kd: 6}))
		})

		It("clamps the existing integral when a limit is introduced", func() {
			c := pid.New(0, 1, 0, pid.WithClock(clk))
			step(c, 1, 8)
			Expect(c.SetParam("IntegralLimit", 2)).To(Succeed())
			Expect(c.Snapshot().Integral).To(Equal(2.0))
			Expect(c.Params()).To(HaveKeyWithValue("IntegralLimit", 2.0))
		})

		It("rejects bad names and negative limits", func() {
			c := pid.New(0, 0, 0, pid.WithClock(clk))
			err := c.SetParam("Target", 1)
			Expect(errors.Is(err, pid.ErrUnknownParam)).To(BeTrue())

			err = c.SetParam("IntegralLimit", -1)
			Expect(err).To(MatchError(pid.ErrParameterBounds))
			_, ok := c.IntegralLimit()
			Expect(ok).To(BeFalse())
		})
	})
})
