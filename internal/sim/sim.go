// Package sim provides a deterministic racing telemetry module. It exists to
// exercise every kind of data model member: static scalars, a nested model by
// pointer, a plain nested struct, a dynamic scalar that comes and goes, and a
// dynamic nested model with dynamic children.
package sim

import (
	"context"
	"math"
	"time"

	"github.com/rs/zerolog"

	"github.com/agentic-research/dmpath/internal/datamodel"
)

// ID is the module ID of the simulator.
const ID = "sim"

// Wheels are the keys of the Tyres children.
var Wheels = []string{"FL", "FR", "RL", "RR"}

const (
	lapLength    = 90 * time.Second
	boostPeriod  = 10 * time.Second
	tankCapacity = 60.0
	burnRate     = 0.05 // litres per second
	maxGear      = 6
)

type RacingData struct {
	datamodel.Node

	Speed   float64     `datamodel:"affix=km/h" description:"Current vehicle speed"`
	RPM     int         `datamodel:"name=Engine RPM,affix=rpm"`
	Gear    int         `description:"Selected gear, 1 to 6"`
	Car     *CarData    `datamodel:"resetsdepth"`
	Session SessionData `description:"Current session"`
}

type CarData struct {
	datamodel.Node

	Fuel        float64 `datamodel:"affix=L" description:"Fuel remaining"`
	Temperature float64 `datamodel:"name=Engine temperature,affix=°C"`
}

type SessionData struct {
	Lap     int
	LapTime time.Duration `datamodel:"name=Lap time"`
	Track   string
}

// Tyres holds one temperature child per wheel.
type Tyres struct {
	datamodel.Node
}

// Simulator is the telemetry module.
type Simulator struct {
	track  string
	logger zerolog.Logger

	elapsed time.Duration
	data    *RacingData
	tyres   *Tyres
	temps   map[string]*datamodel.DynamicChild[float64]
}

func New(track string, logger zerolog.Logger) *Simulator {
	return &Simulator{
		track:  track,
		logger: logger.With().Str("component", "sim").Logger(),
	}
}

func (s *Simulator) ID() string { return ID }

func (s *Simulator) Description() datamodel.Description {
	return datamodel.Description{Name: "Racing telemetry", Description: "Simulated race car"}
}

// Data returns the current model, or nil while disabled.
func (s *Simulator) Data() *RacingData { return s.data }

func (s *Simulator) Enable(context.Context) (datamodel.Model, error) {
	s.elapsed = 0
	s.data = &RacingData{
		Car:     &CarData{Fuel: tankCapacity},
		Session: SessionData{Lap: 1, Track: s.track},
	}
	datamodel.Bind(s.data, ID, s.Description())

	s.tyres = &Tyres{}
	if _, err := datamodel.AddDynamicChild(&s.data.Node, "Tyres", s.tyres,
		datamodel.Description{Description: "Tyre temperatures"}); err != nil {
		return nil, err
	}
	s.temps = make(map[string]*datamodel.DynamicChild[float64], len(Wheels))
	for _, w := range Wheels {
		c, err := datamodel.AddDynamicChild(&s.tyres.Node, w, 0.0, datamodel.Description{Affix: "°C"})
		if err != nil {
			return nil, err
		}
		s.temps[w] = c
	}
	s.step()
	return s.data, nil
}

func (s *Simulator) Disable(context.Context) error {
	s.data, s.tyres, s.temps = nil, nil, nil
	return nil
}

// Update advances the simulation by dt.
func (s *Simulator) Update(_ context.Context, dt time.Duration) error {
	if s.data == nil {
		return nil
	}
	s.elapsed += dt
	s.step()
	return nil
}

func (s *Simulator) step() {
	t := s.elapsed.Seconds()
	speed := Speed(s.elapsed)
	gear := min(maxGear, int(speed/50)+1)
	rpm := 3000 + int(math.Mod(speed, 50)*160)

	d := s.data
	d.Update(func() {
		d.Speed = speed
		d.Gear = gear
		d.RPM = rpm
		d.Session.Lap = int(s.elapsed/lapLength) + 1
		d.Session.LapTime = s.elapsed % lapLength
	})
	car := d.Car
	car.Update(func() {
		car.Fuel = max(0, tankCapacity-t*burnRate)
		car.Temperature = 90 + 15*math.Sin(t/20)
	})

	for i, w := range Wheels {
		s.temps[w].Set(80 + 10*math.Sin(t/3+float64(i)))
	}

	s.updateNitro(speed)
}

// updateNitro exposes Nitro during alternate boost windows. Its value reports
// whether the boost is firing.
func (s *Simulator) updateNitro(speed float64) {
	available := BoostAvailable(s.elapsed)
	n := &s.data.Node
	c, ok := datamodel.TryGetDynamicChild[bool](n, "Nitro")
	switch {
	case available && ok:
		c.Set(speed > 180)
	case available:
		if _, err := datamodel.AddDynamicChild(n, "Nitro", speed > 180,
			datamodel.Description{Description: "Boost firing"}); err != nil {
			s.logger.Warn().Err(err).Msg("cannot add nitro")
		}
	case ok:
		n.RemoveDynamicChild("Nitro")
	}
}

// Speed is the simulated speed after elapsed time.
func Speed(elapsed time.Duration) float64 {
	return 150 + 100*math.Sin(elapsed.Seconds()/5)
}

// BoostAvailable reports whether elapsed falls in a boost window.
func BoostAvailable(elapsed time.Duration) bool {
	return (elapsed/boostPeriod)%2 == 0
}
