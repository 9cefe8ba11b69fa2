// Command foc-sim runs the current loop of a profile against the motor
// model and prints a step response summary as YAML.
package main

import (
	"encoding/csv"
	"flag"
	"fmt"
	"os"
	"strconv"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"gofoc/foc"
	"gofoc/foc/config"
	"gofoc/foc/transform"
	"gofoc/host/logging"
	"gofoc/host/profile"
	"gofoc/sim"
)

var (
	profilePath = flag.String("profile", "", "Drive profile (yaml, json or toml)")
	tracePath   = flag.String("trace", "", "Write every tick to this CSV file")
	duration    = flag.Float64("duration", 0, "Run length in seconds, overrides the profile")
)

// report is the YAML document written to stdout
type report struct {
	Profile  string        `yaml:"profile"`
	Drive    profile.Drive `yaml:"drive"`
	Motor    sim.Params    `yaml:"motor"`
	Scenario sim.Scenario  `yaml:"scenario"`
	Summary  sim.Summary   `yaml:"summary"`
}

func main() {
	flag.Parse()

	prof, err := profile.Load(*profilePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	log := logging.New(prof.Log)
	defer log.Sync()

	if *duration > 0 {
		prof.Scenario.Duration = *duration
	}
	if err := run(prof, log); err != nil {
		log.Fatal("simulation failed", zap.Error(err))
	}
}

func run(prof *profile.Profile, log *zap.Logger) error {
	cfg, err := prof.Drive.Config()
	if err != nil {
		return err
	}
	store, err := config.NewStore(cfg)
	if err != nil {
		return err
	}

	sc := prof.Scenario
	sc.Reference = transform.Rotating{D: prof.Drive.Reference.D, Q: prof.Drive.Reference.Q}

	var record func(sim.Sample)
	if *tracePath != "" {
		f, err := os.Create(*tracePath)
		if err != nil {
			return err
		}
		defer f.Close()
		w := csv.NewWriter(f)
		defer w.Flush()
		w.Write([]string{"time", "id", "iq", "speed", "duty_a", "duty_b", "duty_c", "status"})
		record = func(s sim.Sample) {
			w.Write([]string{
				strconv.FormatFloat(s.Time, 'g', 6, 64),
				strconv.FormatFloat(s.Id, 'g', 6, 64),
				strconv.FormatFloat(s.Iq, 'g', 6, 64),
				strconv.FormatFloat(s.Speed, 'g', 6, 64),
				strconv.FormatFloat(float64(s.Duty[0]), 'f', 4, 32),
				strconv.FormatFloat(float64(s.Duty[1]), 'f', 4, 32),
				strconv.FormatFloat(float64(s.Duty[2]), 'f', 4, 32),
				s.Status.String(),
			})
		}
	}

	log.Info("simulating",
		zap.String("profile", prof.Name),
		zap.Float64("duration", sc.Duration),
		zap.Float32("iq_ref", sc.Reference.Q))

	sum := sim.Run(foc.New(), store, sim.NewMotor(prof.Motor), sc, record)
	if sum.Faults > 0 {
		log.Warn("ticks with invalid input", zap.Int("faults", sum.Faults))
	}

	enc := yaml.NewEncoder(os.Stdout)
	enc.SetIndent(2)
	defer enc.Close()
	return enc.Encode(report{
		Profile:  prof.Name,
		Drive:    prof.Drive,
		Motor:    prof.Motor,
		Scenario: sc,
		Summary:  sum,
	})
}
