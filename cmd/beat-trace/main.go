// ABOUTME: Offline trace of the beat clock engine
// ABOUTME: Ticks the engine on a manual clock and prints every emitted event
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/Resonate-Protocol/linkclock-go/internal/config"
	"github.com/Resonate-Protocol/linkclock-go/pkg/beatclock"
	"github.com/Resonate-Protocol/linkclock-go/pkg/link"
)

var (
	tempo     = flag.Float64("tempo", 120, "Session tempo in bpm")
	quantum   = flag.Float64("quantum", 4, "Session quantum in beats")
	ticks     = flag.Int("ticks", 64, "Number of ticks to run")
	interval  = flag.Duration("interval", 50*time.Millisecond, "Host time between ticks")
	argList   = flag.String("args", "", "Engine creation args: resolution,beat,quantum,tempo")
	peers     = flag.Int("peers", 0, "Pretend this many link peers are connected")
	stepsOnly = flag.Bool("steps", false, "Only print step events")
	resetAt   = flag.Int("reset-at", -1, "Reset the engine before this tick")
)

func main() {
	flag.Parse()

	log.SetFlags(log.Ltime | log.Lmicroseconds)

	args, err := config.ParseArgs(*argList)
	if err != nil {
		log.Fatalf("Invalid -args: %v", err)
	}

	session := link.NewSession(*tempo, *quantum)
	session.SetPeerCount(*peers)
	clock := link.NewManualClock(0)

	var now uint64
	out := beatclock.OutputFuncs{
		StepFunc: func(step float64) {
			fmt.Printf("%10d us  step  %g\n", now, step)
		},
	}
	if !*stepsOnly {
		out.BeatFunc = func(beat float64) {
			fmt.Printf("%10d us  beat  %.6f\n", now, beat)
		}
		out.PhaseFunc = func(phase float64) {
			fmt.Printf("%10d us  phase %.6f\n", now, phase)
		}
	}

	engine := beatclock.New(session, out, args, beatclock.WithLogger(log.New(os.Stderr, "", log.Ltime|log.Lmicroseconds)))

	for i := 0; i < *ticks; i++ {
		if i == *resetAt {
			fmt.Printf("%10d us  reset\n", clock.Now())
			engine.Reset()
		}

		now = clock.Now()
		engine.Tick(now)
		clock.Advance(*interval)
	}

	state := engine.State()
	fmt.Printf("final beat %.6f, tempo %.2f, quantum %g, resolution %g\n",
		state.CurrentBeatTime, session.SessionTempo(), session.Quantum(), state.StepsPerBeat)
}
