// ABOUTME: Entry point for the linkclock host daemon
// ABOUTME: Parses CLI flags, builds the beat clock and serves it to monitors
package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/Resonate-Protocol/linkclock-go/internal/click"
	"github.com/Resonate-Protocol/linkclock-go/internal/config"
	"github.com/Resonate-Protocol/linkclock-go/internal/midiout"
	"github.com/Resonate-Protocol/linkclock-go/internal/server"
	"github.com/Resonate-Protocol/linkclock-go/internal/version"
	"github.com/Resonate-Protocol/linkclock-go/pkg/beatclock"
	"github.com/Resonate-Protocol/linkclock-go/pkg/link"
)

func main() {
	var cfg config.Host
	if err := config.ParseEnv(&cfg); err != nil {
		log.Fatalf("Invalid environment: %v", err)
	}

	flag.IntVar(&cfg.Port, "port", cfg.Port, "WebSocket server port")
	flag.StringVar(&cfg.Name, "name", cfg.Name, "Host friendly name (default: hostname-linkclock)")
	flag.Float64Var(&cfg.Tempo, "tempo", cfg.Tempo, "Initial session tempo in bpm")
	flag.Float64Var(&cfg.Quantum, "quantum", cfg.Quantum, "Initial session quantum in beats")
	flag.DurationVar(&cfg.TickInterval, "tick", cfg.TickInterval, "Engine tick interval (0 = as fast as possible)")
	flag.DurationVar(&cfg.BeatInterval, "beat-interval", cfg.BeatInterval, "Minimum interval between clock/beat messages")
	flag.BoolVar(&cfg.NoMDNS, "no-mdns", cfg.NoMDNS, "Disable mDNS advertisement and peer discovery")
	flag.StringVar(&cfg.Preset, "preset", cfg.Preset, "YAML preset file")
	flag.StringVar(&cfg.LogFile, "log-file", cfg.LogFile, "Log file path")
	createArgs := flag.String("args", "", "Engine creation args: resolution,beat,quantum,tempo (trailing ones optional)")
	clickOn := flag.Bool("click", false, "Play an audible click on every step")
	clickSample := flag.String("click-sample", "", "MP3 file to use as the click sound")
	midiPort := flag.String("midi-port", "", "Send a note per step to the MIDI output matching this name")
	listMIDI := flag.Bool("list-midi", false, "List MIDI outputs and exit")
	debug := flag.Bool("debug", false, "Enable debug logging")
	tui := flag.Bool("tui", false, "Show the host TUI instead of streaming logs")
	showVersion := flag.Bool("version", false, "Print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("%s %s\n", version.Product, version.Version)
		return
	}

	if *listMIDI {
		for _, p := range midiout.Ports() {
			fmt.Println(p)
		}
		midiout.CloseDriver()
		return
	}

	f, err := os.OpenFile(cfg.LogFile, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
	if err != nil {
		log.Fatalf("error opening log file: %v", err)
	}
	defer f.Close()

	if *tui {
		log.SetOutput(f)
	} else {
		log.SetOutput(io.MultiWriter(os.Stdout, f))
	}

	hostName := cfg.Name
	if hostName == "" {
		hostname, err := os.Hostname()
		if err != nil {
			hostname = "unknown"
		}
		hostName = fmt.Sprintf("%s-linkclock", hostname)
	}

	var preset *config.Preset
	if cfg.Preset != "" {
		preset, err = config.LoadPreset(cfg.Preset)
		if err != nil {
			log.Fatalf("Failed to load preset: %v", err)
		}
		log.Printf("Loaded preset %s", cfg.Preset)
	}

	explicit := make(map[string]bool)
	flag.Visit(func(f *flag.Flag) { explicit[f.Name] = true })

	startup, err := config.ResolveStartup(cfg, preset, *createArgs, explicit)
	if err != nil {
		log.Fatalf("Invalid -args: %v", err)
	}

	log.Printf("Starting linkclock host %s: %s on port %d", version.Version, hostName, cfg.Port)
	log.Printf("Logging to: %s", cfg.LogFile)

	session := link.NewSession(startup.Tempo, startup.Quantum)
	session.SetEnabled(!cfg.NoMDNS)
	session.OnTempoChange(func(bpm float64) {
		log.Printf("Session tempo: %.2f bpm", bpm)
	})

	clock := link.NewSystemClock()
	broadcaster := server.NewBroadcaster(clock, session, cfg.BeatInterval)

	outputs := beatclock.Fanout{broadcaster}

	if *clickOn || *clickSample != "" || (preset != nil && preset.Click.Enabled) {
		cc := click.Config{SamplePath: *clickSample}
		if preset != nil {
			if cc.SamplePath == "" {
				cc.SamplePath = preset.Click.Sample
			}
			cc.Volume = preset.Click.Volume
		}

		player, err := click.New(cc)
		if err != nil {
			log.Printf("Click disabled: %v", err)
		} else {
			defer player.Close()
			outputs = append(outputs, player)
		}
	}

	if *midiPort != "" || (preset != nil && preset.MIDI.Enabled) {
		mc := midiout.DefaultConfig()
		if preset != nil {
			mc.Port = preset.MIDI.Port
			mc.Channel = preset.MIDI.Channel
			mc.Note = preset.MIDI.Note
			mc.AccentNote = preset.MIDI.AccentNote
			mc.Gate = preset.MIDI.Gate
		}
		if *midiPort != "" {
			mc.Port = *midiPort
		}

		out, err := midiout.Open(mc)
		if err != nil {
			log.Printf("MIDI disabled: %v", err)
		} else {
			defer midiout.CloseDriver()
			defer out.Close()
			outputs = append(outputs, out)
		}
	}

	engine := beatclock.New(session, outputs, startup.Args)
	runner := beatclock.NewRunner(engine, clock, beatclock.RunnerConfig{Interval: cfg.TickInterval})

	srv := server.New(server.Config{
		Port:       cfg.Port,
		Name:       hostName,
		EnableMDNS: !cfg.NoMDNS,
		Debug:      *debug,
		UseTUI:     *tui,
	}, server.Host{
		Session:     session,
		Clock:       clock,
		Runner:      runner,
		Query:       beatclock.NewStateQuery(session, broadcaster),
		Broadcaster: broadcaster,
	})

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		log.Printf("Received %v signal, shutting down gracefully...", sig)
		srv.Stop()
	}()

	if err := srv.Start(); err != nil {
		log.Fatalf("Server error: %v", err)
	}

	log.Printf("Host stopped after %d ticks", runner.Ticks())
}
