package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/docopt/docopt-go"

	"github.com/dudk/sonic"
	_ "github.com/dudk/sonic/driver/pulse"
	"github.com/dudk/sonic/engine"
	"github.com/dudk/sonic/log"
	"github.com/dudk/sonic/pcm"
	"github.com/dudk/sonic/processor"
	"github.com/dudk/sonic/processor/mixer"
	"github.com/dudk/sonic/processor/osc"
	"github.com/dudk/sonic/wav"
)

const (
	// collectInterval is how often control side collects render callbacks.
	collectInterval = 10 * time.Millisecond
	// stopTimeout limits wait for uninstall on shutdown.
	stopTimeout = time.Second
)

type playCommand struct {
	log log.Logger
}

func (cmd *playCommand) Name() string {
	return "play"
}

func (cmd *playCommand) Help() string {
	return "Play sine or wave file through pcm driver"
}

// playOptions are parsed command line options of play command.
type playOptions struct {
	Driver  string
	Device  string
	Seconds float64
	Freq    float64
	Capture string
	Config  string
	Wav     string
}

func parsePlayOptions(opts docopt.Opts) (playOptions, error) {
	// absent optional values are nil.
	str := func(key string) string {
		s, _ := opts.String(key)
		return s
	}
	po := playOptions{
		Driver:  str("--driver"),
		Device:  str("--device"),
		Capture: str("--capture"),
		Config:  str("--config"),
		Wav:     str("<wav>"),
	}
	var err error
	if po.Seconds, err = opts.Float64("--seconds"); err != nil {
		return po, fmt.Errorf("invalid seconds: %w", err)
	}
	if po.Freq, err = opts.Float64("--freq"); err != nil {
		return po, fmt.Errorf("invalid frequency: %w", err)
	}
	return po, nil
}

func (cmd *playCommand) Run(opts docopt.Opts) error {
	po, err := parsePlayOptions(opts)
	if err != nil {
		return err
	}
	if cmd.log == nil {
		cmd.log = log.New("sonic")
	}
	config, err := loadConfig(po.Config)
	if err != nil {
		return err
	}

	var data *wav.Data
	if po.Wav != "" {
		if data, err = wav.Load(po.Wav); err != nil {
			return err
		}
		config.SampleRate = data.SampleRate
	}

	driver, err := pcm.Open(po.Driver, pcm.DriverConfig{
		Device:     po.Device,
		SampleRate: config.SampleRate,
		BlockSize:  config.BlockSize,
		Latency:    config.Latency,
	})
	if err != nil {
		return err
	}
	defer driver.Close()
	cmd.log.Info(fmt.Sprintf("playing through %s at %d Hz", po.Driver, driver.PCMFrequency()))

	e := engine.New(config, engine.WithLogger(cmd.log), engine.WithReporter(cmd.report))
	procs := processor.NewEngine(config, processor.WithLogger(cmd.log))
	bridge := pcm.NewBridge(e, driver, pcm.WithLogger(cmd.log), pcm.WithProcessors(procs))

	t := e.Open()
	bridge.Install(t)
	if data != nil {
		source := engine.NewModule(wav.Class(data, false), nil)
		t.Add(engine.Integrate(source))
		for ch := 0; ch < 2; ch++ {
			t.Add(engine.JConnect(source, ch%data.Channels, bridge.Output(), ch))
		}
	} else {
		o := osc.New(config.SampleRate)
		p := procs.NewProcessor(o)
		p.AddNotify(o.Frequency(), func(_ *processor.Processor, _ processor.ParamID, v float64) {
			cmd.log.Debug(fmt.Sprintf("frequency set to %v Hz", v))
		})
		p.SetParam(o.Frequency(), po.Freq)
		mix := mixer.New(1)
		root := procs.NewProcessor(mix)
		t.Add(
			procs.AddRootJob(root),
			procs.ConnectJob(root, mix.In(0), p, o.Out()),
		)
	}
	if po.Capture != "" {
		w, err := wav.Capture(po.Capture, config.SampleRate, 2, wav.BitDepth16, wav.WithLogger(cmd.log))
		if err != nil {
			t.Dismiss()
			return err
		}
		t.Add(bridge.AttachWriter(w, e.NextTick()))
	}
	t.Commit()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if po.Seconds > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(po.Seconds*float64(time.Second)))
		defer cancel()
	}

	runCtx, cancelRun := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() {
		errc <- e.Run(runCtx)
	}()

	ticker := time.NewTicker(collectInterval)
	defer ticker.Stop()
	for done := false; !done; {
		select {
		case <-ctx.Done():
			done = true
		case <-ticker.C:
			e.Collect()
			procs.CallNotifies()
		}
	}

	t = e.Open()
	bridge.Uninstall(t)
	t.Commit()
	waitCtx, cancelWait := context.WithTimeout(context.Background(), stopTimeout)
	err = e.WaitOnTrans(waitCtx)
	cancelWait()
	cancelRun()
	if runErr := <-errc; !errors.Is(runErr, context.Canceled) {
		return runErr
	}
	e.Collect()
	return err
}

// report prints environmental errors, engine keeps running in degraded mode.
func (cmd *playCommand) report(err error) {
	var e *sonic.Error
	if errors.As(err, &e) {
		m := e.Message()
		cmd.log.Warn(fmt.Sprintf("%s: %s (%s) %s", m.Title, m.Primary, m.Secondary, m.Detail))
		return
	}
	cmd.log.Warn(err)
}

func loadConfig(path string) (*sonic.Config, error) {
	if path == "" {
		return sonic.NewConfig()
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return sonic.LoadConfig(f)
}
