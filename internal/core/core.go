// Package core contains the main struct of the software.
package core

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"time"

	"github.com/alecthomas/kong"
	"github.com/gin-gonic/gin"

	"github.com/bluenviron/avrecorder/internal/compressor"
	"github.com/bluenviron/avrecorder/internal/conf"
	"github.com/bluenviron/avrecorder/internal/externalcmd"
	"github.com/bluenviron/avrecorder/internal/logger"
	"github.com/bluenviron/avrecorder/internal/metrics"
	"github.com/bluenviron/avrecorder/internal/muxer"
	"github.com/bluenviron/avrecorder/internal/pprof"
	"github.com/bluenviron/avrecorder/internal/recorder"
	"github.com/bluenviron/avrecorder/internal/source"
)

var version = "v0.0.0"

var defaultConfPaths = []string{
	"avrecorder.yml",
	"/etc/avrecorder/avrecorder.yml",
}

type recordCmd struct {
	Config   string        `help:"path to a config file. The default is avrecorder.yml."`
	Duration time.Duration `help:"stop recording after this duration. By default, recording stops on interrupt."`
	PauseAt  time.Duration `help:"pause recording after this duration."`
	PauseFor time.Duration `help:"resume recording after being paused for this duration." default:"1s"`
	Output   string        `arg:"" help:"path of the recording."`
}

type inspectCmd struct {
	File string `arg:"" help:"path of a recording."`
}

type cliArgs struct {
	Version kong.VersionFlag `help:"print version"`
	Record  recordCmd        `cmd:"" help:"record a test pattern and a tone."`
	Inspect inspectCmd       `cmd:"" help:"print the tracks of a recording."`
}

type completion struct {
	res *recorder.Result
	err error
}

// Core is an instance of avrecorder.
type Core struct {
	ctx             context.Context
	ctxCancel       func()
	stdout          io.Writer
	args            recordCmd
	conf            *conf.Conf
	confPath        string
	logger          *logger.Logger
	externalCmdPool *externalcmd.Pool
	metrics         *metrics.Metrics
	metricsServer   *metrics.Server
	pprof           *pprof.PPROF
	videoSource     *source.TestPattern
	audioSource     *source.Tone
	recorder        *recorder.Recorder
	err             error

	// in
	chComplete chan completion

	// out
	done chan struct{}
}

// New allocates a core.
func New(args []string) (*Core, bool) {
	var cli cliArgs

	parser, err := kong.New(&cli,
		kong.Description("avrecorder "+version),
		kong.UsageOnError(),
		kong.Vars{"version": version})
	if err != nil {
		panic(err)
	}

	kctx, err := parser.Parse(args)
	parser.FatalIfErrorf(err)

	ctx, ctxCancel := context.WithCancel(context.Background())

	p := &Core{
		ctx:        ctx,
		ctxCancel:  ctxCancel,
		stdout:     os.Stdout,
		chComplete: make(chan completion, 1),
		done:       make(chan struct{}),
	}

	if kctx.Command() == "inspect <file>" {
		go p.runInspect(cli.Inspect.File)
		return p, true
	}

	p.args = cli.Record

	p.conf, p.confPath, err = conf.Load(p.args.Config, defaultConfPaths)
	if err != nil {
		fmt.Printf("ERR: %s\n", err)
		ctxCancel()
		return nil, false
	}

	err = p.createResources()
	if err != nil {
		if p.logger != nil {
			p.Log(logger.Error, "%s", err)
		} else {
			fmt.Printf("ERR: %s\n", err)
		}
		p.closeResources()
		ctxCancel()
		return nil, false
	}

	go p.runRecord()

	return p, true
}

// Close closes Core and waits for all goroutines to return.
func (p *Core) Close() {
	p.ctxCancel()
	<-p.done
}

// Wait waits for the Core to exit.
// It returns false when the command failed.
func (p *Core) Wait() bool {
	<-p.done
	return p.err == nil
}

// Log is the main logging function.
func (p *Core) Log(level logger.Level, format string, args ...interface{}) {
	p.logger.Log(level, format, args...)
}

func (p *Core) createResources() error {
	p.logger = &logger.Logger{
		Level:        logger.Level(p.conf.LogLevel),
		Destinations: p.conf.LogDestinations.ToDestinations(),
		File:         p.conf.LogFile,
	}
	err := p.logger.Initialize()
	if err != nil {
		p.logger = nil
		return err
	}

	p.Log(logger.Info, "avrecorder %s", version)
	if p.confPath == "" {
		p.Log(logger.Warn, "configuration file not found, using the default configuration")
	}

	gin.SetMode(gin.ReleaseMode)

	p.externalCmdPool = &externalcmd.Pool{}
	p.externalCmdPool.Initialize()

	if p.conf.Metrics {
		p.metrics = &metrics.Metrics{}
		p.metrics.Initialize()

		p.metricsServer = &metrics.Server{
			Address: p.conf.MetricsAddress,
			Metrics: p.metrics,
			Parent:  p,
		}
		err = p.metricsServer.Initialize()
		if err != nil {
			p.metricsServer = nil
			return err
		}
	}

	if p.conf.PPROF {
		p.pprof = &pprof.PPROF{
			Address: p.conf.PPROFAddress,
			Parent:  p,
		}
		err = p.pprof.Initialize()
		if err != nil {
			p.pprof = nil
			return err
		}
	}

	p.videoSource = &source.TestPattern{
		Width:  p.conf.VideoWidth,
		Height: p.conf.VideoHeight,
		FPS:    p.conf.VideoFPS,
	}
	err = p.videoSource.Initialize()
	if err != nil {
		p.videoSource = nil
		return err
	}

	p.recorder = &recorder.Recorder{
		Format:           recordFormat(p.conf.RecordFormat),
		PartDuration:     time.Duration(p.conf.RecordPartDuration),
		SpoolDirectory:   p.conf.SpoolDirectory,
		DrainTimeout:     time.Duration(p.conf.DrainTimeout),
		CommandQueueSize: p.conf.CommandQueueSize,
		VideoCompressor: func() compressor.Compressor {
			return &compressor.H264{
				Width:  p.conf.VideoWidth,
				Height: p.conf.VideoHeight,
				FPS:    p.conf.VideoFPS,
				Preset: p.conf.VideoPreset,
			}
		},
		VideoSource: p.videoSource,
		Metrics:     p.metrics,
		OnError:     p.onRecorderError,
		OnComplete:  p.onRecorderComplete,
		Parent:      p,
	}

	if p.conf.Audio {
		p.audioSource = &source.Tone{
			SampleRate:   p.conf.AudioSampleRate,
			ChannelCount: p.conf.AudioChannelCount,
			BitDepth:     p.conf.AudioBitDepth,
		}
		err = p.audioSource.Initialize()
		if err != nil {
			p.audioSource = nil
			return err
		}

		p.recorder.AudioSource = p.audioSource
		p.recorder.AudioCompressor = func() compressor.Compressor {
			return &compressor.LPCM{
				SampleRate:   p.conf.AudioSampleRate,
				ChannelCount: p.conf.AudioChannelCount,
				BitDepth:     p.conf.AudioBitDepth,
			}
		}
	}

	err = p.recorder.Initialize()
	if err != nil {
		p.recorder = nil
		return err
	}

	return nil
}

func (p *Core) closeResources() {
	if p.recorder != nil {
		p.recorder.Close()
		p.recorder = nil
	}

	if p.audioSource != nil {
		p.audioSource.Close()
		p.audioSource = nil
	}

	if p.videoSource != nil {
		p.videoSource.Close()
		p.videoSource = nil
	}

	if p.pprof != nil {
		p.pprof.Close()
		p.pprof = nil
	}

	if p.metricsServer != nil {
		p.metricsServer.Close()
		p.metricsServer = nil
	}

	if p.externalCmdPool != nil {
		p.externalCmdPool.Close()
		p.externalCmdPool = nil
	}

	if p.logger != nil {
		p.logger.Close()
	}
}

func (p *Core) runRecord() {
	defer close(p.done)

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)
	defer signal.Stop(interrupt)

	p.recorder.StartRecording(&recorder.FileSink{Path: p.args.Output})

	var durationTimer <-chan time.Time
	if p.args.Duration > 0 {
		durationTimer = time.After(p.args.Duration)
	}

	var pauseTimer <-chan time.Time
	if p.args.PauseAt > 0 {
		pauseTimer = time.After(p.args.PauseAt)
	}

	var resumeTimer <-chan time.Time
	stopping := false

	stop := func() {
		if !stopping {
			stopping = true
			p.recorder.StopRecording()
		}
	}

outer:
	for {
		select {
		case <-pauseTimer:
			p.recorder.Pause()
			resumeTimer = time.After(p.args.PauseFor)

		case <-resumeTimer:
			p.recorder.Resume()

		case <-durationTimer:
			stop()

		case <-interrupt:
			if stopping {
				p.Log(logger.Warn, "interrupted while finalizing the recording")
				p.err = fmt.Errorf("interrupted")
				break outer
			}
			p.Log(logger.Info, "shutting down gracefully")
			stop()

		case c := <-p.chComplete:
			if c.err != nil {
				p.err = c.err
			} else {
				p.logResult(c.res)
				p.runOnRecordComplete(c.res, interrupt)
			}
			break outer

		case <-p.ctx.Done():
			p.err = fmt.Errorf("terminated")
			break outer
		}
	}

	p.ctxCancel()

	p.closeResources()
}

func (p *Core) logResult(res *recorder.Result) {
	p.Log(logger.Info, "recording %s saved to %s", res.ID, res.Sink)

	for _, t := range res.Tracks {
		p.Log(logger.Info, "track %d (%s): %d samples, %d bytes, %v",
			t.ID, codecName(t.Codec), t.Samples, t.Bytes, t.Duration)
	}
}

func (p *Core) runOnRecordComplete(res *recorder.Result, interrupt chan os.Signal) {
	if p.conf.RunOnRecordComplete == "" {
		return
	}

	p.Log(logger.Info, "runOnRecordComplete command started")

	exited := make(chan struct{})

	cmd := &externalcmd.Cmd{
		Pool:   p.externalCmdPool,
		Cmdstr: p.conf.RunOnRecordComplete,
		Env: externalcmd.Environment{
			"RECORD_ID":   res.ID.String(),
			"RECORD_PATH": p.args.Output,
		},
		OnExit: func(err error) {
			if err != nil {
				p.Log(logger.Warn, "runOnRecordComplete command failed: %v", err)
			} else {
				p.Log(logger.Info, "runOnRecordComplete command exited")
			}
			close(exited)
		},
	}
	cmd.Initialize()

	select {
	case <-exited:

	case <-interrupt:
		cmd.Close()
		<-exited

	case <-p.ctx.Done():
		cmd.Close()
		<-exited
	}
}

func (p *Core) onRecorderError(err error) {
	p.Log(logger.Error, "%v", err)
}

func (p *Core) onRecorderComplete(res *recorder.Result, err error) {
	select {
	case p.chComplete <- completion{res: res, err: err}:
	case <-p.ctx.Done():
	}
}

func (p *Core) runInspect(fpath string) {
	defer close(p.done)

	tracks, err := inspectFile(fpath)
	if err != nil {
		fmt.Fprintf(p.stdout, "ERR: %s\n", err)
		p.err = err
		return
	}

	for _, t := range tracks {
		fmt.Fprintf(p.stdout, "track %d: %s %s, %d samples, %v\n",
			t.ID, t.Kind, t.Codec, t.Samples, t.Duration)
	}
}

func recordFormat(f conf.RecordFormat) muxer.Format {
	if f == conf.RecordFormatFMP4 {
		return muxer.FormatFMP4
	}
	return muxer.FormatMP4
}
