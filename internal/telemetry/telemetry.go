// Package telemetry holds the structured logger and Prometheus collectors
// shared by the transport, reliable-channel and device layers.
//
// Nothing here is a package-level singleton: callers build a *Telemetry
// explicitly (usually once, at process bring-up) and pass it down, the
// same way internal/schema.Catalogue is passed down instead of loaded
// into a global.
package telemetry

import (
	"os"

	"github.com/natefinch/lumberjack"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/prometheus/client_golang/prometheus"
)

// Telemetry bundles a logger and the metric collectors the stack updates.
type Telemetry struct {
	Log *zap.Logger

	FramesIn      prometheus.Counter
	FramesOut     prometheus.Counter
	Acks          prometheus.Counter
	Disconnects   prometheus.Counter
	SendRetries   prometheus.Histogram
	SendOutcome   *prometheus.CounterVec
	DecodeErrors  prometheus.Counter
}

// Config controls how the logger sink is constructed.
type Config struct {
	// Level is one of debug/info/warn/error. Defaults to info.
	Level string
	// FilePath, when non-empty, rotates JSON logs through lumberjack
	// instead of writing to stderr. Grounded on cppla-moto's log setup.
	FilePath string
}

// New builds a Telemetry whose collectors are registered on reg, with a
// zap logger configured per cfg. Pass a nil *prometheus.Registry to use the default
// global registry (useful for a single-process CLI).
func New(cfg Config, reg prometheus.Registerer) (*Telemetry, error) {
	log, err := newLogger(cfg)
	if err != nil {
		return nil, err
	}

	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	t := &Telemetry{
		Log: log,
		FramesIn: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "arsdk",
			Name:      "frames_in_total",
			Help:      "ARNetworkAL frames consumed from the read loop.",
		}),
		FramesOut: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "arsdk",
			Name:      "frames_out_total",
			Help:      "ARNetworkAL frames written to the send socket.",
		}),
		Acks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "arsdk",
			Name:      "acks_total",
			Help:      "ACK frames matched to a pending send.",
		}),
		Disconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "arsdk",
			Name:      "disconnects_total",
			Help:      "Number of times the liveness watchdog fired.",
		}),
		SendRetries: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "arsdk",
			Name:      "send_retries",
			Help:      "Number of tries consumed per Channel.Send call.",
			Buckets:   prometheus.LinearBuckets(1, 1, 6),
		}),
		SendOutcome: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "arsdk",
			Name:      "send_outcome_total",
			Help:      "Terminal status of Channel.Send calls.",
		}, []string{"status"}),
		DecodeErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "arsdk",
			Name:      "decode_errors_total",
			Help:      "Frames or commands discarded for decode failures.",
		}),
	}

	collectors := []prometheus.Collector{
		t.FramesIn, t.FramesOut, t.Acks, t.Disconnects,
		t.SendRetries, t.SendOutcome, t.DecodeErrors,
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
				_ = are
				continue
			}
			return nil, err
		}
	}

	return t, nil
}

func newLogger(cfg Config) (*zap.Logger, error) {
	level := levelFromString(cfg.Level)

	encoderCfg := zapcore.EncoderConfig{
		TimeKey:        "ts",
		LevelKey:       "level",
		NameKey:        "logger",
		MessageKey:     "msg",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.SecondsDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}
	encoder := zapcore.NewJSONEncoder(encoderCfg)

	var sink zapcore.WriteSyncer
	if cfg.FilePath != "" {
		sink = zapcore.AddSync(&lumberjack.Logger{
			Filename:   cfg.FilePath,
			MaxSize:    64,
			MaxBackups: 5,
			MaxAge:     30,
			Compress:   true,
		})
	} else {
		sink = zapcore.Lock(os.Stderr)
	}

	core := zapcore.NewCore(encoder, sink, level)
	return zap.New(core, zap.AddCaller()), nil
}

func levelFromString(s string) zapcore.Level {
	switch s {
	case "debug":
		return zapcore.DebugLevel
	case "warn":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// NewNop returns a Telemetry with a no-op logger and unregistered
// collectors, for use in tests that don't care about observability.
func NewNop() *Telemetry {
	t, _ := New(Config{}, prometheus.NewRegistry())
	t.Log = zap.NewNop()
	return t
}
