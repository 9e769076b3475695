package cmd

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	coreconfig "github.com/m3rciful/onboardbot/core/config"
	coretelegram "github.com/m3rciful/onboardbot/core/telegram"
)

type fakeConfig struct{ core *coreconfig.Config }

func (f fakeConfig) CoreConfig() *coreconfig.Config { return f.core }

type fakeApp struct {
	opts coretelegram.RunOptions
	err  error
}

func (f fakeApp) TelegramRunOptions() (coretelegram.RunOptions, error) { return f.opts, f.err }

func TestConfigPathPrecedence(t *testing.T) {
	t.Setenv("TEST_BOT_CONFIG", "/env.yaml")
	o := Options{ConfigEnvVar: "TEST_BOT_CONFIG", DefaultConfigPath: "/default.yaml"}

	if p, _ := o.ConfigPath("/flag.yaml"); p != "/flag.yaml" {
		t.Fatalf("flag path = %q", p)
	}
	if p, _ := o.ConfigPath(""); p != "/env.yaml" {
		t.Fatalf("env path = %q", p)
	}
	t.Setenv("TEST_BOT_CONFIG", "")
	if p, _ := o.ConfigPath(""); p != "/default.yaml" {
		t.Fatalf("default path = %q", p)
	}
	o.DefaultConfigPath = ""
	if _, err := o.ConfigPath(""); err == nil {
		t.Fatal("missing path must fail")
	}
}

func TestRunVersionSkipsBootstrap(t *testing.T) {
	var out bytes.Buffer
	err := Run(Options{
		Name:       "onboardbot",
		Args:       []string{"-version"},
		Stdout:     &out,
		LoadConfig: func(string) (ConfigCarrier, error) { t.Fatal("config loaded"); return nil, nil },
		Bootstrap:  func(ConfigCarrier) (TelegramApp, error) { t.Fatal("bootstrapped"); return nil, nil },
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if !strings.HasPrefix(out.String(), "onboardbot dev") {
		t.Fatalf("version output = %q", out.String())
	}
}

func TestRunWrapsLifecycleHooks(t *testing.T) {
	var calls []string
	app := fakeApp{opts: coretelegram.RunOptions{
		OnStart: func(context.Context, coretelegram.Runtime) error { calls = append(calls, "start"); return nil },
		OnStop:  func(context.Context, coretelegram.Runtime) error { calls = append(calls, "stop"); return nil },
	}}
	var loaded string
	err := Run(Options{
		Args:       []string{"-config", "/tmp/bot.yaml"},
		LoadConfig: func(p string) (ConfigCarrier, error) { loaded = p; return fakeConfig{core: &coreconfig.Config{}}, nil },
		Bootstrap:  func(ConfigCarrier) (TelegramApp, error) { return app, nil },
		ShutdownLogger: func() error {
			calls = append(calls, "logger")
			return nil
		},
		RunTelegram: func(ctx context.Context, opts coretelegram.RunOptions) error {
			if err := opts.OnStart(ctx, coretelegram.Runtime{}); err != nil {
				return err
			}
			return opts.OnStop(ctx, coretelegram.Runtime{})
		},
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if loaded != "/tmp/bot.yaml" {
		t.Fatalf("loaded %q", loaded)
	}
	if strings.Join(calls, ",") != "start,stop,logger" {
		t.Fatalf("calls = %v", calls)
	}
}

func TestRunReportsFailures(t *testing.T) {
	boom := errors.New("boom")
	load := func(string) (ConfigCarrier, error) { return fakeConfig{core: &coreconfig.Config{}}, nil }

	cases := []struct {
		name string
		opts Options
	}{
		{"no loader", Options{Bootstrap: func(ConfigCarrier) (TelegramApp, error) { return nil, nil }}},
		{"load error", Options{
			LoadConfig: func(string) (ConfigCarrier, error) { return nil, boom },
			Bootstrap:  func(ConfigCarrier) (TelegramApp, error) { return nil, nil },
		}},
		{"missing core", Options{
			LoadConfig: func(string) (ConfigCarrier, error) { return fakeConfig{}, nil },
			Bootstrap:  func(ConfigCarrier) (TelegramApp, error) { return nil, nil },
		}},
		{"bootstrap error", Options{
			LoadConfig: load,
			Bootstrap:  func(ConfigCarrier) (TelegramApp, error) { return nil, boom },
		}},
		{"options error", Options{
			LoadConfig:     load,
			Bootstrap:      func(ConfigCarrier) (TelegramApp, error) { return fakeApp{err: boom}, nil },
			ShutdownLogger: func() error { return nil },
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tc.opts.Args = []string{"-config", "x.yaml"}
			if err := Run(tc.opts); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}
