package telegram

import (
	"errors"
	"testing"
	"time"

	coreconfig "github.com/m3rciful/onboardbot/core/config"

	tele "gopkg.in/telebot.v4"
)

func noop(tele.Context) error { return nil }

func TestRegistryCommands(t *testing.T) {
	reg := NewRegistry()
	if err := reg.RegisterCommand("Start", Command{Handler: noop, Description: "Start"}); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := reg.RegisterCommand("/start", Command{Handler: noop, Description: "again"}); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("duplicate err = %v", err)
	}
	if err := reg.RegisterCommand("/help", Command{Handler: noop}); !errors.Is(err, ErrInvalidRegistration) {
		t.Fatalf("missing description err = %v", err)
	}
	_ = reg.RegisterCommand("pending", Command{Handler: noop, Description: "Queue", AdminOnly: true})
	_ = reg.RegisterCommand("debug", Command{Handler: noop, Description: "Debug", Hidden: true})

	if key, _, ok := reg.LookupCommand("start"); !ok || key != "/start" {
		t.Fatalf("lookup = %q %v", key, ok)
	}
	public := reg.ListCommands(false)
	if len(public) != 1 || public[0].Text != "start" {
		t.Fatalf("public = %+v", public)
	}
	if full := reg.ListCommands(true); len(full) != 2 || full[0].Text != "pending" {
		t.Fatalf("full = %+v", full)
	}
	if len(reg.Commands()) != 3 {
		t.Fatalf("commands = %v", reg.Commands())
	}
}

func TestRegistryCallbacks(t *testing.T) {
	reg := NewRegistry()
	if err := reg.RegisterCallback("b", noop); err != nil {
		t.Fatalf("register: %v", err)
	}
	_ = reg.RegisterCallback("a", noop)
	if err := reg.RegisterCallback("a", noop); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("duplicate err = %v", err)
	}
	if err := reg.RegisterCallback("", noop); !errors.Is(err, ErrInvalidRegistration) {
		t.Fatalf("empty key err = %v", err)
	}
	if keys := reg.ListCallbacks(); len(keys) != 2 || keys[0] != "a" {
		t.Fatalf("keys = %v", keys)
	}
	if reg.CallbackNotFound() == nil {
		t.Fatal("default not-found handler missing")
	}
	called := false
	reg.SetCallbackNotFound(func(tele.Context) error { called = true; return nil })
	reg.SetCallbackNotFound(nil)
	_ = reg.CallbackNotFound()(nil)
	if !called {
		t.Fatal("nil must not replace the not-found handler")
	}
}

type menuCall struct {
	cmds  []tele.Command
	scope *tele.CommandScope
}

type fakeMenu struct {
	calls []menuCall
	err   error
}

func (f *fakeMenu) SetCommands(opts ...interface{}) error {
	var call menuCall
	for _, o := range opts {
		switch v := o.(type) {
		case []tele.Command:
			call.cmds = v
		case tele.CommandScope:
			call.scope = &v
		}
	}
	f.calls = append(f.calls, call)
	return f.err
}

func TestInitBotCommandsScopesAdmins(t *testing.T) {
	reg := NewRegistry()
	_ = reg.RegisterCommand("start", Command{Handler: noop, Description: "Start"})
	_ = reg.RegisterCommand("pending", Command{Handler: noop, Description: "Queue", AdminOnly: true})

	menu := &fakeMenu{}
	if err := InitBotCommands(menu, reg, []int64{7, 9}); err != nil {
		t.Fatalf("init: %v", err)
	}
	if len(menu.calls) != 3 {
		t.Fatalf("calls = %d", len(menu.calls))
	}
	if menu.calls[0].scope != nil || len(menu.calls[0].cmds) != 1 {
		t.Fatalf("default menu = %+v", menu.calls[0])
	}
	admin := menu.calls[2]
	if admin.scope == nil || admin.scope.Type != tele.CommandScopeChat || admin.scope.ChatID != 9 || len(admin.cmds) != 2 {
		t.Fatalf("admin menu = %+v", admin)
	}

	menu = &fakeMenu{err: errors.New("forbidden")}
	if err := InitBotCommands(menu, reg, []int64{7}); err == nil {
		t.Fatal("publish failure must be reported")
	}
}

func TestNewPoller(t *testing.T) {
	cfg := &coreconfig.Config{}
	cfg.Telegram.RunMode = coreconfig.RunModeLongpoll
	lp, ok := newPoller(cfg).(*tele.LongPoller)
	if !ok || lp.Timeout != defaultLongPoll || len(lp.AllowedUpdates) != 2 {
		t.Fatalf("long poller = %+v", lp)
	}

	cfg.Telegram.RunMode = coreconfig.RunModeWebhook
	cfg.Webhook = coreconfig.WebhookConfig{URL: "https://example.org/hook", Listen: "0.0.0.0", Port: 8443}
	wh, ok := newPoller(cfg).(*tele.Webhook)
	if !ok || wh.Listen != "0.0.0.0:8443" || wh.Endpoint.PublicURL != "https://example.org/hook" {
		t.Fatalf("webhook = %+v", wh)
	}
}

func TestDefaultMiddlewares(t *testing.T) {
	names := func(chain []Middleware) []string {
		out := make([]string, len(chain))
		for i, m := range chain {
			out[i] = m.Name
		}
		return out
	}
	cfg := &coreconfig.Config{}
	if got := names(DefaultMiddlewares(cfg, nil)); len(got) != 3 || got[1] != "logger" {
		t.Fatalf("without limit = %v", got)
	}
	cfg.RateLimit = coreconfig.RateLimitConfig{IntervalMS: int(time.Second / time.Millisecond), Burst: 2}
	if got := names(DefaultMiddlewares(cfg, nil)); len(got) != 4 || got[1] != "rate_limit" {
		t.Fatalf("with limit = %v", got)
	}
}
