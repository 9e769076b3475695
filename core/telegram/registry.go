package telegram

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"

	"github.com/m3rciful/onboardbot/core/logger"

	tele "gopkg.in/telebot.v4"
)

var (
	// ErrInvalidRegistration rejects empty names, missing handlers and descriptions.
	ErrInvalidRegistration = errors.New("telegram: invalid registration")
	// ErrDuplicate rejects a second handler for the same command or callback key.
	ErrDuplicate = errors.New("telegram: already registered")
)

// Command is a slash command with its menu entry.
type Command struct {
	Handler     tele.HandlerFunc
	Description string
	// AdminOnly commands are gated by the admin middleware and shown only
	// in the admins' private command menu.
	AdminOnly bool
	Hidden    bool
}

// Registry holds bot commands and callback keys. It is safe for concurrent use.
type Registry struct {
	mu               sync.RWMutex
	commands         map[string]Command
	callbacks        map[string]tele.HandlerFunc
	callbackNotFound tele.HandlerFunc
}

// NewRegistry creates an empty Registry. Unknown callbacks are answered with
// a short toast until SetCallbackNotFound replaces it.
func NewRegistry() *Registry {
	return &Registry{
		commands:  make(map[string]Command),
		callbacks: make(map[string]tele.HandlerFunc),
		callbackNotFound: func(c tele.Context) error {
			return c.Respond(&tele.CallbackResponse{Text: "Unsupported action"})
		},
	}
}

func commandKey(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" || strings.HasPrefix(name, "/") {
		return name
	}
	return "/" + name
}

// RegisterCommand adds cmd under name. The leading slash is optional.
func (r *Registry) RegisterCommand(name string, cmd Command) error {
	key := commandKey(name)
	if key == "" || key == "/" || cmd.Handler == nil || cmd.Description == "" {
		r.logSkip("command", name, "invalid")
		return fmt.Errorf("%w: command %q", ErrInvalidRegistration, name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.commands[key]; exists {
		r.logSkip("command", key, "duplicate")
		return fmt.Errorf("%w: command %s", ErrDuplicate, key)
	}
	r.commands[key] = cmd
	return nil
}

// LookupCommand finds a command by name, with or without the slash.
func (r *Registry) LookupCommand(name string) (string, Command, bool) {
	key := commandKey(name)
	r.mu.RLock()
	defer r.mu.RUnlock()
	cmd, ok := r.commands[key]
	return key, cmd, ok
}

// Commands returns a copy of the registered commands keyed by "/name".
func (r *Registry) Commands() map[string]Command {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]Command, len(r.commands))
	for k, v := range r.commands {
		out[k] = v
	}
	return out
}

// ListCommands returns the menu entries sorted by name. Hidden commands are
// never listed; admin-only ones only when withAdmin is set.
func (r *Registry) ListCommands(withAdmin bool) []tele.Command {
	r.mu.RLock()
	defer r.mu.RUnlock()
	list := make([]tele.Command, 0, len(r.commands))
	for key, cmd := range r.commands {
		if cmd.Hidden || (cmd.AdminOnly && !withAdmin) {
			continue
		}
		list = append(list, tele.Command{Text: strings.TrimPrefix(key, "/"), Description: cmd.Description})
	}
	slices.SortFunc(list, func(a, b tele.Command) int { return strings.Compare(a.Text, b.Text) })
	return list
}

// RegisterCallback maps a callback unique key to handler.
func (r *Registry) RegisterCallback(key string, handler tele.HandlerFunc) error {
	if strings.TrimSpace(key) == "" || handler == nil {
		r.logSkip("callback", key, "invalid")
		return fmt.Errorf("%w: callback %q", ErrInvalidRegistration, key)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.callbacks[key]; exists {
		r.logSkip("callback", key, "duplicate")
		return fmt.Errorf("%w: callback %s", ErrDuplicate, key)
	}
	r.callbacks[key] = handler
	return nil
}

// GetCallback returns the handler registered for key.
func (r *Registry) GetCallback(key string) (tele.HandlerFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.callbacks[key]
	return h, ok
}

// ListCallbacks returns the registered keys in sorted order.
func (r *Registry) ListCallbacks() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	keys := make([]string, 0, len(r.callbacks))
	for k := range r.callbacks {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// SetCallbackNotFound replaces the handler for unregistered callback keys.
func (r *Registry) SetCallbackNotFound(h tele.HandlerFunc) {
	if h == nil {
		return
	}
	r.mu.Lock()
	r.callbackNotFound = h
	r.mu.Unlock()
}

// CallbackNotFound returns the handler for unregistered callback keys.
func (r *Registry) CallbackNotFound() tele.HandlerFunc {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.callbackNotFound
}

func (r *Registry) logSkip(kind, name, reason string) {
	logger.Warn(logger.Background(), "tg.wire", "register.skip",
		slog.String("kind", kind),
		slog.String("name", name),
		slog.String("reason", reason),
	)
}

// commandSetter is the part of *tele.Bot used to publish menus.
type commandSetter interface {
	SetCommands(opts ...interface{}) error
}

// InitBotCommands publishes the public command menu and, for every admin,
// a private menu that also lists the admin-only commands.
func InitBotCommands(bot commandSetter, reg *Registry, adminIDs []int64) error {
	var errs []error
	if err := bot.SetCommands(reg.ListCommands(false)); err != nil {
		errs = append(errs, fmt.Errorf("default scope: %w", err))
	}
	if len(adminIDs) > 0 {
		full := reg.ListCommands(true)
		for _, id := range adminIDs {
			scope := tele.CommandScope{Type: tele.CommandScopeChat, ChatID: id}
			if err := bot.SetCommands(full, scope); err != nil {
				errs = append(errs, fmt.Errorf("admin %d: %w", id, err))
			}
		}
	}
	err := errors.Join(errs...)
	if err != nil {
		logger.Error(logger.Background(), "tg.wire", "commands.publish",
			slog.String("status", "fail"),
			slog.Any("err", err),
		)
	} else {
		logger.Info(logger.Background(), "tg.wire", "commands.publish",
			slog.String("status", "ok"),
			slog.Int("admins", len(adminIDs)),
		)
	}
	return err
}
