package tgbot

import (
	"errors"
	"strings"

	tg "github.com/m3rciful/onboardbot/core/telegram"
	"github.com/m3rciful/onboardbot/core/telegram/callbacks"
	"github.com/m3rciful/onboardbot/core/telegram/helpers"
	"github.com/m3rciful/onboardbot/core/telegram/middleware"
	"github.com/m3rciful/onboardbot/core/telegram/router"
	"github.com/m3rciful/onboardbot/onboarding"
	"github.com/m3rciful/onboardbot/onboarding/catalog"
	"github.com/m3rciful/onboardbot/onboarding/director"
	"github.com/m3rciful/onboardbot/onboarding/review"

	tele "gopkg.in/telebot.v4"
)

// Bot holds the Telegram handlers of the onboarding flow.
type Bot struct {
	director *director.Director
	gateway  *review.Gateway
	catalog  *catalog.Catalog
	admins   []int64
}

var _ router.Conversation = (*Bot)(nil)

// New builds the handler set. admins gates the reviewer-only commands.
func New(d *director.Director, g *review.Gateway, cat *catalog.Catalog, admins []int64) *Bot {
	return &Bot{director: d, gateway: g, catalog: cat, admins: admins}
}

// Register adds the commands and callback keys of the flow to reg.
func (b *Bot) Register(reg *tg.Registry) error {
	var errs []error
	cmds := map[string]tg.Command{
		"start":   {Handler: b.handleStart, Description: "Start onboarding"},
		"support": {Handler: b.handleSupport, Description: "Contact support"},
		"pending": {Handler: b.handlePending, Description: "List submissions awaiting review", AdminOnly: true},
	}
	for name, cmd := range cmds {
		errs = append(errs, reg.RegisterCommand(name, cmd))
	}

	keys := make([]string, 0, len(onboarding.Choices())+6)
	for _, id := range onboarding.Choices() {
		keys = append(keys, string(id))
	}
	keys = append(keys, director.NavTokens()...)
	keys = append(keys, onboarding.KeyReviewApprove, onboarding.KeyReviewReject)

	for _, key := range keys {
		errs = append(errs, reg.RegisterCallback(key, b.handleCallback))
	}
	// Buttons from older prompts still reach the flow, which restarts it.
	reg.SetCallbackNotFound(b.handleCallback)
	return errors.Join(errs...)
}

// Routes builds the command, callback and text routes for reg.
func (b *Bot) Routes(reg *tg.Registry) []tg.Route {
	routes := router.CommandRoutes(reg, router.CommandRouteOptions{
		AdminIDs:      b.admins,
		OnAdminReject: b.notice(onboarding.MsgReviewUnauthorized),
	})
	routes = append(routes, router.CallbackRoute(reg, router.CallbackOptions{NotFound: b.UnknownCallback()}))
	routes = append(routes, router.TextRoutes(b, router.TextOptions{
		UnknownText:  b.UnknownText(),
		UnknownMedia: b.UnknownMedia(),
	})...)
	return routes
}

// OnRateLimited answers a throttled update.
func (b *Bot) OnRateLimited(c tele.Context) error {
	if c.Callback() != nil {
		return c.Respond(&tele.CallbackResponse{Text: b.catalog.Text(onboarding.MsgRateLimited, nil)})
	}
	return helpers.SendText(c, b.catalog.Text(onboarding.MsgRateLimited, nil))
}

// HandleText feeds free text into the flow. Slash commands that reach it
// are not registered and go to the flow as commands, never as content.
func (b *Bot) HandleText(c tele.Context) error {
	text := c.Text()
	if name, ok := commandName(text); ok {
		return b.handle(c, director.Inbound{Kind: director.InboundCommand, Command: name})
	}
	return b.handle(c, director.Inbound{Kind: director.InboundText, Text: text})
}

// commandName extracts "help" from "/help@SomeBot args".
func commandName(text string) (string, bool) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") {
		return "", false
	}
	name, _, _ := strings.Cut(text[1:], " ")
	name, _, _ = strings.Cut(name, "@")
	return strings.ToLower(name), true
}

// UnknownText restarts the flow, as any unexpected text does.
func (b *Bot) UnknownText() tele.HandlerFunc { return b.HandleText }

// UnknownMedia tells the user that media is not part of the flow.
func (b *Bot) UnknownMedia() tele.HandlerFunc { return b.notice(onboarding.MsgUnsupportedInput) }

// UnknownCallback hands unregistered buttons to the flow.
func (b *Bot) UnknownCallback() tele.HandlerFunc { return b.handleCallback }

func (b *Bot) handleStart(c tele.Context) error {
	return b.handle(c, director.Inbound{Kind: director.InboundCommand, Command: string(onboarding.CommandStart)})
}

func (b *Bot) handleSupport(c tele.Context) error {
	return b.handle(c, director.Inbound{Kind: director.InboundCommand, Command: string(onboarding.CommandSupport)})
}

func (b *Bot) handleCallback(c tele.Context) error {
	key, payload := callbacks.ParseCallbackData(c.Callback())
	return b.handle(c, director.Inbound{Kind: director.InboundCallback, Key: key, Payload: payload})
}

func (b *Bot) handlePending(c tele.Context) error {
	user := c.Sender()
	if user == nil {
		return nil
	}
	n, err := b.gateway.SendPending(helpers.BuildContext(c), user.ID)
	if err != nil {
		return err
	}
	middleware.RecordMessages(c, max(n, 1), n > 0)
	return nil
}

func (b *Bot) handle(c tele.Context, in director.Inbound) error {
	user := c.Sender()
	if user == nil {
		return nil
	}
	in.UserID = user.ID
	in.Meta = meta(user)

	out, err := b.director.HandleInbound(helpers.BuildContext(c), in)
	kb := false
	for _, a := range out.Actions {
		if a.Kind == onboarding.ActionSendChoicePrompt {
			kb = true
			break
		}
	}
	middleware.RecordMessages(c, len(out.Results)-out.Failed(), kb)
	return err
}

func (b *Bot) notice(id onboarding.MessageID) tele.HandlerFunc {
	return func(c tele.Context) error {
		return helpers.SendText(c, b.catalog.Text(id, nil))
	}
}

func meta(u *tele.User) onboarding.Meta {
	return onboarding.Meta{
		DisplayName: strings.TrimSpace(u.FirstName + " " + u.LastName),
		Handle:      u.Username,
	}
}
