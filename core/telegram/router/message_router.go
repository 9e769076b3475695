package router

import (
	tg "github.com/m3rciful/onboardbot/core/telegram"

	tele "gopkg.in/telebot.v4"
)

// Conversation receives free text, including unregistered slash commands.
type Conversation interface {
	HandleText(c tele.Context) error
}

// TextOptions holds the handlers for input that has no conversation.
type TextOptions struct {
	// UnknownText handles text when conv is nil.
	UnknownText tele.HandlerFunc
	// UnknownMedia handles documents, photos, voice and stickers.
	UnknownMedia tele.HandlerFunc
}

var mediaEndpoints = []string{tele.OnDocument, tele.OnPhoto, tele.OnVoice, tele.OnSticker, tele.OnVideo}

// TextRoutes builds the routes for text and media messages.
func TextRoutes(conv Conversation, opts TextOptions) []tg.Route {
	text := opts.UnknownText
	name := "unknown_text"
	if conv != nil {
		text, name = conv.HandleText, "conversation"
	}
	routes := []tg.Route{{
		Endpoint: tele.OnText,
		Handler:  wrap(func(c tele.Context) error { return handled(c, name, text) }),
	}}
	media := wrap(func(c tele.Context) error { return handled(c, "unexpected_media", opts.UnknownMedia) })
	for _, ep := range mediaEndpoints {
		routes = append(routes, tg.Route{Endpoint: ep, Handler: media})
	}
	return routes
}
