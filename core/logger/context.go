package logger

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

type metaKey struct{}

// UpdateMeta identifies the Telegram update a log line belongs to.
type UpdateMeta struct {
	RID      string
	UpdateID int
	UserID   int64
	ChatID   int64
	Handler  string
}

// WithMeta stores m in ctx. A zero RID is derived from the update identifiers.
func WithMeta(ctx context.Context, m UpdateMeta) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	if m.RID == "" && (m.UpdateID != 0 || m.ChatID != 0 || m.UserID != 0) {
		m.RID = BuildRID(m.UpdateID, m.ChatID, m.UserID)
	}
	return context.WithValue(ctx, metaKey{}, m)
}

// MetaFrom returns the update metadata carried by ctx, if any.
func MetaFrom(ctx context.Context) UpdateMeta {
	if ctx == nil {
		return UpdateMeta{}
	}
	m, _ := ctx.Value(metaKey{}).(UpdateMeta)
	return m
}

// WithHandler tags ctx with the handler name, keeping the rest of the metadata.
func WithHandler(ctx context.Context, handler string) context.Context {
	if handler == "" {
		if ctx == nil {
			return context.Background()
		}
		return ctx
	}
	m := MetaFrom(ctx)
	m.Handler = handler
	return WithMeta(ctx, m)
}

// fields returns the metadata as log keys; zero values are left out.
func (m UpdateMeta) fields() map[string]any {
	out := make(map[string]any, 5)
	if m.RID != "" {
		out["rid"] = m.RID
	}
	if m.UpdateID != 0 {
		out["update_id"] = m.UpdateID
	}
	if m.UserID != 0 {
		out["user_id"] = m.UserID
	}
	if m.ChatID != 0 {
		out["chat_id"] = m.ChatID
	}
	if m.Handler != "" {
		out["handler"] = m.Handler
	}
	return out
}

// BuildRID returns a correlation identifier in the format updateID:chatID:userID.
func BuildRID(updateID int, chatID, userID int64) string {
	return fmt.Sprintf("%d:%d:%d", updateID, chatID, userID)
}

// compactRID rewrites an updateID:chatID:userID rid as dot separated base36.
// Other inputs are returned unchanged.
func compactRID(rid string) string {
	parts := strings.Split(rid, ":")
	if len(parts) != 3 {
		return rid
	}
	for i, p := range parts {
		n, err := strconv.ParseInt(p, 10, 64)
		if err != nil {
			return rid
		}
		parts[i] = strconv.FormatInt(n, 36)
	}
	return strings.Join(parts, ".")
}

// SanitizeLimit drops control characters (tab and newline excepted) and cuts
// the result to max runes.
func SanitizeLimit(s string, max int) string {
	if max <= 0 || s == "" {
		return ""
	}
	var b strings.Builder
	n := 0
	for _, r := range s {
		if n == max {
			break
		}
		if r != '\n' && r != '\t' && (unicode.IsControl(r) || unicode.Is(unicode.Cf, r)) {
			continue
		}
		b.WriteRune(r)
		n++
	}
	return b.String()
}

// Mask keeps the first and last two runes of s and stars the rest.
// Values of four runes or fewer are fully starred.
func Mask(s string) string {
	r := []rune(s)
	if len(r) <= 4 {
		return strings.Repeat("*", len(r))
	}
	return string(r[:2]) + strings.Repeat("*", len(r)-4) + string(r[len(r)-2:])
}
