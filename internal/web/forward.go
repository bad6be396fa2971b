package web

import (
	"context"

	"github.com/MrWong99/emotive/internal/keyword"
	"github.com/MrWong99/emotive/internal/preference"
)

// MappingChanged is the payload of a [MsgMappings] message.
type MappingChanged struct {
	Keyword string           `json:"keyword,omitempty"`
	Mapping *keyword.Mapping `json:"mapping,omitempty"`
	Removed bool             `json:"removed,omitempty"`
	Cleared bool             `json:"cleared,omitempty"`
}

// PreferencesChanged is the payload of a [MsgPreferences] message.
type PreferencesChanged struct {
	Source   string           `json:"source,omitempty"`
	Keyword  string           `json:"keyword,omitempty"`
	Emoji    string           `json:"emoji,omitempty"`
	Reset    bool             `json:"reset,omitempty"`
	Imported bool             `json:"imported,omitempty"`
	Stats    preference.Stats `json:"stats"`
}

// Publish queues a message of type typ on every connected client and returns
// how many were reached.
func (h *Hub) Publish(typ string, payload any) int {
	return h.broadcast(mustEnvelope(typ, payload))
}

// Forward relays custom mapping and preference changes to connected clients
// until ctx is done. Subscriptions are in place when Forward returns. Either
// source may be nil.
func (h *Hub) Forward(ctx context.Context, keywords *keyword.Matcher, prefs *preference.Tracker) {
	var (
		mappings <-chan keyword.MappingChange
		updates  <-chan preference.Update
		cancels  []func()
	)
	if keywords != nil {
		ch, cancel := keywords.SubscribeChanges(sendBuffer)
		mappings, cancels = ch, append(cancels, cancel)
	}
	if prefs != nil {
		ch, cancel := prefs.Subscribe(sendBuffer)
		updates, cancels = ch, append(cancels, cancel)
	}
	go func() {
		defer func() {
			for _, c := range cancels {
				c()
			}
		}()
		h.relay(ctx, mappings, updates, prefs)
	}()
}

func (h *Hub) relay(ctx context.Context, mappings <-chan keyword.MappingChange, updates <-chan preference.Update, prefs *preference.Tracker) {
	for {
		select {
		case <-ctx.Done():
			return
		case c, ok := <-mappings:
			if !ok {
				mappings = nil
				continue
			}
			msg := MappingChanged{Keyword: c.Keyword, Removed: c.Removed, Cleared: c.Cleared}
			if !c.Removed && !c.Cleared {
				mp := c.Mapping
				msg.Mapping = &mp
			}
			h.Publish(MsgMappings, msg)
		case u, ok := <-updates:
			if !ok {
				updates = nil
				continue
			}
			h.Publish(MsgPreferences, PreferencesChanged{
				Source:   u.Source,
				Keyword:  u.Keyword,
				Emoji:    u.Emoji,
				Reset:    u.Reset,
				Imported: u.Imported,
				Stats:    prefs.Stats(),
			})
		}
	}
}
