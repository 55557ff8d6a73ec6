package session

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"time"

	"github.com/wrale/idm-dashboard/internal/storage"
)

type storedCookie struct {
	Name    string    `json:"name"`
	Value   string    `json:"value"`
	Expires time.Time `json:"expires,omitempty"`
}

// jar scopes cookies by host only. The dashboard talks to a single backend,
// so path and domain attributes are not tracked.
type jar struct {
	ctx     context.Context
	session *Session
	now     func() time.Time
}

func (j *jar) SetCookies(u *url.URL, cookies []*http.Cookie) {
	if len(cookies) == 0 {
		return
	}

	current := j.load(u.Host)
	now := j.now()
	for _, c := range cookies {
		delete(current, c.Name)
		if c.MaxAge < 0 || (!c.Expires.IsZero() && !c.Expires.After(now)) {
			continue
		}
		sc := storedCookie{Name: c.Name, Value: c.Value}
		switch {
		case c.MaxAge > 0:
			sc.Expires = now.Add(time.Duration(c.MaxAge) * time.Second)
		case !c.Expires.IsZero():
			sc.Expires = c.Expires
		}
		current[c.Name] = sc
	}
	j.save(u.Host, current)
}

func (j *jar) Cookies(u *url.URL) []*http.Cookie {
	current := j.load(u.Host)
	now := j.now()

	names := make([]string, 0, len(current))
	for name, c := range current {
		if !c.Expires.IsZero() && !c.Expires.After(now) {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)

	cookies := make([]*http.Cookie, 0, len(names))
	for _, name := range names {
		cookies = append(cookies, &http.Cookie{Name: name, Value: current[name].Value})
	}
	return cookies
}

func (j *jar) load(host string) map[string]storedCookie {
	cookies := make(map[string]storedCookie)

	raw, err := j.session.store.Get(j.ctx, j.session.key(cookieSlot+host))
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) && !errors.Is(err, storage.ErrUnavailable) {
			slog.WarnContext(j.ctx, "reading backend cookies", "profile", j.session.profile, "error", err)
		}
		return cookies
	}

	var list []storedCookie
	if err := json.Unmarshal([]byte(raw), &list); err != nil {
		slog.WarnContext(j.ctx, "decoding backend cookies", "profile", j.session.profile, "error", err)
		return cookies
	}
	for _, c := range list {
		cookies[c.Name] = c
	}
	return cookies
}

func (j *jar) save(host string, cookies map[string]storedCookie) {
	key := j.session.key(cookieSlot + host)
	if len(cookies) == 0 {
		if err := j.session.store.Delete(j.ctx, key); err != nil && !errors.Is(err, storage.ErrUnavailable) {
			slog.WarnContext(j.ctx, "clearing backend cookies", "profile", j.session.profile, "error", err)
		}
		return
	}

	list := make([]storedCookie, 0, len(cookies))
	for _, c := range cookies {
		list = append(list, c)
	}
	sort.Slice(list, func(a, b int) bool { return list[a].Name < list[b].Name })

	data, err := json.Marshal(list)
	if err != nil {
		slog.WarnContext(j.ctx, "encoding backend cookies", "profile", j.session.profile, "error", err)
		return
	}
	if err := j.session.store.Set(j.ctx, key, string(data), j.session.profileTTL); err != nil && !errors.Is(err, storage.ErrUnavailable) {
		slog.WarnContext(j.ctx, "writing backend cookies", "profile", j.session.profile, "error", err)
	}
}
