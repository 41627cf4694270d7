// Package template resolves mustache tags in table names and SQL bodies
// against the inbound message.
package template

import (
	"strings"

	"github.com/cbroglie/mustache"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/ekaya-inc/ekaya-gaiandb/pkg/models"
)

// DefaultCacheSize bounds the number of parsed templates a Renderer keeps.
const DefaultCacheSize = 256

// Renderer renders mustache templates. Templates passed to Render are parsed
// once and kept in a bounded LRU cache; RenderOnce never caches.
type Renderer struct {
	cache *lru.Cache[string, *mustache.Template]
}

// NewRenderer creates a Renderer with a DefaultCacheSize cache.
func NewRenderer() *Renderer {
	cache, err := lru.New[string, *mustache.Template](DefaultCacheSize)
	if err != nil {
		panic(err)
	}
	return &Renderer{cache: cache}
}

// Render substitutes fields of msg into tpl. Missing fields render empty.
// If tpl cannot be parsed, tpl is returned unchanged alongside the error so
// callers can carry on with the raw text. Use Render for templates that come
// from node configuration.
func (r *Renderer) Render(tpl string, msg models.Message) (string, error) {
	return r.render(tpl, msg, true)
}

// RenderOnce is Render without caching, for templates that arrive in messages.
func (r *Renderer) RenderOnce(tpl string, msg models.Message) (string, error) {
	return r.render(tpl, msg, false)
}

func (r *Renderer) render(tpl string, msg models.Message, cache bool) (string, error) {
	if !strings.Contains(tpl, "{{") {
		return tpl, nil
	}

	var (
		parsed *mustache.Template
		err    error
	)
	if cache {
		parsed, err = r.parse(tpl)
	} else {
		parsed, err = mustache.ParseString(tpl)
	}
	if err != nil {
		return tpl, err
	}

	out, err := parsed.Render(map[string]any(msg))
	if err != nil {
		return tpl, err
	}
	return out, nil
}

// CachedTemplates returns how many parsed templates are cached.
func (r *Renderer) CachedTemplates() int {
	return r.cache.Len()
}

func (r *Renderer) parse(tpl string) (*mustache.Template, error) {
	if cached, ok := r.cache.Get(tpl); ok {
		return cached, nil
	}
	parsed, err := mustache.ParseString(tpl)
	if err != nil {
		return nil, err
	}
	r.cache.Add(tpl, parsed)
	return parsed, nil
}
