package registry

import (
	"context"
	"fmt"

	lua "github.com/yuin/gopher-lua"

	"github.com/ramkansal/mangavault/internal/capability"
	"github.com/ramkansal/mangavault/pkg/scraper"
)

// LuaPlugin is the script-module plugin kind: a Lua source file
// exposing the same function names as the component ABI as Lua
// globals. A fresh *lua.LState is created per call, matching the
// component kind's "no retained guest state" rule in spec.md §4.2.
type LuaPlugin struct {
	source []byte
	host   *capability.Host
	name   string
}

// NewLuaPlugin loads source without executing it; syntax is checked
// eagerly so a broken script fails registration instead of failing
// silently on first use.
func NewLuaPlugin(name string, source []byte, host *capability.Host) (*LuaPlugin, error) {
	probe := lua.NewState()
	defer probe.Close()
	if _, err := probe.LoadString(string(source)); err != nil {
		return nil, fmt.Errorf("parse lua plugin %s: %w", name, err)
	}
	return &LuaPlugin{source: source, host: host, name: name}, nil
}

// newState builds a fresh interpreter with the capability host bound
// in as Lua globals under the "host" table, and loads the plugin's
// source into it.
func (p *LuaPlugin) newState(ctx context.Context) (*lua.LState, error) {
	L := lua.NewState()

	hostTable := L.NewTable()
	L.SetField(hostTable, "http_get", L.NewFunction(p.luaHTTPGet(ctx)))
	L.SetField(hostTable, "http_post", L.NewFunction(p.luaHTTPPost(ctx)))
	L.SetField(hostTable, "has_cloudflare_protection", L.NewFunction(p.luaHasCloudflare()))
	L.SetField(hostTable, "html_find", L.NewFunction(p.luaHTMLFind()))
	L.SetField(hostTable, "html_find_one", L.NewFunction(p.luaHTMLFindOne()))
	L.SetField(hostTable, "json_encode", L.NewFunction(p.luaJSONEncode()))
	L.SetField(hostTable, "json_decode", L.NewFunction(p.luaJSONDecode()))
	L.SetGlobal("host", hostTable)

	if err := L.DoString(string(p.source)); err != nil {
		L.Close()
		return nil, fmt.Errorf("run lua plugin %s: %w", p.name, err)
	}
	return L, nil
}

func (p *LuaPlugin) luaHTTPGet(ctx context.Context) lua.LGFunction {
	return func(L *lua.LState) int {
		url := L.CheckString(1)
		resp, ok := p.host.HTTP.Get(url, nil)
		if !ok {
			L.Push(lua.LNil)
			return 1
		}
		t := L.NewTable()
		L.SetField(t, "status", lua.LNumber(resp.Status))
		L.SetField(t, "body", lua.LString(resp.Body))
		L.Push(t)
		return 1
	}
}

func (p *LuaPlugin) luaHTTPPost(ctx context.Context) lua.LGFunction {
	return func(L *lua.LState) int {
		url := L.CheckString(1)
		body := L.OptString(2, "")
		resp, ok := p.host.HTTP.Post(url, body, nil)
		if !ok {
			L.Push(lua.LNil)
			return 1
		}
		t := L.NewTable()
		L.SetField(t, "status", lua.LNumber(resp.Status))
		L.SetField(t, "body", lua.LString(resp.Body))
		L.Push(t)
		return 1
	}
}

func (p *LuaPlugin) luaHasCloudflare() lua.LGFunction {
	return func(L *lua.LState) int {
		body := L.CheckString(1)
		status := L.OptInt(2, 0)
		L.Push(lua.LBool(capability.HasCloudflareProtection(body, status, nil)))
		return 1
	}
}

func (p *LuaPlugin) luaHTMLFind() lua.LGFunction {
	return func(L *lua.LState) int {
		html := L.CheckString(1)
		selector := L.CheckString(2)
		elems, err := capability.Find(html, selector)
		if err != nil {
			L.Push(L.NewTable())
			return 1
		}
		t := L.NewTable()
		for _, el := range elems {
			row := L.NewTable()
			L.SetField(row, "text", lua.LString(el.Text()))
			t.Append(row)
		}
		L.Push(t)
		return 1
	}
}

func (p *LuaPlugin) luaHTMLFindOne() lua.LGFunction {
	return func(L *lua.LState) int {
		html := L.CheckString(1)
		selector := L.CheckString(2)
		el, err := capability.FindOne(html, selector)
		if err != nil || el == nil {
			L.Push(lua.LNil)
			return 1
		}
		row := L.NewTable()
		L.SetField(row, "text", lua.LString(el.Text()))
		L.Push(row)
		return 1
	}
}

func (p *LuaPlugin) luaJSONEncode() lua.LGFunction {
	return func(L *lua.LState) int {
		v := luaToGo(L.CheckAny(1))
		s, err := capability.EncodeJSON(v)
		if err != nil {
			L.Push(lua.LNil)
			return 1
		}
		L.Push(lua.LString(s))
		return 1
	}
}

func (p *LuaPlugin) luaJSONDecode() lua.LGFunction {
	return func(L *lua.LState) int {
		s := L.CheckString(1)
		v, err := capability.DecodeJSON(s)
		if err != nil {
			L.Push(lua.LNil)
			return 1
		}
		L.Push(goToLua(L, v))
		return 1
	}
}

// luaToGo converts scalar Lua values into plain Go values suitable
// for encoding/json; table conversion is intentionally not supported
// here since plugins pass structured results back through the typed
// helpers below, not raw json_encode of tables.
func luaToGo(v lua.LValue) any {
	switch val := v.(type) {
	case lua.LString:
		return string(val)
	case lua.LNumber:
		return float64(val)
	case lua.LBool:
		return bool(val)
	default:
		return nil
	}
}

func goToLua(L *lua.LState, v any) lua.LValue {
	switch val := v.(type) {
	case string:
		return lua.LString(val)
	case float64:
		return lua.LNumber(val)
	case bool:
		return lua.LBool(val)
	case map[string]any:
		t := L.NewTable()
		for k, vv := range val {
			L.SetField(t, k, goToLua(L, vv))
		}
		return t
	case []any:
		t := L.NewTable()
		for _, vv := range val {
			t.Append(goToLua(L, vv))
		}
		return t
	default:
		return lua.LNil
	}
}

// callFunction builds a fresh state, invokes the named global Lua
// function with args, and returns the state (which the caller must
// Close) with the function's single return value. Callers build the Go
// structure straight out of the returned table's fields.
func (p *LuaPlugin) callFunction(ctx context.Context, name string, args ...lua.LValue) (*lua.LState, []lua.LValue, error) {
	L, err := p.newState(ctx)
	if err != nil {
		return nil, nil, err
	}
	fn := L.GetGlobal(name)
	if fn == lua.LNil {
		L.Close()
		return nil, nil, scraper.Internal(fmt.Sprintf("plugin %s does not define %s", p.name, name))
	}
	if err := L.CallByParam(lua.P{Fn: fn, NRet: 1, Protect: true}, args...); err != nil {
		L.Close()
		return nil, nil, scraper.Internal(fmt.Sprintf("call %s on %s: %v", name, p.name, err))
	}
	ret := L.Get(-1)
	L.Pop(1)
	return L, []lua.LValue{ret}, nil
}

func tableToItems(t *lua.LTable) []scraper.Item {
	var out []scraper.Item
	t.ForEach(func(_, v lua.LValue) {
		row, ok := v.(*lua.LTable)
		if !ok {
			return
		}
		out = append(out, scraper.Item{
			Title:  luaString(row.RawGetString("title")),
			URL:    luaString(row.RawGetString("url")),
			ImgURL: luaString(row.RawGetString("img_url")),
		})
	})
	return out
}

func luaString(v lua.LValue) string {
	if s, ok := v.(lua.LString); ok {
		return string(s)
	}
	return ""
}

func (p *LuaPlugin) ScrapeLatest(ctx context.Context, page uint32) ([]scraper.Item, error) {
	L, rets, err := p.callFunction(ctx, "scrape_latest", lua.LNumber(page))
	if err != nil {
		return nil, err
	}
	defer L.Close()
	t, ok := rets[0].(*lua.LTable)
	if !ok {
		return nil, nil
	}
	return tableToItems(t), nil
}

func (p *LuaPlugin) ScrapeTrending(ctx context.Context, page uint32) ([]scraper.Item, error) {
	L, rets, err := p.callFunction(ctx, "scrape_trending", lua.LNumber(page))
	if err != nil {
		return nil, err
	}
	defer L.Close()
	t, ok := rets[0].(*lua.LTable)
	if !ok {
		return nil, nil
	}
	return tableToItems(t), nil
}

func (p *LuaPlugin) ScrapeSearch(ctx context.Context, query string, page uint32) ([]scraper.Item, error) {
	L, rets, err := p.callFunction(ctx, "scrape_search", lua.LString(query), lua.LNumber(page))
	if err != nil {
		return nil, err
	}
	defer L.Close()
	t, ok := rets[0].(*lua.LTable)
	if !ok {
		return nil, nil
	}
	return tableToItems(t), nil
}

func (p *LuaPlugin) Scrape(ctx context.Context, url string) (*scraper.Page, error) {
	L, rets, err := p.callFunction(ctx, "scrape", lua.LString(url))
	if err != nil {
		return nil, err
	}
	defer L.Close()
	row, ok := rets[0].(*lua.LTable)
	if !ok {
		return nil, scraper.Parse(fmt.Sprintf("plugin %s: scrape did not return a table", p.name))
	}
	page := &scraper.Page{
		Title:       luaString(row.RawGetString("title")),
		URL:         url,
		Description: luaString(row.RawGetString("description")),
	}
	return page, nil
}

func (p *LuaPlugin) ScrapeChapter(ctx context.Context, url string) ([]string, error) {
	L, rets, err := p.callFunction(ctx, "scrape_chapter", lua.LString(url))
	if err != nil {
		return nil, err
	}
	defer L.Close()
	t, ok := rets[0].(*lua.LTable)
	if !ok {
		return nil, nil
	}
	var out []string
	t.ForEach(func(_, v lua.LValue) { out = append(out, luaString(v)) })
	return out, nil
}

func (p *LuaPlugin) ScrapeGenresList(ctx context.Context) ([]scraper.Genre, error) {
	L, rets, err := p.callFunction(ctx, "scrape_genres_list")
	if err != nil {
		return nil, err
	}
	defer L.Close()
	t, ok := rets[0].(*lua.LTable)
	if !ok {
		return nil, nil
	}
	var out []scraper.Genre
	t.ForEach(func(_, v lua.LValue) {
		row, ok := v.(*lua.LTable)
		if !ok {
			return
		}
		out = append(out, scraper.Genre{
			Name: luaString(row.RawGetString("name")),
			URL:  luaString(row.RawGetString("url")),
		})
	})
	return out, nil
}

func (p *LuaPlugin) GetInfo(ctx context.Context) (*scraper.ScraperInfo, error) {
	L, rets, err := p.callFunction(ctx, "get_info")
	if err != nil {
		return nil, err
	}
	defer L.Close()
	row, ok := rets[0].(*lua.LTable)
	if !ok {
		return nil, scraper.Parse(fmt.Sprintf("plugin %s: get_info did not return a table", p.name))
	}
	return &scraper.ScraperInfo{
		ID:         luaString(row.RawGetString("id")),
		Name:       luaString(row.RawGetString("name")),
		Version:    luaString(row.RawGetString("version")),
		BaseURL:    luaString(row.RawGetString("base_url")),
		ImgURL:     luaString(row.RawGetString("img_url")),
		RefererURL: luaString(row.RawGetString("referer_url")),
	}, nil
}

func (p *LuaPlugin) GetCookies(ctx context.Context) (string, error) {
	L, err := p.newState(ctx)
	if err != nil {
		return "", err
	}
	defer L.Close()
	fn := L.GetGlobal("get_cookies")
	if fn == lua.LNil {
		return "", nil
	}
	if err := L.CallByParam(lua.P{Fn: fn, NRet: 1, Protect: true}); err != nil {
		return "", scraper.Internal(fmt.Sprintf("call get_cookies on %s: %v", p.name, err))
	}
	ret := L.Get(-1)
	L.Pop(1)
	return luaString(ret), nil
}

func (p *LuaPlugin) Kind() scraper.Kind { return scraper.KindScript }

func (p *LuaPlugin) Close() error { return nil }
