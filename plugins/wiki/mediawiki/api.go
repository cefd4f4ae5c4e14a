package mediawiki

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"sfebot/pkg/contract"
)

// Verify 校验登录状态并预取编辑令牌，返回当前身份名。
func (c *Client) Verify(ctx context.Context) (string, error) {
	var resp struct {
		Query struct {
			UserInfo struct {
				ID   int64  `json:"id"`
				Name string `json:"name"`
				Anon bool   `json:"anon"`
			} `json:"userinfo"`
			Tokens struct {
				CSRF string `json:"csrftoken"`
			} `json:"tokens"`
		} `json:"query"`
	}
	params := url.Values{"action": {"query"}, "meta": {"userinfo|tokens"}, "type": {"csrf"}}
	if err := c.call(ctx, false, params, &resp); err != nil {
		return "", err
	}
	ui := resp.Query.UserInfo
	if ui.Anon || ui.Name == "" {
		return "", fmt.Errorf("mediawiki: anonymous session: %w", contract.ErrAuth)
	}
	c.mu.Lock()
	c.csrf = resp.Query.Tokens.CSRF
	c.mu.Unlock()
	return ui.Name, nil
}

// csrfToken 返回缓存的编辑令牌；refresh=true 时重新获取。
func (c *Client) csrfToken(ctx context.Context, refresh bool) (string, error) {
	c.mu.Lock()
	tok := c.csrf
	c.mu.Unlock()
	if tok != "" && !refresh {
		return tok, nil
	}
	var resp struct {
		Query struct {
			Tokens struct {
				CSRF string `json:"csrftoken"`
			} `json:"tokens"`
		} `json:"query"`
	}
	params := url.Values{"action": {"query"}, "meta": {"tokens"}, "type": {"csrf"}}
	if err := c.call(ctx, false, params, &resp); err != nil {
		return "", err
	}
	tok = resp.Query.Tokens.CSRF
	// 匿名令牌 "+\\" 不能用于编辑
	if tok == "" || tok == `+\` {
		return "", fmt.Errorf("mediawiki: csrf token unavailable: %w", contract.ErrAuth)
	}
	c.mu.Lock()
	c.csrf = tok
	c.mu.Unlock()
	return tok, nil
}

// Read 读取页面最新版本的主槽位全文。
func (c *Client) Read(ctx context.Context, title contract.Title) (string, error) {
	var resp struct {
		Query struct {
			Pages []struct {
				Title     string `json:"title"`
				Missing   bool   `json:"missing"`
				Invalid   bool   `json:"invalid"`
				Revisions []struct {
					Slots struct {
						Main struct {
							Content string `json:"content"`
						} `json:"main"`
					} `json:"slots"`
				} `json:"revisions"`
			} `json:"pages"`
		} `json:"query"`
	}
	params := url.Values{
		"action":  {"query"},
		"prop":    {"revisions"},
		"rvprop":  {"content"},
		"rvslots": {"main"},
		"titles":  {string(title)},
	}
	if err := c.call(ctx, false, params, &resp); err != nil {
		return "", err
	}
	if len(resp.Query.Pages) == 0 {
		return "", fmt.Errorf("%s: no pages: %w", title, contract.ErrResponseInvalid)
	}
	p := resp.Query.Pages[0]
	switch {
	case p.Invalid:
		return "", fmt.Errorf("%s: %w", title, contract.ErrInvalidInput)
	case p.Missing:
		return "", fmt.Errorf("%s: %w", title, contract.ErrPageMissing)
	case len(p.Revisions) == 0:
		return "", fmt.Errorf("%s: no revisions: %w", title, contract.ErrResponseInvalid)
	}
	return p.Revisions[0].Slots.Main.Content, nil
}

// Save 以机器人编辑保存整页。nochange 视为成功但未变化；badtoken 时刷新令牌重试一次。
func (c *Client) Save(ctx context.Context, title contract.Title, text, summary string) (contract.SaveResult, error) {
	res := contract.SaveResult{Title: title}
	for attempt := 0; attempt < 2; attempt++ {
		tok, err := c.csrfToken(ctx, attempt > 0)
		if err != nil {
			return res, err
		}
		var resp struct {
			Edit struct {
				Result   string `json:"result"`
				NoChange bool   `json:"nochange"`
				NewRevID int64  `json:"newrevid"`
			} `json:"edit"`
		}
		params := url.Values{
			"action":  {"edit"},
			"title":   {string(title)},
			"text":    {text},
			"summary": {summary},
			"bot":     {"1"},
			"token":   {tok},
		}
		err = c.call(ctx, true, params, &resp)
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.Code == "badtoken" && attempt == 0 {
			continue
		}
		if err != nil {
			return res, err
		}
		if resp.Edit.Result != "Success" {
			return res, fmt.Errorf("%s: edit result %q: %w", title, resp.Edit.Result, contract.ErrResponseInvalid)
		}
		res.Changed = !resp.Edit.NoChange
		res.RevID = resp.Edit.NewRevID
		return res, nil
	}
	return res, fmt.Errorf("%s: badtoken after refresh: %w", title, contract.ErrAuth)
}

// List 枚举命名空间 ns 中以 prefix 开头的非重定向页面。
func (c *Client) List(ctx context.Context, prefix string, ns contract.Namespace) ([]contract.Title, error) {
	params := url.Values{
		"action":        {"query"},
		"list":          {"allpages"},
		"apprefix":      {prefix},
		"apnamespace":   {strconv.Itoa(int(ns))},
		"aplimit":       {"max"},
		"apfilterredir": {"nonredirects"},
	}
	var out []contract.Title
	err := c.queryEach(ctx, params, func(q json.RawMessage) error {
		var page struct {
			AllPages []struct {
				Title string `json:"title"`
			} `json:"allpages"`
		}
		if err := json.Unmarshal(q, &page); err != nil {
			return fmt.Errorf("allpages: %v: %w", err, contract.ErrResponseInvalid)
		}
		for _, p := range page.AllPages {
			out = append(out, contract.Title(p.Title))
		}
		return nil
	})
	return out, err
}

// CountImports 统计 user 在窗口内、命名空间 ns 的导入日志条数（跟随 lecontinue）。
func (c *Client) CountImports(ctx context.Context, user string, ns contract.Namespace, w contract.Window) (int, error) {
	if err := w.Validate(); err != nil {
		return 0, err
	}
	params := url.Values{
		"action":      {"query"},
		"list":        {"logevents"},
		"letype":      {"import"},
		"lestart":     {w.Start.UTC().Format(time.RFC3339)},
		"leend":       {w.End.UTC().Format(time.RFC3339)},
		"ledir":       {"newer"},
		"leuser":      {user},
		"lenamespace": {strconv.Itoa(int(ns))},
		"lelimit":     {"max"},
	}
	n := 0
	err := c.queryEach(ctx, params, func(q json.RawMessage) error {
		var page struct {
			LogEvents []json.RawMessage `json:"logevents"`
		}
		if err := json.Unmarshal(q, &page); err != nil {
			return fmt.Errorf("logevents: %v: %w", err, contract.ErrResponseInvalid)
		}
		n += len(page.LogEvents)
		return nil
	})
	return n, err
}

// CountEditsBefore 统计 user 在 cutoff 之前的贡献数，最多 limit 条（单页查询）。
func (c *Client) CountEditsBefore(ctx context.Context, user string, cutoff time.Time, limit int) (int, error) {
	if limit <= 0 {
		return 0, fmt.Errorf("usercontribs: limit %d: %w", limit, contract.ErrInvalidInput)
	}
	var resp struct {
		Query struct {
			UserContribs []json.RawMessage `json:"usercontribs"`
		} `json:"query"`
	}
	params := url.Values{
		"action":  {"query"},
		"list":    {"usercontribs"},
		"ucuser":  {user},
		"ucstart": {cutoff.UTC().Format(time.RFC3339)},
		"ucdir":   {"older"},
		"uclimit": {strconv.Itoa(limit)},
	}
	if err := c.call(ctx, false, params, &resp); err != nil {
		return 0, err
	}
	return len(resp.Query.UserContribs), nil
}

// queryEach 执行 action=query 并跟随 continue 翻页，每页的 query 对象交给 each。
func (c *Client) queryEach(ctx context.Context, params url.Values, each func(json.RawMessage) error) error {
	for {
		var resp struct {
			Continue map[string]string `json:"continue"`
			Query    json.RawMessage   `json:"query"`
		}
		if err := c.call(ctx, false, params, &resp); err != nil {
			return err
		}
		if len(resp.Query) > 0 {
			if err := each(resp.Query); err != nil {
				return err
			}
		}
		if len(resp.Continue) == 0 {
			return nil
		}
		for k, v := range resp.Continue {
			params.Set(k, v)
		}
	}
}
