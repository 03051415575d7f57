package templating

// UserRecord describes the signed-in user, exposed to templates as user.
type UserRecord struct {
	ID        string   `json:"id"`
	FullName  string   `json:"fullname"`
	FirstName string   `json:"firstname"`
	LastName  string   `json:"lastname"`
	Email     string   `json:"email"`
	Roles     []string `json:"roles"`
}

// SiteInfo describes the site, exposed to templates as website (and its
// historical alias site).
type SiteInfo struct {
	Name            string   `json:"name"`
	BaseURL         string   `json:"base_url"`
	DefaultLanguage string   `json:"default_language"`
	Languages       []string `json:"languages"`
}

// PageInfo describes the page being rendered, exposed as page.
type PageInfo struct {
	Title    string `json:"title"`
	Route    string `json:"route"`
	Language string `json:"language"`
}

// Context carries everything a single render can see. It is assembled per
// render call and never shared: vars builds a fresh variable map every time
// it is invoked, so one render cannot leak bindings into another.
type Context struct {
	// User is nil for anonymous renders; templates see a nil user.
	User *UserRecord

	Site *SiteInfo
	Page *PageInfo

	// Settings is the flat site-settings map exposed as settings.
	Settings map[string]string

	// Extra entries are merged last and therefore win on key collision,
	// which lets callers override any standard binding.
	Extra map[string]any
}

// language returns the language include resolution should run under.
func (c *Context) language() string {
	if c == nil || c.Page == nil {
		return ""
	}
	return c.Page.Language
}

// vars flattens the context into the engine's variable map.
func (c *Context) vars() map[string]any {
	vars := make(map[string]any)
	if c == nil {
		return vars
	}

	if c.User != nil {
		vars["user"] = map[string]any{
			"id":        c.User.ID,
			"fullname":  c.User.FullName,
			"firstname": c.User.FirstName,
			"lastname":  c.User.LastName,
			"email":     c.User.Email,
			"roles":     c.User.Roles,
		}
	} else {
		vars["user"] = nil
	}

	if c.Site != nil {
		site := map[string]any{
			"name":             c.Site.Name,
			"base_url":         c.Site.BaseURL,
			"default_language": c.Site.DefaultLanguage,
			"languages":        c.Site.Languages,
		}
		vars["website"] = site
		vars["site"] = site
	}

	if c.Page != nil {
		vars["page"] = map[string]any{
			"title":    c.Page.Title,
			"route":    c.Page.Route,
			"language": c.Page.Language,
		}
	}

	if c.Settings != nil {
		settings := make(map[string]any, len(c.Settings))
		for k, v := range c.Settings {
			settings[k] = v
		}
		vars["settings"] = settings
	}

	for k, v := range c.Extra {
		vars[k] = v
	}
	return vars
}
