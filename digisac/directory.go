package digisac

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/mmdatafocus/boleto_notifier/config"
	"github.com/mmdatafocus/boleto_notifier/models"
	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

type serviceItem struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Type string `json:"type"`
}

type userItem struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Username string `json:"username"`
	Active   *bool  `json:"active"`
}

// paginate walks listing pages until a short or empty page, a failing later
// page, or the page ceiling. A failure on the first page is returned.
func (c *Client) paginate(ctx context.Context, cfg models.GatewayConfig, resource string, visit func(json.RawMessage)) error {
	for page := 1; page <= maxPages; page++ {
		path := fmt.Sprintf("/v1/%s?limit=%d&page=%d", resource, pageSize, page)
		items, err := c.getList(ctx, cfg, path, resource)
		if err != nil {
			if page == 1 {
				return err
			}
			config.LogWarn(config.GetLogger(), "digisac", "paginate", "stopping at failed page", page, err)
			return nil
		}
		for _, it := range items {
			visit(it)
		}
		if len(items) < pageSize {
			return nil
		}
	}
	return nil
}

// ListChannels returns the gateway's channels, deduplicated by id.
func (c *Client) ListChannels(ctx context.Context, cfg models.GatewayConfig) ([]models.Channel, error) {
	seen := map[string]bool{}
	out := []models.Channel{}
	err := c.paginate(ctx, cfg, "services", func(raw json.RawMessage) {
		var s serviceItem
		if json.Unmarshal(raw, &s) != nil || s.ID == "" || seen[s.ID] {
			return
		}
		seen[s.ID] = true
		out = append(out, models.Channel{ID: s.ID, Name: s.Name, Type: s.Type})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ListAgents returns active users, deduplicated by id and sorted by name.
func (c *Client) ListAgents(ctx context.Context, cfg models.GatewayConfig) ([]models.Agent, error) {
	seen := map[string]bool{}
	out := []models.Agent{}
	err := c.paginate(ctx, cfg, "users", func(raw json.RawMessage) {
		var u userItem
		if json.Unmarshal(raw, &u) != nil || u.ID == "" || seen[u.ID] {
			return
		}
		if u.Active != nil && !*u.Active {
			return
		}
		seen[u.ID] = true
		name := strings.TrimSpace(u.Name)
		if name == "" {
			name = u.Username
		}
		out = append(out, models.Agent{ID: u.ID, Name: name})
	})
	if err != nil {
		return nil, err
	}

	col := collate.New(language.BrazilianPortuguese, collate.IgnoreCase, collate.IgnoreDiacritics)
	sort.SliceStable(out, func(i, j int) bool {
		return col.CompareString(out[i].Name, out[j].Name) < 0
	})
	return out, nil
}
