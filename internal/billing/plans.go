package billing

import (
	"fmt"
	"strings"

	"github.com/digkill/genstudio/internal/models"
)

// PlanInfo is a purchasable credit package.
type PlanInfo struct {
	Plan    models.Plan `json:"plan"`
	Credits int         `json:"credits"`
	PriceID string      `json:"-"`
}

// Catalog maps plans to their credits and gateway prices.
type Catalog struct {
	order []models.Plan
	plans map[models.Plan]PlanInfo
}

func NewCatalog(plans ...PlanInfo) *Catalog {
	c := &Catalog{plans: make(map[models.Plan]PlanInfo, len(plans))}
	for _, p := range plans {
		c.order = append(c.order, p.Plan)
		c.plans[p.Plan] = p
	}
	return c
}

// Lookup resolves a plan name case-insensitively.
func (c *Catalog) Lookup(name string) (PlanInfo, error) {
	p, ok := c.plans[models.Plan(strings.ToUpper(strings.TrimSpace(name)))]
	if !ok {
		return PlanInfo{}, fmt.Errorf("unknown plan %q", name)
	}
	return p, nil
}

// CreditsFor returns how many credits a paid plan grants.
func (c *Catalog) CreditsFor(plan models.Plan) (int, bool) {
	p, ok := c.plans[plan]
	return p.Credits, ok
}

func (c *Catalog) List() []PlanInfo {
	out := make([]PlanInfo, 0, len(c.order))
	for _, p := range c.order {
		out = append(out, c.plans[p])
	}
	return out
}
