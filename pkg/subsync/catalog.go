package subsync

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Catalog maps billing-provider price ids to plan descriptors.
// It is immutable after construction and safe for concurrent use.
type Catalog struct {
	plans map[string]PlanDescriptor
}

// NewCatalog creates a catalog from a price id -> descriptor map.
// The map is copied; later changes to it are not observed.
func NewCatalog(plans map[string]PlanDescriptor) (*Catalog, error) {
	c := &Catalog{plans: make(map[string]PlanDescriptor, len(plans))}
	for priceID, plan := range plans {
		if err := c.add(priceID, plan); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// MustCatalog is like NewCatalog but panics on invalid input.
// Intended for static catalogs in tests and examples.
func MustCatalog(plans map[string]PlanDescriptor) *Catalog {
	c, err := NewCatalog(plans)
	if err != nil {
		panic(err)
	}
	return c
}

// ParseCatalog parses the textual catalog form used in configuration:
//
//	price_abc=gold:3000,price_def=diamond:100000
//
// Whitespace around entries is ignored. An empty string yields an empty catalog.
func ParseCatalog(text string) (*Catalog, error) {
	c := &Catalog{plans: make(map[string]PlanDescriptor)}
	for _, entry := range strings.Split(text, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}

		priceID, plan, ok := strings.Cut(entry, "=")
		if !ok {
			return nil, fmt.Errorf("%w: entry %q: expected price_id=name:credits", ErrInvalidCatalog, entry)
		}
		name, creditsStr, ok := strings.Cut(plan, ":")
		if !ok {
			return nil, fmt.Errorf("%w: entry %q: expected name:credits", ErrInvalidCatalog, entry)
		}
		credits, err := strconv.Atoi(strings.TrimSpace(creditsStr))
		if err != nil {
			return nil, fmt.Errorf("%w: entry %q: credits: %v", ErrInvalidCatalog, entry, err)
		}

		if err := c.add(priceID, PlanDescriptor{Name: strings.TrimSpace(name), Credits: credits}); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func (c *Catalog) add(priceID string, plan PlanDescriptor) error {
	priceID = strings.TrimSpace(priceID)
	if priceID == "" {
		return fmt.Errorf("%w: empty price id", ErrInvalidCatalog)
	}
	if plan.Name == "" {
		return fmt.Errorf("%w: price %s: empty plan name", ErrInvalidCatalog, priceID)
	}
	if plan.Credits < 0 {
		return fmt.Errorf("%w: price %s: negative credits %d", ErrInvalidCatalog, priceID, plan.Credits)
	}
	if _, exists := c.plans[priceID]; exists {
		return fmt.Errorf("%w: duplicate price id %s", ErrInvalidCatalog, priceID)
	}
	c.plans[priceID] = plan
	return nil
}

// Lookup returns the plan for priceID, or DefaultPlan when priceID is empty or unknown
func (c *Catalog) Lookup(priceID string) PlanDescriptor {
	if c == nil || priceID == "" {
		return DefaultPlan()
	}
	if plan, ok := c.plans[priceID]; ok {
		return plan
	}
	return DefaultPlan()
}

// Len returns the number of configured prices
func (c *Catalog) Len() int {
	if c == nil {
		return 0
	}
	return len(c.plans)
}

// PriceIDs returns the configured price ids in sorted order
func (c *Catalog) PriceIDs() []string {
	if c == nil {
		return nil
	}
	ids := make([]string, 0, len(c.plans))
	for id := range c.plans {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// String renders the catalog in the ParseCatalog form
func (c *Catalog) String() string {
	ids := c.PriceIDs()
	parts := make([]string, 0, len(ids))
	for _, id := range ids {
		p := c.plans[id]
		parts = append(parts, fmt.Sprintf("%s=%s:%d", id, p.Name, p.Credits))
	}
	return strings.Join(parts, ",")
}
