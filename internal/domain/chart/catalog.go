package chart

import (
	"context"
	"fmt"
	"sync"

	"github.com/kyodo-analytics/finmap/internal/domain/normalizer"
)

// Catalog is an in-memory snapshot of the standard chart, indexed for the
// lookups the matching pipeline performs on every row. It is constructed
// explicitly and refreshed explicitly; nothing mutates it between refreshes.
type Catalog struct {
	repo Repository

	mu             sync.RWMutex
	accounts       map[StatementType][]*StandardAccount
	byCode         map[StatementType]map[string]*StandardAccount
	byName         map[StatementType]map[string]*StandardAccount
	byNormalized   map[StatementType]map[string]*StandardAccount
	childrenByCode map[StatementType]map[string][]*StandardAccount
}

// NewCatalog builds an empty catalog; call Refresh before first use
func NewCatalog(repo Repository) *Catalog {
	return &Catalog{repo: repo}
}

// Refresh reloads every statement type's accounts from the repository and
// rebuilds the lookup indexes. The swap is atomic with respect to readers.
func (c *Catalog) Refresh(ctx context.Context) error {
	accounts := make(map[StatementType][]*StandardAccount, len(AllStatementTypes))
	byCode := make(map[StatementType]map[string]*StandardAccount, len(AllStatementTypes))
	byName := make(map[StatementType]map[string]*StandardAccount, len(AllStatementTypes))
	byNormalized := make(map[StatementType]map[string]*StandardAccount, len(AllStatementTypes))
	children := make(map[StatementType]map[string][]*StandardAccount, len(AllStatementTypes))

	for _, st := range AllStatementTypes {
		list, err := c.repo.ListAccounts(ctx, st)
		if err != nil {
			return fmt.Errorf("failed to load %s chart: %w", st, err)
		}

		accounts[st] = list
		byCode[st] = make(map[string]*StandardAccount, len(list))
		byName[st] = make(map[string]*StandardAccount, len(list))
		byNormalized[st] = make(map[string]*StandardAccount, len(list))
		children[st] = make(map[string][]*StandardAccount)

		for _, a := range list {
			byCode[st][a.Code] = a
			byName[st][a.Name] = a
			if n := normalizer.MatchNormalize(a.Name); n != "" {
				// first account wins on normalized collisions; the chart
				// orders by display_order so the primary entry comes first
				if _, ok := byNormalized[st][n]; !ok {
					byNormalized[st][n] = a
				}
			}
			if a.ParentCode != nil && *a.ParentCode != "" {
				children[st][*a.ParentCode] = append(children[st][*a.ParentCode], a)
			}
		}
	}

	c.mu.Lock()
	c.accounts = accounts
	c.byCode = byCode
	c.byName = byName
	c.byNormalized = byNormalized
	c.childrenByCode = children
	c.mu.Unlock()

	return nil
}

// AccountsFor returns all accounts of a statement type in display order
func (c *Catalog) AccountsFor(st StatementType) []*StandardAccount {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.accounts[st]
}

// ByCode looks up an account by its code
func (c *Catalog) ByCode(st StatementType, code string) (*StandardAccount, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	a, ok := c.byCode[st][code]
	return a, ok
}

// ByName looks up an account by its exact chart name
func (c *Catalog) ByName(st StatementType, name string) (*StandardAccount, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	a, ok := c.byName[st][name]
	return a, ok
}

// ByNormalizedName looks up an account by the match-normalized form of its name
func (c *Catalog) ByNormalizedName(st StatementType, normalized string) (*StandardAccount, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	a, ok := c.byNormalized[st][normalized]
	return a, ok
}

// Children returns the direct children of a parent code
func (c *Catalog) Children(st StatementType, parentCode string) []*StandardAccount {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.childrenByCode[st][parentCode]
}

// Size reports how many accounts are loaded for a statement type
func (c *Catalog) Size(st StatementType) int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.accounts[st])
}
