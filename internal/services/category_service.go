package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"finanzen/internal/cache"
	"finanzen/internal/categorize"
	"finanzen/internal/core"
	"finanzen/internal/log"
	"finanzen/internal/storage"
	"finanzen/internal/validation"
)

const defaultSuggestLimit = 5

type CategoryService struct {
	store  *storage.Store
	cache  *cache.CategoryCache
	logger *log.Logger
}

// NewCategoryService creates the service; a nil cache disables caching.
func NewCategoryService(store *storage.Store, c *cache.CategoryCache, logger *log.Logger) *CategoryService {
	return &CategoryService{store: store, cache: c, logger: logger.WithComponent(log.ComponentCategory)}
}

// List returns the user's categories ordered by type and name.
func (s *CategoryService) List(ctx context.Context, userID string) ([]core.Category, error) {
	if s.cache != nil {
		if cats, ok := s.cache.Get(userID); ok {
			return cats, nil
		}
	}
	cats, err := s.store.ListCategories(ctx, userID)
	if err != nil {
		return nil, err
	}
	if cats == nil {
		cats = []core.Category{}
	}
	if s.cache != nil {
		s.cache.Put(userID, cats)
	}
	return cats, nil
}

// Tree nests subcategories below their parents.
func (s *CategoryService) Tree(ctx context.Context, userID string) ([]CategoryNode, error) {
	cats, err := s.List(ctx, userID)
	if err != nil {
		return nil, err
	}
	children := make(map[string][]core.Category)
	known := make(map[string]bool, len(cats))
	for _, c := range cats {
		known[c.ID] = true
	}
	var roots []core.Category
	for _, c := range cats {
		if c.ParentID != nil && known[*c.ParentID] {
			children[*c.ParentID] = append(children[*c.ParentID], c)
			continue
		}
		roots = append(roots, c)
	}

	var build func(cs []core.Category) []CategoryNode
	build = func(cs []core.Category) []CategoryNode {
		nodes := make([]CategoryNode, 0, len(cs))
		for _, c := range cs {
			nodes = append(nodes, CategoryNode{Category: c, Children: build(children[c.ID])})
		}
		return nodes
	}
	return build(roots), nil
}

// Get returns one category of the user.
func (s *CategoryService) Get(ctx context.Context, userID, id string) (core.Category, error) {
	return s.store.GetCategory(ctx, userID, id)
}

// Create stores a new category, optionally below an existing parent.
func (s *CategoryService) Create(ctx context.Context, userID string, req CategoryRequest) (core.Category, error) {
	c := core.Category{UserID: userID}
	if err := s.apply(ctx, &c, req); err != nil {
		return core.Category{}, err
	}
	if err := s.store.CreateCategory(ctx, &c); err != nil {
		return core.Category{}, err
	}
	s.invalidate(userID)
	s.logger.InfoContext(ctx, "Category created", log.FieldUserID, userID, log.FieldCategoryID, c.ID)
	return c, nil
}

// Update applies req with an optimistic version check. A parent that
// would create a cycle is rejected.
func (s *CategoryService) Update(ctx context.Context, userID, id string, req CategoryRequest) (core.Category, error) {
	if err := requireVersion(req.Version); err != nil {
		return core.Category{}, err
	}
	c, err := s.store.GetCategory(ctx, userID, id)
	if err != nil {
		return core.Category{}, err
	}
	if err := s.apply(ctx, &c, req); err != nil {
		return core.Category{}, err
	}
	c.Version = req.Version
	if err := s.store.UpdateCategory(ctx, &c); err != nil {
		return core.Category{}, err
	}
	s.invalidate(userID)
	return c, nil
}

// Delete refuses categories with subcategories. Transactions of the deleted
// category become uncategorized.
func (s *CategoryService) Delete(ctx context.Context, userID, id string) error {
	if _, err := s.store.GetCategory(ctx, userID, id); err != nil {
		return err
	}
	n, err := s.store.CountChildren(ctx, id)
	if err != nil {
		return err
	}
	if n > 0 {
		return fmt.Errorf("%w: category has %d subcategories", core.ErrConflict, n)
	}
	if err := s.store.DeleteCategory(ctx, userID, id); err != nil {
		return err
	}
	s.invalidate(userID)
	return nil
}

// Suggest ranks the user's categories for a booking text.
func (s *CategoryService) Suggest(ctx context.Context, userID string, req SuggestRequest) ([]categorize.Suggestion, error) {
	if err := validation.Struct(req); err != nil {
		return nil, err
	}
	m, err := s.Matcher(ctx, userID)
	if err != nil {
		return nil, err
	}
	direction := req.Type
	if direction == "" {
		direction = core.Expense
	}
	limit := req.Limit
	if limit == 0 {
		limit = defaultSuggestLimit
	}
	out := m.Suggest(req.Description, req.Counterparty, direction)
	if len(out) > limit {
		out = out[:limit]
	}
	if out == nil {
		out = []categorize.Suggestion{}
	}
	return out, nil
}

// Matcher builds a keyword matcher over the user's categories.
func (s *CategoryService) Matcher(ctx context.Context, userID string) (*categorize.Matcher, error) {
	cats, err := s.List(ctx, userID)
	if err != nil {
		return nil, err
	}
	return categorize.New(cats), nil
}

// classifier resolves the best matching category of a booking text.
type classifier struct {
	matcher *categorize.Matcher
	byID    map[string]core.Category
}

func (s *CategoryService) classifier(ctx context.Context, userID string) (*classifier, error) {
	cats, err := s.List(ctx, userID)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]core.Category, len(cats))
	for _, c := range cats {
		byID[c.ID] = c
	}
	return &classifier{matcher: categorize.New(cats), byID: byID}, nil
}

func (c *classifier) classify(description, counterparty string, typ core.TransactionType) *core.Category {
	best, ok := c.matcher.Best(description, counterparty, typ)
	if !ok {
		return nil
	}
	cat, ok := c.byID[best.CategoryID]
	if !ok {
		return nil
	}
	return &cat
}

// Names maps category ids to names.
func (s *CategoryService) Names(ctx context.Context, userID string) (map[string]string, error) {
	cats, err := s.List(ctx, userID)
	if err != nil {
		return nil, err
	}
	out := make(map[string]string, len(cats))
	for _, c := range cats {
		out[c.ID] = c.Name
	}
	return out, nil
}

func (s *CategoryService) invalidate(userID string) {
	if s.cache != nil {
		s.cache.Invalidate(userID)
	}
}

func (s *CategoryService) apply(ctx context.Context, c *core.Category, req CategoryRequest) error {
	if err := validation.Struct(req); err != nil {
		return err
	}
	vat, err := optionalVatRate(req.DefaultVatRate)
	if err != nil {
		return core.FieldError("defaultVatRate", err.Error())
	}

	name := strings.TrimSpace(req.Name)
	parentID := emptyToNil(req.ParentID)
	if parentID != nil {
		if err := s.checkParent(ctx, c, *parentID); err != nil {
			return err
		}
	}
	exists, err := s.store.SiblingNameExists(ctx, c.UserID, parentID, name, c.ID)
	if err != nil {
		return err
	}
	if exists {
		return fmt.Errorf("%w: a category named %q already exists at this level", core.ErrConflict, name)
	}

	c.Name = name
	c.Description = strings.TrimSpace(req.Description)
	c.Type = req.Type
	c.Color = req.Color
	c.Icon = req.Icon
	c.ParentID = parentID
	c.Keywords = normalizeKeywords(req.Keywords)
	c.DefaultVatRate = vat
	return c.Validate()
}

// checkParent requires the parent to belong to the user and not to be c or one of its descendants.
func (s *CategoryService) checkParent(ctx context.Context, c *core.Category, parentID string) error {
	if c.ID != "" && parentID == c.ID {
		return core.FieldError("parentId", "a category cannot be its own parent")
	}
	parent, err := s.store.GetCategory(ctx, c.UserID, parentID)
	if errors.Is(err, core.ErrNotFound) {
		return core.FieldError("parentId", "does not exist")
	}
	if err != nil {
		return err
	}
	if c.ID == "" {
		return nil
	}

	cats, err := s.store.ListCategories(ctx, c.UserID)
	if err != nil {
		return err
	}
	parents := make(map[string]string, len(cats))
	for _, other := range cats {
		if other.ParentID != nil {
			parents[other.ID] = *other.ParentID
		}
	}
	seen := map[string]bool{}
	for id := parent.ID; id != ""; id = parents[id] {
		if id == c.ID {
			return core.FieldError("parentId", "would create a cycle")
		}
		if seen[id] {
			break
		}
		seen[id] = true
	}
	return nil
}

func normalizeKeywords(in []string) []string {
	seen := make(map[string]bool)
	out := make([]string, 0, len(in))
	for _, k := range in {
		k = strings.Join(strings.Fields(strings.ToLower(k)), " ")
		if k == "" || seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
