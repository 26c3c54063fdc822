package gallery

import (
	"context"
	"io"
)

// PromptController drives the prompt library against a PromptStore.
type PromptController struct {
	store  PromptStore
	logger Logger

	filter  PromptFilter
	current *PromptList
}

func NewPromptController(store PromptStore, logger Logger) *PromptController {
	if logger == nil {
		logger = NewNopLogger()
	}
	return &PromptController{
		store:   store,
		logger:  logger,
		current: &PromptList{Prompts: []PromptRecord{}, Categories: []string{}, Tags: []string{}},
	}
}

func (c *PromptController) Current() *PromptList {
	return c.current
}

func (c *PromptController) Refresh(ctx context.Context) (*PromptList, error) {
	list, err := c.store.ListPrompts(ctx, c.filter)
	if err != nil {
		return nil, err
	}
	c.current = list
	return list, nil
}

func (c *PromptController) SetFilter(ctx context.Context, f PromptFilter) (*PromptList, error) {
	c.filter = f
	return c.Refresh(ctx)
}

func (c *PromptController) Create(ctx context.Context, in PromptInput) (*PromptRecord, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	return c.store.CreatePrompt(ctx, in)
}

func (c *PromptController) Update(ctx context.Context, id string, p PromptPatch) (*PromptRecord, error) {
	if err := ValidatePromptPatch(p); err != nil {
		return nil, err
	}
	return c.store.UpdatePrompt(ctx, id, p)
}

// ToggleFavorite flips the favorite flag and returns the updated prompt.
func (c *PromptController) ToggleFavorite(ctx context.Context, id string) (*PromptRecord, error) {
	var current *PromptRecord
	for i := range c.current.Prompts {
		if c.current.Prompts[i].ID == id {
			current = &c.current.Prompts[i]
		}
	}
	if current == nil {
		all, err := c.store.ListPrompts(ctx, PromptFilter{})
		if err != nil {
			return nil, err
		}
		for i := range all.Prompts {
			if all.Prompts[i].ID == id {
				current = &all.Prompts[i]
			}
		}
	}
	if current == nil {
		return nil, ErrNotFound
	}

	fav := !current.Favorite
	return c.store.UpdatePrompt(ctx, id, PromptPatch{Favorite: &fav})
}

// Use records one use of a prompt and returns its content.
func (c *PromptController) Use(ctx context.Context, id string) (*PromptRecord, error) {
	return c.store.UsePrompt(ctx, id)
}

func (c *PromptController) Delete(ctx context.Context, ids []string) (int, error) {
	n, err := c.store.DeletePrompts(ctx, ids)
	if err != nil {
		return 0, err
	}
	c.logger.Info("prompts deleted", "count", n)
	return n, nil
}

// Export writes the whole library to w.
func (c *PromptController) Export(ctx context.Context, w io.Writer, format string) error {
	doc, err := c.store.ExportPrompts(ctx)
	if err != nil {
		return err
	}
	return EncodePrompts(w, doc, format)
}

// Import reads a library file and merges it into, or replaces, the library.
func (c *PromptController) Import(ctx context.Context, r io.Reader, format string, merge bool) (int, error) {
	prompts, err := DecodePrompts(r, format)
	if err != nil {
		return 0, err
	}
	n, err := c.store.ImportPrompts(ctx, prompts, merge)
	if err != nil {
		return 0, err
	}
	c.logger.Info("prompts imported", "count", n, "merge", merge)
	return n, nil
}
