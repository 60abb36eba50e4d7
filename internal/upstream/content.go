package upstream

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"tangled.org/booru.social/booru/internal/moderation"
)

// ContentClient implements moderation.ContentStore against the content
// service's HTTP API:
//
//	GET  /content/{id}             -> {"id", "visibility", "tags"}
//	PUT  /content/{id}/visibility  <- {"visibility"}
//	POST /content/{id}/tags        <- {"add", "remove"}
type ContentClient struct {
	c caller
}

var _ moderation.ContentStore = (*ContentClient)(nil)

// ContentClientOptions configures a ContentClient.
type ContentClientOptions struct {
	BaseURL    string
	Token      string
	Timeout    time.Duration
	HTTPClient *http.Client
}

// NewContentClient creates a client for the content service.
func NewContentClient(opts ContentClientOptions) (*ContentClient, error) {
	if _, err := url.ParseRequestURI(opts.BaseURL); err != nil {
		return nil, fmt.Errorf("invalid content service url %q: %w", opts.BaseURL, err)
	}
	return &ContentClient{c: newCaller("content", opts.BaseURL, opts.HTTPClient, opts.Timeout, opts.Token)}, nil
}

type contentResponse struct {
	ID         int64                 `json:"id"`
	Visibility moderation.Visibility `json:"visibility"`
	Tags       []int64               `json:"tags"`
}

func contentPath(id int64, suffix string) string {
	return "/content/" + strconv.FormatInt(id, 10) + suffix
}

func (cc *ContentClient) get(ctx context.Context, op string, id int64) (*contentResponse, error) {
	var out contentResponse
	if err := cc.c.do(ctx, op, http.MethodGet, contentPath(id, ""), nil, &out); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, fmt.Errorf("content %d: %w", id, moderation.ErrNotFound)
		}
		return nil, err
	}
	return &out, nil
}

func (cc *ContentClient) Exists(ctx context.Context, id int64) (bool, error) {
	_, err := cc.get(ctx, "exists", id)
	if errors.Is(err, moderation.ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}

func (cc *ContentClient) Visibility(ctx context.Context, id int64) (moderation.Visibility, error) {
	item, err := cc.get(ctx, "get_visibility", id)
	if err != nil {
		return "", err
	}
	if !item.Visibility.Valid() {
		return "", fmt.Errorf("content %d: service returned unknown visibility %q", id, item.Visibility)
	}
	return item.Visibility, nil
}

func (cc *ContentClient) Tags(ctx context.Context, id int64) ([]int64, error) {
	item, err := cc.get(ctx, "get_tags", id)
	if err != nil {
		return nil, err
	}
	return item.Tags, nil
}

func (cc *ContentClient) SetVisibility(ctx context.Context, id int64, status moderation.Visibility) error {
	body := struct {
		Visibility moderation.Visibility `json:"visibility"`
	}{status}
	err := cc.c.do(ctx, "set_visibility", http.MethodPut, contentPath(id, "/visibility"), body, nil)
	if errors.Is(err, ErrNotFound) {
		return fmt.Errorf("content %d: %w", id, moderation.ErrNotFound)
	}
	return err
}

func (cc *ContentClient) MutateTags(ctx context.Context, id int64, add, remove []int64) error {
	body := struct {
		Add    []int64 `json:"add"`
		Remove []int64 `json:"remove"`
	}{nonNil(add), nonNil(remove)}
	err := cc.c.do(ctx, "mutate_tags", http.MethodPost, contentPath(id, "/tags"), body, nil)
	if errors.Is(err, ErrNotFound) {
		return fmt.Errorf("content %d: %w", id, moderation.ErrNotFound)
	}
	return err
}

func nonNil(ids []int64) []int64 {
	if ids == nil {
		return []int64{}
	}
	return ids
}
