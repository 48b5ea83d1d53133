package wordpress

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/dukex/conduit/pkg/models"
	"github.com/dukex/conduit/pkg/nodes/nodeutil"
	"github.com/dukex/conduit/pkg/protocol"
)

// CreatePost publishes a post to /wp-json/wp/v2/posts.
type CreatePost struct{}

func (CreatePost) Execute(ctx context.Context, ectx *protocol.ExecutionContext, input map[string]any) protocol.Result {
	site := nodeutil.Setting(ectx, "site_url")
	if site == "" {
		site = nodeutil.BaseURL(ectx, "")
	}

	if site == "" {
		return protocol.Failure(fmt.Errorf("%w: site_url", nodeutil.ErrMissingConfig))
	}

	if nodeutil.String(input, "title") == "" {
		return protocol.Failure(fmt.Errorf("%w: title", nodeutil.ErrMissingInput))
	}

	body := nodeutil.Compact(nodeutil.Pick(input, "title", "content", "excerpt", "status", "categories", "tags"))
	if _, ok := body["status"]; !ok {
		if status := ectx.ConfigString("status"); status != "" {
			body["status"] = status
		}
	}

	resp, err := nodeutil.CallJSON(ctx, ectx, http.MethodPost,
		strings.TrimRight(site, "/")+"/wp-json/wp/v2/posts", body, nil)
	if err != nil {
		return protocol.Failure(err)
	}

	post, err := nodeutil.DecodeObject(resp)
	if err != nil {
		return protocol.Failure(err)
	}

	title := post["title"]
	if rendered, ok := title.(map[string]any); ok {
		title = rendered["rendered"]
	}

	return protocol.Success(map[string]any{
		"id":     post["id"],
		"link":   post["link"],
		"status": post["status"],
		"title":  title,
	})
}

func passthrough(_ context.Context, ectx *protocol.ExecutionContext, input map[string]any) protocol.Result {
	if len(input) > 0 {
		return protocol.Success(input)
	}

	if ectx.Trigger != nil {
		return protocol.Success(models.CloneMap(ectx.Trigger.Data))
	}

	return protocol.Success(map[string]any{})
}
