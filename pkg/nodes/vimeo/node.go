package vimeo

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/dukex/conduit/pkg/nodes/nodeutil"
	"github.com/dukex/conduit/pkg/protocol"
)

// UpdateVideo calls PATCH /videos/{video_id}.
type UpdateVideo struct{}

func (UpdateVideo) Execute(ctx context.Context, ectx *protocol.ExecutionContext, input map[string]any) protocol.Result {
	id := nodeutil.String(input, "video_id")
	if id == "" {
		id = ectx.ConfigString("video_id")
	}

	if id == "" {
		return protocol.Failure(fmt.Errorf("%w: video_id", nodeutil.ErrMissingInput))
	}

	body := nodeutil.Compact(nodeutil.Pick(input, "name", "description"))
	if privacy := nodeutil.String(input, "privacy"); privacy != "" {
		body["privacy"] = map[string]any{"view": privacy}
	}

	header := http.Header{}
	header.Set("Accept", Accept)

	endpoint := fmt.Sprintf("%s/videos/%s", nodeutil.BaseURL(ectx, APIBase), url.PathEscape(id))

	resp, err := nodeutil.CallJSON(ctx, ectx, http.MethodPatch, endpoint, body, header)
	if err != nil {
		return protocol.Failure(err)
	}

	video, err := nodeutil.DecodeObject(resp)
	if err != nil {
		return protocol.Failure(err)
	}

	return protocol.Success(nodeutil.Pick(video, "uri", "name", "description", "link"))
}
