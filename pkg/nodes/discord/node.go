package discord

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/dukex/conduit/pkg/nodes/nodeutil"
	"github.com/dukex/conduit/pkg/protocol"
)

// SendMessage calls POST /channels/{channel_id}/messages.
type SendMessage struct{}

func (SendMessage) Execute(ctx context.Context, ectx *protocol.ExecutionContext, input map[string]any) protocol.Result {
	channel, err := nodeutil.RequireSetting(ectx, "channel_id")
	if err != nil {
		return protocol.Failure(err)
	}

	if nodeutil.String(input, "content") == "" {
		return protocol.Failure(fmt.Errorf("%w: content", nodeutil.ErrMissingInput))
	}

	endpoint := fmt.Sprintf("%s/channels/%s/messages", nodeutil.BaseURL(ectx, APIBase), url.PathEscape(channel))
	body := nodeutil.Compact(nodeutil.Pick(input, "content", "tts", "embeds"))

	resp, err := nodeutil.CallJSON(ctx, ectx, http.MethodPost, endpoint, body, nil)
	if err != nil {
		return protocol.Failure(err)
	}

	msg, err := nodeutil.DecodeObject(resp)
	if err != nil {
		return protocol.Failure(err)
	}

	return protocol.Success(nodeutil.Pick(msg, "id", "channel_id", "content", "timestamp"))
}
