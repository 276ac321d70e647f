package adminapi

import (
	"context"
	"strings"

	"connectrpc.com/connect"
)

// Client calls DraftAdminService with the JSON codec.
type Client struct {
	startDraft    *connect.Client[StartDraftRequest, StartDraftResponse]
	getDraftState *connect.Client[GetDraftStateRequest, GetDraftStateResponse]
	listEvents    *connect.Client[ListEventsRequest, ListEventsResponse]
	setWatchlist  *connect.Client[SetWatchlistRequest, SetWatchlistResponse]
}

// NewClient constructs a client for the service at baseURL. token, when set,
// is sent as a bearer token on every call.
func NewClient(httpClient connect.HTTPClient, baseURL, token string, opts ...connect.ClientOption) *Client {
	baseURL = strings.TrimRight(baseURL, "/")
	opts = append([]connect.ClientOption{
		connect.WithCodec(jsonCodec{}),
		connect.WithInterceptors(NewTokenInterceptor(token)),
	}, opts...)

	return &Client{
		startDraft: connect.NewClient[StartDraftRequest, StartDraftResponse](
			httpClient, baseURL+DraftAdminServiceStartDraftProcedure, opts...),
		getDraftState: connect.NewClient[GetDraftStateRequest, GetDraftStateResponse](
			httpClient, baseURL+DraftAdminServiceGetDraftStateProcedure, opts...),
		listEvents: connect.NewClient[ListEventsRequest, ListEventsResponse](
			httpClient, baseURL+DraftAdminServiceListEventsProcedure, opts...),
		setWatchlist: connect.NewClient[SetWatchlistRequest, SetWatchlistResponse](
			httpClient, baseURL+DraftAdminServiceSetWatchlistProcedure, opts...),
	}
}

func (c *Client) StartDraft(ctx context.Context, req *StartDraftRequest) (*StartDraftResponse, error) {
	resp, err := c.startDraft.CallUnary(ctx, connect.NewRequest(req))
	if err != nil {
		return nil, err
	}
	return resp.Msg, nil
}

func (c *Client) GetDraftState(ctx context.Context, req *GetDraftStateRequest) (*GetDraftStateResponse, error) {
	resp, err := c.getDraftState.CallUnary(ctx, connect.NewRequest(req))
	if err != nil {
		return nil, err
	}
	return resp.Msg, nil
}

func (c *Client) ListEvents(ctx context.Context, req *ListEventsRequest) (*ListEventsResponse, error) {
	resp, err := c.listEvents.CallUnary(ctx, connect.NewRequest(req))
	if err != nil {
		return nil, err
	}
	return resp.Msg, nil
}

func (c *Client) SetWatchlist(ctx context.Context, req *SetWatchlistRequest) (*SetWatchlistResponse, error) {
	resp, err := c.setWatchlist.CallUnary(ctx, connect.NewRequest(req))
	if err != nil {
		return nil, err
	}
	return resp.Msg, nil
}
