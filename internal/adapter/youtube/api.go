package youtube

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	yt "google.golang.org/api/youtube/v3"

	"github.com/kapu/stream-chess-vote-go/internal/adapter"
)

var (
	ErrChannelNotFound = errors.New("youtube: channel not found")
	ErrNotLive         = errors.New("youtube: no live stream found for this channel")
	ErrNoChat          = errors.New("youtube: live chat is not available for this stream")
	ErrQuotaExceeded   = errors.New("youtube: quota exceeded or access denied")
)

// page is one fetched slice of live chat. The server dictates both the
// continuation token and the next poll delay.
type page struct {
	messages  []adapter.ChatEvent
	nextToken string
	interval  time.Duration
}

// chatAPI is the slice of the YouTube Data API the adapter needs.
type chatAPI interface {
	ChannelID(ctx context.Context, handle string) (string, error)
	LiveVideoID(ctx context.Context, channelID string) (string, error)
	LiveChatID(ctx context.Context, videoID string) (string, error)
	Messages(ctx context.Context, liveChatID, pageToken string) (*page, error)
}

type dataAPI struct {
	svc *yt.Service
}

func newDataAPI(ctx context.Context, apiKey string) (*dataAPI, error) {
	svc, err := yt.NewService(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("youtube service: %w", err)
	}
	return &dataAPI{svc: svc}, nil
}

func (a *dataAPI) ChannelID(ctx context.Context, handle string) (string, error) {
	resp, err := a.svc.Channels.List([]string{"id"}).ForHandle(handle).Context(ctx).Do()
	if err != nil {
		return "", wrapAPIErr(err)
	}
	if len(resp.Items) == 0 {
		return "", ErrChannelNotFound
	}
	return resp.Items[0].Id, nil
}

func (a *dataAPI) LiveVideoID(ctx context.Context, channelID string) (string, error) {
	resp, err := a.svc.Search.List([]string{"snippet"}).
		ChannelId(channelID).
		EventType("live").
		Type("video").
		Context(ctx).Do()
	if err != nil {
		return "", wrapAPIErr(err)
	}
	if len(resp.Items) == 0 || resp.Items[0].Id == nil || resp.Items[0].Id.VideoId == "" {
		return "", ErrNotLive
	}
	return resp.Items[0].Id.VideoId, nil
}

func (a *dataAPI) LiveChatID(ctx context.Context, videoID string) (string, error) {
	resp, err := a.svc.Videos.List([]string{"liveStreamingDetails"}).Id(videoID).Context(ctx).Do()
	if err != nil {
		return "", wrapAPIErr(err)
	}
	if len(resp.Items) == 0 || resp.Items[0].LiveStreamingDetails == nil ||
		resp.Items[0].LiveStreamingDetails.ActiveLiveChatId == "" {
		return "", ErrNoChat
	}
	return resp.Items[0].LiveStreamingDetails.ActiveLiveChatId, nil
}

func (a *dataAPI) Messages(ctx context.Context, liveChatID, pageToken string) (*page, error) {
	call := a.svc.LiveChatMessages.List(liveChatID, []string{"snippet", "authorDetails"}).Context(ctx)
	if pageToken != "" {
		call = call.PageToken(pageToken)
	}
	resp, err := call.Do()
	if err != nil {
		return nil, wrapAPIErr(err)
	}
	p := &page{
		nextToken: resp.NextPageToken,
		interval:  time.Duration(resp.PollingIntervalMillis) * time.Millisecond,
	}
	for _, item := range resp.Items {
		if item.Snippet == nil || item.AuthorDetails == nil {
			continue
		}
		user := item.AuthorDetails.DisplayName
		text := item.Snippet.DisplayMessage
		if user == "" || text == "" {
			continue
		}
		p.messages = append(p.messages, adapter.ChatEvent{User: user, Text: text})
	}
	return p, nil
}

func wrapAPIErr(err error) error {
	var ge *googleapi.Error
	if errors.As(err, &ge) && ge.Code == http.StatusForbidden {
		return fmt.Errorf("%w: %v", ErrQuotaExceeded, err)
	}
	return err
}
