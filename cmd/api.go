package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"
	"github.com/nagiyu/niconico-mylist-assistant/internal/models"
	"github.com/nagiyu/niconico-mylist-assistant/internal/services"
	"github.com/nagiyu/niconico-mylist-assistant/internal/shared"
	"github.com/urfave/cli/v3"
	"golang.org/x/oauth2"
)

// client returns a music API client carrying the saved token.
func (r *Runner) client(ctx context.Context) (*services.MusicClient, oauth2.TokenSource, error) {
	ts, err := r.tokenSource(ctx)
	if err != nil {
		return nil, nil, err
	}
	return services.NewMusicClient(r.config.Client.APIURL, r.httpClient, ts), ts, nil
}

func (r *Runner) writeResponse(cmd *cli.Command, resp *services.APIResponse) error {
	if !resp.OK() {
		return fmt.Errorf("%w: status %d, body: %s", shared.ErrAPIRequest, resp.StatusCode, string(resp.Body))
	}
	if resp.IsJSON {
		return r.writeJSON(resp.JSONData, cmd.Bool("pretty"))
	}
	r.output.Write(resp.Body)
	r.output.Write([]byte("\n"))
	return nil
}

// APIGet makes a direct GET request to the API
func (r *Runner) APIGet(ctx context.Context, cmd *cli.Command) error {
	path, err := requireArg(cmd, "path")
	if err != nil {
		return err
	}
	client, _, err := r.client(ctx)
	if err != nil {
		return err
	}

	r.logger.Info("GET request", "path", path)
	resp, err := client.Get(ctx, path)
	if err != nil {
		return fmt.Errorf("%w: %v", shared.ErrAPIRequest, err)
	}
	return r.writeResponse(cmd, resp)
}

// APIPost makes a direct POST request to the API
func (r *Runner) APIPost(ctx context.Context, cmd *cli.Command) error {
	path, err := requireArg(cmd, "path")
	if err != nil {
		return err
	}
	data := cmd.String("data")
	if !json.Valid([]byte(data)) {
		return fmt.Errorf("%w: data is not valid JSON", shared.ErrInvalidInput)
	}
	client, _, err := r.client(ctx)
	if err != nil {
		return err
	}

	r.logger.Info("POST request", "path", path)
	resp, err := client.Post(ctx, path, []byte(data))
	if err != nil {
		return fmt.Errorf("%w: %v", shared.ErrAPIRequest, err)
	}
	return r.writeResponse(cmd, resp)
}

func (r *Runner) writeNotification(n models.Notification) {
	r.writePlain("%s  %s\n", n.CreatedAt, n.Message)
	if n.JobID != "" {
		r.writePlain("    job: %s\n", n.JobID)
	}
	for _, id := range n.FailedIDs {
		r.writePlain("    failed: %s\n", id)
	}
}

// Notifications prints the inbox, or with --follow streams new notifications until interrupted.
func (r *Runner) Notifications(ctx context.Context, cmd *cli.Command) error {
	client, ts, err := r.client(ctx)
	if err != nil {
		return err
	}

	if cmd.Bool("follow") {
		return r.followNotifications(ctx, ts)
	}

	resp, err := client.Get(ctx, "/api/notifications")
	if err != nil {
		return fmt.Errorf("%w: %v", shared.ErrAPIRequest, err)
	}
	if !resp.OK() {
		return services.StatusError(resp.StatusCode, resp.Body)
	}

	var notes []models.Notification
	if err := json.Unmarshal(resp.Body, &notes); err != nil {
		return fmt.Errorf("%w: failed to decode notifications: %v", shared.ErrAPIRequest, err)
	}

	return r.emit(cmd, notes, func() error {
		if len(notes) == 0 {
			return r.writePlain("No notifications\n")
		}
		for _, n := range notes {
			r.writeNotification(n)
		}
		return nil
	})
}

// streamURL turns the API base URL into the websocket notification endpoint.
func streamURL(base string) string {
	base = strings.TrimRight(base, "/")
	switch {
	case strings.HasPrefix(base, "https://"):
		base = "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		base = "ws://" + strings.TrimPrefix(base, "http://")
	}
	return base + "/api/notifications/ws"
}

func (r *Runner) followNotifications(ctx context.Context, ts oauth2.TokenSource) error {
	token, err := ts.Token()
	if err != nil {
		return fmt.Errorf("%w: %v", shared.ErrNotAuthenticated, err)
	}

	header := http.Header{}
	header.Set("Authorization", "Bearer "+token.AccessToken)

	url := streamURL(r.config.Client.APIURL)
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, url, header)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusUnauthorized {
			return fmt.Errorf("%w: run 'nma auth login' again", shared.ErrUnauthorized)
		}
		return fmt.Errorf("%w: %v", shared.ErrServiceUnavailable, err)
	}
	defer conn.Close()

	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	r.logger.Info("following notifications", "url", url)
	for {
		var note models.Notification
		if err := conn.ReadJSON(&note); err != nil {
			if ctx.Err() != nil || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return fmt.Errorf("%w: notification stream: %v", shared.ErrServiceUnavailable, err)
		}
		r.writeNotification(note)
	}
}
