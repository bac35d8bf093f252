package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"

	"liminal/internal/events"
	"liminal/internal/service"
	"liminal/internal/types"
)

// client talks to a running hub over its HTTP API.
type client struct {
	base string
	http *http.Client
}

func newClient(base string) *client {
	return &client{
		base: strings.TrimRight(base, "/"),
		// Spins play out inside the request, so allow well over the longest schedule.
		http: &http.Client{Timeout: 2 * time.Minute},
	}
}

func (c *client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	var envelope struct {
		Success bool            `json:"success"`
		Data    json.RawMessage `json:"data"`
		Error   string          `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return fmt.Errorf("decode response (status %d): %w", resp.StatusCode, err)
	}
	if !envelope.Success {
		return fmt.Errorf("hub returned %d: %s", resp.StatusCode, envelope.Error)
	}
	if out != nil && len(envelope.Data) > 0 {
		return json.Unmarshal(envelope.Data, out)
	}
	return nil
}

func buildSpinCommand() *cobra.Command {
	var mode, preset string

	cmd := &cobra.Command{
		Use:   "spin [option...]",
		Short: "Submit a spin and wait for the result",
		Example: `  liminal spin "Deep work" "Rest" "Learning"
  liminal spin --preset energy`,
		RunE: func(cmd *cobra.Command, args []string) error {
			body := map[string]interface{}{
				"options": splitOptions(args),
				"mode":    mode,
				"preset":  preset,
			}

			var resp types.SpinResponse
			if err := newClient(serverURL).do(cmd.Context(), http.MethodPost, "/api/spinner/spin", body, &resp); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "🎲 %s\n", resp.Result)
			fmt.Fprintf(out, "   spin %s  mode=%q  options=%d\n", resp.SpinID, resp.Mode, len(resp.AllOptions))
			return nil
		},
	}

	cmd.Flags().StringVarP(&mode, "mode", "m", "", "mode tag recorded with the spin")
	cmd.Flags().StringVarP(&preset, "preset", "p", "", "spin a preset option list (see 'presets')")
	return cmd
}

func buildHistoryCommand() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent spin results, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "/api/spinner/history"
			if limit > 0 {
				path += "?limit=" + strconv.Itoa(limit)
			}

			var recs []types.SpinRecord
			if err := newClient(serverURL).do(cmd.Context(), http.MethodGet, path, nil, &recs); err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "COMPLETED\tMODE\tRESULT\tDURATION\tID")
			for _, r := range recs {
				fmt.Fprintf(w, "%s\t%s\t%s\t%dms\t%s\n",
					r.Timestamp.Local().Format(time.DateTime), r.Mode, r.Result, r.DurationMs, r.ID)
			}
			return w.Flush()
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "number of records (server default when 0)")
	return cmd
}

func buildActiveCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "active",
		Short: "List spins that are still running",
		RunE: func(cmd *cobra.Command, args []string) error {
			var spins []types.ActiveSpin
			if err := newClient(serverURL).do(cmd.Context(), http.MethodGet, "/api/spinner/active", nil, &spins); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(spins) == 0 {
				fmt.Fprintln(out, "no active spins")
				return nil
			}
			w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tTICK\tHIGHLIGHT\tSTATE")
			for _, s := range spins {
				current := ""
				if s.CurrentHighlight < len(s.Options) {
					current = s.Options[s.CurrentHighlight]
				}
				fmt.Fprintf(w, "%s\t%d/%d\t%s\t%s\n", s.ID, s.SpinCount, s.TotalTicks, current, s.State)
			}
			return w.Flush()
		},
	}
}

func buildPresetsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "presets",
		Short: "List the built-in option presets",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			for _, p := range service.GetPresets() {
				fmt.Fprintf(out, "%s %-9s %s\n", p.Icon, p.ID, p.Description)
				fmt.Fprintf(out, "   %s\n", strings.Join(p.Options, " · "))
			}
			return nil
		},
	}
}

func buildWatchCommand() *cobra.Command {
	var count int

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Stream hub events as they happen",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return watch(ctx, serverURL, count, cmd.OutOrStdout())
		},
	}

	cmd.Flags().IntVarP(&count, "count", "n", 0, "exit after this many frames (0 streams forever)")
	return cmd
}

func wsURL(base string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse server url: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/ws"
	return u.String(), nil
}

func watch(ctx context.Context, base string, count int, out io.Writer) error {
	target, err := wsURL(base)
	if err != nil {
		return err
	}

	ws, _, err := websocket.DefaultDialer.DialContext(ctx, target, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", target, err)
	}
	defer ws.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		<-ctx.Done()
		ws.Close()
	}()

	for seen := 0; count == 0 || seen < count; seen++ {
		_, data, err := ws.ReadMessage()
		if err != nil {
			if ctx.Err() != nil || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return fmt.Errorf("read: %w", err)
		}
		fmt.Fprintln(out, describe(data))
	}
	return nil
}

// describe renders one frame as a single human-readable line.
func describe(frame []byte) string {
	typ, payload, err := events.Decode(frame)
	if err != nil {
		return string(frame)
	}

	switch typ {
	case events.Connected:
		var p events.ConnectedPayload
		_ = json.Unmarshal(payload, &p)
		return fmt.Sprintf("connected  session=%s", p.SessionID)
	case events.SpinStart:
		var p events.SpinStartPayload
		_ = json.Unmarshal(payload, &p)
		return fmt.Sprintf("start      %s  %s", p.SpinID, strings.Join(p.Options, " | "))
	case events.SpinTick:
		var p events.SpinTickPayload
		_ = json.Unmarshal(payload, &p)
		return fmt.Sprintf("tick       %s  %3.0f%%  ▶ %s", p.SpinID, p.Progress*100, p.CurrentOption)
	case events.SpinComplete:
		var p events.SpinCompletePayload
		_ = json.Unmarshal(payload, &p)
		return fmt.Sprintf("complete   %s  🎲 %s (%dms)", p.SpinID, p.Result, p.DurationMs)
	default:
		return fmt.Sprintf("%-10s %s", typ, payload)
	}
}
