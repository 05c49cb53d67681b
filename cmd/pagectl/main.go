package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strings"

	"pagedraft/internal/client"
	"pagedraft/internal/config"
	"pagedraft/internal/editor"
	"pagedraft/internal/session"

	"github.com/spf13/cobra"
)

var (
	rootCmd = &cobra.Command{
		Use:          "pagectl",
		Short:        "Edit landing page drafts against the pagedraft API",
		SilenceUsage: true,
	}
	apiURL     string
	editorName string
	noStash    bool
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cfg := config.Load()
	rootCmd.PersistentFlags().StringVar(&apiURL, "api", cfg.APIURL, "Base URL of the pagedraft API")
	rootCmd.PersistentFlags().StringVarP(&editorName, "editor", "e", os.Getenv("USER"), "Name saves and publishes are attributed to")
	rootCmd.PersistentFlags().BoolVar(&noStash, "no-stash", false, "Do not stash unsaved drafts in Redis")

	rootCmd.AddCommand(newCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(setCmd)
	rootCmd.AddCommand(appendCmd)
	rootCmd.AddCommand(removeCmd)
	rootCmd.AddCommand(toggleCmd)
	rootCmd.AddCommand(reorderCmd)
	rootCmd.AddCommand(publishCmd)
	rootCmd.AddCommand(regenerateCmd)
	rootCmd.AddCommand(recoverCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(searchCmd)
}

func newClient() *client.Client {
	return client.New(apiURL, client.WithEditor(editorName))
}

// workspace is one editing session plus the resources it holds.
type workspace struct {
	client  *client.Client
	session *editor.Session
	stash   *session.RedisStash
}

// openWorkspace starts an editing session on pageID, or on a new page when
// pageID is empty.
func openWorkspace(ctx context.Context, pageID string, opts ...editor.Option) (*workspace, error) {
	cfg := config.Load()
	c := newClient()
	ws := &workspace{client: c}

	base := []editor.Option{
		editor.WithDelay(cfg.AutosaveDelay),
		editor.WithMaxFailures(cfg.AutosaveMaxFailures),
		editor.WithContext(ctx),
	}
	if !noStash && strings.TrimSpace(cfg.RedisURL) != "" {
		stash, err := session.NewRedisStash(cfg.RedisURL, cfg.StashTTL)
		if err != nil {
			log.Printf("pagectl: draft stash unavailable: %v", err)
		} else {
			ws.stash = stash
			base = append(base, editor.WithStash(stash))
		}
	}
	if pageID != "" {
		rec, err := c.Get(ctx, pageID)
		if err != nil {
			ws.close()
			return nil, fmt.Errorf("load page %s: %w", pageID, err)
		}
		base = append(base, editor.WithRecord(rec))
	}

	ws.session = editor.New(c, c, append(base, opts...)...)
	return ws, nil
}

func (w *workspace) close() {
	if w.session != nil {
		w.session.Close()
	}
	if w.stash != nil {
		_ = w.stash.Close()
	}
}

// save flushes both save streams and reports the resulting page id.
func (w *workspace) save(ctx context.Context) error {
	if err := w.session.Save(ctx); err != nil {
		return err
	}
	fmt.Printf("saved %s\n", w.session.PageID())
	return nil
}

func printJSON(value any) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(value)
}

// parseValue reads a command-line field value. Valid JSON (numbers, booleans,
// quoted strings, objects, arrays) is decoded; anything else is a plain string.
func parseValue(raw string) any {
	var value any
	if err := json.Unmarshal([]byte(raw), &value); err == nil {
		return value
	}
	return raw
}
