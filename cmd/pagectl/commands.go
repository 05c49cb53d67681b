package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"pagedraft/internal/document"
	"pagedraft/internal/editor"

	"github.com/spf13/cobra"
)

var (
	newPrompt   string
	newGenerate bool
	historySize int
	listLimit   int
	searchLimit int
)

func init() {
	newCmd.Flags().StringVarP(&newPrompt, "prompt", "p", "", "Business description the page is written for")
	newCmd.Flags().BoolVarP(&newGenerate, "generate", "g", false, "Generate content from the prompt before saving")
	listCmd.Flags().IntVarP(&listLimit, "limit", "n", 50, "Number of pages to list")
	historyCmd.Flags().IntVarP(&historySize, "limit", "n", 20, "Number of revisions to list")
	searchCmd.Flags().IntVarP(&searchLimit, "limit", "n", 20, "Number of results")
}

var newCmd = &cobra.Command{
	Use:   "new",
	Short: "Create a page, optionally generating its content",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		ws, err := openWorkspace(ctx, "", editor.WithPrompt(newPrompt))
		if err != nil {
			return err
		}
		defer ws.close()

		if newGenerate {
			if err := ws.session.Regenerate(ctx); err != nil {
				return err
			}
		}
		return ws.save(ctx)
	},
}

var showCmd = &cobra.Command{
	Use:   "show <page-id>",
	Short: "Print a stored page",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rec, err := newClient().Get(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return printJSON(rec)
	},
}

var setCmd = &cobra.Command{
	Use:   "set <page-id> <path> <value>",
	Short: "Commit one field (prefix style paths with style:)",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(cmd.Context(), args[0], func(ctx context.Context, ws *workspace) error {
			err := ws.session.CommitField(ctx, args[1], parseValue(args[2]))
			var invalid *document.ValidationError
			if errors.As(err, &invalid) {
				return err
			}
			if err != nil {
				// The edit is still in the session; fall back to a whole-page save.
				for _, entry := range ws.session.DirtyFields() {
					fmt.Printf("unsaved %s: %v -> %v\n", entry.Path, entry.Original, entry.Current)
				}
				if saveErr := ws.save(ctx); saveErr != nil {
					return errors.Join(err, saveErr)
				}
				return nil
			}
			fmt.Printf("set %s on %s\n", args[1], ws.session.PageID())
			return nil
		})
	},
}

var appendCmd = &cobra.Command{
	Use:   "append <page-id> <path> <json-value>",
	Short: "Append an item to a list field",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(cmd.Context(), args[0], func(ctx context.Context, ws *workspace) error {
			if err := ws.session.AppendItem(args[1], parseValue(args[2])); err != nil {
				return err
			}
			return ws.save(ctx)
		})
	},
}

var removeCmd = &cobra.Command{
	Use:   "remove <page-id> <path> <index>",
	Short: "Remove an item from a list field",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		index, err := strconv.Atoi(args[2])
		if err != nil {
			return fmt.Errorf("index must be a number: %w", err)
		}
		return withSession(cmd.Context(), args[0], func(ctx context.Context, ws *workspace) error {
			if err := ws.session.RemoveItem(args[1], index); err != nil {
				return err
			}
			return ws.save(ctx)
		})
	},
}

var toggleCmd = &cobra.Command{
	Use:   "toggle <page-id> <section>",
	Short: "Show or hide a section",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(cmd.Context(), args[0], func(ctx context.Context, ws *workspace) error {
			visible, err := ws.session.ToggleSectionVisibility(args[1])
			if err != nil {
				return err
			}
			if err := ws.save(ctx); err != nil {
				return err
			}
			fmt.Printf("%s visible: %t\n", args[1], visible)
			return nil
		})
	},
}

var reorderCmd = &cobra.Command{
	Use:   "reorder <page-id> <section> <index>",
	Short: "Move a section to a position (hero always stays first)",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		index, err := strconv.Atoi(args[2])
		if err != nil {
			return fmt.Errorf("index must be a number: %w", err)
		}
		return withSession(cmd.Context(), args[0], func(ctx context.Context, ws *workspace) error {
			if err := ws.session.ReorderSections(args[1], index); err != nil {
				return err
			}
			if err := ws.save(ctx); err != nil {
				return err
			}
			fmt.Println(strings.Join(ws.session.State().Sections.RenderOrder, " > "))
			return nil
		})
	},
}

var publishCmd = &cobra.Command{
	Use:   "publish <page-id>",
	Short: "Save and publish a page",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(cmd.Context(), args[0], func(ctx context.Context, ws *workspace) error {
			if err := ws.session.Publish(ctx); err != nil {
				return err
			}
			fmt.Printf("published %s\n", ws.session.PageID())
			return nil
		})
	},
}

var regenerateCmd = &cobra.Command{
	Use:   "regenerate <page-id>",
	Short: "Regenerate a page from its original prompt",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(cmd.Context(), args[0], func(ctx context.Context, ws *workspace) error {
			if err := ws.session.Regenerate(ctx); err != nil {
				if notice := ws.session.State().Notice; notice != "" {
					fmt.Println(notice)
				}
				return err
			}
			return ws.save(ctx)
		})
	},
}

var recoverCmd = &cobra.Command{
	Use:   "recover <page-id>",
	Short: "Restore and save a draft stashed after autosave was disabled",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(cmd.Context(), args[0], func(ctx context.Context, ws *workspace) error {
			if ws.stash == nil {
				return fmt.Errorf("no draft stash configured (set REDIS_URL)")
			}
			found, err := ws.session.RecoverDraft(ctx)
			if err != nil {
				return err
			}
			if !found {
				fmt.Printf("no stashed draft for %s\n", args[0])
				return nil
			}
			return ws.save(ctx)
		})
	},
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List pages, most recently edited first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		pages, err := newClient().List(cmd.Context(), listLimit)
		if err != nil {
			return err
		}
		for _, page := range pages {
			state := "draft"
			if page.Published {
				state = "published"
			}
			fmt.Printf("%s  %-9s  %s  %s\n", page.ID, state, page.BusinessName, page.Headline)
		}
		return nil
	},
}

var historyCmd = &cobra.Command{
	Use:   "history <page-id>",
	Short: "List published revisions of a page",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		commits, err := newClient().History(cmd.Context(), args[0], historySize)
		if err != nil {
			return err
		}
		for _, commit := range commits {
			fmt.Printf("%s  %s  %-16s %s\n", shortHash(commit.Hash), commit.CreatedAt.Format("2006-01-02 15:04"), commit.Author, commit.Message)
		}
		return nil
	},
}

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search published pages",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		resp, err := newClient().Search(cmd.Context(), strings.Join(args, " "), searchLimit)
		if err != nil {
			return err
		}
		for _, result := range resp.Results {
			fmt.Printf("%s  %s  %s\n", result.PageID, result.BusinessName, result.Headline)
		}
		fmt.Printf("%d of %d results\n", len(resp.Results), resp.Total)
		return nil
	},
}

func withSession(ctx context.Context, pageID string, fn func(context.Context, *workspace) error) error {
	ws, err := openWorkspace(ctx, pageID)
	if err != nil {
		return err
	}
	defer ws.close()
	return fn(ctx, ws)
}

func shortHash(hash string) string {
	if len(hash) > 7 {
		return hash[:7]
	}
	return hash
}
