package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/samsaffron/tonenotes/internal/document"
	"github.com/samsaffron/tonenotes/internal/notes"
	"github.com/samsaffron/tonenotes/internal/ui"
	"github.com/spf13/cobra"
)

var (
	notesLimit  int
	notesOffset int
	notesJSON   bool
	notesRaw    bool
)

var notesCmd = &cobra.Command{
	Use:   "notes",
	Short: "Manage stored notes",
	Long: `List, show, create, delete and search notes.

Examples:
  tonenotes notes list
  tonenotes notes show <id>
  echo "Groceries" | tonenotes notes new
  tonenotes notes find meeting
  tonenotes notes delete <id>`,
}

var notesListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List notes, newest first",
	Args:    cobra.NoArgs,
	RunE:    runNotesList,
}

var notesShowCmd = &cobra.Command{
	Use:               "show <id>",
	Short:             "Show a note",
	Args:              cobra.ExactArgs(1),
	RunE:              runNotesShow,
	ValidArgsFunction: NoteIDCompletion,
}

var notesNewCmd = &cobra.Command{
	Use:   "new [text]",
	Short: "Create a note from text (one block per line)",
	RunE:  runNotesNew,
}

var notesDeleteCmd = &cobra.Command{
	Use:               "delete <id>",
	Aliases:           []string{"rm"},
	Short:             "Delete a note",
	Args:              cobra.ExactArgs(1),
	RunE:              runNotesDelete,
	ValidArgsFunction: NoteIDCompletion,
}

var notesFindCmd = &cobra.Command{
	Use:   "find <query>",
	Short: "Fuzzy search note titles",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runNotesFind,
}

func init() {
	rootCmd.AddCommand(notesCmd)
	notesCmd.AddCommand(notesListCmd)
	notesCmd.AddCommand(notesShowCmd)
	notesCmd.AddCommand(notesNewCmd)
	notesCmd.AddCommand(notesDeleteCmd)
	notesCmd.AddCommand(notesFindCmd)

	notesListCmd.Flags().IntVarP(&notesLimit, "limit", "n", 0, "Maximum number of notes (0 = all)")
	notesListCmd.Flags().IntVar(&notesOffset, "offset", 0, "Skip this many notes")
	for _, c := range []*cobra.Command{notesListCmd, notesFindCmd} {
		c.Flags().BoolVar(&notesJSON, "json", false, "Output JSON")
	}
	notesShowCmd.Flags().BoolVar(&notesRaw, "raw", false, "Print the stored raw content JSON")
}

// withNoteStore opens the configured store for the duration of fn.
func withNoteStore(fn func(ctx context.Context, store notes.Store) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	store, err := openNoteStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()
	return fn(context.Background(), store)
}

func runNotesList(cmd *cobra.Command, args []string) error {
	return withNoteStore(func(ctx context.Context, store notes.Store) error {
		list, err := store.List(ctx, notes.ListOptions{Limit: notesLimit, Offset: notesOffset})
		if err != nil {
			return err
		}
		return printSummaries(cmd.OutOrStdout(), list)
	})
}

func runNotesFind(cmd *cobra.Command, args []string) error {
	return withNoteStore(func(ctx context.Context, store notes.Store) error {
		list, err := store.List(ctx, notes.ListOptions{})
		if err != nil {
			return err
		}
		return printSummaries(cmd.OutOrStdout(), notes.Find(list, strings.Join(args, " ")))
	})
}

func printSummaries(w io.Writer, list []notes.Summary) error {
	if notesJSON {
		if list == nil {
			list = []notes.Summary{}
		}
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(list)
	}
	if len(list) == 0 {
		fmt.Fprintln(w, "No notes.")
		return nil
	}
	styles := ui.NewStyles(w)
	width := ui.TerminalWidth(w, 80)
	for _, s := range list {
		created := s.Created.Local().Format("2006-01-02 15:04")
		title := ui.Truncate(s.Title, max(width-len(s.ID)-len(created)-4, 10))
		fmt.Fprintf(w, "%s  %s  %s\n", styles.Muted.Render(s.ID), styles.Muted.Render(created), styles.Title.Render(title))
	}
	return nil
}

func runNotesShow(cmd *cobra.Command, args []string) error {
	return withNoteStore(func(ctx context.Context, store notes.Store) error {
		note, err := getNote(ctx, store, args[0])
		if err != nil {
			return err
		}
		w := cmd.OutOrStdout()
		if notesRaw {
			_, err := fmt.Fprintln(w, string(note.Contents))
			return err
		}
		doc, err := note.Document()
		if err != nil {
			return err
		}
		return ui.RenderNote(w, doc)
	})
}

func runNotesNew(cmd *cobra.Command, args []string) error {
	text := strings.Join(args, " ")
	if len(args) == 0 {
		var err error
		if text, err = rewriteInput(cmd.InOrStdin(), nil); err != nil {
			return err
		}
	}
	return withNoteStore(func(ctx context.Context, store notes.Store) error {
		note, err := notes.NewNote(document.FromText(text))
		if err != nil {
			return err
		}
		if err := store.Create(ctx, note); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), note.ID)
		return nil
	})
}

func runNotesDelete(cmd *cobra.Command, args []string) error {
	return withNoteStore(func(ctx context.Context, store notes.Store) error {
		if err := store.Delete(ctx, args[0]); err != nil {
			return err
		}
		fmt.Fprintln(cmd.ErrOrStderr(), ui.NewStyles(cmd.ErrOrStderr()).FormatResult(true, "deleted "+args[0]))
		return nil
	})
}

func getNote(ctx context.Context, store notes.Store, id string) (*notes.Note, error) {
	note, err := store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if note == nil {
		return nil, fmt.Errorf("note %s: %w", id, notes.ErrNotFound)
	}
	return note, nil
}
