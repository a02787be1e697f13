package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/samsaffron/tonenotes/internal/document"
	"github.com/samsaffron/tonenotes/internal/notes"
	"github.com/samsaffron/tonenotes/internal/rewrite"
	"github.com/samsaffron/tonenotes/internal/signal"
	"github.com/samsaffron/tonenotes/internal/tone"
	"github.com/samsaffron/tonenotes/internal/ui"
	"github.com/spf13/cobra"
)

var (
	rewriteX        float64
	rewriteY        float64
	rewriteDialX    float64
	rewriteDialY    float64
	rewriteDial     string
	rewriteRemote   string
	rewriteToken    string
	rewriteLegacy   bool
	rewriteProvider string
	rewriteNote     string
	rewriteSelect   string
	rewriteDryRun   bool
)

var rewriteCmd = &cobra.Command{
	Use:   "rewrite [text]",
	Short: "Rewrite text toward a point on the tone dial",
	Long: `Rewrite text toward a blend of the four dial personas.

The coordinate is given with --x/--y in [-1, 1] (negative y is the top
persona, positive x the right one), or with --dial-x/--dial-y as a position
in the dial's 0..100 space.

Text comes from the arguments or stdin. With --note the rewrite is applied
to a stored note: --select picks a range of the note's text, the change is
shown as a diff and the note is saved.

Examples:
  tonenotes rewrite "we need to talk about the budget" --x 1 --y -1
  echo "Thanks for your patience" | tonenotes rewrite --dial-x 10 --dial-y 50
  tonenotes rewrite --remote http://127.0.0.1:8080 --legacy "hello there"
  tonenotes rewrite --note 6f1c... --select 4:9 --x 1 --y -1`,
	RunE: runRewrite,
}

func init() {
	rootCmd.AddCommand(rewriteCmd)

	rewriteCmd.Flags().Float64Var(&rewriteX, "x", 0, "Horizontal tone axis in [-1, 1]")
	rewriteCmd.Flags().Float64Var(&rewriteY, "y", 0, "Vertical tone axis in [-1, 1]")
	rewriteCmd.Flags().Float64Var(&rewriteDialX, "dial-x", 50, "Horizontal dial position in 0..100")
	rewriteCmd.Flags().Float64Var(&rewriteDialY, "dial-y", 50, "Vertical dial position in 0..100")
	rewriteCmd.Flags().BoolVar(&rewriteLegacy, "legacy", false, "Send the bare {text, x, y} request (requires --remote)")
	rewriteCmd.Flags().StringVar(&rewriteNote, "note", "", "Rewrite part of a stored note")
	rewriteCmd.Flags().StringVar(&rewriteSelect, "select", "", "Range of the note text to rewrite, as start:end rune offsets")
	rewriteCmd.Flags().BoolVar(&rewriteDryRun, "dry-run", false, "Show the diff without saving the note")
	rewriteCmd.MarkFlagsMutuallyExclusive("x", "dial-x")
	rewriteCmd.MarkFlagsMutuallyExclusive("y", "dial-y")
	rewriteCmd.MarkFlagsRequiredTogether("note", "select")
	if err := rewriteCmd.RegisterFlagCompletionFunc("note", NoteIDCompletion); err != nil {
		panic("failed to register note completion: " + err.Error())
	}

	AddDialFlag(rewriteCmd, &rewriteDial)
	AddRemoteFlags(rewriteCmd, &rewriteRemote, &rewriteToken)
	AddProviderFlag(rewriteCmd, &rewriteProvider)
}

func runRewrite(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext()
	defer stop()

	coord := rewriteCoordinate(cmd)
	if err := coord.Validate(); err != nil {
		return err
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := applyProviderOverrides(cfg, rewriteProvider); err != nil {
		return err
	}

	token := rewriteToken
	if token == "" {
		token = os.Getenv("TONENOTES_TOKEN")
	}
	client, err := newRewriteClient(cfg, rewriteClientOptions{
		Remote: rewriteRemote,
		Token:  token,
		Legacy: rewriteLegacy,
		Debug:  debugLogs,
	})
	if err != nil {
		return err
	}
	client = rewrite.WithTimeout(client, cfg.Rewrite.Timeout)

	store, err := openNoteStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	tones, err := notes.Tones(ctx, store, rewriteDial, cfg.Tones)
	if err != nil {
		return fmt.Errorf("load tones for %s: %w", rewriteDial, err)
	}
	if rewriteLegacy && tones != tone.Defaults() {
		slog.Warn("legacy requests use the default personas; custom tones are ignored", "dial", rewriteDial)
	}

	if rewriteNote != "" {
		if len(args) > 0 {
			return fmt.Errorf("text arguments cannot be combined with --note")
		}
		return rewriteStoredNote(ctx, cmd, store, client, coord, tones)
	}

	text, err := rewriteInput(cmd.InOrStdin(), args)
	if err != nil {
		return err
	}
	out, err := client.Rewrite(ctx, rewrite.Request{Text: text, Coordinate: coord, Descriptors: tones})
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), out)
	return nil
}

func rewriteCoordinate(cmd *cobra.Command) tone.Coordinate {
	if cmd.Flags().Changed("dial-x") || cmd.Flags().Changed("dial-y") {
		return tone.FromDial(rewriteDialX, rewriteDialY)
	}
	return tone.Coordinate{X: rewriteX, Y: rewriteY}
}

func rewriteInput(stdin io.Reader, args []string) (string, error) {
	if len(args) > 0 {
		return strings.Join(args, " "), nil
	}
	if f, ok := stdin.(*os.File); ok && ui.IsTerminal(f) {
		return "", fmt.Errorf("no text given: pass it as an argument or on stdin")
	}
	data, err := io.ReadAll(stdin)
	if err != nil {
		return "", fmt.Errorf("read stdin: %w", err)
	}
	text := strings.TrimRight(string(data), "\n")
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("no text given")
	}
	return text, nil
}

func rewriteStoredNote(ctx context.Context, cmd *cobra.Command, store notes.Store, client rewrite.Client, coord tone.Coordinate, tones tone.Set) error {
	note, err := getNote(ctx, store, rewriteNote)
	if err != nil {
		return err
	}
	doc, err := note.Document()
	if err != nil {
		return err
	}

	start, end, err := parseSelectRange(rewriteSelect)
	if err != nil {
		return err
	}
	sel, err := selectionFromTextRange(doc, start, end)
	if err != nil {
		return err
	}
	text, ok := document.Extract(doc, sel)
	if !ok {
		return fmt.Errorf("selection %s is empty", rewriteSelect)
	}

	out, err := client.Rewrite(ctx, rewrite.Request{Text: text, Coordinate: coord, Descriptors: tones})
	if err != nil {
		return err
	}
	updated, err := document.Splice(doc, sel, out)
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	ui.PrintUnifiedDiff(w, note.Title+" "+coord.String(), doc.PlainText(), updated.PlainText())

	styles := ui.NewStyles(cmd.ErrOrStderr())
	if rewriteDryRun {
		fmt.Fprintln(cmd.ErrOrStderr(), styles.Warning.Render("dry run: note not saved"))
		return nil
	}
	if err := note.SetDocument(updated, time.Now()); err != nil {
		return err
	}
	if err := store.Save(ctx, note); err != nil {
		return fmt.Errorf("save note: %w", err)
	}
	fmt.Fprintln(cmd.ErrOrStderr(), styles.FormatResult(true, "saved "+note.ID))
	return nil
}

// parseSelectRange parses "start:end".
func parseSelectRange(s string) (int, int, error) {
	a, b, ok := strings.Cut(s, ":")
	if !ok {
		return 0, 0, fmt.Errorf("invalid --select %q (want start:end)", s)
	}
	start, err := strconv.Atoi(strings.TrimSpace(a))
	if err != nil {
		return 0, 0, fmt.Errorf("invalid --select start %q", a)
	}
	end, err := strconv.Atoi(strings.TrimSpace(b))
	if err != nil {
		return 0, 0, fmt.Errorf("invalid --select end %q", b)
	}
	if start < 0 || end < start {
		return 0, 0, fmt.Errorf("invalid --select %q", s)
	}
	return start, end, nil
}

// selectionFromTextRange maps rune offsets into doc.PlainText() to a
// selection. An offset on a block boundary resolves to the end of the
// earlier block.
func selectionFromTextRange(doc document.Document, start, end int) (document.Selection, error) {
	anchor, err := anchorAt(doc, start)
	if err != nil {
		return document.Selection{}, err
	}
	focus, err := anchorAt(doc, end)
	if err != nil {
		return document.Selection{}, err
	}
	return document.Selection{Anchor: anchor, Focus: focus}, nil
}

var errOffsetOutOfRange = errors.New("offset past the end of the note")

func anchorAt(doc document.Document, offset int) (document.Anchor, error) {
	pos := 0
	for _, b := range doc.Blocks {
		if offset <= pos+b.Len() {
			return document.Anchor{Block: b.ID, Offset: offset - pos}, nil
		}
		pos += b.Len() + 1
	}
	return document.Anchor{}, fmt.Errorf("%w: %d", errOffsetOutOfRange, offset)
}
