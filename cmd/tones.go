package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/samsaffron/tonenotes/internal/config"
	"github.com/samsaffron/tonenotes/internal/notes"
	"github.com/samsaffron/tonenotes/internal/tone"
	"github.com/samsaffron/tonenotes/internal/ui"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var tonesDial string

var tonesCmd = &cobra.Command{
	Use:   "tones",
	Short: "Manage the personas placed around a tone dial",
	Long: `Each dial has four personas, one per compass point. A dial without
stored personas uses the ones from the config file, then the built-in
defaults.

Examples:
  tonenotes tones show
  tonenotes tones set top "Pirate" "nautical slang, arr"
  tonenotes tones reset top
  tonenotes tones export > tones.yaml
  tonenotes tones import tones.yaml`,
	RunE: runTonesShow,
}

var tonesShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show a dial's personas",
	Args:  cobra.NoArgs,
	RunE:  runTonesShow,
}

var tonesSetCmd = &cobra.Command{
	Use:       "set <top|right|bottom|left> <title> [description]",
	Short:     "Set the persona at one direction",
	Args:      cobra.RangeArgs(2, 3),
	ValidArgs: directionNames(),
	RunE:      runTonesSet,
}

var tonesResetCmd = &cobra.Command{
	Use:       "reset [direction]",
	Short:     "Restore default personas for one direction or the whole dial",
	Args:      cobra.MaximumNArgs(1),
	ValidArgs: directionNames(),
	RunE:      runTonesReset,
}

var tonesExportCmd = &cobra.Command{
	Use:   "export [file]",
	Short: "Write a dial's personas as YAML",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runTonesExport,
}

var tonesImportCmd = &cobra.Command{
	Use:   "import <file|->",
	Short: "Replace a dial's personas from YAML",
	Args:  cobra.ExactArgs(1),
	RunE:  runTonesImport,
}

func init() {
	rootCmd.AddCommand(tonesCmd)
	for _, c := range []*cobra.Command{tonesShowCmd, tonesSetCmd, tonesResetCmd, tonesExportCmd, tonesImportCmd} {
		tonesCmd.AddCommand(c)
	}
	tonesCmd.PersistentFlags().StringVar(&tonesDial, "dial", tone.MainDialID, "Tone dial to manage")
	if err := tonesCmd.RegisterFlagCompletionFunc("dial", DialFlagCompletion); err != nil {
		panic("failed to register dial completion: " + err.Error())
	}
}

func directionNames() []string {
	var names []string
	for _, d := range tone.Directions() {
		names = append(names, string(d))
	}
	return names
}

// withDial loads the config and store and the dial's current personas.
func withDial(fn func(ctx context.Context, cfg *config.Config, store notes.Store, current tone.Set) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	store, err := openNoteStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	ctx := context.Background()
	current, err := notes.Tones(ctx, store, tonesDial, cfg.Tones)
	if err != nil {
		return err
	}
	return fn(ctx, cfg, store, current)
}

func runTonesShow(cmd *cobra.Command, args []string) error {
	return withDial(func(ctx context.Context, cfg *config.Config, store notes.Store, current tone.Set) error {
		_, custom, err := store.GetTones(ctx, tonesDial)
		if err != nil {
			return err
		}
		printTones(cmd.OutOrStdout(), tonesDial, current, custom)
		return nil
	})
}

func printTones(w io.Writer, dialID string, set tone.Set, custom bool) {
	styles := ui.NewStyles(w)
	source := "defaults"
	if custom {
		source = "custom"
	}
	fmt.Fprintf(w, "%s %s\n", styles.Bold.Render(dialID), styles.Muted.Render("("+source+")"))
	for _, d := range tone.Directions() {
		desc := set.Get(d)
		line := styles.Title.Render(desc.Title)
		if desc.Description != "" {
			line += " " + styles.Muted.Render(desc.Description)
		}
		fmt.Fprintf(w, "  %s%s\n", styles.Label.Render(string(d)), line)
	}
}

func runTonesSet(cmd *cobra.Command, args []string) error {
	d, err := tone.ParseDirection(args[0])
	if err != nil {
		return err
	}
	desc := tone.Descriptor{Title: strings.TrimSpace(args[1])}
	if len(args) == 3 {
		desc.Description = strings.TrimSpace(args[2])
	}
	if desc.Title == "" {
		return fmt.Errorf("title must not be empty")
	}
	return withDial(func(ctx context.Context, cfg *config.Config, store notes.Store, current tone.Set) error {
		updated := current.With(d, desc)
		if err := store.SetTones(ctx, tonesDial, updated); err != nil {
			return err
		}
		printTones(cmd.OutOrStdout(), tonesDial, updated, true)
		return nil
	})
}

func runTonesReset(cmd *cobra.Command, args []string) error {
	return withDial(func(ctx context.Context, cfg *config.Config, store notes.Store, current tone.Set) error {
		if len(args) == 0 {
			if err := store.ResetTones(ctx, tonesDial); err != nil {
				return err
			}
			printTones(cmd.OutOrStdout(), tonesDial, cfg.Tones.Merge(tone.Defaults()), false)
			return nil
		}
		d, err := tone.ParseDirection(args[0])
		if err != nil {
			return err
		}
		updated := current.With(d, cfg.Tones.Merge(tone.Defaults()).Get(d))
		if err := store.SetTones(ctx, tonesDial, updated); err != nil {
			return err
		}
		printTones(cmd.OutOrStdout(), tonesDial, updated, true)
		return nil
	})
}

func runTonesExport(cmd *cobra.Command, args []string) error {
	return withDial(func(ctx context.Context, cfg *config.Config, store notes.Store, current tone.Set) error {
		data, err := yaml.Marshal(current)
		if err != nil {
			return fmt.Errorf("encode tones: %w", err)
		}
		if len(args) == 0 || args[0] == "-" {
			_, err = cmd.OutOrStdout().Write(data)
			return err
		}
		return os.WriteFile(args[0], data, 0644)
	})
}

func runTonesImport(cmd *cobra.Command, args []string) error {
	var (
		data []byte
		err  error
	)
	if args[0] == "-" {
		data, err = io.ReadAll(cmd.InOrStdin())
	} else {
		data, err = os.ReadFile(args[0])
	}
	if err != nil {
		return fmt.Errorf("read tones: %w", err)
	}
	set, err := decodeTonesYAML(data)
	if err != nil {
		return err
	}
	return withDial(func(ctx context.Context, cfg *config.Config, store notes.Store, current tone.Set) error {
		set = set.Merge(current)
		if err := store.SetTones(ctx, tonesDial, set); err != nil {
			return err
		}
		printTones(cmd.OutOrStdout(), tonesDial, set, true)
		return nil
	})
}

// decodeTonesYAML reads a descriptor set. Unknown keys are rejected so a
// misspelled direction is not silently dropped.
func decodeTonesYAML(data []byte) (tone.Set, error) {
	var set tone.Set
	dec := yaml.NewDecoder(strings.NewReader(string(data)))
	dec.KnownFields(true)
	if err := dec.Decode(&set); err != nil {
		if err == io.EOF {
			return tone.Set{}, fmt.Errorf("tones file is empty")
		}
		return tone.Set{}, fmt.Errorf("parse tones: %w", err)
	}
	return set, nil
}
