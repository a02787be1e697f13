package cmd

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/samsaffron/tonenotes/internal/config"
	"github.com/samsaffron/tonenotes/internal/llm"
	"github.com/samsaffron/tonenotes/internal/tone"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage tonenotes configuration",
	Long: `View or edit your tonenotes configuration.

Examples:
  tonenotes config                     # show current config
  tonenotes config edit                # edit in $EDITOR
  tonenotes config init                # write a starter config
  tonenotes config set rewrite.debounce 500ms
  tonenotes config completion zsh      # generate shell completions`,
	RunE: configShow, // Default to show
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the effective configuration",
	RunE:  configShow,
}

var configEditCmd = &cobra.Command{
	Use:   "edit",
	Short: "Edit configuration file in $EDITOR",
	RunE:  configEdit,
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print configuration file path",
	RunE:  configPath,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a starter configuration file",
	RunE:  configInit,
}

var configCompletionCmd = &cobra.Command{
	Use:   "completion [bash|zsh|fish|powershell]",
	Short: "Generate shell completion script",
	Long: `Generate shell completion script.

Examples:
  tonenotes config completion bash > /etc/bash_completion.d/tonenotes
  tonenotes config completion zsh > "${fpath[1]}/_tonenotes"
  tonenotes config completion fish > ~/.config/fish/completions/tonenotes.fish`,
	ValidArgs: []string{"bash", "zsh", "fish", "powershell"},
	Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	RunE:      configCompletion,
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Long: `Set a configuration value while preserving comments.

Examples:
  tonenotes config set provider anthropic
  tonenotes config set anthropic.model claude-opus-4-5
  tonenotes config set rewrite.timeout 45s
  tonenotes config set tones.top.title Pirate`,
	Args:              cobra.ExactArgs(2),
	RunE:              configSet,
	ValidArgsFunction: configSetCompletion,
}

var configGetCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Get a configuration value from the config file",
	Long: `Get a configuration value.

Examples:
  tonenotes config get provider
  tonenotes config get rewrite.debounce`,
	Args:              cobra.ExactArgs(1),
	RunE:              configGet,
	ValidArgsFunction: configGetCompletion,
}

var configInitForce bool

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configEditCmd)
	configCmd.AddCommand(configPathCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configCompletionCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configGetCmd)

	configInitCmd.Flags().BoolVar(&configInitForce, "force", false, "Overwrite an existing config file")
}

func configShow(cmd *cobra.Command, args []string) error {
	configPath, err := config.GetConfigPath()
	if err != nil {
		return fmt.Errorf("failed to get config path: %w", err)
	}
	if configFile != "" {
		configPath = configFile
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if _, statErr := os.Stat(configPath); os.IsNotExist(statErr) {
		fmt.Fprintf(out, "# No config file (using defaults)\n")
		fmt.Fprintf(out, "# Create one with: tonenotes config init\n\n")
	} else {
		fmt.Fprintf(out, "# %s\n\n", configPath)
	}
	return writeConfigYAML(out, cfg)
}

// writeConfigYAML prints the effective configuration with secrets replaced
// by their status.
func writeConfigYAML(w io.Writer, cfg *config.Config) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(configView(cfg)); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return enc.Close()
}

// configView mirrors the keys of config.yaml.
func configView(cfg *config.Config) *yaml.Node {
	root := &yaml.Node{Kind: yaml.MappingNode}

	add := func(parent *yaml.Node, key string, value any) *yaml.Node {
		k := &yaml.Node{Kind: yaml.ScalarNode, Value: key}
		var v *yaml.Node
		switch val := value.(type) {
		case nil:
			v = &yaml.Node{Kind: yaml.MappingNode}
		case []string:
			v = &yaml.Node{Kind: yaml.SequenceNode, Style: yaml.FlowStyle}
			for _, s := range val {
				v.Content = append(v.Content, &yaml.Node{Kind: yaml.ScalarNode, Value: s})
			}
		default:
			v = &yaml.Node{Kind: yaml.ScalarNode, Value: fmt.Sprint(val)}
		}
		parent.Content = append(parent.Content, k, v)
		return v
	}

	add(root, "provider", cfg.Provider)
	add(root, "active_model", cfg.ActiveModel())

	rw := add(root, "rewrite", nil)
	add(rw, "debounce", cfg.Rewrite.Debounce.String())
	add(rw, "timeout", cfg.Rewrite.Timeout.String())
	add(rw, "max_tokens", cfg.Rewrite.MaxTokens)
	add(rw, "temperature", cfg.Rewrite.Temperature)

	n := add(root, "notes", nil)
	add(n, "enabled", cfg.Notes.Enabled)
	add(n, "path", cfg.GetNotesPath())
	add(n, "autosave", cfg.Notes.Autosave.String())

	tones := add(root, "tones", nil)
	for _, d := range tone.Directions() {
		desc := cfg.Tones.Get(d)
		t := add(tones, string(d), nil)
		add(t, "title", desc.Title)
		add(t, "description", desc.Description)
	}

	s := add(root, "serve", nil)
	add(s, "host", cfg.Serve.Host)
	add(s, "port", cfg.Serve.Port)
	add(s, "cors_origins", cfg.Serve.CORSOrigins)
	add(s, "max_sessions", cfg.Serve.MaxSessions)
	add(s, "session_ttl", cfg.Serve.SessionTTL.String())

	d := add(root, "diagnostics", nil)
	add(d, "enabled", cfg.Diagnostics.Enabled)
	add(d, "dir", cfg.GetDiagnosticsDir())

	providers := []struct {
		name, model, baseURL, key, envVar string
	}{
		{"anthropic", cfg.Anthropic.Model, "", cfg.Anthropic.APIKey, "ANTHROPIC_API_KEY"},
		{"openai", cfg.OpenAI.Model, "", cfg.OpenAI.APIKey, "OPENAI_API_KEY"},
		{"gemini", cfg.Gemini.Model, "", cfg.Gemini.APIKey, "GEMINI_API_KEY"},
		{"ollama", cfg.Ollama.Model, cfg.Ollama.BaseURL, cfg.Ollama.APIKey, ""},
		{"lmstudio", cfg.LMStudio.Model, cfg.LMStudio.BaseURL, cfg.LMStudio.APIKey, ""},
		{"openai-compat", cfg.OpenAICompat.Model, cfg.OpenAICompat.BaseURL, cfg.OpenAICompat.APIKey, ""},
	}
	for _, p := range providers {
		section := add(root, p.name, nil)
		if p.model != "" {
			add(section, "model", p.model)
		}
		if p.baseURL != "" {
			add(section, "base_url", p.baseURL)
		}
		add(section, "api_key", credentialStatus(p.key, p.envVar))
	}
	return root
}

func credentialStatus(apiKey, envVar string) string {
	switch {
	case apiKey != "":
		return "[set]"
	case envVar == "":
		return "[not set]"
	default:
		return "[NOT SET - export " + envVar + "]"
	}
}

func configEdit(cmd *cobra.Command, args []string) error {
	configPath, err := config.GetConfigPath()
	if err != nil {
		return fmt.Errorf("failed to get config path: %w", err)
	}

	// Create default config if it doesn't exist
	if !config.Exists() {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if err := config.Save(cfg); err != nil {
			return fmt.Errorf("failed to create config file: %w", err)
		}
	}

	// Get editor from environment
	editor := os.Getenv("EDITOR")
	if editor == "" {
		editor = os.Getenv("VISUAL")
	}
	if editor == "" {
		editor = "vi"
	}

	editorCmd := exec.Command(editor, configPath)
	editorCmd.Stdin = os.Stdin
	editorCmd.Stdout = os.Stdout
	editorCmd.Stderr = os.Stderr
	return editorCmd.Run()
}

func configPath(cmd *cobra.Command, args []string) error {
	path, err := config.GetConfigPath()
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), path)
	return nil
}

func configInit(cmd *cobra.Command, args []string) error {
	path, err := config.GetConfigPath()
	if err != nil {
		return fmt.Errorf("failed to get config path: %w", err)
	}
	if config.Exists() && !configInitForce {
		return fmt.Errorf("config already exists at %s (use --force to overwrite)", path)
	}
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := config.Save(cfg); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", path)
	return nil
}

func configCompletion(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	switch args[0] {
	case "bash":
		return rootCmd.GenBashCompletion(out)
	case "zsh":
		return rootCmd.GenZshCompletion(out)
	case "fish":
		return rootCmd.GenFishCompletion(out, true)
	case "powershell":
		return rootCmd.GenPowerShellCompletionWithDesc(out)
	}
	return nil
}

func configSet(cmd *cobra.Command, args []string) error {
	key := args[0]
	value := args[1]

	configPath, err := config.GetConfigPath()
	if err != nil {
		return fmt.Errorf("failed to get config path: %w", err)
	}

	// Ensure config directory exists
	configDir := filepath.Dir(configPath)
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	// Read existing file or create empty document
	var root yaml.Node
	data, err := os.ReadFile(configPath)
	if err != nil {
		if !os.IsNotExist(err) {
			return fmt.Errorf("failed to read config: %w", err)
		}
		root = yaml.Node{
			Kind:    yaml.DocumentNode,
			Content: []*yaml.Node{{Kind: yaml.MappingNode}},
		}
	} else if err := yaml.Unmarshal(data, &root); err != nil {
		return fmt.Errorf("failed to parse config: %w", err)
	}

	if err := setYAMLValue(&root, strings.Split(key, "."), value); err != nil {
		return fmt.Errorf("failed to set value: %w", err)
	}

	var buf bytes.Buffer
	encoder := yaml.NewEncoder(&buf)
	encoder.SetIndent(2)
	if err := encoder.Encode(&root); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	encoder.Close()

	// Refuse to write a file that no longer loads.
	if _, err := loadConfigBytes(buf.Bytes()); err != nil {
		return err
	}
	if err := os.WriteFile(configPath, buf.Bytes(), 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "%s = %s\n", key, value)
	return nil
}

func loadConfigBytes(data []byte) (*config.Config, error) {
	f, err := os.CreateTemp("", "tonenotes-config-*.yaml")
	if err != nil {
		return nil, err
	}
	defer os.Remove(f.Name())
	if _, err := f.Write(data); err != nil {
		f.Close()
		return nil, err
	}
	if err := f.Close(); err != nil {
		return nil, err
	}
	return config.LoadFile(f.Name())
}

// setYAMLValue navigates/creates the path in a yaml.Node tree and sets the value
func setYAMLValue(root *yaml.Node, path []string, value string) error {
	if root.Kind != yaml.DocumentNode || len(root.Content) == 0 {
		return fmt.Errorf("invalid document structure")
	}

	current := root.Content[0]
	if current.Kind != yaml.MappingNode {
		return fmt.Errorf("root is not a mapping")
	}

	for i, part := range path {
		isLast := i == len(path)-1

		found := false
		for j := 0; j < len(current.Content); j += 2 {
			if current.Content[j].Value != part {
				continue
			}
			if isLast {
				valueNode := current.Content[j+1]
				valueNode.Value = value
				valueNode.Tag = ""
				valueNode.Kind = yaml.ScalarNode
				valueNode.Content = nil
			} else {
				current = current.Content[j+1]
				if current.Kind != yaml.MappingNode {
					current.Kind = yaml.MappingNode
					current.Content = nil
					current.Value = ""
					current.Tag = ""
				}
			}
			found = true
			break
		}

		if !found {
			keyNode := &yaml.Node{Kind: yaml.ScalarNode, Value: part}
			if isLast {
				current.Content = append(current.Content, keyNode, &yaml.Node{Kind: yaml.ScalarNode, Value: value})
			} else {
				mapping := &yaml.Node{Kind: yaml.MappingNode}
				current.Content = append(current.Content, keyNode, mapping)
				current = mapping
			}
		}
	}

	return nil
}

func configGet(cmd *cobra.Command, args []string) error {
	configPath, err := config.GetConfigPath()
	if err != nil {
		return fmt.Errorf("failed to get config path: %w", err)
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("config file does not exist")
		}
		return fmt.Errorf("failed to read config: %w", err)
	}

	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return fmt.Errorf("failed to parse config: %w", err)
	}

	value, err := getYAMLValue(&root, strings.Split(args[0], "."))
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), value)
	return nil
}

// getYAMLValue navigates the yaml.Node tree and returns the value at path
func getYAMLValue(root *yaml.Node, path []string) (string, error) {
	if root.Kind != yaml.DocumentNode || len(root.Content) == 0 {
		return "", fmt.Errorf("invalid document structure")
	}

	current := root.Content[0]
	for _, part := range path {
		if current.Kind != yaml.MappingNode {
			return "", fmt.Errorf("path not found: expected mapping")
		}

		found := false
		for j := 0; j < len(current.Content); j += 2 {
			if current.Content[j].Value == part {
				current = current.Content[j+1]
				found = true
				break
			}
		}
		if !found {
			return "", fmt.Errorf("key not found: %s", part)
		}
	}

	if current.Kind == yaml.ScalarNode {
		return current.Value, nil
	}
	return "", fmt.Errorf("value is not a scalar")
}

func configSetCompletion(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	switch len(args) {
	case 0:
		return configKeyCompletions(toComplete), cobra.ShellCompDirectiveNoFileComp
	case 1:
		return configValueCompletions(args[0], toComplete), cobra.ShellCompDirectiveNoFileComp
	}
	return nil, cobra.ShellCompDirectiveNoFileComp
}

func configGetCompletion(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	if len(args) == 0 {
		return configKeyCompletions(toComplete), cobra.ShellCompDirectiveNoFileComp
	}
	return nil, cobra.ShellCompDirectiveNoFileComp
}

func configKeyCompletions(toComplete string) []string {
	keys := []string{
		"provider",
		"rewrite.provider", "rewrite.model", "rewrite.debounce", "rewrite.timeout",
		"rewrite.max_tokens", "rewrite.temperature",
		"notes.enabled", "notes.path", "notes.autosave",
		"serve.host", "serve.port", "serve.max_sessions", "serve.session_ttl",
		"diagnostics.enabled", "diagnostics.dir",
	}
	for _, d := range tone.Directions() {
		keys = append(keys, "tones."+string(d)+".title", "tones."+string(d)+".description")
	}
	for _, name := range llm.BuiltInProviderNames() {
		keys = append(keys, name+".model", name+".api_key")
		switch name {
		case "ollama", "lmstudio", "openai-compat":
			keys = append(keys, name+".base_url")
		}
	}
	return filterPrefix(keys, toComplete)
}

func configValueCompletions(key, toComplete string) []string {
	switch key {
	case "provider", "rewrite.provider":
		return filterPrefix(llm.BuiltInProviderNames(), toComplete)
	case "notes.enabled", "diagnostics.enabled":
		return filterPrefix([]string{"true", "false"}, toComplete)
	case "rewrite.debounce", "notes.autosave":
		return filterPrefix([]string{"250ms", "500ms", "1s", "2s"}, toComplete)
	case "rewrite.timeout":
		return filterPrefix([]string{"10s", "30s", "60s"}, toComplete)
	}
	return nil
}

func filterPrefix(items []string, prefix string) []string {
	var out []string
	for _, item := range items {
		if strings.HasPrefix(item, prefix) {
			out = append(out, item)
		}
	}
	return out
}
