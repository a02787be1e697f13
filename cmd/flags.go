package cmd

import (
	"github.com/samsaffron/tonenotes/internal/tone"
	"github.com/spf13/cobra"
)

// AddProviderFlag adds the --provider/-p flag with completion
func AddProviderFlag(cmd *cobra.Command, dest *string) {
	cmd.Flags().StringVarP(dest, "provider", "p", "", "Override provider, optionally with model (e.g., openai:gpt-4.1)")
	if err := cmd.RegisterFlagCompletionFunc("provider", ProviderFlagCompletion); err != nil {
		panic("failed to register provider completion: " + err.Error())
	}
}

// AddDialFlag adds the --dial flag naming a descriptor set
func AddDialFlag(cmd *cobra.Command, dest *string) {
	cmd.Flags().StringVar(dest, "dial", tone.MainDialID, "Tone dial whose descriptors are used")
	if err := cmd.RegisterFlagCompletionFunc("dial", DialFlagCompletion); err != nil {
		panic("failed to register dial completion: " + err.Error())
	}
}

// AddRemoteFlags adds --remote and --token for talking to a tonenotes server
func AddRemoteFlags(cmd *cobra.Command, remote, token *string) {
	cmd.Flags().StringVar(remote, "remote", "", "Base URL of a tonenotes server to rewrite through (e.g., http://127.0.0.1:8080)")
	cmd.Flags().StringVar(token, "token", "", "Bearer token for --remote (default $TONENOTES_TOKEN)")
}
