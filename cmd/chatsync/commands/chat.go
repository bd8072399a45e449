package commands

import (
	"context"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"

	"github.com/opencode-ai/chatsync/pkg/client"
	"github.com/opencode-ai/chatsync/pkg/types"
)

var (
	chatProvider string
	chatModel    string
	chatID       string
)

var chatCmd = &cobra.Command{
	Use:   "chat <message>",
	Short: "Send a message and stream the reply",
	Long: `Send a message to a running chatsync server and print the reply as
it streams.

Examples:
  chatsync chat "What is the capital of France?"
  chatsync chat --model groq/llama-3.1-8b-instant "Search the web for Go 1.24"
  chatsync chat --chat-id 01J... "And what about Spain?"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runChat,
}

func init() {
	chatCmd.Flags().StringVar(&chatProvider, "provider", "", "Provider name (default from server config)")
	chatCmd.Flags().StringVarP(&chatModel, "model", "m", "", "Model id, or provider/model")
	chatCmd.Flags().StringVarP(&chatID, "chat-id", "c", "", "Continue an existing chat")
}

func newClient() *client.Client {
	return client.NewClient(client.ClientOptions{BaseURL: serverURL})
}

func runChat(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	req := types.ChatRequest{
		Message:  strings.Join(args, " "),
		Provider: chatProvider,
		Model:    chatModel,
		ChatID:   chatID,
	}
	if req.Provider == "" && chatModel != "" {
		req.Provider, req.Model = splitModel(chatModel)
	}

	c := newClient()
	stream, err := c.SendMessage(ctx, req)
	if err != nil {
		return err
	}
	defer stream.Close()

	r := newRenderer(cmd.OutOrStdout())
	mirror := client.NewReassembler(c)
	var sessionID string
	for {
		u, err := stream.Next()
		if isEOF(err) {
			break
		}
		if err != nil {
			return err
		}
		if _, err := mirror.Apply(ctx, u, true); err != nil {
			return err
		}
		sessionID = u.SessionID
		r.Update(u)
	}

	if chat, ok := mirror.Get(sessionID); ok && chatID == "" {
		cmd.PrintErrln(dimmed.Sprintf("chat id: %s (%d messages)", chat.ID, len(chat.History)))
	}
	return nil
}

// splitModel accepts "provider/model" or a bare model id.
func splitModel(s string) (providerName, modelID string) {
	providerName, modelID, ok := strings.Cut(s, "/")
	if !ok {
		return "", s
	}
	return providerName, modelID
}
