package commands

import (
	"errors"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/opencode-ai/chatsync/pkg/types"
)

var chatsCmd = &cobra.Command{
	Use:   "chats",
	Short: "Manage stored chats",
}

var chatsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List chats, most recently updated first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c := newClient()
		ids, err := c.ListChats(cmd.Context())
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tMESSAGES\tLAST\t")
		for _, id := range ids {
			chat, err := c.GetChat(cmd.Context(), id)
			if err != nil {
				fmt.Fprintf(w, "%s\t?\t%v\t\n", id, err)
				continue
			}
			fmt.Fprintf(w, "%s\t%d\t%s\t\n", id, len(chat.History), preview(chat))
		}
		return w.Flush()
	},
}

var chatsShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Print a chat",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		chat, err := newClient().GetChat(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		newRenderer(cmd.OutOrStdout()).Context(chat)
		return nil
	},
}

var chatsDeleteCmd = &cobra.Command{
	Use:   "delete <id>...",
	Short: "Delete chats",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c := newClient()
		for _, id := range args {
			if err := c.DeleteChat(cmd.Context(), id); err != nil {
				return fmt.Errorf("delete %s: %w", id, err)
			}
			cmd.Printf("deleted %s\n", id)
		}
		return nil
	},
}

var chatsWatchCmd = &cobra.Command{
	Use:   "watch <id>",
	Short: "Follow a chat live",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		stream, err := newClient().Events(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		defer stream.Close()

		r := newRenderer(cmd.OutOrStdout())
		for {
			u, err := stream.Next()
			if isEOF(err) {
				cmd.PrintErrln(dimmed.Sprint("chat closed"))
				return nil
			}
			if err != nil {
				return err
			}
			r.Update(u)
		}
	},
}

func init() {
	chatsCmd.AddCommand(chatsListCmd)
	chatsCmd.AddCommand(chatsShowCmd)
	chatsCmd.AddCommand(chatsDeleteCmd)
	chatsCmd.AddCommand(chatsWatchCmd)
}

func preview(c types.Context) string {
	last, ok := c.Last()
	if !ok {
		return ""
	}
	return truncate(last.Text, 60)
}

func isEOF(err error) bool {
	return errors.Is(err, io.EOF)
}
