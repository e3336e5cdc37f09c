package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"chat-server/internal/infrastructure/logger"
	"chat-server/pkg/chatclient"
	"chat-server/pkg/chatsession"
)

var rootCmd = &cobra.Command{
	Use:   "chat-cli",
	Short: "Terminal client for the chat server",
	Long:  `Interactive terminal client for the conversation API: list, create, rename and delete conversations, and chat with the assistant.`,
	RunE:  runChat,
}

func init() {
	rootCmd.PersistentFlags().String("server", envOr("CHAT_SERVER_URL", "http://localhost:8080"), "Chat server base URL")
	rootCmd.PersistentFlags().String("token", os.Getenv("CHAT_TOKEN"), "Bearer token for authentication")
	rootCmd.PersistentFlags().Duration("reveal-interval", 80*time.Millisecond, "Delay between revealed reply tokens")

	rootCmd.AddCommand(listCmd, newCmd, renameCmd, deleteCmd)
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List conversations, most recently updated first",
	RunE: func(cmd *cobra.Command, args []string) error {
		client := newClient(cmd)
		defer client.Close()

		conversations, err := client.ListConversations(cmd.Context())
		if err != nil {
			return err
		}
		for _, conv := range conversations {
			fmt.Printf("%s  %-30s  %d messages  (updated %s)\n",
				conv.ID, conv.Title, len(conv.Messages), conv.UpdatedAt.Format(time.RFC3339))
		}
		return nil
	},
}

var newCmd = &cobra.Command{
	Use:   "new",
	Short: "Create a new conversation",
	RunE: func(cmd *cobra.Command, args []string) error {
		client := newClient(cmd)
		defer client.Close()

		conv, err := client.CreateConversation(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Printf("created %s (%s)\n", conv.ID, conv.Title)
		return nil
	},
}

var renameCmd = &cobra.Command{
	Use:   "rename <chat-id> <name>",
	Short: "Rename a conversation",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		client := newClient(cmd)
		defer client.Close()

		applied, err := client.RenameConversation(cmd.Context(), args[0], args[1])
		if err != nil {
			return err
		}
		if !applied {
			fmt.Println("no such conversation, nothing renamed")
			return nil
		}
		fmt.Println("renamed")
		return nil
	},
}

var deleteCmd = &cobra.Command{
	Use:   "delete <chat-id>",
	Short: "Delete a conversation",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client := newClient(cmd)
		defer client.Close()

		applied, err := client.DeleteConversation(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if !applied {
			fmt.Println("no such conversation, nothing deleted")
			return nil
		}
		fmt.Println("deleted")
		return nil
	},
}

func runChat(cmd *cobra.Command, args []string) error {
	client := newClient(cmd)
	defer client.Close()

	interval, _ := cmd.Flags().GetDuration("reveal-interval")
	session := chatsession.New(client,
		chatsession.WithLogger(logger.GetLogger()),
		chatsession.WithRevealInterval(interval),
		chatsession.WithNoticeFunc(func(notice string) {
			fmt.Printf("\n! %s\n", notice)
		}),
		chatsession.WithRevealObserver(func(_, content string) {
			fmt.Printf("\r\033[Kassistant: %s", content)
		}),
	)

	if err := session.Refresh(cmd.Context()); err != nil {
		return err
	}
	if selected, ok := session.Selected(); ok {
		fmt.Printf("conversation: %s (%s)\n", selected.Title, selected.ID)
		for _, msg := range selected.Messages {
			fmt.Printf("%s: %s\n", msg.Role, msg.Content)
		}
	}
	fmt.Println(`type a message, or /list /new /switch <id> /rename <name> /delete /quit`)

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "/") {
			if quit := runCommand(cmd, session, line); quit {
				return nil
			}
			continue
		}

		session.SetDraft(line)
		if err := session.Submit(cmd.Context()); err != nil {
			continue
		}
		session.Wait()
		fmt.Println()
	}
}

func runCommand(cmd *cobra.Command, session *chatsession.Session, line string) (quit bool) {
	fields := strings.Fields(line)
	ctx := cmd.Context()

	switch fields[0] {
	case "/quit", "/exit":
		return true
	case "/list":
		for _, conv := range session.Conversations() {
			marker := " "
			if selected, ok := session.Selected(); ok && selected.ID == conv.ID {
				marker = "*"
			}
			fmt.Printf("%s %s  %s\n", marker, conv.ID, conv.Title)
		}
	case "/new":
		conv, err := session.Create(ctx)
		if err != nil {
			fmt.Println("error:", err)
			return false
		}
		fmt.Printf("created and selected %s\n", conv.ID)
	case "/switch":
		if len(fields) < 2 {
			fmt.Println("usage: /switch <chat-id>")
			return false
		}
		if err := session.SelectConversation(fields[1]); err != nil {
			fmt.Println("error:", err)
		}
	case "/rename":
		if len(fields) < 2 {
			fmt.Println("usage: /rename <name>")
			return false
		}
		selected, ok := session.Selected()
		if !ok {
			fmt.Println("no conversation selected")
			return false
		}
		name := strings.Join(fields[1:], " ")
		if _, err := session.Rename(ctx, selected.ID, name); err != nil {
			fmt.Println("error:", err)
		}
	case "/delete":
		selected, ok := session.Selected()
		if !ok {
			fmt.Println("no conversation selected")
			return false
		}
		if _, err := session.Delete(ctx, selected.ID); err != nil {
			fmt.Println("error:", err)
		}
	default:
		fmt.Println("unknown command:", fields[0])
	}
	return false
}

func newClient(cmd *cobra.Command) *chatclient.Client {
	server, _ := cmd.Flags().GetString("server")
	token, _ := cmd.Flags().GetString("token")

	opts := []chatclient.Option{chatclient.WithTimeout(2 * time.Minute)}
	if token != "" {
		opts = append(opts, chatclient.WithToken(token))
	}
	return chatclient.New(server, opts...)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
