package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"sellzy/internal/adapter/rest"
	"sellzy/internal/infrastructure/stomp"
	"sellzy/internal/store"
	"sellzy/internal/usecase"
	"sellzy/pkg/auth"
	"sellzy/pkg/config"
	"sellzy/pkg/logger"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		exitOnError(err)
	}

	token := auth.ExtractToken(os.Getenv("CHAT_SESSION_TOKEN"))
	if token == "" {
		fmt.Fprintln(os.Stderr, "Error: CHAT_SESSION_TOKEN is not set")
		os.Exit(1)
	}
	credential, err := auth.ParseCredential(token)
	exitOnError(err)

	var userID int64
	if raw := os.Getenv("CHAT_USER_ID"); raw != "" {
		userID, err = strconv.ParseInt(raw, 10, 64)
		exitOnError(err)
	}

	service := rest.NewChatService(cfg.APIBaseURL, credential, cfg.RequestTimeout)
	transport := stomp.NewClient(cfg.WSEndpoint, credential.BearerHeader(), cfg.ReconnectDelay)
	conversations := store.NewConversationStore()
	messages := store.NewMessageStore(service, cfg.MessagePage)

	session := usecase.NewChatSession(service, transport, conversations, messages, credential, usecase.ChatSessionOptions{
		CurrentUserID: userID,
		Notify:        func(message string) { fmt.Fprintln(os.Stderr, "!", message) },
	})

	ctx := context.Background()

	switch os.Args[1] {
	case "conversations":
		refresh(ctx, session, service)
		printConversations(session)

	case "unread":
		refresh(ctx, session, service)
		fmt.Printf("%d unread\n", session.UnreadTotal())

	case "open":
		if len(os.Args) < 3 {
			fmt.Fprintln(os.Stderr, "Usage: chat open <conversation-id>")
			os.Exit(1)
		}
		exitOnError(session.OpenConversation(ctx, os.Args[2]))
		printMessages(session, os.Args[2])

	case "start-seller":
		if len(os.Args) < 3 {
			fmt.Fprintln(os.Stderr, "Usage: chat start-seller <seller-id>")
			os.Exit(1)
		}
		sellerID, err := strconv.ParseInt(os.Args[2], 10, 64)
		exitOnError(err)
		conversation, err := session.StartConversationWithSeller(ctx, sellerID)
		exitOnError(err)
		fmt.Printf("Conversation %s with %s\n", conversation.ID, conversation.Seller.DisplayName)

	case "start-customer":
		if len(os.Args) < 3 {
			fmt.Fprintln(os.Stderr, "Usage: chat start-customer <user-id>")
			os.Exit(1)
		}
		customerID, err := strconv.ParseInt(os.Args[2], 10, 64)
		exitOnError(err)
		conversation, err := session.StartConversationWithCustomer(ctx, customerID)
		exitOnError(err)
		fmt.Printf("Conversation %s with %s\n", conversation.ID, conversation.User.DisplayName)

	case "send":
		if len(os.Args) < 4 {
			fmt.Fprintln(os.Stderr, "Usage: chat send <conversation-id> <message>")
			os.Exit(1)
		}
		exitOnError(session.SendMessage(ctx, os.Args[2], strings.Join(os.Args[3:], " ")))
		fmt.Println("Sent")

	case "watch":
		watch(ctx, session)

	case "help", "--help", "-h":
		usage()

	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		usage()
		os.Exit(1)
	}
}

// watch keeps a live session open: the realtime feed updates the local
// caches while stdin lines are sent to the active conversation.
func watch(ctx context.Context, session *usecase.ChatSession) {
	exitOnError(session.Connect(ctx))
	defer session.Logout()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	lines := make(chan string)
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		close(lines)
	}()

	fmt.Println("Commands: /list, /open <id>, /quit; anything else is sent to the open conversation.")

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	var lastShown int

	for {
		select {
		case <-sigs:
			return
		case <-ticker.C:
			active := session.ActiveConversationID()
			if active == "" {
				continue
			}
			log := session.Messages(active)
			for _, m := range log[min(lastShown, len(log)):] {
				fmt.Printf("[%s] %d: %s\n", m.SentAt.Format("15:04:05"), m.SenderID, m.Content)
			}
			lastShown = len(log)
		case line, ok := <-lines:
			if !ok {
				return
			}
			switch {
			case line == "/quit":
				return
			case line == "/list":
				printConversations(session)
			case strings.HasPrefix(line, "/open "):
				id := strings.TrimSpace(strings.TrimPrefix(line, "/open "))
				if err := session.OpenConversation(ctx, id); err == nil {
					lastShown = 0
					printMessages(session, id)
					lastShown = len(session.Messages(id))
				}
			case strings.TrimSpace(line) != "":
				active := session.ActiveConversationID()
				if active == "" {
					fmt.Println("No open conversation; use /open <id>")
					continue
				}
				if err := session.SendMessage(ctx, active, line); err != nil {
					logger.Error("send failed: %v", err)
				}
			}
		}
	}
}

// refresh pulls the conversation list for one-shot commands that never
// activate the realtime transport.
func refresh(ctx context.Context, session *usecase.ChatSession, service *rest.ChatService) {
	conversations, err := service.ListConversations(ctx)
	exitOnError(err)
	session.ReplaceConversations(conversations)
}

func printConversations(session *usecase.ChatSession) {
	conversations := session.Conversations()
	if len(conversations) == 0 {
		fmt.Println("No conversations")
		return
	}
	viewer := session.CurrentUserID()
	for _, c := range conversations {
		partner := c.PartnerOf(viewer)
		marker := ""
		if unread := c.UnreadFor(viewer); unread > 0 {
			marker = fmt.Sprintf(" (%d new)", unread)
		}
		fmt.Printf("  %s  %s%s  %s\n", c.ID, partner.DisplayName, marker, c.LastMessageSnippet)
	}
}

func printMessages(session *usecase.ChatSession, conversationID string) {
	for _, m := range session.Messages(conversationID) {
		fmt.Printf("[%s] %d: %s\n", m.SentAt.Format("2006-01-02 15:04:05"), m.SenderID, m.Content)
	}
}

func usage() {
	fmt.Println(`Sellzy chat client

Usage: chat <command> [options]

Commands:
  conversations            List conversations, most recent first
  unread                   Show the total unread count
  open <id>                Open a conversation and print its messages
  start-seller <id>        Start (or resume) a conversation with a seller
  start-customer <id>      Start (or resume) a conversation with a customer
  send <id> <message>      Send a message (falls back to REST when offline)
  watch                    Keep a live session open and follow the feed

Environment:
  CHAT_SESSION_TOKEN       Bearer token (raw or cookie-style string)
  CHAT_USER_ID             Participant id override when the token lacks one
  CHAT_API_BASE_URL        Conversation service base URL
  CHAT_WS_ENDPOINT         Realtime endpoint (ws://.../ws/chat)`)
}

func exitOnError(err error) {
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
