package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"

	"ai-workspace-editor/internal/bootstrap"
	"ai-workspace-editor/internal/dto"
	"ai-workspace-editor/internal/entity"
	"ai-workspace-editor/internal/service"
	"ai-workspace-editor/pkg/events"
	pktNats "ai-workspace-editor/pkg/nats"

	"github.com/fatih/color"
	"github.com/google/uuid"
)

var errUsage = errors.New("invalid arguments, run without arguments for usage")

func runRegister(ctx context.Context, c *bootstrap.Container, args []string) error {
	if len(args) != 3 {
		return errUsage
	}
	user, err := c.AuthService.Register(ctx, dto.RegisterRequest{
		Email:        args[0],
		UserNickname: args[1],
		Password:     args[2],
	})
	if err != nil {
		return err
	}
	color.Green("Registered %s (%s)", user.Nickname, user.Id)
	return nil
}

func runLogin(ctx context.Context, c *bootstrap.Container, args []string) error {
	email, password := os.Getenv("ASSISTANT_EMAIL"), os.Getenv("ASSISTANT_PASSWORD")
	if len(args) > 0 {
		email = args[0]
	}
	if len(args) > 1 {
		password = args[1]
	}
	user, err := c.AuthService.Login(ctx, dto.LoginRequest{Email: email, Password: password})
	if err != nil {
		return err
	}
	color.Green("Logged in as %s", user.Nickname)
	return nil
}

// ensureLogin reuses stored credentials and falls back to the environment.
func ensureLogin(ctx context.Context, c *bootstrap.Container) error {
	if c.AuthService.IsAuthenticated() {
		return nil
	}
	if os.Getenv("ASSISTANT_EMAIL") == "" {
		return fmt.Errorf("not logged in: set ASSISTANT_EMAIL and ASSISTANT_PASSWORD or use CREDENTIAL_STORE=redis")
	}
	return runLogin(ctx, c, nil)
}

func runLogout(ctx context.Context, c *bootstrap.Container, _ []string) error {
	if err := c.AuthService.Logout(ctx); err != nil {
		return err
	}
	color.Green("Logged out")
	return nil
}

func runWhoami(ctx context.Context, c *bootstrap.Container, _ []string) error {
	if err := ensureLogin(ctx, c); err != nil {
		return err
	}
	user, err := c.AuthService.CurrentUser(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("%s <%s> %s\n", user.Nickname, user.Email, user.Id)
	return nil
}

func runAssistants(ctx context.Context, c *bootstrap.Container, args []string) error {
	if err := ensureLogin(ctx, c); err != nil {
		return err
	}

	switch {
	case len(args) == 3 && args[0] == "create":
		created, err := c.AssistantService.Create(ctx, dto.CreateAssistantRequest{AssistantName: args[1], LlmProvider: args[2]})
		if err != nil {
			return err
		}
		color.Green("Created %s (%s)", created.AssistantName, created.AssistantId)
		return nil
	case len(args) == 2 && args[0] == "delete":
		if err := c.AssistantService.Delete(ctx, args[1]); err != nil {
			return err
		}
		color.Green("Deleted %s", args[1])
		return nil
	case len(args) != 0:
		return errUsage
	}

	assistants, err := c.AssistantService.List(ctx)
	if err != nil {
		return err
	}
	if len(assistants) == 0 {
		color.Yellow("No assistants yet")
	}
	for _, a := range assistants {
		fmt.Printf("%s  %-24s %s\n", a.AssistantId, a.AssistantName, color.HiBlackString(a.LlmProvider))
	}
	return nil
}

// selectAssistant picks by id or name, or the first assistant when none is given.
func selectAssistant(ctx context.Context, c *bootstrap.Container, idOrName string) (*dto.AssistantDTO, error) {
	if idOrName != "" {
		return c.AssistantService.Select(ctx, idOrName)
	}
	assistants, err := c.AssistantService.List(ctx)
	if err != nil {
		return nil, err
	}
	if len(assistants) == 0 {
		return nil, service.ErrAssistantNotFound
	}
	return c.AssistantService.Select(ctx, assistants[0].AssistantId)
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func refs(ids []string, category string) []entity.DocumentRef {
	out := make([]entity.DocumentRef, 0, len(ids))
	for _, id := range ids {
		out = append(out, entity.DocumentRef{Id: id, FileName: id, FileCategory: category})
	}
	return out
}

func runChat(ctx context.Context, c *bootstrap.Container, args []string) error {
	fs := flag.NewFlagSet("chat", flag.ContinueOnError)
	docId := fs.String("doc", "", "workspace document being edited")
	assistantName := fs.String("assistant", "", "assistant id or name")
	others := fs.String("others", "", "comma separated editable documents sent as context")
	references := fs.String("ref", "", "comma separated reference documents")
	stream := fs.Bool("stream", c.Config.App.StreamingEnabled, "stream the reply over the websocket")
	apply := fs.Bool("apply", false, "write the edited document back to the workspace")
	newConversation := fs.Bool("new", false, "start a new conversation")
	if err := fs.Parse(args); err != nil {
		return err
	}
	input := strings.Join(fs.Args(), " ")
	if *docId == "" || strings.TrimSpace(input) == "" {
		return errUsage
	}

	// 1. Session
	if err := ensureLogin(ctx, c); err != nil {
		return err
	}
	assistant, err := selectAssistant(ctx, c, *assistantName)
	if err != nil {
		return err
	}

	// 2. Conversation and document
	var conversation *entity.Conversation
	if *newConversation {
		conversation, err = c.ConversationService.Create(ctx, assistant.AssistantId)
	} else {
		conversation, err = c.ConversationService.Latest(ctx, assistant.AssistantId)
	}
	if err != nil {
		return err
	}
	document, err := c.Documents.Read(ctx, *docId)
	if err != nil {
		return err
	}

	// 3. Turn
	color.Cyan("%s › %s", assistant.AssistantName, input)
	printed := 0
	result, err := c.ChatService.SendMessage(ctx, service.ChatTurn{
		ConversationId:    conversation.Id,
		AssistantId:       assistant.AssistantId,
		Input:             input,
		Document:          document,
		OtherArticles:     refs(splitList(*others), entity.FileCategoryEditable),
		ReferenceArticles: refs(splitList(*references), entity.FileCategoryReference),
		Streaming:         stream,
		OnProgress: func(partial entity.Message) {
			if len(partial.Content) > printed {
				fmt.Print(partial.Content[printed:])
				printed = len(partial.Content)
			}
		},
	})
	if err != nil {
		if result != nil && result.RestoredInput != "" {
			color.Yellow("\nInput kept: %s", result.RestoredInput)
		}
		return err
	}

	reply := result.AssistantMessage
	if printed < len(reply.Content) {
		fmt.Print(reply.Content[printed:])
	}
	fmt.Println()

	// 4. Edits
	if result.EditedDocument == "" {
		if reply.EditedArticle != "" {
			color.Yellow("Reply carried an edit without line tags; document left as is")
		}
		return nil
	}
	color.Magenta("\n--- edited %s ---", document.FileName)
	fmt.Println(result.EditedDocument)
	if !*apply {
		color.HiBlack("(run with -apply to write the edit)")
		return nil
	}
	if _, err := c.VersionService.Create(ctx, document.Id, "before-edit", document.Content); err != nil {
		return err
	}
	if err := c.Documents.Write(ctx, document.Id, result.EditedDocument); err != nil {
		return err
	}
	color.Green("Applied edit to %s (previous content saved as a version)", document.Id)
	return nil
}

func runConversations(ctx context.Context, c *bootstrap.Container, args []string) error {
	fs := flag.NewFlagSet("conversations", flag.ContinueOnError)
	assistantName := fs.String("assistant", "", "assistant id or name")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := ensureLogin(ctx, c); err != nil {
		return err
	}
	assistant, err := selectAssistant(ctx, c, *assistantName)
	if err != nil {
		return err
	}

	rest := fs.Args()
	switch {
	case len(rest) == 2 && rest[0] == "show":
		id, err := uuid.Parse(rest[1])
		if err != nil {
			return err
		}
		conversation, err := c.ConversationService.Get(ctx, id)
		if err != nil {
			return err
		}
		for _, m := range conversation.Messages {
			if m.Role == entity.RoleUser {
				color.Cyan("you › %s", m.Content)
			} else {
				fmt.Printf("%s › %s\n", assistant.AssistantName, m.Content)
			}
		}
		return nil
	case len(rest) == 2 && rest[0] == "delete":
		id, err := uuid.Parse(rest[1])
		if err != nil {
			return err
		}
		return c.ConversationService.Delete(ctx, id)
	case len(rest) == 1 && rest[0] == "clear":
		return c.ConversationService.DeleteAll(ctx, assistant.AssistantId)
	case len(rest) != 0:
		return errUsage
	}

	conversations, err := c.ConversationService.List(ctx, assistant.AssistantId)
	if err != nil {
		return err
	}
	for _, conv := range conversations {
		fmt.Printf("%s  %s  %d messages\n", conv.Id, conv.LastUpdateTime.Format("2006-01-02 15:04"), len(conv.Messages))
	}
	return nil
}

func runVersions(ctx context.Context, c *bootstrap.Container, args []string) error {
	fs := flag.NewFlagSet("versions", flag.ContinueOnError)
	docId := fs.String("doc", "", "workspace document")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *docId == "" {
		return errUsage
	}

	rest := fs.Args()
	if len(rest) == 2 && rest[0] == "save" {
		document, err := c.Documents.Read(ctx, *docId)
		if err != nil {
			return err
		}
		version, err := c.VersionService.Create(ctx, *docId, rest[1], document.Content)
		if err != nil {
			return err
		}
		color.Green("Saved %s", version.FilePath)
		return nil
	}

	versions, err := c.VersionService.List(ctx, *docId)
	if err != nil {
		return err
	}
	find := func(path string) (*entity.DocumentVersion, error) {
		for _, v := range versions {
			if v.FilePath == path || v.Name == path {
				return v, nil
			}
		}
		return nil, fmt.Errorf("no version %q for %s", path, *docId)
	}

	switch {
	case len(rest) == 2 && rest[0] == "revert":
		v, err := find(rest[1])
		if err != nil {
			return err
		}
		if _, err := c.VersionService.Revert(ctx, *docId, v); err != nil {
			return err
		}
		color.Green("Reverted %s to %s", *docId, v.Name)
		return nil
	case len(rest) == 2 && rest[0] == "delete":
		v, err := find(rest[1])
		if err != nil {
			return err
		}
		return c.VersionService.Delete(ctx, v)
	case len(rest) != 0:
		return errUsage
	}

	for _, v := range versions {
		fmt.Printf("%s  %-20s %s\n", v.Timestamp.Format("2006-01-02 15:04:05"), v.Name, color.HiBlackString(v.FilePath))
	}
	return nil
}

func runEvents(ctx context.Context, c *bootstrap.Container, args []string) error {
	if c.Config.Events.NatsURL == "" {
		return fmt.Errorf("NATS_URL is not set")
	}
	eventType := "*"
	if len(args) > 0 {
		eventType = args[0]
	}

	sub, err := pktNats.NewSubscriber(c.Config.Events.NatsURL, c.Logger)
	if err != nil {
		return err
	}
	defer sub.Close()

	err = sub.Subscribe(ctx, eventType, "", func(_ context.Context, event events.Event) error {
		fmt.Printf("%s  %s  %v\n",
			event.Timestamp().Format("15:04:05"),
			color.YellowString(event.EventType()),
			event.Payload())
		return nil
	})
	if err != nil {
		return err
	}

	color.Cyan("Tailing %s events, Ctrl+C to stop", eventType)
	<-ctx.Done()
	return nil
}
