package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"ai-workspace-editor/internal/bootstrap"
	"ai-workspace-editor/internal/config"

	"github.com/fatih/color"
)

type command struct {
	usage string
	run   func(ctx context.Context, c *bootstrap.Container, args []string) error
}

var commands = map[string]command{
	"register":      {"register <email> <nickname> <password>", runRegister},
	"login":         {"login [email] [password]  (defaults: ASSISTANT_EMAIL, ASSISTANT_PASSWORD)", runLogin},
	"logout":        {"logout", runLogout},
	"whoami":        {"whoami", runWhoami},
	"assistants":    {"assistants [create <name> <provider> | delete <id>]", runAssistants},
	"chat":          {"chat -doc <file> [-assistant name] [-ref a.md,b.md] [-stream=false] [-apply] <message>", runChat},
	"conversations": {"conversations -assistant <name> [show <id> | delete <id> | clear]", runConversations},
	"versions":      {"versions -doc <file> [save <name> | revert <file_path> | delete <file_path>]", runVersions},
	"events":        {"events [type]  (tails NATS_URL)", runEvents},
}

func usage() {
	color.Cyan("Usage: assistant <command> [arguments]\n")
	for _, name := range []string{"register", "login", "logout", "whoami", "assistants", "chat", "conversations", "versions", "events"} {
		fmt.Printf("  %s\n", commands[name].usage)
	}
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}
	cmd, ok := commands[os.Args[1]]
	if !ok {
		color.Red("Unknown command %q\n", os.Args[1])
		usage()
		os.Exit(2)
	}

	// 1. Load Configuration
	cfg := config.Load()

	// 2. Bootstrap Dependencies (Container)
	container, err := bootstrap.NewContainer(cfg)
	if err != nil {
		color.Red("Startup failed: %v", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	// 3. Run
	runErr := cmd.run(ctx, container, os.Args[2:])
	stop()
	_ = container.Close(context.Background())

	if runErr != nil {
		color.Red("Failed: %v", runErr)
		os.Exit(1)
	}
}
