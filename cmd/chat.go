package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/xhad/multibot/pkg/bot"
	"github.com/xhad/multibot/pkg/loader"
)

const chatHelp = `Commands:
  /persona [key]        list personas or switch to one
  /sessions             list chats of the active persona
  /new                  start a new chat
  /switch <id>          switch to a chat
  /rename <name>        rename the active chat
  /delete <id>          delete a chat
  /clear                clear the active chat
  /help                 show this help
  /quit                 exit
Anything else is sent as a question. A message with a URL loads that site
into the persona's index first.`

type repl struct {
	p         *platform
	user      func(format string, a ...interface{})
	assistant func(format string, a ...interface{})
	dim       func(format string, a ...interface{})
}

func newChatCmd(opts *rootOptions) *cobra.Command {
	var persona string

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Chat with the personas from the terminal",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			p, err := newPlatform(ctx, opts.config)
			if err != nil {
				return err
			}
			defer p.Close()

			if persona != "" {
				if err := p.bot.Registry().SelectPersona(persona); err != nil {
					return err
				}
			}

			r := &repl{
				p:         p,
				user:      color.New(color.FgGreen).PrintfFunc(),
				assistant: color.New(color.FgCyan).PrintfFunc(),
				dim:       color.New(color.FgHiBlack).PrintfFunc(),
			}
			return r.run(ctx)
		},
	}
	cmd.Flags().StringVar(&persona, "persona", "", "Persona to start with")
	return cmd
}

func (r *repl) run(ctx context.Context) error {
	active := r.p.bot.Registry().ActivePersona()
	color.Cyan("\nChatting with %s (type /help for commands, /quit to exit)", active.DisplayName)

	scanner := bufio.NewScanner(os.Stdin)
	for {
		r.user("\n[%s] You: ", r.p.bot.Registry().ActivePersona().Key)
		if !scanner.Scan() {
			return scanner.Err()
		}
		if ctx.Err() != nil {
			return nil
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "/") {
			if quit := r.command(line); quit {
				return nil
			}
			continue
		}
		r.ask(ctx, line)
	}
}

func (r *repl) command(line string) bool {
	name, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)

	registry := r.p.bot.Registry()
	sessions := r.p.bot.Sessions()
	persona := registry.ActivePersona().Key

	var err error
	switch name {
	case "/quit", "/exit":
		return true
	case "/help":
		fmt.Println(chatHelp)
	case "/persona":
		if arg == "" {
			for _, p := range registry.List() {
				marker := " "
				if p.Key == persona {
					marker = "*"
				}
				fmt.Printf("%s %-18s %s\n", marker, p.Key, p.DisplayName)
			}
			break
		}
		if err = registry.SelectPersona(arg); err == nil {
			color.Green("Switched to %s", registry.ActivePersona().DisplayName)
		}
	case "/sessions":
		var list []bot.SessionInfo
		if list, err = sessions.ListSessions(persona); err == nil {
			for _, s := range list {
				marker := " "
				if s.Active {
					marker = "*"
				}
				fmt.Printf("%s %s  %-12s %d messages\n", marker, s.ID, s.Name, s.Messages)
			}
		}
	case "/new":
		var info bot.SessionInfo
		if info, err = sessions.CreateSession(persona); err == nil {
			color.Green("Started %s (%s)", info.Name, info.ID)
		}
	case "/switch":
		if err = sessions.SwitchSession(persona, arg); err == nil {
			color.Green("Switched chat")
		}
	case "/rename":
		if err = sessions.RenameSession(persona, "", arg); err == nil {
			color.Green("Renamed chat to %s", arg)
		}
	case "/delete":
		if err = sessions.DeleteSession(persona, arg); err == nil {
			color.Green("Deleted chat")
		}
	case "/clear":
		if err = sessions.ClearSession(persona, ""); err == nil {
			color.Green("Cleared chat")
		}
	default:
		err = fmt.Errorf("unknown command %s, try /help", name)
	}

	if err != nil {
		color.Red("Error: %v", err)
	}
	return false
}

func (r *repl) ask(ctx context.Context, line string) {
	persona := r.p.bot.Registry().ActivePersona()

	if url := loader.FindURL(line); url != "" {
		if err := loadSite(ctx, r.p, persona.IndexName, url); err != nil {
			color.Red("Error: %v", err)
		}
		if strings.TrimSpace(line) == url {
			return
		}
	}

	spinner := getSpinner("Thinking...")
	turn, err := r.p.bot.Ask(ctx, persona.Key, "", line)
	spinner.Finish()
	fmt.Print("\r")

	var embedErr *bot.EmbeddingError
	switch {
	case errors.As(err, &embedErr):
		color.Red("Embedding failed: %v", embedErr.Err)
		return
	case err != nil:
		color.Red("Error: %v", err)
		return
	}

	r.dim("\nPlan:\n")
	for i, step := range turn.Plan {
		r.dim("  %d. %s\n", i+1, step)
	}

	r.assistant("\n%s: %s\n", persona.DisplayName, turn.Answer)
	if len(turn.Citations) > 0 {
		r.dim("Sources: %s\n", strings.Join(turn.Citations, ", "))
	}
	if turn.Notice != "" {
		color.Yellow("%s", turn.Notice)
	}
}
