package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/chzyer/readline"

	"github.com/dotsetgreg/memvault/pkg/memory"
)

const shellHelp = `Commands:
  save <text>        save a memory for the current user
  search <query>     semantic search scoped to the current user
  list               list memories for the current user
  get <file_id>      fetch one memory's content and attributes
  rm <file_id>       delete a memory
  health             health snapshot
  user [id]          show or switch the current user
  help               this text
  exit               leave the shell`

func runShell(cfgPath, userID string) error {
	svc, cleanup, err := newService(cfgPath)
	if err != nil {
		return err
	}
	defer cleanup()

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          appName + "> ",
		HistoryFile:     filepath.Join(os.TempDir(), ".memvault_history"),
		HistoryLimit:    100,
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return fmt.Errorf("initialize readline: %w", err)
	}
	defer rl.Close()

	fmt.Printf("%s shell, user %q (help for commands, Ctrl+C to exit)\n", appName, userID)

	ctx := context.Background()
	for {
		line, err := rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt || err == io.EOF {
				fmt.Println("Goodbye!")
				return nil
			}
			fmt.Printf("Error reading input: %v\n", err)
			continue
		}

		cmd, rest := splitCommand(line)
		switch cmd {
		case "":
			continue
		case "exit", "quit":
			fmt.Println("Goodbye!")
			return nil
		case "help":
			fmt.Println(shellHelp)
		case "user":
			if rest != "" {
				userID = rest
			}
			fmt.Printf("user %q\n", userID)
		case "health":
			printResult(svc.Health(), nil)
		case "save":
			if rest == "" {
				fmt.Println("usage: save <text>")
				continue
			}
			res, err := svc.Save(ctx, memory.SaveRequest{Memory: rest, UserID: userID})
			printResult(res, err)
		case "search":
			if rest == "" {
				fmt.Println("usage: search <query>")
				continue
			}
			res, err := svc.Search(ctx, rest, memory.SearchOptions{
				UserID:     userID,
				MaxResults: 8,
				FullItems:  true,
			})
			printResult(res, err)
		case "list":
			res, err := svc.List(ctx, memory.ListOptions{
				UserID:       userID,
				Limit:        20,
				StatusFilter: "completed",
			})
			printResult(res, err)
		case "get":
			if rest == "" {
				fmt.Println("usage: get <file_id>")
				continue
			}
			res, err := svc.GetContent(ctx, rest)
			printResult(res, err)
		case "rm":
			if rest == "" {
				fmt.Println("usage: rm <file_id>")
				continue
			}
			res, err := svc.Delete(ctx, rest)
			printResult(res, err)
		default:
			fmt.Printf("unknown command %q (try help)\n", cmd)
		}
	}
}

func splitCommand(line string) (cmd, rest string) {
	line = strings.TrimSpace(line)
	if line == "" {
		return "", ""
	}
	parts := strings.SplitN(line, " ", 2)
	cmd = strings.ToLower(parts[0])
	if len(parts) == 2 {
		rest = strings.TrimSpace(parts[1])
	}
	return cmd, rest
}

func printResult(v any, err error) {
	if err != nil {
		fmt.Printf("error: %v\n", err)
		return
	}
	if jErr := printJSON(v); jErr != nil {
		fmt.Printf("error: %v\n", jErr)
	}
}
