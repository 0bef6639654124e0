package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
)

// execIface is the command surface the REPL drives.
type execIface interface {
	isLoggedIn() bool
	Register(ctx context.Context) error
	Login(ctx context.Context) error
	AddFriend(ctx context.Context, friend string) error
	Send(ctx context.Context, friend, text string) error
	Friends(ctx context.Context) error
	Logout(ctx context.Context) error
}

const (
	helpLoggedOut = "Available commands: register, login, exit"
	helpLoggedIn  = "Available commands: add <user>, msg <user> <text>, friends, logout, exit"
)

// runREPL dispatches one command per input line until EOF, "exit" or
// "quit". Command errors are printed and the loop continues.
func runREPL(ctx context.Context, a execIface, statusFn func() string, reader *bufio.Reader, w io.Writer) {
	for {
		fmt.Fprintf(w, "relay %s> ", statusFn())

		line, err := reader.ReadString('\n')
		if err != nil && line == "" {
			return
		}
		cmd, rest, _ := strings.Cut(strings.TrimSpace(line), " ")
		rest = strings.TrimSpace(rest)

		var cmdErr error
		switch cmd {
		case "":
			continue

		case "help":
			if a.isLoggedIn() {
				fmt.Fprintln(w, helpLoggedIn)
			} else {
				fmt.Fprintln(w, helpLoggedOut)
			}

		case "register":
			cmdErr = a.Register(ctx)

		case "login":
			cmdErr = a.Login(ctx)

		case "add":
			if rest == "" {
				fmt.Fprintln(w, "Usage: add <user>")
				continue
			}
			cmdErr = a.AddFriend(ctx, rest)

		case "msg":
			friend, text, ok := strings.Cut(rest, " ")
			if !ok || friend == "" || text == "" {
				fmt.Fprintln(w, "Usage: msg <user> <text>")
				continue
			}
			cmdErr = a.Send(ctx, friend, text)

		case "friends":
			cmdErr = a.Friends(ctx)

		case "logout":
			cmdErr = a.Logout(ctx)

		case "exit", "quit":
			fmt.Fprintln(w, "Bye!")
			return

		default:
			fmt.Fprintln(w, "Unknown command:", cmd)
		}

		if cmdErr != nil {
			fmt.Fprintln(w, "Error:", cmdErr)
		}
	}
}
