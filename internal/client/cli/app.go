package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"

	"github.com/dmitrijs2005/gophrelay/internal/client/client"
	"github.com/dmitrijs2005/gophrelay/internal/client/config"
	"github.com/dmitrijs2005/gophrelay/internal/common"
	"github.com/dmitrijs2005/gophrelay/internal/logging"
)

var errNotLoggedIn = errors.New("log in first")

type App struct {
	config *config.Config
	client *client.Client
	logger logging.Logger
	reader *bufio.Reader
	out    io.Writer

	mu       sync.Mutex
	userName string
	presence map[string]bool
}

// NewApp connects to the relay named in c.
func NewApp(ctx context.Context, c *config.Config, in io.Reader, out io.Writer, logger logging.Logger) (*App, error) {
	dialCtx, cancel := context.WithTimeout(ctx, c.RequestTimeout)
	defer cancel()

	cl, err := client.Dial(dialCtx, c.ServerURL, logger)
	if err != nil {
		return nil, err
	}

	return &App{
		config:   c,
		client:   cl,
		logger:   logger.With("module", "cli"),
		reader:   bufio.NewReader(in),
		out:      &syncWriter{w: out},
		presence: make(map[string]bool),
	}, nil
}

// syncWriter serializes REPL output with event output.
type syncWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *syncWriter) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(p)
}

// Run starts the REPL and blocks until the user exits.
func (a *App) Run(ctx context.Context) {
	defer a.client.Close()

	go a.watchEvents()

	fmt.Fprintln(a.out, "Welcome to the relay client (type 'help' for commands)")
	runREPL(ctx, a, a.status, a.reader, a.out)
}

func (a *App) status() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.userName == "" {
		return ""
	}
	return "(" + a.userName + ")"
}

func (a *App) isLoggedIn() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.userName != ""
}

func (a *App) requestCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, a.config.RequestTimeout)
}

func (a *App) credentials() (string, string, error) {
	user, err := GetSimpleText(a.reader, "Username", a.out)
	if err != nil {
		return "", "", err
	}
	password, err := GetPassword(a.out)
	if err != nil {
		return "", "", err
	}
	return user, password, nil
}

func (a *App) Register(ctx context.Context) error {
	user, password, err := a.credentials()
	if err != nil {
		return err
	}

	ctx, cancel := a.requestCtx(ctx)
	defer cancel()

	if err := a.client.Register(ctx, user, password); err != nil {
		return err
	}
	fmt.Fprintln(a.out, "Registered", user)
	return nil
}

// Login authenticates and joins, then prints the friend list.
func (a *App) Login(ctx context.Context) error {
	user, password, err := a.credentials()
	if err != nil {
		return err
	}

	ctx, cancel := a.requestCtx(ctx)
	defer cancel()

	if err := a.client.Login(ctx, user, password); err != nil {
		return err
	}
	snapshot, err := a.client.Join(ctx, a.client.UserName(), "")
	if err != nil {
		return err
	}

	a.mu.Lock()
	a.userName = a.client.UserName()
	for friend, online := range snapshot {
		a.presence[friend] = online
	}
	a.mu.Unlock()

	return a.Friends(ctx)
}

func (a *App) AddFriend(ctx context.Context, friend string) error {
	if !a.isLoggedIn() {
		return errNotLoggedIn
	}

	ctx, cancel := a.requestCtx(ctx)
	defer cancel()

	if err := a.client.AddFriend(ctx, friend); err != nil {
		return err
	}

	a.mu.Lock()
	if _, ok := a.presence[friend]; !ok {
		a.presence[friend] = false
	}
	a.mu.Unlock()

	fmt.Fprintln(a.out, "Friend added:", friend)
	return nil
}

func (a *App) Send(_ context.Context, friend, text string) error {
	if !a.isLoggedIn() {
		return errNotLoggedIn
	}
	err := a.client.SendMessage(friend, text)
	if errors.Is(err, common.ErrNoPeerKey) {
		return fmt.Errorf("%s has no key with you yet, wait until they are online: %w", friend, err)
	}
	return err
}

// Friends prints every known friend with its presence.
func (a *App) Friends(_ context.Context) error {
	if !a.isLoggedIn() {
		return errNotLoggedIn
	}

	a.mu.Lock()
	names := make([]string, 0, len(a.presence))
	for name := range a.presence {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	b.WriteString("Friends:\n")
	for _, name := range names {
		state := "offline"
		if a.presence[name] {
			state = "online"
		}
		fmt.Fprintf(&b, "  %s (%s)\n", name, state)
	}
	a.mu.Unlock()

	if len(names) == 0 {
		fmt.Fprintln(a.out, "No friends yet")
		return nil
	}
	_, err := io.WriteString(a.out, b.String())
	return err
}

// Logout ends the session. The server closes the connection afterwards.
func (a *App) Logout(_ context.Context) error {
	if !a.isLoggedIn() {
		return errNotLoggedIn
	}
	if err := a.client.Disconnect(a.client.UserName(), ""); err != nil {
		return err
	}

	a.mu.Lock()
	a.userName = ""
	a.presence = make(map[string]bool)
	a.mu.Unlock()

	fmt.Fprintln(a.out, "Logged out")
	return nil
}
