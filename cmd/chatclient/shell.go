package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/gookit/color"
	"github.com/olekukonko/tablewriter"

	"github.com/cyberinferno/roomchat/chatclient"
	"github.com/cyberinferno/roomchat/wire"
)

const (
	cmdLogin         = "/login"
	cmdLogout        = "/logout"
	cmdJoinSession   = "/joinsession"
	cmdLeaveSession  = "/leavesession"
	cmdCreateSession = "/createsession"
	cmdDirectMessage = "/directmessage"
	cmdList          = "/list"
	cmdQuit          = "/quit"
)

var errQuit = errors.New("quit")

type dialFunc func(ctx context.Context, cfg chatclient.Config) (*chatclient.Client, error)

// shell reads commands line by line and drives one chatclient.Client.
type shell struct {
	out     io.Writer
	outMu   sync.Mutex
	dial    dialFunc
	timeout time.Duration

	client *chatclient.Client
}

func newShell(out io.Writer, dial dialFunc, timeout time.Duration) *shell {
	return &shell{out: out, dial: dial, timeout: timeout}
}

// run processes lines from in until EOF or /quit.
func (s *shell) run(ctx context.Context, in io.Reader) error {
	s.printf("%s\n", color.Cyan.Sprintf("Welcome! Log in with %s <client_id> <password> <server-IP> <server-port>", cmdLogin))

	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		err := s.exec(ctx, scanner.Text())
		if errors.Is(err, errQuit) {
			break
		}

		if err != nil {
			s.printf("%s\n", color.Red.Render(err.Error()))
		}
	}

	if s.client != nil {
		_ = s.client.Logout()
	}

	// Input is closed on purpose when ctx is cancelled.
	if ctx.Err() != nil {
		return nil
	}

	return scanner.Err()
}

// exec runs one input line.
func (s *shell) exec(ctx context.Context, line string) error {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil
	}

	if !strings.HasPrefix(line, "/") {
		return s.say(line)
	}

	cmd, rest, _ := strings.Cut(line, " ")
	args := strings.Fields(rest)

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	switch cmd {
	case cmdLogin:
		if len(args) != 4 {
			return fmt.Errorf("usage: %s <client_id> <password> <server-IP> <server-port>", cmdLogin)
		}

		return s.login(ctx, args[0], args[1], net.JoinHostPort(args[2], args[3]))

	case cmdLogout:
		c, err := s.connected()
		if err != nil {
			return err
		}

		s.client = nil
		if err := c.Logout(); err != nil {
			return err
		}

		s.printf("%s\n", color.Yellow.Render("Logged out"))
		return nil

	case cmdCreateSession, cmdJoinSession:
		if len(args) < 1 || len(args) > 2 {
			return fmt.Errorf("usage: %s <session_id> [password]", cmd)
		}

		c, err := s.connected()
		if err != nil {
			return err
		}

		password := ""
		if len(args) == 2 {
			password = args[1]
		}

		if cmd == cmdCreateSession {
			err = c.CreateSession(ctx, args[0], password)
		} else {
			err = c.JoinSession(ctx, args[0], password)
		}

		if err != nil {
			return err
		}

		s.printf("%s\n", color.Green.Sprintf("Joined session %s", args[0]))
		return nil

	case cmdLeaveSession:
		c, err := s.connected()
		if err != nil {
			return err
		}

		name, err := c.LeaveSession(ctx)
		if err != nil {
			return err
		}

		s.printf("%s\n", color.Yellow.Sprintf("Left session %s", name))
		return nil

	case cmdDirectMessage:
		to, text, ok := strings.Cut(strings.TrimSpace(rest), " ")
		if !ok || strings.TrimSpace(text) == "" {
			return fmt.Errorf("usage: %s <client_id> <message>", cmdDirectMessage)
		}

		c, err := s.connected()
		if err != nil {
			return err
		}

		return c.DirectMessage(ctx, to, text)

	case cmdList:
		c, err := s.connected()
		if err != nil {
			return err
		}

		listing, err := c.Query(ctx)
		if err != nil {
			return err
		}

		s.outMu.Lock()
		defer s.outMu.Unlock()
		renderListing(s.out, listing)
		return nil

	case cmdQuit:
		return errQuit

	default:
		return fmt.Errorf("unknown command %s", cmd)
	}
}

func (s *shell) login(ctx context.Context, id, password, addr string) error {
	if s.client != nil {
		return errors.New("already logged in, /logout first")
	}

	c, err := s.dial(ctx, chatclient.Config{
		Address:           addr,
		ConnectionTimeout: s.timeout,
		WriteTimeout:      s.timeout,
		ReplyTimeout:      s.timeout,
	})
	if err != nil {
		return err
	}

	c.OnMessage(func(msg chatclient.Incoming) {
		s.printf("%s %s\n", color.Magenta.Sprintf("%s:", msg.From), msg.Text)
	})
	c.OnDisconnect(func(err error) {
		s.printf("%s\n", color.Red.Render("Disconnected from server"))
	})

	if err := c.Login(ctx, id, password); err != nil {
		_ = c.Close()
		return err
	}

	s.client = c
	s.printf("%s\n", color.Green.Sprintf("Logged in as %s", id))
	return nil
}

func (s *shell) say(text string) error {
	c, err := s.connected()
	if err != nil {
		return err
	}

	return c.Send(text)
}

func (s *shell) connected() (*chatclient.Client, error) {
	if s.client == nil {
		return nil, fmt.Errorf("not logged in, use %s first", cmdLogin)
	}

	if s.client.State() != chatclient.Connected {
		s.client = nil
		return nil, chatclient.ErrNotConnected
	}

	return s.client, nil
}

func (s *shell) printf(format string, a ...any) {
	s.outMu.Lock()
	defer s.outMu.Unlock()
	fmt.Fprintf(s.out, format, a...)
}

// renderListing prints clients and sessions side by side.
func renderListing(w io.Writer, l wire.Listing) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Clients Online", "Available Sessions"})
	table.SetAutoFormatHeaders(false)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetBorder(false)

	rows := max(len(l.Clients), len(l.Sessions))
	for i := 0; i < rows; i++ {
		row := []string{"", ""}
		if i < len(l.Clients) {
			row[0] = l.Clients[i]
		}

		if i < len(l.Sessions) {
			row[1] = l.Sessions[i]
		}

		table.Append(row)
	}

	table.Render()
}
