// Command chatclient is an interactive client for chatserver.
//
// Commands:
//
//	/login <client_id> <password> <server-IP> <server-port>
//	/logout
//	/createsession <session_id> [password]
//	/joinsession <session_id> [password]
//	/leavesession
//	/directmessage <client_id> <message>
//	/list
//	/quit
//
// Any other line is sent to the current session.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cyberinferno/roomchat/chatclient"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Unblock the input loop so the shell can log out before exiting.
	go func() {
		<-ctx.Done()
		_ = os.Stdin.Close()
	}()

	sh := newShell(os.Stdout, chatclient.Dial, 10*time.Second)
	if err := sh.run(ctx, os.Stdin); err != nil {
		fmt.Fprintf(os.Stderr, "Client error: %v\n", err)
		os.Exit(1)
	}
}
