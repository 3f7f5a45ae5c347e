package protocol

import (
	"errors"
	"fmt"

	"github.com/cyberinferno/roomchat/credential"
	"github.com/cyberinferno/roomchat/session"
)

// Reason strings carried in NAK records. Clients display them verbatim.
const (
	reasonUnknownUser          = "Username does not exist!"
	reasonWrongPassword        = "Password is incorrect!"
	reasonAlreadyLoggedIn      = "User is already logged in!"
	reasonLoginUnavailable     = "Login is unavailable, try again later!"
	reasonLoginFirst           = "Please log in first!"
	reasonAlreadyLoggedInHere  = "Already logged in!"
	reasonAlreadyInSession     = "Already in a session!"
	reasonNoSessionName        = "No session ID was provided!"
	reasonSessionExists        = "Session already exists!"
	reasonSessionNotFound      = "Session not found!"
	reasonSessionWrongPassword = "Password is incorrect!"
	reasonNotInSession         = "Not in a session!"
	reasonSelfSend             = "Can't send message to yourself!"
)

func loginReason(err error) string {
	switch {
	case errors.Is(err, credential.ErrUnknownUser):
		return reasonUnknownUser
	case errors.Is(err, credential.ErrWrongSecret):
		return reasonWrongPassword
	case errors.Is(err, credential.ErrAlreadyLoggedIn):
		return reasonAlreadyLoggedIn
	default:
		return reasonLoginUnavailable
	}
}

func sessionReason(err error) string {
	switch {
	case errors.Is(err, session.ErrAlreadyInSession):
		return reasonAlreadyInSession
	case errors.Is(err, session.ErrEmptyName):
		return reasonNoSessionName
	case errors.Is(err, session.ErrNameTaken):
		return reasonSessionExists
	case errors.Is(err, session.ErrNotFound):
		return reasonSessionNotFound
	case errors.Is(err, session.ErrWrongPassword):
		return reasonSessionWrongPassword
	case errors.Is(err, session.ErrNotInSession):
		return reasonNotInSession
	default:
		return err.Error()
	}
}

func unknownRecipientReason(id string) string {
	return fmt.Sprintf("User '%s' does not exist!", id)
}
