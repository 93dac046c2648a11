package auth

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/dmitrijs2005/notesync/internal/client/models"
	"golang.org/x/term"
)

// readPassword is a test seam for term.ReadPassword.
var readPassword = term.ReadPassword

// TerminalPrompter asks for a credential on the terminal. Secrets are read
// without echo.
type TerminalPrompter struct {
	Reader *bufio.Reader
	Out    io.Writer
	// Backend is "drive" (asks for an access token) or "s3" (asks for a
	// key pair).
	Backend string
}

func (p *TerminalPrompter) Prompt(ctx context.Context) (models.Credential, error) {
	if err := ctx.Err(); err != nil {
		return models.Credential{}, err
	}

	switch p.Backend {
	case "s3":
		id, err := p.readLine("Access key id: ")
		if err != nil {
			return models.Credential{}, err
		}
		secret, err := p.readSecret("Secret access key: ")
		if err != nil {
			return models.Credential{}, err
		}
		return models.Credential{AccessKeyID: id, SecretAccessKey: secret}, nil
	default:
		token, err := p.readSecret("Access token: ")
		if err != nil {
			return models.Credential{}, err
		}
		return models.Credential{AccessToken: token}, nil
	}
}

func (p *TerminalPrompter) readLine(prompt string) (string, error) {
	if _, err := fmt.Fprint(p.Out, prompt); err != nil {
		return "", err
	}
	line, err := p.Reader.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && len(line) > 0) {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

func (p *TerminalPrompter) readSecret(prompt string) (string, error) {
	if _, err := fmt.Fprint(p.Out, prompt); err != nil {
		return "", err
	}
	b, err := readPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(p.Out)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(b)), nil
}
