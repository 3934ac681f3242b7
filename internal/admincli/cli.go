// Package admincli implements the accountctl maintenance commands.
package admincli

import (
	"bytes"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"

	"github.com/dmitrijs2005/accountkeeper/internal/common"
	"github.com/dmitrijs2005/accountkeeper/internal/flagx"
	"github.com/dmitrijs2005/accountkeeper/internal/server/models"
	"github.com/dmitrijs2005/accountkeeper/internal/server/services"
)

const usage = `usage: accountctl bootstrap-admin -email EMAIL [-name NAME]`

var ErrUsage = errors.New(usage)

type Bootstrapper interface {
	BootstrapAdmin(ctx context.Context, name, email, password string) (*models.Account, error)
}

type CLI struct {
	out  io.Writer
	boot Bootstrapper

	// readPassword reads one line without echo; replaced in tests.
	readPassword func() ([]byte, error)
}

func New(out io.Writer, boot Bootstrapper) *CLI {
	return &CLI{
		out:  out,
		boot: boot,
		readPassword: func() ([]byte, error) {
			return term.ReadPassword(int(os.Stdin.Fd()))
		},
	}
}

// Run dispatches args (without the program name) to a command.
func (c *CLI) Run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return ErrUsage
	}

	switch args[0] {
	case "bootstrap-admin":
		return c.bootstrapAdmin(ctx, args[1:])
	default:
		return fmt.Errorf("unknown command %q: %w", args[0], ErrUsage)
	}
}

func (c *CLI) bootstrapAdmin(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("bootstrap-admin", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	email := fs.String("email", "", "administrator email")
	name := fs.String("name", "Administrator", "administrator display name")

	if err := fs.Parse(flagx.FilterArgs(args, []string{"-email", "-name"})); err != nil {
		return fmt.Errorf("%v: %w", err, ErrUsage)
	}
	if strings.TrimSpace(*email) == "" {
		return ErrUsage
	}

	pw, err := c.promptPassword("Password: ")
	if err != nil {
		return err
	}
	defer common.WipeByteArray(pw)

	confirm, err := c.promptPassword("Repeat password: ")
	if err != nil {
		return err
	}
	defer common.WipeByteArray(confirm)

	if !bytes.Equal(pw, confirm) {
		return errors.New("passwords do not match")
	}

	acc, err := c.boot.BootstrapAdmin(ctx, *name, *email, string(pw))
	if errors.Is(err, services.ErrAdminExists) {
		fmt.Fprintln(c.out, "An active administrator already exists, nothing to do.")
		return nil
	}
	if err != nil {
		return err
	}

	fmt.Fprintf(c.out, "Created administrator %s (%s)\n", acc.Email, acc.ID)
	return nil
}

func (c *CLI) promptPassword(prompt string) ([]byte, error) {
	if _, err := fmt.Fprint(c.out, prompt); err != nil {
		return nil, err
	}
	pw, err := c.readPassword()
	fmt.Fprintln(c.out)
	if err != nil {
		return nil, fmt.Errorf("read password: %w", err)
	}
	return pw, nil
}
