// Package terminal reads scans and operator answers from a line-oriented
// input such as a USB card reader in keyboard mode.
package terminal

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/crucial707/keykiosk/internal/checkout"
	"github.com/crucial707/keykiosk/internal/models"
	"github.com/crucial707/keykiosk/internal/timeutil"
)

// ErrClosed is returned once the input is exhausted.
var ErrClosed = errors.New("input closed")

// Terminal implements checkout.Prompter. Scans and prompt answers share one
// input, so a prompt consumes the next line.
type Terminal struct {
	out   io.Writer
	lines chan string
	zone  *time.Location
}

// New starts reading in from a background goroutine.
func New(in io.Reader, out io.Writer, zone *time.Location) *Terminal {
	t := &Terminal{out: out, lines: make(chan string), zone: zone}
	go func() {
		defer close(t.lines)
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			t.lines <- sc.Text()
		}
	}()
	return t
}

// ReadLine waits for the next line.
func (t *Terminal) ReadLine(ctx context.Context) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case line, ok := <-t.lines:
		if !ok {
			return "", ErrClosed
		}
		return strings.TrimSpace(line), nil
	}
}

// Printf writes to the operator.
func (t *Terminal) Printf(format string, args ...any) {
	fmt.Fprintf(t.out, format, args...)
}

func (t *Terminal) ask(ctx context.Context, prompt string) (string, error) {
	t.Printf("%s: ", prompt)
	return t.ReadLine(ctx)
}

func (t *Terminal) ClassifyUnknown(ctx context.Context, id string) (checkout.Identity, error) {
	t.Printf("Unknown scan %q.\n", id)
	answer, err := t.ask(ctx, "Is this a [k]eycard or an [a]sset? (blank cancels)")
	if err != nil {
		return checkout.IdentityUnknown, err
	}
	switch strings.ToLower(answer) {
	case "k", "keycard", "card":
		return checkout.IdentityKeycard, nil
	case "a", "asset", "fob":
		return checkout.IdentityAsset, nil
	}
	return checkout.IdentityUnknown, nil
}

func (t *Terminal) RegisterUser(ctx context.Context, card string) (models.UserDetails, error) {
	first, err := t.ask(ctx, "First name")
	if err != nil || first == "" {
		return models.UserDetails{}, err
	}
	last, err := t.ask(ctx, "Last name")
	if err != nil {
		return models.UserDetails{}, err
	}
	return models.UserDetails{FirstName: first, LastName: last}, nil
}

func (t *Terminal) RegisterAsset(ctx context.Context, code string) (models.AssetDetails, error) {
	name, err := t.ask(ctx, "Asset name")
	if err != nil || name == "" {
		return models.AssetDetails{}, err
	}
	category, err := t.ask(ctx, fmt.Sprintf("Category [%s]", models.DefaultCategory))
	if err != nil {
		return models.AssetDetails{}, err
	}
	location, err := t.ask(ctx, fmt.Sprintf("Location [%s]", models.DefaultLocation))
	if err != nil {
		return models.AssetDetails{}, err
	}
	return models.AssetDetails{Name: name, Category: category, Location: location}.Normalize(), nil
}

func (t *Terminal) ConfirmReservedCheckout(ctx context.Context, u models.User, a models.Asset, r models.Reservation) (bool, error) {
	t.Printf("%s is reserved for %s at %s.\n", a.Name, r.ReservedFor(),
		r.ReservedAt.In(t.location()).Format(timeutil.DisplayLayout))
	if r.Reason != "" {
		t.Printf("Reason: %s\n", r.Reason)
	}
	answer, err := t.ask(ctx, fmt.Sprintf("Check it out to %s anyway? [y/N]", u.FullName()))
	if err != nil {
		return false, err
	}
	answer = strings.ToLower(answer)
	return answer == "y" || answer == "yes", nil
}

func (t *Terminal) location() *time.Location {
	if t.zone == nil {
		return time.Local
	}
	return t.zone
}
