// Package updates applies account update commands published on the message bus to the
// local directory.
package updates

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/segmentio/kafka-go"

	"credential-authority/internal/account/domain"
	"credential-authority/internal/account/repository"
)

// ErrMalformed is returned for messages that are not a valid update command.
var ErrMalformed = errors.New("updates: malformed command")

// Command is the wire form of one update: the account id and the fields to change.
type Command struct {
	ID      string       `json:"id"`
	Updates domain.Patch `json:"updates"`
}

// Reader is the subset of *kafka.Reader the consumer needs.
type Reader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
}

// Consumer reads commands and applies them to a directory.
type Consumer struct {
	reader Reader
	dir    repository.Directory
}

// NewConsumer returns a Consumer applying commands from reader to dir.
func NewConsumer(reader Reader, dir repository.Directory) *Consumer {
	return &Consumer{reader: reader, dir: dir}
}

// Apply decodes one message and updates the account it names. Password hashes never
// travel over the bus and are dropped from the patch.
func Apply(ctx context.Context, dir repository.Directory, value []byte) (*domain.Account, error) {
	var cmd Command
	if err := json.Unmarshal(value, &cmd); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	cmd.ID = strings.TrimSpace(cmd.ID)
	if cmd.ID == "" {
		return nil, fmt.Errorf("%w: missing id", ErrMalformed)
	}
	cmd.Updates.PasswordHash = nil
	return dir.Update(ctx, domain.Filter{ID: cmd.ID}, cmd.Updates)
}

// Run consumes until ctx is done. Bad messages and failed updates are logged and skipped
// so one poison message cannot stall the partition.
func (c *Consumer) Run(ctx context.Context) error {
	for {
		msg, err := c.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			log.Printf("updates: kafka read error: %v", err)
			continue
		}
		acc, err := Apply(ctx, c.dir, msg.Value)
		switch {
		case err == nil:
			log.Printf("updates: applied update to account %s", acc.ID)
		case errors.Is(err, domain.ErrNotFound):
			log.Printf("updates: offset %d: account not found", msg.Offset)
		default:
			log.Printf("updates: offset %d: %v", msg.Offset, err)
		}
	}
}
