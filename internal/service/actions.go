package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/sim31/fractalgram/internal/consensus"
	"github.com/sim31/fractalgram/internal/events"
	"github.com/sim31/fractalgram/internal/models"
	"github.com/sim31/fractalgram/internal/repository"
)

// SendAccountPrompt sends an account prompt to the chat. An empty message
// sends the standard prompt for the platform; a custom message must still
// parse as a prompt or replies to it would never be picked up.
func (s *Service) SendAccountPrompt(ctx context.Context, chatID, platform, message string) error {
	if chatID == "" {
		return fmt.Errorf("%w: chat id required", ErrValidation)
	}
	if strings.TrimSpace(platform) == "" {
		return fmt.Errorf("%w: platform required", ErrValidation)
	}
	if message == "" {
		message = consensus.ComposePrompt(platform)
	}
	if got, ok := consensus.PromptPlatform(message); !ok || got != platform {
		return fmt.Errorf("%w: message is not an account prompt for %q", ErrValidation, platform)
	}
	req := events.SendRequest{ID: uuid.NewString(), ChatID: chatID, Text: message}
	return s.sender.PublishSendRequest(ctx, req)
}

// CreateRankingPoll sends a ranking poll for one rank, with one option per
// roster member. Requires the chat's membership to be synced.
func (s *Service) CreateRankingPoll(ctx context.Context, chatID string, rank models.Rank) error {
	if !rank.Valid() {
		return fmt.Errorf("%w: rank %d out of range", ErrValidation, rank)
	}
	options, err := s.pollOptions(ctx, chatID)
	if err != nil {
		return err
	}
	req := events.SendRequest{
		ID:     uuid.NewString(),
		ChatID: chatID,
		Poll:   &events.PollSpec{Question: consensus.RenderRankPoll(rank), Options: options},
	}
	return s.sender.PublishSendRequest(ctx, req)
}

// CreateDelegatePoll sends a delegate selection poll.
func (s *Service) CreateDelegatePoll(ctx context.Context, chatID string) error {
	options, err := s.pollOptions(ctx, chatID)
	if err != nil {
		return err
	}
	req := events.SendRequest{
		ID:     uuid.NewString(),
		ChatID: chatID,
		Poll:   &events.PollSpec{Question: consensus.RenderDelegatePoll(), Options: options},
	}
	return s.sender.PublishSendRequest(ctx, req)
}

func (s *Service) pollOptions(ctx context.Context, chatID string) ([]string, error) {
	if chatID == "" {
		return nil, fmt.Errorf("%w: chat id required", ErrValidation)
	}
	roster, err := s.Roster(ctx, chatID)
	if err != nil {
		if errors.Is(err, repository.ErrUnavailable) {
			return nil, fmt.Errorf("%w: chat membership not synced", ErrPrecondition)
		}
		return nil, err
	}
	if len(roster) == 0 {
		return nil, fmt.Errorf("%w: chat has no members", ErrPrecondition)
	}
	order := make([]string, 0, len(roster))
	for id := range roster {
		order = append(order, id)
	}
	sort.Strings(order)
	return consensus.AccountOptions(roster, order, s.LatestPlatform(chatID)), nil
}
