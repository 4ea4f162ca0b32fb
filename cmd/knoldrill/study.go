package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/conorfennell/knoldrill/internal/domain"
	"github.com/conorfennell/knoldrill/internal/session"
)

// studier is the part of the session manager the interactive loop drives.
type studier interface {
	Start(ctx context.Context, req session.StartRequest) (session.View, error)
	Rate(ctx context.Context, id string, r domain.Rating) (session.View, error)
	Quit(ctx context.Context, id string) (session.View, error)
}

// studyLoop runs one session on the terminal. Each item shows its question,
// waits for Enter, shows the answer and reads a rating: 1-6, a rating name,
// or q to quit.
func studyLoop(ctx context.Context, s studier, req session.StartRequest, in io.Reader, out io.Writer) error {
	view, err := s.Start(ctx, req)
	if errors.Is(err, domain.ErrNothingDue) || errors.Is(err, domain.ErrNothingToStudy) {
		fmt.Fprintln(out, "Nothing to study right now.")
		return nil
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Session %s (%s, progress %s)\n", view.ID, view.Mode, view.ProgressID)

	scanner := bufio.NewScanner(in)
	for view.Status == session.StatusActive && view.Current != nil {
		if ctx.Err() != nil {
			break
		}
		fmt.Fprintf(out, "\nQ: %s\n", view.Current.Question)
		fmt.Fprint(out, "[Enter to reveal] ")
		if !scanner.Scan() {
			break
		}
		fmt.Fprintf(out, "A: %s\n", view.Current.Answer)
		if view.Current.Context != "" {
			fmt.Fprintf(out, "C: %s\n", view.Current.Context)
		}

		rating, quit, ok := promptRating(scanner, out)
		if !ok || quit {
			break
		}
		view, err = s.Rate(ctx, view.ID, rating)
		if err != nil {
			return err
		}
	}

	if view.Status == session.StatusActive {
		if view, err = s.Quit(context.WithoutCancel(ctx), view.ID); err != nil {
			return err
		}
	}
	sum := view.Summary
	fmt.Fprintf(out, "\nSession %s: %d answered, %d correct, best streak %d\n", view.Status, sum.Answered, sum.Correct, sum.BestStreak)
	return nil
}

// promptRating reads lines until one parses as a rating. ok is false when
// input ends.
func promptRating(scanner *bufio.Scanner, out io.Writer) (r domain.Rating, quit bool, ok bool) {
	for {
		fmt.Fprint(out, "Rate 1=again 2=hard 3=good 4=easy 5=perfect 6=superb, q=quit: ")
		if !scanner.Scan() {
			return domain.New, false, false
		}
		line := strings.ToLower(strings.TrimSpace(scanner.Text()))
		if line == "q" || line == "quit" {
			return domain.New, true, true
		}
		if r, err := parseRatingInput(line); err == nil {
			return r, false, true
		}
		fmt.Fprintf(out, "Unknown rating %q\n", line)
	}
}

func parseRatingInput(s string) (domain.Rating, error) {
	if n, err := strconv.Atoi(s); err == nil {
		ratings := domain.Ratings()
		if n < 1 || n > len(ratings) {
			return domain.New, fmt.Errorf("%w: %d", domain.ErrInvalidRating, n)
		}
		return ratings[n-1], nil
	}
	r, err := domain.ParseRating(s)
	if err != nil {
		return domain.New, err
	}
	if !r.IsValid() {
		return domain.New, fmt.Errorf("%w: %q", domain.ErrInvalidRating, s)
	}
	return r, nil
}
