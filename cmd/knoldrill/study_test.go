package main

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/conorfennell/knoldrill/internal/domain"
	"github.com/conorfennell/knoldrill/internal/session"
)

// fakeStudier serves a fixed list of questions and records ratings.
type fakeStudier struct {
	questions []string
	startErr  error
	rated     []domain.Rating
	quit      bool
}

func (f *fakeStudier) view() session.View {
	v := session.View{ID: "s1", Mode: session.ModeMastery, Status: session.StatusActive}
	if len(f.rated) >= len(f.questions) {
		v.Status = session.StatusFinished
	} else {
		q := f.questions[len(f.rated)]
		v.Current = &session.ItemView{ID: domain.ItemID(q), Question: q, Answer: "answer to " + q}
	}
	v.Summary.Answered = len(f.rated)
	return v
}

func (f *fakeStudier) Start(ctx context.Context, req session.StartRequest) (session.View, error) {
	if f.startErr != nil {
		return session.View{}, f.startErr
	}
	return f.view(), nil
}

func (f *fakeStudier) Rate(ctx context.Context, id string, r domain.Rating) (session.View, error) {
	f.rated = append(f.rated, r)
	return f.view(), nil
}

func (f *fakeStudier) Quit(ctx context.Context, id string) (session.View, error) {
	f.quit = true
	v := f.view()
	v.Status = session.StatusQuit
	v.Current = nil
	return v, nil
}

func TestStudyLoopFinishes(t *testing.T) {
	f := &fakeStudier{questions: []string{"one", "two"}}
	in := strings.NewReader("\n3\n\nbogus\nsuperb\n")
	var out bytes.Buffer

	if err := studyLoop(context.Background(), f, session.StartRequest{Mode: session.ModeMastery}, in, &out); err != nil {
		t.Fatalf("studyLoop failed: %v", err)
	}
	if len(f.rated) != 2 || f.rated[0] != domain.Good || f.rated[1] != domain.Superb {
		t.Errorf("Expected ratings [good superb], but got %v", f.rated)
	}
	if f.quit {
		t.Error("Expected a finished session not to be quit")
	}
	if !strings.Contains(out.String(), "A: answer to two") || !strings.Contains(out.String(), `Unknown rating "bogus"`) {
		t.Errorf("Unexpected output:\n%s", out.String())
	}
}

func TestStudyLoopQuit(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"explicit quit", "\nq\n"},
		{"end of input", "\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := &fakeStudier{questions: []string{"one", "two"}}
			var out bytes.Buffer
			if err := studyLoop(context.Background(), f, session.StartRequest{}, strings.NewReader(tt.input), &out); err != nil {
				t.Fatalf("studyLoop failed: %v", err)
			}
			if !f.quit {
				t.Error("Expected the session to be quit")
			}
			if len(f.rated) != 0 {
				t.Errorf("Expected no ratings, but got %v", f.rated)
			}
		})
	}
}

func TestStudyLoopNothingDue(t *testing.T) {
	f := &fakeStudier{startErr: domain.ErrNothingDue}
	var out bytes.Buffer
	if err := studyLoop(context.Background(), f, session.StartRequest{}, strings.NewReader(""), &out); err != nil {
		t.Fatalf("Expected nothing due to be informational, but got %v", err)
	}
	if !strings.Contains(out.String(), "Nothing to study") {
		t.Errorf("Unexpected output: %q", out.String())
	}
}

func TestParseRatingInput(t *testing.T) {
	tests := []struct {
		in      string
		want    domain.Rating
		wantErr bool
	}{
		{"1", domain.Again, false},
		{"6", domain.Superb, false},
		{"hard", domain.Hard, false},
		{"0", domain.New, true},
		{"7", domain.New, true},
		{"new", domain.New, true},
		{"meh", domain.New, true},
	}
	for _, tt := range tests {
		got, err := parseRatingInput(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("parseRatingInput(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if !tt.wantErr && got != tt.want {
			t.Errorf("Expected %v for %q, but got %v", tt.want, tt.in, got)
		}
	}
}
