package parser

import (
	"bufio"
	"io"
	"os"
	"strings"

	"github.com/conorfennell/knoldrill/internal/domain"
)

const (
	questionPrefix = "Q:"
	answerPrefix   = "A:"
	contextPrefix  = "C:"
	tagsPrefix     = "T:"
	separator      = "---"
)

type field int

const (
	seeking field = iota
	readingQuestion
	readingAnswer
	readingContext
	readingTags
)

// ParseFile reads a file from the given path and extracts all items.
// Every item is stamped with containerID.
func ParseFile(path string, containerID int64) ([]domain.Item, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	items, err := Parse(file)
	for i := range items {
		items[i].ContainerID = containerID
	}
	return items, err
}

// itemBuilder accumulates the lines of the item being read.
type itemBuilder struct {
	items   []domain.Item
	current domain.Item
	field   field
	block   []string
}

// flushBlock assigns the buffered lines to the field being read.
// Trailing blank lines are dropped.
func (b *itemBuilder) flushBlock() {
	for len(b.block) > 0 && strings.TrimSpace(b.block[len(b.block)-1]) == "" {
		b.block = b.block[:len(b.block)-1]
	}
	if len(b.block) == 0 {
		return
	}
	content := strings.Join(b.block, "\n")
	switch b.field {
	case readingQuestion:
		b.current.Question = content
	case readingAnswer:
		b.current.Answer = content
	case readingContext:
		b.current.Context = content
	}
	b.block = nil
}

func (b *itemBuilder) finish() {
	b.flushBlock()
	if b.current.Question != "" {
		b.items = append(b.items, b.current)
	}
	b.current = domain.Item{}
	b.field = seeking
}

func (b *itemBuilder) start(f field, content string) {
	b.flushBlock()
	if f == readingQuestion && b.field != seeking {
		// A new question always starts a new item.
		b.finish()
	}
	b.field = f
	b.block = append(b.block, content)
}

func (b *itemBuilder) addTags(content string) {
	b.flushBlock()
	if b.field != seeking {
		b.field = readingTags
	}
	for _, tag := range strings.Split(content, ",") {
		if tag = strings.TrimSpace(tag); tag != "" {
			b.current.Tags = append(b.current.Tags, tag)
		}
	}
}

// afterPrefix strips the prefix and at most one following space.
func afterPrefix(line, prefix string) string {
	return strings.TrimPrefix(line[len(prefix):], " ")
}

// Parse reads from an io.Reader and extracts all items.
//
// An item starts at a "Q:" line and may carry "A:", "C:" and "T:" lines. Q, A
// and C blocks continue over following lines until the next prefixed line;
// "T:" is a single comma separated line of tags. A "---" line ends the item.
func Parse(r io.Reader) ([]domain.Item, error) {
	scanner := bufio.NewScanner(r)
	b := &itemBuilder{}

	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == separator:
			b.finish()
		case strings.HasPrefix(line, questionPrefix):
			b.start(readingQuestion, afterPrefix(line, questionPrefix))
		case strings.HasPrefix(line, answerPrefix):
			b.start(readingAnswer, afterPrefix(line, answerPrefix))
		case strings.HasPrefix(line, contextPrefix):
			b.start(readingContext, afterPrefix(line, contextPrefix))
		case strings.HasPrefix(line, tagsPrefix):
			b.addTags(afterPrefix(line, tagsPrefix))
		case b.field != seeking && b.field != readingTags:
			b.block = append(b.block, line)
		}
	}

	b.finish() // Finish the very last item in the file

	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return b.items, nil
}
