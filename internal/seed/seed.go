package seed

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/park285/typing-arena/internal/domain"
	"github.com/park285/typing-arena/internal/store"
)

const (
	codeLength     = 6
	codeAttempts   = 5
	defaultSeconds = 60
)

var (
	ErrNoRounds      = errors.New("competition needs at least one round")
	ErrEmptyText     = errors.New("round text is empty")
	ErrNoOrganizer   = errors.New("organizerId is required")
	ErrCodeExhausted = errors.New("could not allocate a unique join code")
)

// File is the YAML document read by the seed tool.
type File struct {
	Competitions []Definition `yaml:"competitions"`
}

type Definition struct {
	Name        string     `yaml:"name"`
	Description string     `yaml:"description"`
	OrganizerID string     `yaml:"organizerId"`
	Organizer   string     `yaml:"organizer"`
	Code        string     `yaml:"code"`
	Rounds      []RoundDef `yaml:"rounds"`
}

type RoundDef struct {
	Text     string `yaml:"text"`
	Duration int    `yaml:"duration"`
	Language string `yaml:"language"`
}

func Parse(r io.Reader) (*File, error) {
	var f File
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("decode seed file: %w", err)
	}
	for i, d := range f.Competitions {
		if err := d.validate(); err != nil {
			return nil, fmt.Errorf("competition %d (%q): %w", i+1, d.Name, err)
		}
	}
	return &f, nil
}

func (d Definition) validate() error {
	if strings.TrimSpace(d.OrganizerID) == "" {
		return ErrNoOrganizer
	}
	if len(d.Rounds) == 0 {
		return ErrNoRounds
	}
	for _, r := range d.Rounds {
		if strings.TrimSpace(r.Text) == "" {
			return ErrEmptyText
		}
	}
	return nil
}

// Build turns a definition into a pending competition with every round pending.
func (d Definition) Build(id, code string, now time.Time) *domain.Competition {
	c := &domain.Competition{
		ID:           id,
		Name:         strings.TrimSpace(d.Name),
		Code:         domain.NormalizeCode(code),
		OrganizerID:  strings.TrimSpace(d.OrganizerID),
		Organizer:    strings.TrimSpace(d.Organizer),
		Description:  strings.TrimSpace(d.Description),
		Status:       domain.CompetitionPending,
		CurrentRound: domain.NotStarted,
		TotalRounds:  len(d.Rounds),
		CreatedAt:    now.UTC(),
	}
	for i, r := range d.Rounds {
		dur := r.Duration
		if dur == 0 {
			dur = defaultSeconds
		}
		lang := strings.TrimSpace(r.Language)
		if lang == "" {
			lang = "en"
		}
		c.Rounds = append(c.Rounds, domain.Round{
			RoundNumber: i + 1,
			Text:        r.Text,
			Language:    lang,
			Duration:    dur,
			Status:      domain.RoundPending,
		})
	}
	return c
}

// Create stores d under a fresh id. A fixed code is tried once; otherwise codes are
// generated until one is free.
func Create(ctx context.Context, gw store.Gateway, d Definition, now time.Time) (*domain.Competition, error) {
	if err := d.validate(); err != nil {
		return nil, err
	}
	id := uuid.NewString()
	if strings.TrimSpace(d.Code) != "" {
		c := d.Build(id, d.Code, now)
		if err := gw.CreateCompetition(ctx, c); err != nil {
			return nil, err
		}
		return c, nil
	}
	for i := 0; i < codeAttempts; i++ {
		code, err := NewCode()
		if err != nil {
			return nil, err
		}
		c := d.Build(id, code, now)
		err = gw.CreateCompetition(ctx, c)
		if errors.Is(err, store.ErrDuplicateCode) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return c, nil
	}
	return nil, ErrCodeExhausted
}

// NewCode returns 6 upper alnum characters.
func NewCode() (string, error) {
	const letters = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	b := make([]byte, codeLength)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	for i := range b {
		b[i] = letters[int(b[i])%len(letters)]
	}
	return string(b), nil
}
