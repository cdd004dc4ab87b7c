// Package wizard drives the step by step conversations LifeMonitor opens on
// repository issues. A wizard keeps no state of its own: every event rebuilds
// it from the comments of the issue.
package wizard

import (
	"crypto/sha1"
	"encoding/hex"
	"strings"

	"lifemonitor/app/expressions"
	"lifemonitor/app/repository"
	"lifemonitor/pkg/contextx"
	"lifemonitor/pkg/log"
)

const (
	StepIDPrefix   = "wizard-step-"
	WizardIDPrefix = "lifemonitor-wizard-"
)

type Kind int

const (
	Question Kind = iota
	Update
)

func (k Kind) String() string {
	if k == Update {
		return "update"
	}
	return "question"
}

// Answers maps question keys to the accepted replies.
type Answers map[string]string

// data is the evaluation context of step expressions.
func (a Answers) data() map[string]interface{} {
	data := make(map[string]interface{}, len(a))
	for k, v := range a {
		data[k] = v
	}
	return data
}

// FilesFunc computes the files an update step proposes.
type FilesFunc func(ctx *contextx.Context, w *Wizard, repo *repository.Repository) ([]repository.File, error)

type Step struct {
	Key         string
	Title       string
	Description string
	Kind        Kind
	// Options restricts the accepted answers of a question; empty accepts any text.
	Options []string
	// When is an expression over the answers; the step is skipped when it does not hold.
	When string
	// Guard is checked after When.
	Guard    func(answers Answers) bool
	Files    []repository.File
	Callback FilesFunc
}

func NewQuestion(key, title string, options ...string) *Step {
	return &Step{Key: key, Title: title, Kind: Question, Options: options}
}

func NewUpdate(key, title, description string, callback FilesFunc) *Step {
	return &Step{Key: key, Title: title, Description: description, Kind: Update, Callback: callback}
}

// ID is also the name of the branch holding the changes of an update step.
func (s *Step) ID() string {
	sum := sha1.Sum([]byte(s.Title))
	return StepIDPrefix + hex.EncodeToString(sum[:])
}

func (s *Step) IsQuestion() bool { return s.Kind == Question }

func (s *Step) enabled(answers Answers) bool {
	if s.When != "" {
		ok, err := expressions.Truthy(s.When, answers.data())
		if err != nil {
			log.Warnf(nil, "Unable to evaluate the condition of step %s: %v", s.Key, err)
			return false
		}
		if !ok {
			return false
		}
	}
	return s.Guard == nil || s.Guard(answers)
}

// accept validates a reply. Matching options is case insensitive and returns
// the option as declared.
func (s *Step) accept(reply string) (string, bool) {
	reply = strings.TrimSpace(reply)
	if reply == "" {
		return "", false
	}
	if len(s.Options) == 0 {
		return reply, true
	}
	for _, o := range s.Options {
		if strings.EqualFold(o, reply) {
			return o, true
		}
	}
	return "", false
}

// Definition describes a wizard and the issue it helps to solve.
type Definition struct {
	Title       string
	Description string
	Labels      []string
	Issue       string
	Steps       []*Step
}

func (d *Definition) ID() string {
	sum := sha1.Sum([]byte(d.Title))
	return WizardIDPrefix + hex.EncodeToString(sum[:])
}

func (d *Definition) Step(key string) *Step {
	for _, s := range d.Steps {
		if s.Key == key {
			return s
		}
	}
	return nil
}

func (d *Definition) index(step *Step) int {
	for i, s := range d.Steps {
		if s == step {
			return i
		}
	}
	return -1
}

// match finds the step a bot comment presents.
func (d *Definition) match(body string) *Step {
	for _, s := range d.Steps {
		if strings.Contains(body, marker(s)) {
			return s
		}
	}
	for _, s := range d.Steps {
		if s.Title != "" && strings.Contains(body, s.Title) {
			return s
		}
	}
	return nil
}

var definitions []*Definition

// Register makes d available to ForIssue.
func Register(d *Definition) {
	definitions = append(definitions, d)
}

func All() []*Definition {
	return definitions
}

// ForIssue returns the wizard bound to an issue key.
func ForIssue(key string) *Definition {
	for _, d := range definitions {
		if d.Issue == key {
			return d
		}
	}
	return nil
}
