package wizard

import (
	"context"
	"regexp"

	"lifemonitor/app/github"
	"lifemonitor/app/repository"
	"lifemonitor/pkg/contextx"
	"lifemonitor/pkg/log"

	"github.com/pkg/errors"
)

// Publisher proposes the files of an update step, usually as a pull request,
// and returns a link to the proposal.
type Publisher interface {
	Publish(ctx context.Context, step *Step, files []repository.File) (string, error)
}

// Wizard is a definition resumed on a conversation.
type Wizard struct {
	*Definition
	Current *Step

	io      IO
	bot     string
	pattern *regexp.Regexp
	answers Answers
}

// Resume rebuilds the state of a wizard from the conversation: the current step
// is the last one the bot presented, and a question is answered by the last
// valid reply that follows its presentation.
func Resume(ctx *contextx.Context, d *Definition, io IO, bot string) (*Wizard, error) {
	w := &Wizard{Definition: d, io: io, bot: bot, pattern: AnswerPattern(bot), answers: Answers{}}
	comments, err := io.Comments(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "load wizard conversation")
	}
	for _, c := range comments {
		if c.User.Login == bot {
			if s := d.match(c.Body); s != nil {
				w.Current = s
			}
			continue
		}
		if w.Current == nil || !w.Current.IsQuestion() {
			continue
		}
		if reply, ok := ParseReply(w.pattern, c.Body); ok {
			if answer, ok := w.Current.accept(reply); ok {
				w.answers[w.Current.Key] = answer
			}
		}
	}
	log.Debugf(ctx, "Wizard %s resumed at step %v with answers %v", d.Title, stepKey(w.Current), w.answers)
	return w, nil
}

func stepKey(s *Step) string {
	if s == nil {
		return "<none>"
	}
	return s.Key
}

func (w *Wizard) Answer(key string) string {
	return w.answers[key]
}

func (w *Wizard) Answers() Answers {
	result := Answers{}
	for k, v := range w.answers {
		result[k] = v
	}
	return result
}

// Next returns the first enabled step after from; a nil from starts at the beginning.
func (w *Wizard) Next(from *Step) *Step {
	i := -1
	if from != nil {
		i = w.index(from)
	}
	for i++; i < len(w.Steps); i++ {
		if w.Steps[i].enabled(w.answers) {
			return w.Steps[i]
		}
	}
	return nil
}

// FilesFor computes the files proposed by an update step.
func (w *Wizard) FilesFor(ctx *contextx.Context, s *Step, repo *repository.Repository) ([]repository.File, error) {
	files := append([]repository.File{}, s.Files...)
	if s.Callback != nil {
		more, err := s.Callback(ctx, w, repo)
		if err != nil {
			return nil, err
		}
		files = append(files, more...)
	}
	return files, nil
}

// Start presents the first step unless the conversation already began.
func (w *Wizard) Start(ctx *contextx.Context, repo *repository.Repository, pub Publisher) (*Step, error) {
	if w.Current != nil {
		return nil, nil
	}
	next := w.Next(nil)
	if next == nil {
		return nil, nil
	}
	return next, w.present(ctx, next, repo, pub)
}

// Reply processes a user comment on the current question. An accepted reply
// gets a thumbs up and moves to the next step; anything else gets a confused
// reaction and the current step again.
func (w *Wizard) Reply(ctx *contextx.Context, comment github.Comment, repo *repository.Repository, pub Publisher) (*Step, error) {
	step := w.Current
	if step == nil || !step.IsQuestion() {
		return nil, nil
	}
	reply, addressed := ParseReply(w.pattern, comment.Body)
	answer, ok := step.accept(reply)
	if !addressed || !ok {
		log.Debugf(ctx, "Unable to understand the reply to step %s: %q", step.Key, comment.Body)
		if err := w.io.React(ctx, comment.ID, ReactionConfused); err != nil {
			return nil, err
		}
		return step, w.present(ctx, step, repo, pub)
	}
	if err := w.io.React(ctx, comment.ID, ReactionAccepted); err != nil {
		return nil, err
	}
	w.answers[step.Key] = answer
	next := w.Next(step)
	if next == nil {
		log.Infof(ctx, "Wizard %s completed", w.Title)
		return nil, nil
	}
	return next, w.present(ctx, next, repo, pub)
}

func (w *Wizard) present(ctx *contextx.Context, s *Step, repo *repository.Repository, pub Publisher) error {
	body, err := Render(s, w.bot, w.answers)
	if err != nil {
		return err
	}
	if s.Kind == Update {
		files, err := w.FilesFor(ctx, s, repo)
		if err != nil {
			return err
		}
		if repo != nil {
			files = repo.Diff(files)
		}
		if len(files) == 0 {
			log.Infof(ctx, "Nothing to propose for step %s", s.Key)
			return nil
		}
		if pub == nil {
			return errors.Errorf("no publisher for update step %s", s.Key)
		}
		// the step id follows the declared title; only the description is shown evaluated
		shown := *s
		if _, shown.Description, err = s.Text(w.answers); err != nil {
			return err
		}
		link, err := pub.Publish(ctx, &shown, files)
		if err != nil {
			return err
		}
		if link != "" {
			body += "<br>See PR " + link
		}
	}
	w.Current = s
	return w.io.Write(ctx, body)
}
