package wizard

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"lifemonitor/app/expressions"
	"lifemonitor/app/expressions/jinja"
	"lifemonitor/app/github"
)

const (
	ReactionAccepted = "+1"
	ReactionConfused = "confused"
)

// IO is the conversation channel of a wizard.
type IO interface {
	Comments(ctx context.Context) ([]github.Comment, error)
	Write(ctx context.Context, body string) error
	React(ctx context.Context, commentID int64, reaction string) error
}

// IssueClient is the part of the GitHub client the issue IO needs.
type IssueClient interface {
	Comments(ctx context.Context, fullName string, number int) ([]github.Comment, error)
	CreateComment(ctx context.Context, fullName string, number int, body string) (*github.Comment, error)
	React(ctx context.Context, fullName string, commentID int64, content string) error
}

// IssueIO talks through the comments of a GitHub issue.
type IssueIO struct {
	Client     IssueClient
	Repository string
	Issue      int
}

func (io *IssueIO) Comments(ctx context.Context) ([]github.Comment, error) {
	return io.Client.Comments(ctx, io.Repository, io.Issue)
}

func (io *IssueIO) Write(ctx context.Context, body string) error {
	_, err := io.Client.CreateComment(ctx, io.Repository, io.Issue, body)
	return err
}

func (io *IssueIO) React(ctx context.Context, commentID int64, reaction string) error {
	return io.Client.React(ctx, io.Repository, commentID, reaction)
}

const stepTemplate = `{{ marker }}
**{{ title }}**
{% if description %}
{{ description }}
{% endif %}{% if options %}
{% for o in options %}- ` + "`{{ o }}`" + `
{% endfor %}{% endif %}{% if help %}
{{ help }}
{% endif %}`

func marker(s *Step) string {
	return "<!-- " + s.ID() + " -->"
}

// botName strips the app suffix GitHub appends to bot logins.
func botName(bot string) string {
	return strings.TrimSuffix(bot, "[bot]")
}

func helpText(bot string) string {
	return fmt.Sprintf("<i>Reply with</i> <code>@%s &lt;answer&gt;</code>", botName(bot))
}

// Text evaluates the expressions in the title and description of s over the
// answers given so far.
func (s *Step) Text(answers Answers) (title, description string, err error) {
	text, err := expressions.EvaluateRecursively(map[string]interface{}{
		"title":       s.Title,
		"description": s.Description,
	}, answers.data())
	if err != nil {
		return "", "", err
	}
	fields := text.(map[string]interface{})
	return fmt.Sprint(fields["title"]), fmt.Sprint(fields["description"]), nil
}

// Render formats the comment presenting a step.
func Render(s *Step, bot string, answers Answers) (string, error) {
	help := ""
	if s.IsQuestion() {
		help = helpText(bot)
	}
	title, description, err := s.Text(answers)
	if err != nil {
		return "", err
	}
	return jinja.Render(stepTemplate, map[string]interface{}{
		"marker":      marker(s),
		"title":       title,
		"description": description,
		"options":     s.Options,
		"help":        help,
	})
}

// AnswerPattern matches comments addressed to LifeMonitor; the fourth group is the reply.
func AnswerPattern(bot string) *regexp.Regexp {
	return regexp.MustCompile(`^@(lm|` + regexp.QuoteMeta(botName(bot)) + `)(\[bot\])?(\s(.*))?`)
}

// ParseReply extracts the reply of a comment addressed to the bot.
func ParseReply(pattern *regexp.Regexp, body string) (string, bool) {
	m := pattern.FindStringSubmatch(strings.TrimSpace(body))
	if m == nil {
		return "", false
	}
	return strings.TrimSpace(m[4]), true
}
