package scheduler

import (
	"encoding/json"
	"time"

	"lifemonitor/pkg/contextx"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

const (
	StatusCreated   = "created"
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusError     = "error"
	StatusRetrying  = "retrying"
	StatusExpired   = "expired"
)

// Listeners are the users and rooms notified of the status changes of a job.
type Listeners struct {
	IDs   []string `json:"listening_ids,omitempty"`
	Rooms []string `json:"listening_rooms,omitempty"`
}

func (l Listeners) Empty() bool {
	return len(l.IDs) == 0 && len(l.Rooms) == 0
}

// Message is a job travelling through a queue.
type Message struct {
	ID         string            `json:"id"`
	Name       string            `json:"name"`
	Args       []json.RawMessage `json:"args"`
	Attempt    int               `json:"attempt"`
	Created    float64           `json:"created"`
	MaxRetries int               `json:"max_retries"`
	MaxAge     float64           `json:"max_age"`
	Listeners
}

func seconds(t time.Time) float64 {
	return float64(t.UnixNano()) / float64(time.Second)
}

func newMessage(name string, def *Definition, now time.Time, to Listeners, args ...interface{}) (*Message, error) {
	m := &Message{
		ID:         uuid.NewString(),
		Name:       name,
		Created:    seconds(now),
		MaxRetries: def.MaxRetries,
		MaxAge:     def.MaxAge.Seconds(),
		Listeners:  to,
	}
	for i, a := range args {
		raw, err := json.Marshal(a)
		if err != nil {
			return nil, errors.Wrapf(err, "encode argument %d of %s", i, name)
		}
		m.Args = append(m.Args, raw)
	}
	return m, nil
}

// Expired reports whether the message outlived its max age at now.
func (m *Message) Expired(now time.Time) bool {
	return m.MaxAge > 0 && seconds(now)-m.Created > m.MaxAge
}

// Job is the message handed to a handler.
type Job struct {
	*Message
	progress func(state string, data map[string]interface{})
}

// Progress records a custom state of the running job and notifies its listeners.
func (j *Job) Progress(state string, data map[string]interface{}) {
	if j.progress != nil {
		j.progress(state, data)
	}
}

// Arg decodes the i-th argument into v.
func (j *Job) Arg(i int, v interface{}) error {
	if i >= len(j.Args) {
		return errors.Errorf("job %s has no argument %d", j.Name, i)
	}
	return errors.Wrapf(json.Unmarshal(j.Args[i], v), "decode argument %d of %s", i, j.Name)
}

type Handler func(ctx *contextx.Context, job *Job) error

// Definition describes a deferred job.
type Definition struct {
	Name       string
	Queue      string
	MaxRetries int
	// MaxAge drops messages older than it instead of running them.
	MaxAge  time.Duration
	Timeout time.Duration
	Handler Handler
}

// Status is the record of a job kept in the cache.
type Status struct {
	ID      string                 `json:"id"`
	Name    string                 `json:"type"`
	Status  string                 `json:"status"`
	Attempt int                    `json:"attempt"`
	Error   string                 `json:"error,omitempty"`
	Data    map[string]interface{} `json:"data,omitempty"`
	Created float64                `json:"created"`
	Updated float64                `json:"modified"`
	Listeners
}
