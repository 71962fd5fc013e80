package scheduler

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rotisserie/eris"
)

// JobPayload is carried by every job task.
type JobPayload struct {
	// Trigger is the autoassign trigger recorded with the pass.
	Trigger    string    `json:"trigger"`
	EnqueuedAt time.Time `json:"enqueuedAt"`
}

// NewJobTask builds the asynq task for job name.
func NewJobTask(name, trigger string) (*asynq.Task, error) {
	data, err := json.Marshal(JobPayload{Trigger: trigger, EnqueuedAt: time.Now().UTC()})
	if err != nil {
		return nil, eris.Wrap(err, "marshal job payload")
	}
	return asynq.NewTask(name, data), nil
}

// ParseJobPayload decodes a job task payload. An empty payload is valid.
func ParseJobPayload(task *asynq.Task) (JobPayload, error) {
	var payload JobPayload
	if len(task.Payload()) == 0 {
		return payload, nil
	}
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return JobPayload{}, eris.Wrapf(err, "decode %s payload", task.Type())
	}
	return payload, nil
}
