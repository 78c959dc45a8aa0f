package scheduler

import (
	"encoding/json"
	"errors"
	"strings"

	"github.com/hibiken/asynq"
)

const TaskRunBatch = "disputes.run_batch"

const TaskProcessReference = "disputes.process_reference"

type RunBatchPayload struct {
	Trigger string `json:"trigger"`
}

type ProcessReferencePayload struct {
	ClientReference string `json:"clientReference"`
}

var errMissingReference = errors.New("client reference is required")

func NewRunBatchTask(payload RunBatchPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskRunBatch, data), nil
}

func ParseRunBatchPayload(task *asynq.Task) (RunBatchPayload, error) {
	var payload RunBatchPayload
	if len(task.Payload()) == 0 {
		return payload, nil
	}
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return RunBatchPayload{}, err
	}
	return payload, nil
}

func NewProcessReferenceTask(payload ProcessReferencePayload) (*asynq.Task, error) {
	payload.ClientReference = strings.TrimSpace(payload.ClientReference)
	if payload.ClientReference == "" {
		return nil, errMissingReference
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskProcessReference, data), nil
}

func ParseProcessReferencePayload(task *asynq.Task) (ProcessReferencePayload, error) {
	var payload ProcessReferencePayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return ProcessReferencePayload{}, err
	}
	if strings.TrimSpace(payload.ClientReference) == "" {
		return ProcessReferencePayload{}, errMissingReference
	}
	return payload, nil
}
