package models

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// payloadSchemas declares the expected shape of the data payload for each
// action. Payloads are loosely typed maps on the wire; the schemas close the
// gap before anything reaches the reducer.
var payloadSchemas = map[Action]map[string]any{
	ActionStartWorkflow: {
		"type": "object",
		"properties": map[string]any{
			"template":   map[string]any{"type": "string"},
			"context":    map[string]any{"type": "object"},
			"first_step": map[string]any{"type": "string", "minLength": 1},
		},
		"required": []any{"first_step"},
	},
	ActionCompleteStep: {
		"type": "object",
		"properties": map[string]any{
			"result":    map[string]any{"type": "object"},
			"next_step": map[string]any{"type": "string"},
		},
	},
	ActionFailStep: {
		"type": "object",
		"properties": map[string]any{
			"error": map[string]any{"type": "string", "minLength": 1},
		},
		"required": []any{"error"},
	},
	ActionApproveGate: {
		"type": "object",
		"properties": map[string]any{
			"approver_id":   map[string]any{"type": "string", "minLength": 1},
			"approver_role": map[string]any{"type": "string"},
			"justification": map[string]any{"type": "string"},
		},
		"required": []any{"approver_id"},
	},
	ActionRejectGate: {
		"type": "object",
		"properties": map[string]any{
			"approver_id":   map[string]any{"type": "string"},
			"approver_role": map[string]any{"type": "string"},
			"justification": map[string]any{"type": "string"},
			"expired":       map[string]any{"type": "boolean"},
			"on_reject":     map[string]any{"type": "string", "enum": []any{"failed", "cancelled"}},
		},
	},
	ActionPauseWorkflow: {
		"type": "object",
		"properties": map[string]any{
			"reason": map[string]any{"type": "string"},
		},
	},
	ActionResumeWorkflow: {
		"type": "object",
		"properties": map[string]any{
			"resumed_by": map[string]any{"type": "string"},
		},
	},
	ActionCancelWorkflow: {
		"type": "object",
		"properties": map[string]any{
			"reason":       map[string]any{"type": "string", "minLength": 1},
			"cancelled_by": map[string]any{"type": "string"},
		},
		"required": []any{"reason"},
	},
	ActionRollbackStep: {
		"type": "object",
		"properties": map[string]any{
			"reason": map[string]any{"type": "string"},
		},
	},
	ActionRetryStep: {
		"type": "object",
		"properties": map[string]any{
			"retry_attempt": map[string]any{"type": "integer", "minimum": 1},
			"max_retries":   map[string]any{"type": "integer", "minimum": 0},
			"backoff_ms":    map[string]any{"type": "number", "minimum": 0},
		},
		"required": []any{"retry_attempt"},
	},
	ActionStartChildWorkflow: {
		"type": "object",
		"properties": map[string]any{
			"child_workflow_id": map[string]any{"type": "string", "minLength": 1},
		},
		"required": []any{"child_workflow_id"},
	},
	ActionChildWorkflowComplete: {
		"type": "object",
		"properties": map[string]any{
			"child_workflow_id": map[string]any{"type": "string", "minLength": 1},
			"result":            map[string]any{"type": "object"},
		},
		"required": []any{"child_workflow_id"},
	},
	ActionCreateSnapshot: {
		"type": "object",
	},
	ActionAnnotate: {
		"type": "object",
		"properties": map[string]any{
			"event_id": map[string]any{"type": "string"},
			"comment":  map[string]any{"type": "string", "minLength": 1},
			"author":   map[string]any{"type": "string"},
		},
		"required": []any{"comment"},
	},
}

// ValidatePayload checks an action's data payload against its JSON schema.
func ValidatePayload(action Action, data map[string]any) error {
	schema, ok := payloadSchemas[action]
	if !ok {
		return fmt.Errorf("no payload schema for action %q", action)
	}

	if data == nil {
		data = map[string]any{}
	}

	result, err := gojsonschema.Validate(gojsonschema.NewGoLoader(schema), gojsonschema.NewGoLoader(data))
	if err != nil {
		return fmt.Errorf("failed to validate %s payload: %w", action, err)
	}

	if !result.Valid() {
		details := make([]string, 0, len(result.Errors()))
		for _, resultError := range result.Errors() {
			details = append(details, resultError.String())
		}

		return fmt.Errorf("invalid %s payload: %s", action, strings.Join(details, "; "))
	}

	return nil
}
