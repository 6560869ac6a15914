package triage

import (
	"encoding/json"
	"fmt"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/zero-day-ai/aviator/finding"
)

// Message types on the stream.
const (
	msgInit  = "init"
	msgAudit = "audit"
)

func encodeInit(req *BatchRequest, requestID string) (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]any{
		"type":                msgInit,
		"stream_id":           req.StreamID,
		"request_id":          requestID,
		"token":               req.Token,
		"project_name":        req.Project.ProjectName,
		"build_id":            req.Project.BuildID,
		"application_name":    req.Project.ApplicationName,
		"application_version": req.Project.ApplicationVersion,
		"total_requests":      float64(req.Len()),
	})
}

func encodeAudit(streamID, requestID string, c *finding.Candidate) (*structpb.Struct, error) {
	candidate, err := toMap(c)
	if err != nil {
		return nil, fmt.Errorf("failed to encode candidate %s: %w", c.InstanceID, err)
	}
	return structpb.NewStruct(map[string]any{
		"type":       msgAudit,
		"stream_id":  streamID,
		"request_id": requestID,
		"candidate":  candidate,
	})
}

func decodeCandidate(msg *structpb.Struct) (finding.Candidate, error) {
	var c finding.Candidate
	data, err := json.Marshal(msg.GetFields()["candidate"].GetStructValue().AsMap())
	if err != nil {
		return c, fmt.Errorf("failed to decode candidate: %w", err)
	}
	if err := json.Unmarshal(data, &c); err != nil {
		return c, fmt.Errorf("failed to decode candidate: %w", err)
	}
	return c, nil
}

func encodeResponse(streamID string, v *Verdict) (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]any{
		"stream_id":      streamID,
		"request_id":     v.RequestID,
		"status":         v.Status,
		"status_message": v.StatusMessage,
		"tier":           v.Tier,
		"tag_value":      v.Outcome.Display(),
		"comment":        v.Comment,
		"input_tokens":   float64(v.InputTokens),
		"output_tokens":  float64(v.OutputTokens),
	})
}

func decodeResponse(msg *structpb.Struct) Verdict {
	f := msg.GetFields()
	return Verdict{
		RequestID:     f["request_id"].GetStringValue(),
		Tier:          f["tier"].GetStringValue(),
		Outcome:       ParseOutcome(f["tag_value"].GetStringValue()),
		Comment:       f["comment"].GetStringValue(),
		Status:        f["status"].GetStringValue(),
		StatusMessage: f["status_message"].GetStringValue(),
		InputTokens:   int64(f["input_tokens"].GetNumberValue()),
		OutputTokens:  int64(f["output_tokens"].GetNumberValue()),
	}
}

func stringField(msg *structpb.Struct, name string) string {
	return msg.GetFields()[name].GetStringValue()
}

func toMap(v any) (map[string]any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return m, nil
}
