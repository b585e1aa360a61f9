package commitment

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/pledgeworks/pledge/internal/protocol"
	"github.com/pledgeworks/pledge/internal/schedule"
)

// Init payloads, one per kind. Field names are the wire names clients send.

type basePayload struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

type deadlinePayload struct {
	Deadline         int64  `json:"deadline"`
	SubmissionWindow int64  `json:"submission_window"`
	TaskDescription  string `json:"task_description"`
}

type alarmPayload struct {
	AlarmTime        int64  `json:"alarm_time"`
	AlarmDays        []int  `json:"alarm_days"`
	SubmissionWindow int64  `json:"submission_window"`
	TimezoneOffset   int64  `json:"timezone_offset"`
	Description      string `json:"description"`
}

func (p alarmPayload) config() schedule.AlarmConfig {
	return schedule.AlarmConfig{
		AlarmTime:      p.AlarmTime,
		Days:           p.AlarmDays,
		Window:         p.SubmissionWindow,
		TimezoneOffset: p.TimezoneOffset,
	}
}

type timelockTaskPayload struct {
	Deadline         int64  `json:"deadline"`
	SubmissionWindow int64  `json:"submission_window"`
	TimelockDuration int64  `json:"timelock_duration"`
	TaskDescription  string `json:"task_description"`
}

type partnerAlarmPayload struct {
	AlarmTime          int64             `json:"alarm_time"`
	AlarmDays          []int             `json:"alarm_days"`
	MissedAlarmPenalty protocol.Amount   `json:"missed_alarm_penalty"`
	SubmissionWindow   int64             `json:"submission_window"`
	TimezoneOffset     int64             `json:"timezone_offset"`
	OtherPlayer        protocol.Identity `json:"other_player"`
}

func (p partnerAlarmPayload) config() schedule.AlarmConfig {
	return schedule.AlarmConfig{
		AlarmTime:      p.AlarmTime,
		Days:           p.AlarmDays,
		Window:         p.SubmissionWindow,
		TimezoneOffset: p.TimezoneOffset,
	}
}

// decodePayload strictly decodes a single JSON object into v.
func decodePayload(payload []byte, v any) error {
	if len(bytes.TrimSpace(payload)) == 0 {
		return protocol.Errorf(protocol.ErrInvalidPayload, "empty payload")
	}
	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return protocol.Errorf(protocol.ErrInvalidPayload, "%s", strings.TrimPrefix(err.Error(), "json: "))
	}
	if dec.More() {
		return protocol.Errorf(protocol.ErrInvalidPayload, "trailing data after payload object")
	}
	return nil
}
