package router

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// Payload decoding never fails: anything missing or malformed becomes the
// zero value or the field's default.

const (
	defaultBedLabel         = "Neutral"
	defaultBedDescription   = "Flat, centered position"
	defaultEmergencyMessage = "Emergency alert"
)

// DecodeSensorReading decodes a sensor_data payload.
func DecodeSensorReading(raw json.RawMessage) SensorReading {
	f := objectFields(raw)
	return SensorReading{
		HeartRate:   number(f["bpm"]),
		OxygenLevel: number(f["spo2"]),
		Temperature: number(f["temperature"]),
		Humidity:    number(f["humidity"]),
		Gyroscope: Vector3{
			X: number(f["x"]),
			Y: number(f["y"]),
			Z: number(f["z"]),
		},
	}
}

// DecodeBedPosition decodes a bed_position payload.
func DecodeBedPosition(raw json.RawMessage) BedPosition {
	f := objectFields(raw)
	return BedPosition{
		Label:       text(f["label"], defaultBedLabel),
		Description: text(f["description"], defaultBedDescription),
		Angles: Vector3{
			X: number(f["x"]),
			Y: number(f["y"]),
			Z: number(f["z"]),
		},
		Stable: boolean(f["stable"], true),
	}
}

// DecodeEmergency decodes an emergency_alert payload, either a bare string or
// {message, severity}. Anything else, null included, yields the default message.
func DecodeEmergency(raw json.RawMessage) (message, severity string) {
	var s *string
	if err := json.Unmarshal(raw, &s); err == nil && s != nil {
		return *s, ""
	}
	f := objectFields(raw)
	return text(f["message"], defaultEmergencyMessage), text(f["severity"], "")
}

// DecodeIntensity decodes a crying_intensity payload, either a bare number or {intensity}.
func DecodeIntensity(raw json.RawMessage) float64 {
	var v interface{}
	if err := json.Unmarshal(raw, &v); err != nil {
		return 0
	}
	switch t := v.(type) {
	case float64:
		return finite(t)
	case map[string]interface{}:
		return number(objectFields(raw)["intensity"])
	}
	return 0
}

func objectFields(raw json.RawMessage) map[string]json.RawMessage {
	var m map[string]json.RawMessage
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil
	}
	return m
}

func number(raw json.RawMessage) float64 {
	if len(raw) == 0 {
		return 0
	}
	var v interface{}
	if err := json.Unmarshal(raw, &v); err != nil {
		return 0
	}
	switch t := v.(type) {
	case float64:
		return finite(t)
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return 0
		}
		return finite(f)
	}
	return 0
}

func text(raw json.RawMessage, def string) string {
	var s *string
	if err := json.Unmarshal(raw, &s); err != nil || s == nil {
		return def
	}
	return *s
}

func boolean(raw json.RawMessage, def bool) bool {
	var b *bool
	if err := json.Unmarshal(raw, &b); err != nil || b == nil {
		return def
	}
	return *b
}

func finite(f float64) float64 {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return f
}
