package service

import (
	"fmt"
	"strings"

	"brokeradmin/core"

	"github.com/xeipuuv/gojsonschema"
)

const mailSettingsSchema = `{
  "type": "object",
  "required": ["mailFrom", "smtpHost", "smtpPort"],
  "properties": {
    "mailFrom":     {"type": "string", "minLength": 1},
    "smtpProtocol": {"type": "string", "enum": ["smtp", "smtps"]},
    "smtpHost":     {"type": "string", "minLength": 1},
    "smtpPort":     {"type": "integer", "minimum": 1, "maximum": 65535},
    "timeout":      {"type": "integer", "minimum": 0},
    "enableTls":    {"type": "boolean"},
    "tlsVersion":   {"type": "string"},
    "username":     {"type": "string"},
    "password":     {"type": "string"}
  }
}`

const mqttAuthSettingsSchema = `{
  "type": "object",
  "required": ["priorities"],
  "properties": {
    "priorities": {
      "type": "array",
      "uniqueItems": true,
      "items": {"type": "string", "enum": ["MQTT_BASIC", "X_509", "JWT", "SCRAM", "HTTP"]}
    }
  }
}`

// settingsSchemas holds the compiled payload schema of every known setting type.
type settingsSchemas map[core.SettingType]*gojsonschema.Schema

func compileSettingsSchemas() (settingsSchemas, error) {
	sources := map[core.SettingType]string{
		core.SettingTypeMail:              mailSettingsSchema,
		core.SettingTypeMqttAuthorization: mqttAuthSettingsSchema,
	}
	schemas := make(settingsSchemas, len(sources))
	for t, src := range sources {
		schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(src))
		if err != nil {
			return nil, fmt.Errorf("failed to compile %s schema: %w", t, err)
		}
		schemas[t] = schema
	}
	return schemas, nil
}

// validate checks payload against the schema of t. Types without a schema always pass.
func (s settingsSchemas) validate(t core.SettingType, payload core.SettingsPayload) error {
	schema, ok := s[t]
	if !ok {
		return nil
	}
	if payload == nil {
		return core.NewInvalidParameterError("Settings value must be specified")
	}
	result, err := schema.Validate(gojsonschema.NewGoLoader(map[string]interface{}(payload)))
	if err != nil {
		return core.NewInvalidParameterError("Invalid %s settings: %v", t, err)
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}
		return core.NewInvalidParameterError("Invalid %s settings: %s", t, strings.Join(msgs, "; "))
	}
	return nil
}
